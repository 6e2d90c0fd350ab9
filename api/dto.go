/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in generic/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts travel as decimal strings ("80.00") in both directions, never as
  JSON numbers, so nothing passes through float64.

DATES:
  Requests accept RFC3339 or YYYY-MM-DD. Responses use RFC3339.

VALIDATION:
  Request types carry validate tags for shape (required, numeric strings).
  Domain rules (priority range, future date, due within constants) are
  checked by the association service.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse
*/
package api

import (
	"time"

	"github.com/warp/dues-engine/factory"
	"github.com/warp/dues-engine/generic"
)

// =============================================================================
// DIRECTORY
// =============================================================================

// PersonDTO represents a person in API responses.
type PersonDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreatePersonRequest is the request to create a person.
type CreatePersonRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// MemberDTO represents a membership in API responses.
type MemberDTO struct {
	ID               string `json:"id"`
	PersonID         string `json:"person_id"`
	MembershipNumber string `json:"membership_number,omitempty"`
	JoinedAt         string `json:"joined_at,omitempty"`
}

// CreateMemberRequest grants membership to an existing person.
type CreateMemberRequest struct {
	PersonID         string `json:"person_id" validate:"required"`
	MembershipNumber string `json:"membership_number" validate:"max=50"`
}

// IdentityDTO answers "who is this person" with an explicit role.
type IdentityDTO struct {
	Person PersonDTO  `json:"person"`
	Member *MemberDTO `json:"member,omitempty"`
	Role   string     `json:"role"`
}

// SubGroupDTO represents a sub-group in API responses.
type SubGroupDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Region          string `json:"region,omitempty"`
	DiscountPercent string `json:"discount_percent"`
	GuestThreshold  int    `json:"guest_threshold"`
}

type CreateSubGroupRequest struct {
	Name            string `json:"name" validate:"required"`
	Region          string `json:"region"`
	DiscountPercent string `json:"discount_percent" validate:"omitempty,numeric"`
	GuestThreshold  int    `json:"guest_threshold"`
}

type AddToSubGroupRequest struct {
	PersonID string `json:"person_id" validate:"required"`
}

// DuesConstantsDTO is both the GET response and the PUT body.
type DuesConstantsDTO struct {
	Min string `json:"min" validate:"required,numeric"`
	Max string `json:"max" validate:"required,numeric"`
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// ActivityDTO represents an activity in API responses.
type ActivityDTO struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	Description     string `json:"description"`
	Priority        int    `json:"priority"`
	Region          string `json:"region,omitempty"`
	Due             string `json:"due"`
	DiscountPercent string `json:"discount_percent"`
	GuestThreshold  int    `json:"guest_threshold"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateActivityRequest is the request to create an activity.
type CreateActivityRequest struct {
	Date            string `json:"date" validate:"required"`
	Description     string `json:"description" validate:"required"`
	Priority        int    `json:"priority"`
	Region          string `json:"region"`
	Due             string `json:"due" validate:"required,numeric"`
	DiscountPercent string `json:"discount_percent" validate:"omitempty,numeric"`
	GuestThreshold  int    `json:"guest_threshold"`
}

// =============================================================================
// ATTENDANCE & PAYMENTS
// =============================================================================

// AttendanceDTO is one registration row.
type AttendanceDTO struct {
	ID            string `json:"id"`
	ActivityID    string `json:"activity_id"`
	MemberID      string `json:"member_id"`
	GuestPersonID string `json:"guest_person_id,omitempty"`
	IsGuest       bool   `json:"is_guest"`
	RegisteredAt  string `json:"registered_at"`
}

// RegisterAttendanceRequest registers a member, or a guest when GuestID is set.
type RegisterAttendanceRequest struct {
	MemberID string `json:"member_id" validate:"required"`
	GuestID  string `json:"guest_id"`
}

// PaymentDTO is one ledger entry.
type PaymentDTO struct {
	ID             string `json:"id"`
	AttendanceID   string `json:"attendance_id"`
	Amount         string `json:"amount"`
	RecordedAt     string `json:"recorded_at"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RecordPaymentRequest records a payment. The key may also be sent in the
// Idempotency-Key header; the body wins when both are set.
type RecordPaymentRequest struct {
	Amount         string `json:"amount" validate:"required,numeric"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=200"`
}

// RecordPaymentResponse returns the new payment with the updated balance.
type RecordPaymentResponse struct {
	PaymentID string     `json:"payment_id"`
	Balance   BalanceDTO `json:"balance"`
}

// BalanceDTO is the derived state of one attendance record.
type BalanceDTO struct {
	AttendanceID string       `json:"attendance_id"`
	Due          string       `json:"due"`
	Paid         string       `json:"paid"`
	Remaining    string       `json:"remaining"`
	Settled      bool         `json:"settled"`
	Payments     []PaymentDTO `json:"payments"`
}

// =============================================================================
// STATISTICS
// =============================================================================

type ActivityStatDTO struct {
	ActivityID  string `json:"activity_id"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Due         string `json:"due"`
	MemberCount int    `json:"member_count"`
	GuestCount  int    `json:"guest_count"`
	Expected    string `json:"expected_amount"`
	Collected   string `json:"collected_amount"`
	Remaining   string `json:"remaining_amount"`
	Skipped     int    `json:"skipped,omitempty"`
}

type SubGroupStatDTO struct {
	ActivityStatDTO
	SubGroupID   string `json:"subgroup_id"`
	SubGroupName string `json:"subgroup_name"`
	Projected    string `json:"projected_amount"`
}

type MemberStatDTO struct {
	MemberID           string `json:"member_id"`
	PersonID           string `json:"person_id"`
	Name               string `json:"name,omitempty"`
	ActivitiesInPeriod int    `json:"activities_in_period"`
	ActivitiesAttended int    `json:"activities_attended"`
	GuestsInvited      int    `json:"guests_invited"`
	Expected           string `json:"expected_amount"`
	Paid               string `json:"paid_amount"`
	Remaining          string `json:"remaining_amount"`
}

// =============================================================================
// SCENARIOS & FIXTURES
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadedDTO maps fixture refs to the ids that were created.
type LoadedDTO struct {
	Scenario      string            `json:"scenario,omitempty"`
	Persons       map[string]string `json:"persons"`
	Members       map[string]string `json:"members"`
	SubGroups     map[string]string `json:"subgroups"`
	Activities    map[string]string `json:"activities"`
	Registrations map[string]string `json:"registrations"`
	Payments      []string          `json:"payments"`
}

// CreatedResponse is returned by every create endpoint.
type CreatedResponse struct {
	ID string `json:"id"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toPersonDTO(p generic.Person) PersonDTO {
	return PersonDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		CreatedAt: formatTime(p.CreatedAt),
	}
}

func toMemberDTO(m generic.Member) MemberDTO {
	return MemberDTO{
		ID:               string(m.ID),
		PersonID:         string(m.PersonID),
		MembershipNumber: m.MembershipNumber,
		JoinedAt:         formatTime(m.JoinedAt),
	}
}

func toIdentityDTO(id generic.Identity) IdentityDTO {
	dto := IdentityDTO{Person: toPersonDTO(id.Person), Role: string(id.Role())}
	if id.Member != nil {
		m := toMemberDTO(*id.Member)
		dto.Member = &m
	}
	return dto
}

func toSubGroupDTO(sg generic.SubGroup) SubGroupDTO {
	return SubGroupDTO{
		ID:              string(sg.ID),
		Name:            sg.Name,
		Region:          sg.Region,
		DiscountPercent: sg.Discount.Percent.String(),
		GuestThreshold:  sg.Discount.GuestThreshold,
	}
}

func toActivityDTO(a generic.Activity) ActivityDTO {
	return ActivityDTO{
		ID:              string(a.ID),
		Date:            formatTime(a.Date),
		Description:     a.Description,
		Priority:        a.Priority,
		Region:          a.Region,
		Due:             a.Due.String(),
		DiscountPercent: a.Discount.Percent.String(),
		GuestThreshold:  a.Discount.GuestThreshold,
		CreatedAt:       formatTime(a.CreatedAt),
	}
}

func toAttendanceDTO(a generic.Attendance) AttendanceDTO {
	return AttendanceDTO{
		ID:            string(a.ID),
		ActivityID:    string(a.ActivityID),
		MemberID:      string(a.MemberID),
		GuestPersonID: string(a.GuestPersonID),
		IsGuest:       a.IsGuest(),
		RegisteredAt:  formatTime(a.RegisteredAt),
	}
}

func toPaymentDTOs(payments []generic.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = PaymentDTO{
			ID:             string(p.ID),
			AttendanceID:   string(p.AttendanceID),
			Amount:         p.Amount.String(),
			RecordedAt:     formatTime(p.RecordedAt),
			IdempotencyKey: p.IdempotencyKey,
		}
	}
	return out
}

func toBalanceDTO(b generic.AccountBalance) BalanceDTO {
	return BalanceDTO{
		AttendanceID: string(b.AttendanceID),
		Due:          b.Due.String(),
		Paid:         b.Paid.String(),
		Remaining:    b.Remaining.String(),
		Settled:      b.IsSettled(),
		Payments:     toPaymentDTOs(b.Payments),
	}
}

func toActivityStatDTO(s generic.ActivityStat) ActivityStatDTO {
	return ActivityStatDTO{
		ActivityID:  string(s.ActivityID),
		Description: s.Description,
		Date:        formatTime(s.Date),
		Due:         s.Due.String(),
		MemberCount: s.MemberCount,
		GuestCount:  s.GuestCount,
		Expected:    s.Expected.String(),
		Collected:   s.Collected.String(),
		Remaining:   s.Remaining.String(),
		Skipped:     s.Skipped,
	}
}

func toSubGroupStatDTO(s generic.SubGroupActivityStat) SubGroupStatDTO {
	return SubGroupStatDTO{
		ActivityStatDTO: toActivityStatDTO(s.ActivityStat),
		SubGroupID:      string(s.SubGroupID),
		SubGroupName:    s.SubGroupName,
		Projected:       s.Projected.String(),
	}
}

func toMemberStatDTO(s generic.MemberStat) MemberStatDTO {
	return MemberStatDTO{
		MemberID:           string(s.MemberID),
		PersonID:           string(s.PersonID),
		Name:               s.Name,
		ActivitiesInPeriod: s.ActivitiesInPeriod,
		ActivitiesAttended: s.ActivitiesAttended,
		GuestsInvited:      s.GuestsInvited,
		Expected:           s.Expected.String(),
		Paid:               s.Paid.String(),
		Remaining:          s.Remaining.String(),
	}
}

func toScenarioDTO(s factory.Scenario) ScenarioDTO {
	return ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
}

func toLoadedDTO(scenario string, l *factory.Loaded) LoadedDTO {
	dto := LoadedDTO{
		Scenario:      scenario,
		Persons:       map[string]string{},
		Members:       map[string]string{},
		SubGroups:     map[string]string{},
		Activities:    map[string]string{},
		Registrations: map[string]string{},
		Payments:      []string{},
	}
	if l == nil {
		return dto
	}
	for ref, id := range l.Persons {
		dto.Persons[ref] = string(id)
	}
	for ref, id := range l.Members {
		dto.Members[ref] = string(id)
	}
	for ref, id := range l.SubGroups {
		dto.SubGroups[ref] = string(id)
	}
	for ref, id := range l.Activities {
		dto.Activities[ref] = string(id)
	}
	for ref, id := range l.Registrations {
		dto.Registrations[ref] = string(id)
	}
	for _, id := range l.Payments {
		dto.Payments = append(dto.Payments, string(id))
	}
	return dto
}
