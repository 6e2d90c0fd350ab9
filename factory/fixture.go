/*
Package factory provides JSON to Go fixture conversion.

PURPOSE:
  Converts JSON fixture documents (persons, members, sub-groups, activities,
  registrations, payments) into calls on the association service. Demo
  scenarios, integration tests and seed data all use the same format.

WHY REFS?
  The service generates ids. A fixture names every entity with a local
  "ref" instead, and later entries point at earlier ones by ref. Load
  returns the ref -> id mapping so callers can find what was created.

JSON SCHEMA:
  {
    "constants": {"min": "0", "max": "500"},
    "persons":   [{"ref": "g1", "name": "Guest One"}],
    "members":   [{"ref": "m", "name": "Marie", "number": "A-001"}],
    "subgroups": [{"ref": "north", "name": "North", "discount_percent": "10",
                   "guest_threshold": 1, "roster": ["m", "g1"]}],
    "activities": [{"ref": "gala", "in_days": 7, "description": "Gala",
                    "priority": 5, "due": "100",
                    "discount_percent": "20", "guest_threshold": 2}],
    "registrations": [{"ref": "r1", "member": "m", "activity": "gala"},
                      {"ref": "r2", "member": "m", "activity": "gala", "guest": "g1"}],
    "payments": [{"registration": "r1", "amount": "80"}]
  }

  A member entry creates its person too. Roster and guest refs may name
  either a person or a member (the member's person is used).
  Activities take either "date" (RFC3339 or YYYY-MM-DD) or "in_days"
  relative to the load time, because creation requires a future date.

LOAD ORDER:
  constants -> persons -> members -> subgroups (+ rosters) -> activities
  -> registrations -> payments

  Load stops at the first failing entry and returns its error unmodified
  (domain errors keep their type), wrapped with the entry that failed.

SEE ALSO:
  - scenarios.go: Preset fixtures for the documented example scenarios
  - association/: The service the fixture is applied through
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/association"
	"github.com/warp/dues-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FixtureJSON is the JSON representation of a fixture document.
type FixtureJSON struct {
	Constants     *ConstantsJSON     `json:"constants,omitempty"`
	Persons       []PersonJSON       `json:"persons,omitempty" validate:"dive"`
	Members       []MemberJSON       `json:"members,omitempty" validate:"dive"`
	SubGroups     []SubGroupJSON     `json:"subgroups,omitempty" validate:"dive"`
	Activities    []ActivityJSON     `json:"activities,omitempty" validate:"dive"`
	Registrations []RegistrationJSON `json:"registrations,omitempty" validate:"dive"`
	Payments      []PaymentJSON      `json:"payments,omitempty" validate:"dive"`
}

type ConstantsJSON struct {
	Min string `json:"min" validate:"required"`
	Max string `json:"max" validate:"required"`
}

type PersonJSON struct {
	Ref   string `json:"ref" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type MemberJSON struct {
	Ref    string `json:"ref" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email,omitempty"`
	Number string `json:"number,omitempty"`
}

type SubGroupJSON struct {
	Ref             string   `json:"ref" validate:"required"`
	Name            string   `json:"name" validate:"required"`
	Region          string   `json:"region,omitempty"`
	DiscountPercent string   `json:"discount_percent,omitempty"`
	GuestThreshold  int      `json:"guest_threshold,omitempty" validate:"gte=0"`
	Roster          []string `json:"roster,omitempty"`
}

type ActivityJSON struct {
	Ref             string `json:"ref" validate:"required"`
	Date            string `json:"date,omitempty" validate:"required_without=InDays"`
	InDays          int    `json:"in_days,omitempty" validate:"omitempty,gte=1"`
	Description     string `json:"description" validate:"required"`
	Priority        int    `json:"priority" validate:"min=1,max=10"`
	Region          string `json:"region,omitempty"`
	Due             string `json:"due" validate:"required"`
	DiscountPercent string `json:"discount_percent,omitempty"`
	GuestThreshold  int    `json:"guest_threshold,omitempty" validate:"gte=0"`
}

type RegistrationJSON struct {
	Ref      string `json:"ref" validate:"required"`
	Member   string `json:"member" validate:"required"`
	Activity string `json:"activity" validate:"required"`
	Guest    string `json:"guest,omitempty"`
}

type PaymentJSON struct {
	Registration   string `json:"registration" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// =============================================================================
// FIXTURE FACTORY
// =============================================================================

// FixtureFactory parses fixture documents and applies them to a service.
type FixtureFactory struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow fixes the reference time used for "in_days".
func (f *FixtureFactory) WithNow(now func() time.Time) *FixtureFactory {
	f.now = now
	return f
}

// ParseFixture parses and statically checks a JSON fixture: required
// fields, amounts, dates and that every ref points at an earlier entry.
func (f *FixtureFactory) ParseFixture(jsonStr string) (*FixtureJSON, error) {
	var fj FixtureJSON
	if err := json.Unmarshal([]byte(jsonStr), &fj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse fixture JSON: %v", generic.ErrValidation, err)
	}
	if err := f.validate.Struct(fj); err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrValidation, err)
	}
	if err := checkRefs(fj); err != nil {
		return nil, err
	}
	return &fj, nil
}

func checkRefs(fj FixtureJSON) error {
	people := map[string]bool{}
	members := map[string]bool{}
	groups := map[string]bool{}
	activities := map[string]bool{}
	registrations := map[string]bool{}

	declare := func(kind, ref string, set map[string]bool) error {
		if people[ref] || members[ref] || groups[ref] || activities[ref] || registrations[ref] {
			return fmt.Errorf("%w: duplicate ref %q (%s)", generic.ErrValidation, ref, kind)
		}
		set[ref] = true
		return nil
	}
	unknown := func(kind, ref string) error {
		return fmt.Errorf("%w: unknown %s ref %q", generic.ErrValidation, kind, ref)
	}

	if c := fj.Constants; c != nil {
		if _, err := parseMoney("constants.min", c.Min); err != nil {
			return err
		}
		if _, err := parseMoney("constants.max", c.Max); err != nil {
			return err
		}
	}
	for _, p := range fj.Persons {
		if err := declare("person", p.Ref, people); err != nil {
			return err
		}
	}
	for _, m := range fj.Members {
		if err := declare("member", m.Ref, members); err != nil {
			return err
		}
	}
	for _, g := range fj.SubGroups {
		if err := declare("subgroup", g.Ref, groups); err != nil {
			return err
		}
		if _, err := parsePercent(g.DiscountPercent); err != nil {
			return err
		}
		for _, r := range g.Roster {
			if !people[r] && !members[r] {
				return unknown("person", r)
			}
		}
	}
	for _, a := range fj.Activities {
		if err := declare("activity", a.Ref, activities); err != nil {
			return err
		}
		if _, err := parseMoney("due", a.Due); err != nil {
			return err
		}
		if _, err := parsePercent(a.DiscountPercent); err != nil {
			return err
		}
		if a.Date != "" {
			if _, err := parseDate(a.Date); err != nil {
				return err
			}
		}
	}
	for _, r := range fj.Registrations {
		if err := declare("registration", r.Ref, registrations); err != nil {
			return err
		}
		if !members[r.Member] {
			return unknown("member", r.Member)
		}
		if !activities[r.Activity] {
			return unknown("activity", r.Activity)
		}
		if r.Guest != "" && !people[r.Guest] && !members[r.Guest] {
			return unknown("guest", r.Guest)
		}
	}
	for _, p := range fj.Payments {
		if !registrations[p.Registration] {
			return unknown("registration", p.Registration)
		}
		if _, err := parseMoney("amount", p.Amount); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Service is the subset of association.Service a fixture needs.
type Service interface {
	SetDuesConstants(ctx context.Context, c generic.DuesConstants) error
	CreatePerson(ctx context.Context, in association.NewPerson) (generic.PersonID, error)
	CreateMember(ctx context.Context, personID generic.PersonID, number string) (generic.MemberID, error)
	CreateSubGroup(ctx context.Context, in association.NewSubGroup) (generic.SubGroupID, error)
	AddToSubGroup(ctx context.Context, id generic.SubGroupID, personID generic.PersonID) error
	CreateActivity(ctx context.Context, in association.NewActivity) (generic.ActivityID, error)
	RegisterAttendance(ctx context.Context, m generic.MemberID, a generic.ActivityID, guest generic.PersonID) (generic.AttendanceID, error)
	RecordPayment(ctx context.Context, r generic.AttendanceID, amount generic.Amount, key string) (generic.PaymentID, error)
}

var _ Service = (*association.Service)(nil)

// Loaded maps fixture refs to the ids the service generated.
type Loaded struct {
	Persons       map[string]generic.PersonID
	Members       map[string]generic.MemberID
	SubGroups     map[string]generic.SubGroupID
	Activities    map[string]generic.ActivityID
	Registrations map[string]generic.AttendanceID
	Payments      []generic.PaymentID
}

func newLoaded() *Loaded {
	return &Loaded{
		Persons:       map[string]generic.PersonID{},
		Members:       map[string]generic.MemberID{},
		SubGroups:     map[string]generic.SubGroupID{},
		Activities:    map[string]generic.ActivityID{},
		Registrations: map[string]generic.AttendanceID{},
	}
}

// Load parses jsonStr and applies it through svc.
func (f *FixtureFactory) Load(ctx context.Context, svc Service, jsonStr string) (*Loaded, error) {
	fj, err := f.ParseFixture(jsonStr)
	if err != nil {
		return nil, err
	}
	return f.Apply(ctx, svc, fj)
}

// Apply creates every entity of an already parsed fixture, in load order.
func (f *FixtureFactory) Apply(ctx context.Context, svc Service, fj *FixtureJSON) (*Loaded, error) {
	out := newLoaded()
	now := f.now()

	if c := fj.Constants; c != nil {
		lo, _ := parseMoney("min", c.Min)
		hi, _ := parseMoney("max", c.Max)
		if err := svc.SetDuesConstants(ctx, generic.DuesConstants{Min: lo, Max: hi}); err != nil {
			return out, fmt.Errorf("constants: %w", err)
		}
	}

	for _, p := range fj.Persons {
		id, err := svc.CreatePerson(ctx, association.NewPerson{Name: p.Name, Email: p.Email, Phone: p.Phone})
		if err != nil {
			return out, fmt.Errorf("person %q: %w", p.Ref, err)
		}
		out.Persons[p.Ref] = id
	}

	for _, m := range fj.Members {
		personID, err := svc.CreatePerson(ctx, association.NewPerson{Name: m.Name, Email: m.Email})
		if err != nil {
			return out, fmt.Errorf("member %q: %w", m.Ref, err)
		}
		id, err := svc.CreateMember(ctx, personID, m.Number)
		if err != nil {
			return out, fmt.Errorf("member %q: %w", m.Ref, err)
		}
		out.Persons[m.Ref] = personID
		out.Members[m.Ref] = id
	}

	for _, g := range fj.SubGroups {
		pct, _ := parsePercent(g.DiscountPercent)
		id, err := svc.CreateSubGroup(ctx, association.NewSubGroup{
			Name:            g.Name,
			Region:          g.Region,
			DiscountPercent: pct,
			GuestThreshold:  g.GuestThreshold,
		})
		if err != nil {
			return out, fmt.Errorf("subgroup %q: %w", g.Ref, err)
		}
		out.SubGroups[g.Ref] = id
		for _, ref := range g.Roster {
			if err := svc.AddToSubGroup(ctx, id, out.Persons[ref]); err != nil {
				return out, fmt.Errorf("subgroup %q roster %q: %w", g.Ref, ref, err)
			}
		}
	}

	for _, a := range fj.Activities {
		date := now.AddDate(0, 0, a.InDays)
		if a.Date != "" {
			date, _ = parseDate(a.Date)
		}
		due, _ := parseMoney("due", a.Due)
		pct, _ := parsePercent(a.DiscountPercent)
		id, err := svc.CreateActivity(ctx, association.NewActivity{
			Date:                   date,
			Description:            a.Description,
			Priority:               a.Priority,
			Region:                 a.Region,
			Due:                    due,
			DiscountPercent:        pct,
			DiscountGuestThreshold: a.GuestThreshold,
		})
		if err != nil {
			return out, fmt.Errorf("activity %q: %w", a.Ref, err)
		}
		out.Activities[a.Ref] = id
	}

	for _, r := range fj.Registrations {
		id, err := svc.RegisterAttendance(ctx, out.Members[r.Member], out.Activities[r.Activity], out.Persons[r.Guest])
		if err != nil {
			return out, fmt.Errorf("registration %q: %w", r.Ref, err)
		}
		out.Registrations[r.Ref] = id
	}

	for i, p := range fj.Payments {
		amount, _ := parseMoney("amount", p.Amount)
		id, err := svc.RecordPayment(ctx, out.Registrations[p.Registration], amount, p.IdempotencyKey)
		if err != nil {
			return out, fmt.Errorf("payment #%d on %q: %w", i+1, p.Registration, err)
		}
		out.Payments = append(out.Payments, id)
	}

	return out, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseMoney(field, s string) (generic.Amount, error) {
	a, err := generic.ParseAmount(s)
	if err != nil {
		return generic.Amount{}, &generic.ValidationError{Field: field, Value: s, Reason: "not a decimal amount"}
	}
	return a, nil
}

func parsePercent(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &generic.ValidationError{Field: "discount_percent", Value: s, Reason: "not a decimal"}
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, &generic.ValidationError{Field: "date", Value: s, Reason: "want RFC3339 or YYYY-MM-DD"}
	}
	return t, nil
}
