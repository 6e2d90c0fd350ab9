/*
handlers.go - HTTP API handlers for the dues engine

PURPOSE:
  Exposes the association service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the service.
  No business rule lives here.

ENDPOINTS:
  Activities:
    GET    /api/activities                     List activities (by date)
    POST   /api/activities                     Create activity
    GET    /api/activities/{id}                Get activity
    GET    /api/activities/{id}/stats          Expected / collected / remaining
    GET    /api/activities/{id}/attendance     List registrations
    POST   /api/activities/{id}/attendance     Register member or guest

  Attendance:
    GET    /api/attendance/{id}/balance        Due, paid, remaining
    GET    /api/attendance/{id}/payments       Payment history
    POST   /api/attendance/{id}/payments       Record payment

  Statistics:
    GET    /api/stats/activities               Every activity
    GET    /api/stats/subgroups                Activity x sub-group grid
    GET    /api/stats/members?start=&end=      Per member over a window
           [&discount_percent=&guest_threshold=]

  Directory:
    GET    /api/persons                        List persons
    POST   /api/persons                        Create person
    GET    /api/persons/{id}/identity          Person with role
    GET    /api/members                        List members
    POST   /api/members                        Grant membership
    GET    /api/members/{id}                   Get member
    GET    /api/subgroups                      List sub-groups
    POST   /api/subgroups                      Create sub-group
    POST   /api/subgroups/{id}/members         Add person to roster
    GET    /api/constants                      Dues range
    PUT    /api/constants                      Set dues range

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    GET    /api/scenarios/current              Last loaded scenario
    POST   /api/scenarios/load                 Load a demo scenario
    POST   /api/fixtures                       Load a fixture document

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: The association service (every read and write)
  - Fixtures: JSON fixture loader for scenarios
  - Metrics: Prometheus collectors (optional)

REQUEST FLOW:
  1. Parse HTTP request into a *Request DTO
  2. Validate its shape (validate tags)
  3. Convert strings to domain values (amounts, dates)
  4. Call the service
  5. Serialize the *DTO response or translate the error (errors.go)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status code mapping
  - scenarios.go: Demo scenario handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/association"
	"github.com/warp/dues-engine/factory"
	"github.com/warp/dues-engine/generic"
)

// maxBodyBytes caps request bodies; fixture documents are the largest.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is satisfied by the SQL stores. The memory store has no Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *association.Service
	Fixtures *factory.FixtureFactory

	pinger   Pinger
	store    string
	metrics  *Metrics
	logger   *slog.Logger
	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

type HandlerOption func(*Handler)

// WithPinger makes /health check the store.
func WithPinger(p Pinger, name string) HandlerOption {
	return func(h *Handler) {
		h.pinger = p
		h.store = name
	}
}

func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithFixtureFactory replaces the default factory (tests pin its clock).
func WithFixtureFactory(f *factory.FixtureFactory) HandlerOption {
	return func(h *Handler) { h.Fixtures = f }
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *association.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		Service:  svc,
		Fixtures: factory.NewFixtureFactory(),
		logger:   slog.Default(),
		validate: newRequestValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// ACTIVITY HANDLERS
// =============================================================================

// ListActivities returns all activities ordered by date.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.Service.ListActivities(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list activities", err)
		return
	}

	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = toActivityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateActivity creates a new activity.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeDomainError(w, r, "Invalid activity", err)
		return
	}
	due, err := parseAmount("due", req.Due)
	if err != nil {
		h.writeDomainError(w, r, "Invalid activity", err)
		return
	}
	pct, err := parsePercent("discount_percent", req.DiscountPercent)
	if err != nil {
		h.writeDomainError(w, r, "Invalid activity", err)
		return
	}

	id, err := h.Service.CreateActivity(r.Context(), association.NewActivity{
		Date:                   date,
		Description:            req.Description,
		Priority:               req.Priority,
		Region:                 req.Region,
		Due:                    due,
		DiscountPercent:        pct,
		DiscountGuestThreshold: req.GuestThreshold,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create activity", err)
		return
	}

	activity, err := h.Service.GetActivity(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load created activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(activity))
}

// GetActivity returns a single activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := generic.ActivityID(chi.URLParam(r, "id"))

	activity, err := h.Service.GetActivity(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(activity))
}

// GetActivityStats reconciles one activity.
func (h *Handler) GetActivityStats(w http.ResponseWriter, r *http.Request) {
	id := generic.ActivityID(chi.URLParam(r, "id"))

	stat, err := h.Service.ActivityStats(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute activity stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityStatDTO(stat))
}

// ListAttendance returns the registrations of one activity.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	id := generic.ActivityID(chi.URLParam(r, "id"))

	rows, err := h.Service.ListAttendance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(rows))
	for i, a := range rows {
		dtos[i] = toAttendanceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterAttendance registers a member, or a guest invited by that member.
func (h *Handler) RegisterAttendance(w http.ResponseWriter, r *http.Request) {
	activityID := generic.ActivityID(chi.URLParam(r, "id"))

	var req RegisterAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.Service.RegisterAttendance(r.Context(),
		generic.MemberID(req.MemberID), activityID, generic.PersonID(req.GuestID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to register attendance", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: string(id)})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// GetBalance returns due, paid and remaining for one attendance record.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := generic.AttendanceID(chi.URLParam(r, "id"))

	bal, err := h.Service.AttendanceBalance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// ListPayments returns the payment history of one attendance record.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := generic.AttendanceID(chi.URLParam(r, "id"))

	payments, err := h.Service.ListPayments(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// RecordPayment appends a payment. An amount above the remaining balance
// answers 422 with the remaining amount in the body.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := generic.AttendanceID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeDomainError(w, r, "Invalid payment", err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	paymentID, err := h.Service.RecordPayment(r.Context(), id, amount, key)
	if err != nil {
		h.writeDomainError(w, r, "Failed to record payment", err)
		return
	}

	bal, err := h.Service.AttendanceBalance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Payment recorded but balance unavailable", err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordPaymentResponse{
		PaymentID: string(paymentID),
		Balance:   toBalanceDTO(bal),
	})
}

// =============================================================================
// STATISTICS HANDLERS
// =============================================================================

// ListActivityStats reconciles every activity.
func (h *Handler) ListActivityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.ActivityStatsAll(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute activity stats", err)
		return
	}

	dtos := make([]ActivityStatDTO, len(stats))
	for i, s := range stats {
		dtos[i] = toActivityStatDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListSubGroupStats returns the activity x sub-group grid.
func (h *Handler) ListSubGroupStats(w http.ResponseWriter, r *http.Request) {
	cells, err := h.Service.SubGroupStats(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute sub-group stats", err)
		return
	}

	dtos := make([]SubGroupStatDTO, len(cells))
	for i, c := range cells {
		dtos[i] = toSubGroupStatDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListMemberStats aggregates per member over [start, end].
func (h *Handler) ListMemberStats(w http.ResponseWriter, r *http.Request) {
	q, err := memberStatsQuery(r)
	if err != nil {
		h.writeDomainError(w, r, "Invalid member stats query", err)
		return
	}

	stats, err := h.Service.MemberStats(r.Context(), q)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute member stats", err)
		return
	}

	dtos := make([]MemberStatDTO, len(stats))
	for i, s := range stats {
		dtos[i] = toMemberStatDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func memberStatsQuery(r *http.Request) (association.MemberStatsQuery, error) {
	values := r.URL.Query()

	start, err := parseDate("start", values.Get("start"))
	if err != nil {
		return association.MemberStatsQuery{}, err
	}
	end, err := parseDate("end", values.Get("end"))
	if err != nil {
		return association.MemberStatsQuery{}, err
	}
	q := association.MemberStatsQuery{Period: generic.NewPeriod(start, end)}

	if raw := values.Get("discount_percent"); raw != "" {
		pct, err := parsePercent("discount_percent", raw)
		if err != nil {
			return q, err
		}
		q.DiscountPercent = &pct
	}
	if raw := values.Get("guest_threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, &generic.ValidationError{Field: "guest_threshold", Value: raw, Reason: "not an integer"}
		}
		q.GuestThreshold = n
	}
	return q, nil
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// ListPersons returns all persons.
func (h *Handler) ListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.Service.ListPersons(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list persons", err)
		return
	}

	dtos := make([]PersonDTO, len(persons))
	for i, p := range persons {
		dtos[i] = toPersonDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePerson creates a person (guest-eligible until granted membership).
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.Service.CreatePerson(r.Context(), association.NewPerson{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create person", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: string(id)})
}

// GetIdentity returns a person with their role.
func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	id := generic.PersonID(chi.URLParam(r, "id"))

	identity, err := h.Service.Identify(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to identify person", err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityDTO(identity))
}

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Service.ListMembers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember grants membership to an existing person.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.Service.CreateMember(r.Context(), generic.PersonID(req.PersonID), req.MembershipNumber)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: string(id)})
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := generic.MemberID(chi.URLParam(r, "id"))

	m, err := h.Service.GetMember(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

func (h *Handler) ListSubGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Service.ListSubGroups(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list sub-groups", err)
		return
	}

	dtos := make([]SubGroupDTO, len(groups))
	for i, sg := range groups {
		dtos[i] = toSubGroupDTO(sg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSubGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateSubGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	pct, err := parsePercent("discount_percent", req.DiscountPercent)
	if err != nil {
		h.writeDomainError(w, r, "Invalid sub-group", err)
		return
	}

	id, err := h.Service.CreateSubGroup(r.Context(), association.NewSubGroup{
		Name:            req.Name,
		Region:          req.Region,
		DiscountPercent: pct,
		GuestThreshold:  req.GuestThreshold,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create sub-group", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: string(id)})
}

// AddToSubGroup puts a person on a sub-group roster. Repeating it is a no-op.
func (h *Handler) AddToSubGroup(w http.ResponseWriter, r *http.Request) {
	id := generic.SubGroupID(chi.URLParam(r, "id"))

	var req AddToSubGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Service.AddToSubGroup(r.Context(), id, generic.PersonID(req.PersonID)); err != nil {
		h.writeDomainError(w, r, "Failed to add to sub-group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetConstants returns the legal range for activity dues.
func (h *Handler) GetConstants(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetDuesConstants(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to get dues constants", err)
		return
	}
	writeJSON(w, http.StatusOK, DuesConstantsDTO{Min: c.Min.String(), Max: c.Max.String()})
}

// PutConstants replaces the dues range. Existing activities are unaffected.
func (h *Handler) PutConstants(w http.ResponseWriter, r *http.Request) {
	var req DuesConstantsDTO
	if !h.decode(w, r, &req) {
		return
	}
	lo, err := parseAmount("min", req.Min)
	if err != nil {
		h.writeDomainError(w, r, "Invalid dues constants", err)
		return
	}
	hi, err := parseAmount("max", req.Max)
	if err != nil {
		h.writeDomainError(w, r, "Invalid dues constants", err)
		return
	}

	c := generic.DuesConstants{Min: lo, Max: hi}
	if err := h.Service.SetDuesConstants(r.Context(), c); err != nil {
		h.writeDomainError(w, r, "Failed to set dues constants", err)
		return
	}
	writeJSON(w, http.StatusOK, DuesConstantsDTO{Min: c.Min.String(), Max: c.Max.String()})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, for SQL stores, store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "store", h.store, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Store: h.store})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: h.store})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body into dst and checks its validate tags. It writes
// the error response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.badRequest(w, "Invalid request body", err)
		return false
	}
	if err := h.checkRequest(dst); err != nil {
		h.writeDomainError(w, r, "Invalid request body", err)
		return false
	}
	return true
}

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func (h *Handler) checkRequest(dst any) error {
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &generic.ValidationError{Field: "body", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := "failed " + fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return &generic.ValidationError{Field: fe.Field(), Value: fe.Value(), Reason: reason}
}

func parseAmount(field, s string) (generic.Amount, error) {
	a, err := generic.ParseAmount(s)
	if err != nil {
		return generic.Amount{}, &generic.ValidationError{Field: field, Value: s, Reason: "not a decimal amount"}
	}
	return a, nil
}

// parsePercent treats an empty string as zero (no discount).
func parsePercent(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &generic.ValidationError{Field: field, Value: s, Reason: "not a decimal"}
	}
	return d, nil
}

// parseDate accepts RFC3339 or YYYY-MM-DD.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &generic.ValidationError{Field: field, Reason: "required"}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, &generic.ValidationError{
		Field:  field,
		Value:  s,
		Reason: fmt.Sprintf("use RFC3339 or %s", time.DateOnly),
	}
}

// readAll is for endpoints that take a raw document instead of a DTO.
func readAll(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
