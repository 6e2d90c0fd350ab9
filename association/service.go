/*
Package association is the dues engine's domain service.

PURPOSE:
  Wires the storage-agnostic engine (generic) to a TxStore and exposes the
  operations callers use: create activities, register attendance, record
  payments, and compute statistics. HTTP, CLI and fixtures all go through
  a Service; none of them talk to the store directly.

OPERATIONS:
  activity.go:   CreateActivity, GetActivity, ListActivities
  attendance.go: RegisterAttendance, ListAttendance
  payment.go:    RecordPayment, AttendanceBalance, ListPayments
  stats.go:      ActivityStats, ActivityStatsAll, SubGroupStats, MemberStats
  identity.go:   Identify, IsMember
  directory.go:  CreatePerson, CreateMember, CreateSubGroup, AddToSubGroup,
                 SetDuesConstants and the matching reads

WRITE PATHS:
  Every write that depends on a prior read (registration uniqueness,
  payment balance, one membership per person) runs inside WithTx.
  Store-level unique indexes back the same rules up.

ERRORS:
  Domain errors from generic/errors.go propagate unmodified. Aggregations
  are the exception: a contributor that cannot be resolved is logged at
  WARN and left out, and the report still renders.

SEE ALSO:
  - generic/dues.go: Expected / collected calculation
  - generic/ledger.go: Balance check
  - api/: HTTP adapter over Service
*/
package association

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/generic"
)

// Service implements the association operations over a TxStore.
type Service struct {
	store    generic.TxStore
	clock    func() time.Time
	logger   *slog.Logger
	validate *validator.Validate
	newID    func() string
}

type Option func(*Service)

// WithClock overrides time.Now (activity dates, payment timestamps).
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator overrides uuid generation, for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store generic.TxStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		clock:    time.Now,
		logger:   slog.Default(),
		validate: newValidator(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// =============================================================================
// VALIDATION - struct tags via go-playground/validator
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so errors match what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Money and percentages are compared as numbers.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if a, ok := field.Interface().(generic.Amount); ok {
			return a.Float64()
		}
		return nil
	}, generic.Amount{})

	return v
}

// check validates a tagged input struct and converts the first failure to
// a *generic.ValidationError.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &generic.ValidationError{Field: "input", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := fe.Tag()
	if fe.Param() != "" {
		reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
	}
	return &generic.ValidationError{Field: fe.Field(), Value: fe.Value(), Reason: "failed " + reason}
}
