/*
errors.go - Centralized error types for the dues engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to exactly one sentinel so callers can
  classify with errors.Is and extract details with errors.As.

ERROR CATEGORIES:
  1. Validation      - Malformed or out-of-range input. Never retried.
  2. Not found       - A referenced member, person, activity or attendance is missing.
  3. Conflict        - Duplicate registration or reused idempotency key.
  4. Business rule   - Rule violation with a payload shown to the user verbatim.
  5. Infrastructure  - Store unavailable or failing. Logged, surfaced generically.

USAGE:
  var rule *generic.BusinessRuleError
  if errors.As(err, &rule) && rule.Remaining != nil {
      fmt.Println("you can still pay", rule.Remaining)
  }

SEE ALSO:
  - ledger.go: Raises BusinessRuleError for overpayment
  - store/sqlstore: Wraps driver failures in InfrastructureError
  - api/errors.go: Translates categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrBusinessRule   = errors.New("business rule violated")
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key was already recorded. Matches ErrConflict as well.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateAttendance is the store-level signal that a unique
	// attendance index rejected an insert.
	ErrDuplicateAttendance = errors.New("duplicate attendance")
)

// Business rule identifiers carried by BusinessRuleError.Rule.
const (
	RuleGuestIsMember  = "guest_is_member"
	RuleExceedsBalance = "amount_exceeds_remaining_balance"
	RuleAlreadyMember  = "person_already_member"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports one rejected input field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the kind and id of the missing entity.
type NotFoundError struct {
	Kind string // "member", "person", "activity", "attendance", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a duplicate write.
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
	Err    error // optional more specific cause, e.g. ErrDuplicateIdempotencyKey
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConflict, e.Err}
	}
	return []error{ErrConflict}
}

// BusinessRuleError is meant to be shown to the end user as-is.
type BusinessRuleError struct {
	Rule    string
	Message string

	// Remaining is set when the rule concerns a balance, so the caller can
	// correct the request without a second round trip.
	Remaining *Amount
}

func (e *BusinessRuleError) Error() string {
	if e.Remaining != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Remaining)
	}
	return e.Message
}

func (e *BusinessRuleError) Unwrap() error { return ErrBusinessRule }

// InfrastructureError wraps a store failure. Its text is not parsed for meaning.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() []error {
	return []error{ErrInfrastructure, e.Err}
}

// Infra wraps err as an InfrastructureError unless it is nil or already
// carries a domain classification.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInfrastructure) || IsDomainError(err) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrBusinessRule)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDomainError reports whether err belongs to one of the four domain categories.
func IsDomainError(err error) bool {
	return IsClientError(err) || IsNotFound(err)
}
