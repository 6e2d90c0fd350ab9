/*
Package generic provides the core dues reconciliation engine.

PURPOSE:
  This package contains the storage-agnostic types and algorithms for
  reconciling what an association's activities cost against what has been
  paid. Whether the caller is an HTTP handler, a fixture loader or a test,
  the same engine decides what each attendee owes, applies the guest
  discount rule, and enforces that payments never exceed the due.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity backed by decimal.Decimal
  - Person / Member: Identity and the membership role (composition, not inheritance)
  - Activity: A scheduled event with a flat due ("cotisation")
  - Attendance: One participant (member or invited guest) at one activity
  - Payment: An immutable ledger entry against one attendance record
  - SubGroup: A named partition of the population used to slice statistics

DESIGN PRINCIPLES:
  1. Immutability: Activities, attendance and payments are never updated
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing member/person IDs
  4. Explicit roles: "is this person a member" is a lookup, never a type switch

USAGE:
  due := generic.NewAmountFromInt(100)
  rule := generic.DiscountRule{Percent: decimal.NewFromInt(20), GuestThreshold: 2}
  owed := rule.MemberDue(due, 2) // 80

SEE ALSO:
  - dues.go: Expected/collected amount calculation
  - ledger.go: Payment balance enforcement
  - stats.go: Aggregated reporting shapes
  - store.go: Persistence interfaces
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity (single currency)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value)}
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

// ParseAmount parses a decimal string such as "12.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		return Zero()
	}
	return a
}

func Zero() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) MulInt(n int) Amount          { return Amount{Value: a.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) String() string               { return a.Value.StringFixed(2) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Float64 is for presentation only. Never feed the result back into the engine.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type MemberID string
type ActivityID string
type AttendanceID string
type PaymentID string
type SubGroupID string

// =============================================================================
// IDENTITY - Person is the root, Member is a role held by a person
// =============================================================================

type Person struct {
	ID        PersonID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Member references its Person. A person holds at most one membership.
type Member struct {
	ID               MemberID
	PersonID         PersonID
	MembershipNumber string
	JoinedAt         time.Time
}

type Role string

const (
	RolePerson Role = "person" // Known identity without membership (guest-eligible)
	RoleMember Role = "member"
)

// Identity pairs a person with the membership they hold, if any.
type Identity struct {
	Person Person
	Member *Member
}

func (i Identity) Role() Role {
	if i.Member != nil {
		return RoleMember
	}
	return RolePerson
}

// =============================================================================
// ACTIVITY
// =============================================================================

// Activity is created once and never modified.
type Activity struct {
	ID          ActivityID
	Date        time.Time
	Description string
	Priority    int
	Region      string
	Due         Amount
	Discount    DiscountRule
	CreatedAt   time.Time
}

// DuesConstants bounds the legal due amount of new activities (inclusive).
type DuesConstants struct {
	Min Amount
	Max Amount
}

func (c DuesConstants) Contains(a Amount) bool {
	return !a.LessThan(c.Min) && !a.GreaterThan(c.Max)
}

// =============================================================================
// ATTENDANCE - One participant at one activity
// =============================================================================

// Attendance links an activity to a member, or to a guest invited by that
// member. GuestPersonID is empty for the member's own registration.
type Attendance struct {
	ID            AttendanceID
	ActivityID    ActivityID
	MemberID      MemberID
	GuestPersonID PersonID
	RegisteredAt  time.Time
}

func (a Attendance) IsGuest() bool { return a.GuestPersonID != "" }

// =============================================================================
// PAYMENT - Append-only ledger entry
// =============================================================================

type Payment struct {
	ID             PaymentID
	AttendanceID   AttendanceID
	Amount         Amount
	RecordedAt     time.Time
	IdempotencyKey string
}

// =============================================================================
// SUB-GROUP
// =============================================================================

// SubGroup is a named slice of the population. Its roster is stored
// separately as a person -> sub-group mapping.
type SubGroup struct {
	ID       SubGroupID
	Name     string
	Region   string
	Discount DiscountRule
}
