/*
store.go - Persistence interface for the dues engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  The engine treats storage as a relational query interface: typed reads
  and single-row inserts, nothing else.

KEY INTERFACES:
  IdentityStore:   Persons and memberships
  ActivityStore:   Activities and the dues constants singleton
  AttendanceStore: Registrations (append-only)
  PaymentStore:    Payments (append-only)
  SubGroupStore:   Sub-groups and their person rosters
  Store:           All of the above
  TxStore:         Store + atomic check-then-insert

NOT FOUND CONTRACT:
  Single-row getters return (nil, nil) when the row does not exist.
  The service layer turns that into a NotFoundError with the right kind.

UNIQUENESS CONTRACT:
  InsertAttendance MUST reject a second own-registration for the same
  (member, activity) and a second registration of the same guest for the
  same activity, returning a ConflictError wrapping ErrDuplicateAttendance.
  InsertPayment MUST reject a reused idempotency key with a ConflictError
  wrapping ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL via database/sql
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Why payments must be checked inside WithTx
  - association/service.go: The only caller
*/
package generic

import "context"

// =============================================================================
// STORE - Interfaces for persistence
// =============================================================================

type IdentityStore interface {
	InsertPerson(ctx context.Context, p Person) error
	GetPerson(ctx context.Context, id PersonID) (*Person, error)
	ListPersons(ctx context.Context) ([]Person, error)

	InsertMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	GetMemberByPerson(ctx context.Context, personID PersonID) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
}

type ActivityStore interface {
	InsertActivity(ctx context.Context, a Activity) error
	GetActivity(ctx context.Context, id ActivityID) (*Activity, error)

	// ListActivities returns activities ordered by date.
	ListActivities(ctx context.Context) ([]Activity, error)

	// ListActivitiesInPeriod returns activities dated within p, ordered by date.
	ListActivitiesInPeriod(ctx context.Context, p Period) ([]Activity, error)

	// GetDuesConstants returns nil when the singleton was never set.
	GetDuesConstants(ctx context.Context) (*DuesConstants, error)
	SaveDuesConstants(ctx context.Context, c DuesConstants) error
}

type AttendanceStore interface {
	InsertAttendance(ctx context.Context, a Attendance) error
	GetAttendance(ctx context.Context, id AttendanceID) (*Attendance, error)

	// FindMemberAttendance returns the member's own row (no guest) for the activity.
	FindMemberAttendance(ctx context.Context, activityID ActivityID, memberID MemberID) (*Attendance, error)

	// FindGuestAttendance returns the row registering the guest at the activity.
	FindGuestAttendance(ctx context.Context, activityID ActivityID, guestID PersonID) (*Attendance, error)

	ListAttendanceByActivity(ctx context.Context, activityID ActivityID) ([]Attendance, error)
	ListAttendanceByMember(ctx context.Context, memberID MemberID) ([]Attendance, error)
}

type PaymentStore interface {
	InsertPayment(ctx context.Context, p Payment) error
	ListPaymentsByAttendance(ctx context.Context, attendanceID AttendanceID) ([]Payment, error)
	ListPaymentsByActivity(ctx context.Context, activityID ActivityID) ([]Payment, error)
}

type SubGroupStore interface {
	InsertSubGroup(ctx context.Context, g SubGroup) error
	GetSubGroup(ctx context.Context, id SubGroupID) (*SubGroup, error)
	ListSubGroups(ctx context.Context) ([]SubGroup, error)

	AddSubGroupMember(ctx context.Context, id SubGroupID, personID PersonID) error

	// ListSubGroupRoster returns the persons mapped to the sub-group.
	ListSubGroupRoster(ctx context.Context, id SubGroupID) ([]PersonID, error)
}

// Store is the full relational query interface the engine consumes.
type Store interface {
	IdentityStore
	ActivityStore
	AttendanceStore
	PaymentStore
	SubGroupStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic check-then-insert
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this whenever a read decides whether a write is allowed.
type TxStore interface {
	Store

	// WithTx executes fn within a serialised transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
