/*
Package sqlstore implements generic.TxStore on top of database/sql.

PURPOSE:
  One implementation of every store query, shared by the SQLite and
  PostgreSQL bindings. The differences between the two databases are
  captured in a Dialect: placeholder syntax, row locking, transaction
  options and how a unique violation is recognised.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on attendance or payments. EVER.
  - The only UPSERT is the dues constants singleton.

KEY TABLES:
  persons, members:       Identity (a member references its person)
  activities:             Immutable, with its discount rule inline
  dues_constants:         Single row (id = 1)
  attendance:             Member or guest at an activity
  payments:               Append-only ledger
  sub_groups, sub_group_members: Named rosters of persons

UNIQUENESS:
  - idx_attendance_member: (activity_id, member_id) WHERE guest_person_id IS NULL
  - idx_attendance_guest:  (activity_id, guest_person_id) WHERE guest_person_id IS NOT NULL
  - payments.idempotency_key UNIQUE
  These close the check-then-insert window even if two requests race past
  the service-level checks.

AMOUNTS AND DATES:
  Amounts are stored as decimal TEXT and summed in Go with shopspring/decimal,
  never in SQL. Timestamps are fixed-width UTC text so they sort and
  compare lexicographically in both databases.

CONCURRENCY:
  Reads inside WithTx go through the *sql.Tx, never through the pool.
  GetAttendance inside a transaction appends Dialect.LockClause so payments
  against the same attendance row queue behind each other.

SEE ALSO:
  - store/sqlite: SQLite dialect (mattn/go-sqlite3)
  - store/postgres: PostgreSQL dialect (lib/pq)
  - generic/store.go: Interface definitions and contracts
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/dues-engine/generic"
)

// Dialect is what differs between databases.
type Dialect struct {
	Name string

	// Rebind rewrites '?' placeholders into the driver's syntax.
	// nil means the driver accepts '?' as is.
	Rebind func(query string) string

	// LockClause is appended to row reads that guard a write inside a
	// transaction, e.g. " FOR UPDATE". Empty when the database locks at
	// transaction start instead.
	LockClause string

	TxOptions *sql.TxOptions

	IsUniqueViolation func(err error) bool
}

// Store implements generic.TxStore.
type Store struct {
	queries
	db *sql.DB
}

var _ generic.TxStore = (*Store)(nil)

// New wraps an open database and migrates the schema.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	s := &Store{queries: queries{q: db, d: d}, db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect name ("sqlite", "postgres").
func (s *Store) Dialect() string { return s.d.Name }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return generic.Infra("ping", s.db.PingContext(ctx))
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Every read and write
// fn makes through the Store it receives runs on the same *sql.Tx.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.d.TxOptions)
	if err != nil {
		return generic.Infra("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, d: s.d, inTx: true}); err != nil {
		return err
	}
	return generic.Infra("commit transaction", sqlTx.Commit())
}

// =============================================================================
// QUERIES - Shared by the pool and by transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q    querier
	d    Dialect
	inTx bool
}

func (x *queries) rebind(query string) string {
	if x.d.Rebind == nil {
		return query
	}
	return x.d.Rebind(query)
}

func (x *queries) exec(ctx context.Context, query string, args ...any) error {
	_, err := x.q.ExecContext(ctx, x.rebind(query), args...)
	return err
}

func (x *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return x.q.QueryContext(ctx, x.rebind(query), args...)
}

func (x *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return x.q.QueryRowContext(ctx, x.rebind(query), args...)
}

func (x *queries) isUnique(err error) bool {
	return err != nil && x.d.IsUniqueViolation != nil && x.d.IsUniqueViolation(err)
}

// RebindDollar turns '?' placeholders into $1, $2, ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}
