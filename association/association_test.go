package association_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dues-engine/association"
	"github.com/warp/dues-engine/generic"
	"github.com/warp/dues-engine/generic/store"
	"github.com/warp/dues-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	t     *testing.T
	ctx   context.Context
	store generic.TxStore
	svc   *association.Service
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, st generic.TxStore) *env {
	t.Helper()
	svc := association.NewService(st,
		association.WithClock(func() time.Time { return now }),
		association.WithLogger(quietLogger()),
	)
	e := &env{t: t, ctx: context.Background(), store: st, svc: svc}
	require.NoError(t, svc.SetDuesConstants(e.ctx, generic.DuesConstants{Min: money("0"), Max: money("1000")}))
	return e
}

func newMemoryEnv(t *testing.T) *env {
	return newEnv(t, store.NewMemory())
}

func newSQLiteEnv(t *testing.T) *env {
	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newEnv(t, st)
}

// backends runs a test against every store the service supports in tests.
func backends(t *testing.T, fn func(t *testing.T, e *env)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryEnv(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteEnv(t)) })
}

func money(s string) generic.Amount {
	return generic.MustParseAmount(s)
}

func (e *env) person(name string) generic.PersonID {
	e.t.Helper()
	id, err := e.svc.CreatePerson(e.ctx, association.NewPerson{Name: name})
	require.NoError(e.t, err)
	return id
}

func (e *env) member(name string) (generic.MemberID, generic.PersonID) {
	e.t.Helper()
	p := e.person(name)
	id, err := e.svc.CreateMember(e.ctx, p, "N-"+name)
	require.NoError(e.t, err)
	return id, p
}

func (e *env) activity(due string, percent int64, threshold int) generic.ActivityID {
	e.t.Helper()
	return e.activityOn(now.AddDate(0, 0, 7), due, percent, threshold)
}

func (e *env) activityOn(date time.Time, due string, percent int64, threshold int) generic.ActivityID {
	e.t.Helper()
	id, err := e.svc.CreateActivity(e.ctx, association.NewActivity{
		Date:                   date,
		Description:            "Gala",
		Priority:               5,
		Region:                 "north",
		Due:                    money(due),
		DiscountPercent:        decimal.NewFromInt(percent),
		DiscountGuestThreshold: threshold,
	})
	require.NoError(e.t, err)
	return id
}

func (e *env) register(m generic.MemberID, a generic.ActivityID, guest generic.PersonID) generic.AttendanceID {
	e.t.Helper()
	id, err := e.svc.RegisterAttendance(e.ctx, m, a, guest)
	require.NoError(e.t, err)
	return id
}

func (e *env) pay(r generic.AttendanceID, amount string) {
	e.t.Helper()
	_, err := e.svc.RecordPayment(e.ctx, r, money(amount), "")
	require.NoError(e.t, err)
}

func assertMoney(t *testing.T, want string, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// =============================================================================
// ACTIVITY CREATION
// =============================================================================

func TestCreateActivity_Valid(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		id := e.activity("50", 0, 0)

		a, err := e.svc.GetActivity(e.ctx, id)
		require.NoError(t, err)
		assertMoney(t, "50", a.Due)
		assert.Equal(t, 5, a.Priority)
		assert.True(t, a.CreatedAt.Equal(now))
	})
}

func TestCreateActivity_Rejections(t *testing.T) {
	valid := association.NewActivity{
		Date:        now.Add(time.Hour),
		Description: "Picnic",
		Priority:    3,
		Due:         money("20"),
	}

	tests := []struct {
		name  string
		edit  func(a *association.NewActivity)
		field string
	}{
		{"dated yesterday", func(a *association.NewActivity) { a.Date = now.AddDate(0, 0, -1) }, "date"},
		{"dated now", func(a *association.NewActivity) { a.Date = now }, "date"},
		{"priority 11", func(a *association.NewActivity) { a.Priority = 11 }, "priority"},
		{"priority 0", func(a *association.NewActivity) { a.Priority = 0 }, "priority"},
		{"due above max", func(a *association.NewActivity) { a.Due = money("1000.01") }, "due"},
		{"negative due", func(a *association.NewActivity) { a.Due = money("-1") }, "due"},
		{"discount above 100", func(a *association.NewActivity) { a.DiscountPercent = decimal.NewFromInt(101) }, "discountPercent"},
		{"missing description", func(a *association.NewActivity) { a.Description = "" }, "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newMemoryEnv(t)
			in := valid
			tt.edit(&in)

			_, err := e.svc.CreateActivity(e.ctx, in)

			require.ErrorIs(t, err, generic.ErrValidation)
			var ve *generic.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)

			all, err := e.svc.ListActivities(e.ctx)
			require.NoError(t, err)
			assert.Empty(t, all, "nothing persisted")
		})
	}
}

func TestCreateActivity_RangeReadAtCallTime(t *testing.T) {
	// GIVEN: Range [10, 20]
	e := newMemoryEnv(t)
	require.NoError(t, e.svc.SetDuesConstants(e.ctx, generic.DuesConstants{Min: money("10"), Max: money("20")}))
	in := association.NewActivity{Date: now.Add(time.Hour), Description: "x", Priority: 1, Due: money("20")}

	// WHEN/THEN: Boundary accepted
	_, err := e.svc.CreateActivity(e.ctx, in)
	require.NoError(t, err)

	// WHEN: The range shrinks
	require.NoError(t, e.svc.SetDuesConstants(e.ctx, generic.DuesConstants{Min: money("10"), Max: money("15")}))

	// THEN: The same due is now rejected
	_, err = e.svc.CreateActivity(e.ctx, in)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCreateActivity_NoConstants(t *testing.T) {
	svc := association.NewService(store.NewMemory(), association.WithLogger(quietLogger()))
	_, err := svc.CreateActivity(context.Background(), association.NewActivity{
		Date: time.Now().Add(time.Hour), Description: "x", Priority: 1, Due: money("1"),
	})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestSetDuesConstants_Validation(t *testing.T) {
	e := newMemoryEnv(t)
	assert.ErrorIs(t, e.svc.SetDuesConstants(e.ctx, generic.DuesConstants{Min: money("10"), Max: money("5")}), generic.ErrValidation)
	assert.ErrorIs(t, e.svc.SetDuesConstants(e.ctx, generic.DuesConstants{Min: money("-1"), Max: money("5")}), generic.ErrValidation)

	c, err := e.svc.GetDuesConstants(e.ctx)
	require.NoError(t, err)
	assertMoney(t, "1000", c.Max, "rejected updates leave the range alone")
}

// =============================================================================
// ATTENDANCE REGISTRATION
// =============================================================================

func TestRegisterAttendance_Uniqueness(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: Member registered for an activity
		m, _ := e.member("alice")
		a := e.activity("50", 0, 0)
		e.register(m, a, "")

		// WHEN: Registering again
		_, err := e.svc.RegisterAttendance(e.ctx, m, a, "")

		// THEN: Conflict
		assert.ErrorIs(t, err, generic.ErrConflict)
		assert.ErrorIs(t, err, generic.ErrDuplicateAttendance)

		rows, err := e.svc.ListAttendance(e.ctx, a)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestRegisterAttendance_GuestUniqueAcrossInviters(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: Alice brought guest G
		alice, _ := e.member("alice")
		bob, _ := e.member("bob")
		g := e.person("guest")
		a := e.activity("50", 0, 0)
		e.register(alice, a, g)

		// WHEN: Bob tries to bring the same guest, or Alice repeats it
		_, errBob := e.svc.RegisterAttendance(e.ctx, bob, a, g)
		_, errAlice := e.svc.RegisterAttendance(e.ctx, alice, a, g)

		// THEN: Both conflict
		assert.ErrorIs(t, errBob, generic.ErrConflict)
		assert.ErrorIs(t, errAlice, generic.ErrConflict)

		// AND: The guest row does not block Alice's own registration
		e.register(alice, a, "")
	})
}

func TestRegisterAttendance_GuestIsMember(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: Bob is a member
		alice, _ := e.member("alice")
		_, bobPerson := e.member("bob")
		a := e.activity("50", 0, 0)

		// WHEN: Alice registers Bob as her guest
		_, err := e.svc.RegisterAttendance(e.ctx, alice, a, bobPerson)

		// THEN: Business rule violation, nothing persisted
		require.ErrorIs(t, err, generic.ErrBusinessRule)
		var rule *generic.BusinessRuleError
		require.True(t, errors.As(err, &rule))
		assert.Equal(t, generic.RuleGuestIsMember, rule.Rule)

		rows, err := e.svc.ListAttendance(e.ctx, a)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestRegisterAttendance_NotFound(t *testing.T) {
	e := newMemoryEnv(t)
	m, _ := e.member("alice")
	a := e.activity("50", 0, 0)

	tests := []struct {
		name     string
		member   generic.MemberID
		activity generic.ActivityID
		guest    generic.PersonID
		kind     string
	}{
		{"unknown member", "ghost", a, "", "member"},
		{"unknown activity", m, "nothing", "", "activity"},
		{"unknown guest", m, a, "nobody", "person"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.RegisterAttendance(e.ctx, tt.member, tt.activity, tt.guest)
			var nf *generic.NotFoundError
			require.True(t, errors.As(err, &nf), "got %v", err)
			assert.Equal(t, tt.kind, nf.Kind)
		})
	}
}

// A person who is only known as a person cannot register on their own:
// they have no membership id to register with.
func TestRegisterAttendance_PersonIsNotMember(t *testing.T) {
	e := newMemoryEnv(t)
	p := e.person("carol")
	a := e.activity("50", 0, 0)

	_, err := e.svc.RegisterAttendance(e.ctx, generic.MemberID(p), a, "")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordPayment_Scenario1(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: due 50, no discount, member registered alone
		m, _ := e.member("alice")
		a := e.activity("50", 0, 0)
		r := e.register(m, a, "")

		stat, err := e.svc.ActivityStats(e.ctx, a)
		require.NoError(t, err)
		assertMoney(t, "50", stat.Expected)

		// WHEN: Pay 30
		e.pay(r, "30")

		// THEN: 20 remains
		bal, err := e.svc.AttendanceBalance(e.ctx, r)
		require.NoError(t, err)
		assertMoney(t, "20", bal.Remaining)

		// WHEN: Pay 25
		_, err = e.svc.RecordPayment(e.ctx, r, money("25"), "")

		// THEN: Rejected with the remaining balance in the error
		require.ErrorIs(t, err, generic.ErrBusinessRule)
		var rule *generic.BusinessRuleError
		require.True(t, errors.As(err, &rule))
		require.NotNil(t, rule.Remaining)
		assertMoney(t, "20", *rule.Remaining)
		assert.Contains(t, err.Error(), "20.00")

		// AND: Nothing was persisted
		payments, err := e.svc.ListPayments(e.ctx, r)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})
}

func TestRecordPayment_ExactSettlement(t *testing.T) {
	e := newMemoryEnv(t)
	m, _ := e.member("alice")
	r := e.register(m, e.activity("50", 0, 0), "")

	e.pay(r, "30")
	e.pay(r, "20")

	bal, err := e.svc.AttendanceBalance(e.ctx, r)
	require.NoError(t, err)
	assert.True(t, bal.IsSettled())

	_, err = e.svc.RecordPayment(e.ctx, r, money("0.01"), "")
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}

func TestRecordPayment_InvalidAmountAndUnknownRecord(t *testing.T) {
	e := newMemoryEnv(t)
	m, _ := e.member("alice")
	r := e.register(m, e.activity("50", 0, 0), "")

	_, err := e.svc.RecordPayment(e.ctx, r, money("0"), "")
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = e.svc.RecordPayment(e.ctx, "missing", money("1"), "")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRecordPayment_IdempotencyKey(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		m, _ := e.member("alice")
		r := e.register(m, e.activity("50", 0, 0), "")

		_, err := e.svc.RecordPayment(e.ctx, r, money("10"), "req-1")
		require.NoError(t, err)

		// Client retry with the same key
		_, err = e.svc.RecordPayment(e.ctx, r, money("10"), "req-1")
		assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

		bal, err := e.svc.AttendanceBalance(e.ctx, r)
		require.NoError(t, err)
		assertMoney(t, "10", bal.Paid)
	})
}

func TestRecordPayment_ConcurrentNeverOverpays(t *testing.T) {
	// GIVEN: due 50 on a file database (real concurrent connections)
	st, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "dues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	e := newEnv(t, st)
	m, _ := e.member("alice")
	r := e.register(m, e.activity("50", 0, 0), "")

	// WHEN: 10 concurrent payments of 20
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.svc.RecordPayment(e.ctx, r, money("20"), "")
		}()
	}
	wg.Wait()

	// THEN: At most two succeed
	bal, err := e.svc.AttendanceBalance(e.ctx, r)
	require.NoError(t, err)
	assertMoney(t, "40", bal.Paid)
	assert.False(t, bal.Remaining.IsNegative())
}

func TestRegisterAttendance_ConcurrentSingleWinner(t *testing.T) {
	st, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "dues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	e := newEnv(t, st)
	m, _ := e.member("alice")
	a := e.activity("50", 0, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dupe int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.RegisterAttendance(e.ctx, m, a, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, generic.ErrConflict):
				dupe++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dupe)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestIdentify_Roles(t *testing.T) {
	e := newMemoryEnv(t)
	_, memberPerson := e.member("alice")
	guest := e.person("carol")

	id, err := e.svc.Identify(e.ctx, memberPerson)
	require.NoError(t, err)
	assert.Equal(t, generic.RoleMember, id.Role())

	id, err = e.svc.Identify(e.ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, generic.RolePerson, id.Role())
	assert.Nil(t, id.Member)

	isMember, err := e.svc.IsMember(e.ctx, guest)
	require.NoError(t, err)
	assert.False(t, isMember)

	_, err = e.svc.Identify(e.ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestCreateMember_OncePerPerson(t *testing.T) {
	e := newMemoryEnv(t)
	_, p := e.member("alice")

	_, err := e.svc.CreateMember(e.ctx, p, "N-2")
	assert.ErrorIs(t, err, generic.ErrBusinessRule)

	_, err = e.svc.CreateMember(e.ctx, "nobody", "N-3")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestCreatePerson_Validation(t *testing.T) {
	e := newMemoryEnv(t)
	_, err := e.svc.CreatePerson(e.ctx, association.NewPerson{Name: "x", Email: "not-an-email"})

	var ve *generic.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "email", ve.Field)
}
