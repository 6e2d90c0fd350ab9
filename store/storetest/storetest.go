// Package storetest is the behaviour every generic.TxStore must share.
// Each implementation's tests call Run with a constructor.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dues-engine/generic"
)

// Run executes the store contract against fresh stores from newStore.
func Run(t *testing.T, newStore func(t *testing.T) generic.TxStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s generic.TxStore)
	}{
		{"IdentityRoundTrip", testIdentityRoundTrip},
		{"MissingRowsReturnNil", testMissingRowsReturnNil},
		{"OneMembershipPerPerson", testOneMembershipPerPerson},
		{"ActivitiesOrderedAndWindowed", testActivitiesOrderedAndWindowed},
		{"DuesConstantsUpsert", testDuesConstantsUpsert},
		{"AttendanceUniqueness", testAttendanceUniqueness},
		{"PaymentIdempotencyKey", testPaymentIdempotencyKey},
		{"PaymentsByActivity", testPaymentsByActivity},
		{"SubGroupRoster", testSubGroupRoster},
		{"WithTxRollsBack", testWithTxRollsBack},
		{"WithTxSerialisesCheckThenInsert", testWithTxSerialisesCheckThenInsert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

var base = time.Date(2025, time.March, 1, 18, 0, 0, 0, time.UTC)

func seedMember(t *testing.T, s generic.Store, id string) generic.Member {
	t.Helper()
	ctx := context.Background()
	p := generic.Person{ID: generic.PersonID("p-" + id), Name: "Person " + id, CreatedAt: base}
	require.NoError(t, s.InsertPerson(ctx, p))
	m := generic.Member{ID: generic.MemberID(id), PersonID: p.ID, MembershipNumber: "N-" + id, JoinedAt: base}
	require.NoError(t, s.InsertMember(ctx, m))
	return m
}

func seedGuest(t *testing.T, s generic.Store, id string) generic.Person {
	t.Helper()
	p := generic.Person{ID: generic.PersonID(id), Name: "Guest " + id, CreatedAt: base}
	require.NoError(t, s.InsertPerson(context.Background(), p))
	return p
}

func seedActivity(t *testing.T, s generic.Store, id string, date time.Time, due string) generic.Activity {
	t.Helper()
	a := generic.Activity{
		ID:          generic.ActivityID(id),
		Date:        date,
		Description: "Activity " + id,
		Due:         generic.MustParseAmount(due),
		Discount:    generic.DiscountRule{Percent: decimal.NewFromInt(20), GuestThreshold: 2},
		CreatedAt:   base,
	}
	require.NoError(t, s.InsertActivity(context.Background(), a))
	return a
}

func attend(t *testing.T, s generic.Store, id string, a generic.Activity, m generic.Member, guest generic.PersonID) error {
	t.Helper()
	return s.InsertAttendance(context.Background(), generic.Attendance{
		ID:            generic.AttendanceID(id),
		ActivityID:    a.ID,
		MemberID:      m.ID,
		GuestPersonID: guest,
		RegisteredAt:  base,
	})
}

func payment(id, attendanceID, amount, key string) generic.Payment {
	return generic.Payment{
		ID:             generic.PaymentID(id),
		AttendanceID:   generic.AttendanceID(attendanceID),
		Amount:         generic.MustParseAmount(amount),
		RecordedAt:     base,
		IdempotencyKey: key,
	}
}

// =============================================================================
// CONTRACT
// =============================================================================

func testIdentityRoundTrip(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")

	got, err := s.GetMember(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.PersonID, got.PersonID)
	assert.True(t, got.JoinedAt.Equal(base))

	byPerson, err := s.GetMemberByPerson(ctx, m.PersonID)
	require.NoError(t, err)
	require.NotNil(t, byPerson)
	assert.Equal(t, m.ID, byPerson.ID)

	p, err := s.GetPerson(ctx, m.PersonID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Person m1", p.Name)

	members, err := s.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func testMissingRowsReturnNil(t *testing.T, s generic.TxStore) {
	ctx := context.Background()

	p, err := s.GetPerson(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, p)

	m, err := s.GetMemberByPerson(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, m)

	a, err := s.GetActivity(ctx, "nothing")
	assert.NoError(t, err)
	assert.Nil(t, a)

	att, err := s.GetAttendance(ctx, "nothing")
	assert.NoError(t, err)
	assert.Nil(t, att)

	c, err := s.GetDuesConstants(ctx)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func testOneMembershipPerPerson(t *testing.T, s generic.TxStore) {
	m := seedMember(t, s, "m1")

	err := s.InsertMember(context.Background(), generic.Member{ID: "m2", PersonID: m.PersonID, JoinedAt: base})
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func testActivitiesOrderedAndWindowed(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	seedActivity(t, s, "late", base.AddDate(0, 2, 0), "10")
	seedActivity(t, s, "early", base, "20")
	seedActivity(t, s, "mid", base.AddDate(0, 1, 0), "30")

	all, err := s.ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []generic.ActivityID{"early", "mid", "late"}, []generic.ActivityID{all[0].ID, all[1].ID, all[2].ID})

	window := generic.NewPeriod(base, base.AddDate(0, 1, 0))
	in, err := s.ListActivitiesInPeriod(ctx, window)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, generic.ActivityID("mid"), in[1].ID)

	got, err := s.GetActivity(ctx, "mid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, generic.MustParseAmount("30").Equal(got.Due))
	assert.True(t, got.Discount.Percent.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, got.Discount.GuestThreshold)
}

func testDuesConstantsUpsert(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveDuesConstants(ctx, generic.DuesConstants{Min: generic.MustParseAmount("5"), Max: generic.MustParseAmount("50")}))
	require.NoError(t, s.SaveDuesConstants(ctx, generic.DuesConstants{Min: generic.MustParseAmount("10"), Max: generic.MustParseAmount("100")}))

	c, err := s.GetDuesConstants(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, generic.MustParseAmount("10").Equal(c.Min))
	assert.True(t, generic.MustParseAmount("100").Equal(c.Max))
}

func testAttendanceUniqueness(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")
	other := seedMember(t, s, "m2")
	g := seedGuest(t, s, "g1")
	a := seedActivity(t, s, "act", base, "100")

	require.NoError(t, attend(t, s, "r1", a, m, ""))

	// Second own registration
	err := attend(t, s, "r2", a, m, "")
	assert.ErrorIs(t, err, generic.ErrDuplicateAttendance)
	assert.ErrorIs(t, err, generic.ErrConflict)

	// Guest rows do not collide with the member's own row
	require.NoError(t, attend(t, s, "r3", a, m, g.ID))

	// The same guest cannot be registered twice, even by another member
	err = attend(t, s, "r4", a, other, g.ID)
	assert.ErrorIs(t, err, generic.ErrDuplicateAttendance)

	own, err := s.FindMemberAttendance(ctx, a.ID, m.ID)
	require.NoError(t, err)
	require.NotNil(t, own)
	assert.Equal(t, generic.AttendanceID("r1"), own.ID)

	guest, err := s.FindGuestAttendance(ctx, a.ID, g.ID)
	require.NoError(t, err)
	require.NotNil(t, guest)
	assert.Equal(t, m.ID, guest.MemberID)

	rows, err := s.ListAttendanceByActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	byMember, err := s.ListAttendanceByMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, byMember, 2)
}

func testPaymentIdempotencyKey(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")
	a := seedActivity(t, s, "act", base, "100")
	require.NoError(t, attend(t, s, "r1", a, m, ""))

	require.NoError(t, s.InsertPayment(ctx, payment("pay1", "r1", "10.50", "key-1")))
	err := s.InsertPayment(ctx, payment("pay2", "r1", "10.50", "key-1"))
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	// Keyless payments never collide
	require.NoError(t, s.InsertPayment(ctx, payment("pay3", "r1", "1", "")))
	require.NoError(t, s.InsertPayment(ctx, payment("pay4", "r1", "1", "")))

	ps, err := s.ListPaymentsByAttendance(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.True(t, generic.MustParseAmount("10.50").Equal(ps[0].Amount))
}

func testPaymentsByActivity(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")
	a1 := seedActivity(t, s, "a1", base, "100")
	a2 := seedActivity(t, s, "a2", base.AddDate(0, 0, 7), "100")
	require.NoError(t, attend(t, s, "r1", a1, m, ""))
	require.NoError(t, attend(t, s, "r2", a2, m, ""))
	require.NoError(t, s.InsertPayment(ctx, payment("pay1", "r1", "10", "")))
	require.NoError(t, s.InsertPayment(ctx, payment("pay2", "r2", "20", "")))

	ps, err := s.ListPaymentsByActivity(ctx, a2.ID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, generic.PaymentID("pay2"), ps[0].ID)
}

func testSubGroupRoster(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")
	g := generic.SubGroup{ID: "north", Name: "North", Region: "N", Discount: generic.DiscountRule{Percent: decimal.NewFromInt(10), GuestThreshold: 1}}
	require.NoError(t, s.InsertSubGroup(ctx, g))
	assert.ErrorIs(t, s.InsertSubGroup(ctx, g), generic.ErrConflict)

	require.NoError(t, s.AddSubGroupMember(ctx, g.ID, m.PersonID))
	require.NoError(t, s.AddSubGroupMember(ctx, g.ID, m.PersonID))

	roster, err := s.ListSubGroupRoster(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []generic.PersonID{m.PersonID}, roster)

	got, err := s.GetSubGroup(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Discount.GuestThreshold)

	all, err := s.ListSubGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testWithTxRollsBack(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")
	a := seedActivity(t, s, "act", base, "100")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, attend(t, tx, "r1", a, m, ""))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAttendance(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back row must not be visible")
}

// testWithTxSerialisesCheckThenInsert runs concurrent read-sum-insert
// transactions against one attendance row. The total must never exceed the due.
func testWithTxSerialisesCheckThenInsert(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	m := seedMember(t, s, "m1")
	a := seedActivity(t, s, "act", base, "50")
	require.NoError(t, attend(t, s, "r1", a, m, ""))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.WithTx(ctx, func(tx generic.Store) error {
				if _, err := tx.GetAttendance(ctx, "r1"); err != nil {
					return err
				}
				ps, err := tx.ListPaymentsByAttendance(ctx, "r1")
				if err != nil {
					return err
				}
				bal := generic.SettleBalance("r1", a.Due, ps)
				if err := bal.CheckPayment(generic.MustParseAmount("20")); err != nil {
					return err
				}
				return tx.InsertPayment(ctx, payment(string(rune('a'+i))+"-pay", "r1", "20", ""))
			})
		}(i)
	}
	wg.Wait()

	ps, err := s.ListPaymentsByAttendance(ctx, "r1")
	require.NoError(t, err)
	bal := generic.SettleBalance("r1", a.Due, ps)
	assert.Len(t, ps, 2)
	assert.False(t, bal.Remaining.IsNegative(), "paid %s of %s", bal.Paid, a.Due)
}
