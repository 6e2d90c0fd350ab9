package association_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dues-engine/association"
	"github.com/warp/dues-engine/generic"
	"github.com/warp/dues-engine/generic/store"
)

// =============================================================================
// PER-ACTIVITY
// =============================================================================

func TestActivityStats_Scenario2(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: due 100, 20% off from 2 guests; M registers and invites G1, G2
		m, _ := e.member("m")
		g1 := e.person("g1")
		g2 := e.person("g2")
		a := e.activity("100", 20, 2)
		own := e.register(m, a, "")
		e.register(m, a, g1)
		e.register(m, a, g2)
		e.pay(own, "80")

		// WHEN: Computing the activity stat
		stat, err := e.svc.ActivityStats(e.ctx, a)
		require.NoError(t, err)

		// THEN: 80 + 100 + 100
		assert.Equal(t, 1, stat.MemberCount)
		assert.Equal(t, 2, stat.GuestCount)
		assertMoney(t, "280", stat.Expected)
		assertMoney(t, "80", stat.Collected)
		assertMoney(t, "200", stat.Remaining)
		assert.Zero(t, stat.Skipped)
	})
}

func TestActivityStats_OneGuestBelowThreshold(t *testing.T) {
	e := newMemoryEnv(t)
	m, _ := e.member("m")
	a := e.activity("100", 20, 2)
	e.register(m, a, "")
	e.register(m, a, e.person("g1"))

	stat, err := e.svc.ActivityStats(e.ctx, a)
	require.NoError(t, err)
	assertMoney(t, "200", stat.Expected)
}

func TestActivityStats_UnknownActivity(t *testing.T) {
	e := newMemoryEnv(t)
	_, err := e.svc.ActivityStats(e.ctx, "nothing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestActivityStats_DanglingMemberIsSkipped(t *testing.T) {
	// GIVEN: Historical row pointing at a member that no longer exists
	mem := store.NewMemory()
	e := newEnv(t, mem)
	m, _ := e.member("m")
	a := e.activity("50", 0, 0)
	e.register(m, a, "")
	require.NoError(t, mem.InsertAttendance(e.ctx, generic.Attendance{
		ID:         "orphan",
		ActivityID: a,
		MemberID:   "deleted-member",
	}))

	// WHEN: Aggregating
	stat, err := e.svc.ActivityStats(e.ctx, a)

	// THEN: The report renders without the orphan
	require.NoError(t, err)
	assert.Equal(t, 1, stat.MemberCount)
	assertMoney(t, "50", stat.Expected)
	assert.Equal(t, 1, stat.Skipped)

	all, err := e.svc.ActivityStatsAll(e.ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].Skipped)
}

func TestActivityStatsAll_OrderedAndIdempotent(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		m, _ := e.member("m")
		late := e.activityOn(now.AddDate(0, 1, 0), "30", 0, 0)
		early := e.activityOn(now.AddDate(0, 0, 1), "10", 0, 0)
		e.pay(e.register(m, late, ""), "5")
		e.register(m, early, "")

		first, err := e.svc.ActivityStatsAll(e.ctx)
		require.NoError(t, err)
		second, err := e.svc.ActivityStatsAll(e.ctx)
		require.NoError(t, err)

		require.Len(t, first, 2)
		assert.Equal(t, early, first[0].ActivityID)
		assert.Equal(t, late, first[1].ActivityID)
		assertMoney(t, "25", first[1].Remaining)
		assert.Equal(t, first, second)
	})
}

// =============================================================================
// PER-SUB-GROUP
// =============================================================================

func TestSubGroupStats_AdditiveAndProjected(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: m1 with two guests, m2 with one, rosters partitioning everyone
		m1, p1 := e.member("m1")
		m2, p2 := e.member("m2")
		g1, g2, g3 := e.person("g1"), e.person("g2"), e.person("g3")
		a := e.activity("100", 20, 2)
		e.register(m1, a, "")
		e.register(m1, a, g1)
		e.register(m1, a, g2)
		e.register(m2, a, g3)

		north, err := e.svc.CreateSubGroup(e.ctx, association.NewSubGroup{Name: "North", DiscountPercent: decimal.NewFromInt(50), GuestThreshold: 1})
		require.NoError(t, err)
		south, err := e.svc.CreateSubGroup(e.ctx, association.NewSubGroup{Name: "South"})
		require.NoError(t, err)
		for _, p := range []generic.PersonID{p1, g3} {
			require.NoError(t, e.svc.AddToSubGroup(e.ctx, north, p))
		}
		for _, p := range []generic.PersonID{p2, g1, g2} {
			require.NoError(t, e.svc.AddToSubGroup(e.ctx, south, p))
		}

		// WHEN: Computing the grid
		cells, err := e.svc.SubGroupStats(e.ctx)
		require.NoError(t, err)
		require.Len(t, cells, 2)

		whole, err := e.svc.ActivityStats(e.ctx, a)
		require.NoError(t, err)

		// THEN: Cells are sorted by sub-group name and add up to the whole
		assert.Equal(t, "North", cells[0].SubGroupName)
		assert.Equal(t, "South", cells[1].SubGroupName)
		assert.True(t, whole.Expected.Equal(cells[0].Expected.Add(cells[1].Expected)))
		assert.True(t, whole.Expected.Equal(generic.SumExpected(cells)))

		// North: m1 discounted (80) + g3 (100)
		assertMoney(t, "180", cells[0].Expected)
		assert.Equal(t, 1, cells[0].MemberCount)
		assert.Equal(t, 1, cells[0].GuestCount)

		// North projected with 50% from 1 guest: m1 50 + g3 100
		assertMoney(t, "150", cells[0].Projected)

		// South projected with no discount: m2 100 + g1 100 + g2 100
		assertMoney(t, "300", cells[1].Projected)
	})
}

func TestSubGroupStats_NoSubGroups(t *testing.T) {
	e := newMemoryEnv(t)
	e.activity("10", 0, 0)

	cells, err := e.svc.SubGroupStats(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestAddToSubGroup_NotFound(t *testing.T) {
	e := newMemoryEnv(t)
	sg, err := e.svc.CreateSubGroup(e.ctx, association.NewSubGroup{Name: "North"})
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.AddToSubGroup(e.ctx, "missing", e.person("x")), generic.ErrNotFound)
	assert.ErrorIs(t, e.svc.AddToSubGroup(e.ctx, sg, "nobody"), generic.ErrNotFound)
}

// =============================================================================
// PER-MEMBER
// =============================================================================

func TestMemberStats_Window(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		// GIVEN: Three activities, two inside January
		m1, _ := e.member("m1")
		m2, _ := e.member("m2")
		jan1 := e.activityOn(now.AddDate(0, 0, 2), "100", 20, 2)
		jan2 := e.activityOn(now.AddDate(0, 0, 5), "40", 0, 0)
		feb := e.activityOn(now.AddDate(0, 1, 0), "999", 0, 0)

		own := e.register(m1, jan1, "")
		e.register(m1, jan1, e.person("g1"))
		e.register(m1, jan1, e.person("g2"))
		e.register(m1, feb, "")
		e.register(m2, jan2, "")
		e.pay(own, "50")

		q := association.MemberStatsQuery{
			Period: generic.NewPeriod(now, now.AddDate(0, 0, 20)),
		}

		// WHEN: Computing member stats
		stats, err := e.svc.MemberStats(e.ctx, q)
		require.NoError(t, err)
		require.Len(t, stats, 2)

		byMember := map[generic.MemberID]generic.MemberStat{}
		for _, s := range stats {
			byMember[s.MemberID] = s
		}

		// THEN: m1 attended jan1 with 2 guests: 80 + 100 + 100
		s1 := byMember[m1]
		assert.Equal(t, "m1", s1.Name)
		assert.Equal(t, 2, s1.ActivitiesInPeriod)
		assert.Equal(t, 1, s1.ActivitiesAttended)
		assert.Equal(t, 2, s1.GuestsInvited)
		assertMoney(t, "280", s1.Expected)
		assertMoney(t, "50", s1.Paid)
		assertMoney(t, "230", s1.Remaining)

		s2 := byMember[m2]
		assert.Equal(t, 1, s2.ActivitiesAttended)
		assertMoney(t, "40", s2.Expected)
		assertMoney(t, "40", s2.Remaining)
	})
}

func TestMemberStats_DiscountOverride(t *testing.T) {
	// GIVEN: Activity without a configured discount; member brings 1 guest
	e := newMemoryEnv(t)
	m, _ := e.member("m")
	a := e.activity("100", 0, 0)
	e.register(m, a, "")
	e.register(m, a, e.person("g"))
	window := generic.NewPeriod(now, now.AddDate(0, 1, 0))

	// WHEN: What-if 25% off from 1 guest
	pct := decimal.NewFromInt(25)
	stats, err := e.svc.MemberStats(e.ctx, association.MemberStatsQuery{Period: window, DiscountPercent: &pct, GuestThreshold: 1})
	require.NoError(t, err)

	// THEN: Member 75 + guest 100
	require.Len(t, stats, 1)
	assertMoney(t, "175", stats[0].Expected)

	// AND: Without the override the activity's own rule applies
	stats, err = e.svc.MemberStats(e.ctx, association.MemberStatsQuery{Period: window})
	require.NoError(t, err)
	assertMoney(t, "200", stats[0].Expected)

	// AND: Override with threshold 0 keeps the activity's threshold (disabled here)
	stats, err = e.svc.MemberStats(e.ctx, association.MemberStatsQuery{Period: window, DiscountPercent: &pct})
	require.NoError(t, err)
	assertMoney(t, "200", stats[0].Expected)
}

func TestMemberStats_Validation(t *testing.T) {
	e := newMemoryEnv(t)

	_, err := e.svc.MemberStats(e.ctx, association.MemberStatsQuery{
		Period: generic.Period{Start: now, End: now.AddDate(0, 0, -1)},
	})
	assert.ErrorIs(t, err, generic.ErrValidation)

	pct := decimal.NewFromInt(120)
	_, err = e.svc.MemberStats(e.ctx, association.MemberStatsQuery{
		Period:          generic.NewPeriod(now, now),
		DiscountPercent: &pct,
	})
	assert.ErrorIs(t, err, generic.ErrValidation)
}
