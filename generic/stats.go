package generic

import "time"

// =============================================================================
// STATISTICS - Read-only reporting shapes
// =============================================================================

// ActivityStat reconciles one activity over one scope.
type ActivityStat struct {
	ActivityID  ActivityID
	Description string
	Date        time.Time
	Due         Amount
	MemberCount int
	GuestCount  int
	Expected    Amount
	Collected   Amount
	Remaining   Amount

	// Skipped counts attendance rows left out because they could not be
	// resolved (dangling member, store error). Zero on healthy data.
	Skipped int
}

// NewActivityStat fills the shape from a breakdown.
func NewActivityStat(a Activity, b DuesBreakdown) ActivityStat {
	return ActivityStat{
		ActivityID:  a.ID,
		Description: a.Description,
		Date:        a.Date,
		Due:         a.Due,
		MemberCount: b.MemberCount,
		GuestCount:  b.GuestCount,
		Expected:    b.Expected,
		Collected:   b.Collected,
		Remaining:   b.Remaining(),
	}
}

// EmptyActivityStat is the placeholder used when an activity's rows could
// not be loaded at all.
func EmptyActivityStat(a Activity) ActivityStat {
	return NewActivityStat(a, DuesBreakdown{Expected: Zero(), Collected: Zero()})
}

// SubGroupActivityStat is one cell of the activity x sub-group grid.
type SubGroupActivityStat struct {
	ActivityStat
	SubGroupID   SubGroupID
	SubGroupName string

	// Projected is Expected recomputed with the sub-group's own discount rule.
	Projected Amount
}

// MemberStat is one member's activity over a reporting window.
type MemberStat struct {
	MemberID           MemberID
	PersonID           PersonID
	Name               string
	ActivitiesInPeriod int
	ActivitiesAttended int
	GuestsInvited      int
	Expected           Amount
	Paid               Amount
	Remaining          Amount
}

// SumExpected adds up Expected over a set of stats.
func SumExpected(stats []SubGroupActivityStat) Amount {
	total := Zero()
	for _, s := range stats {
		total = total.Add(s.Expected)
	}
	return total
}
