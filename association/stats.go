/*
stats.go - Read-only reporting over activities, sub-groups and members

PURPOSE:
  Builds the three statistics shapes of generic/stats.go. Nothing here
  writes to the store, so two calls without intervening writes return
  identical results.

SHARED LOOKUPS:
  Entry points load what every item needs (members, activities, rosters,
  attendee lists) once and pass it down as plain arguments:

    ActivityStatsAll  -> members once, then one activitySnapshot per activity
    SubGroupStats     -> members + rosters once, one snapshot per activity
                         reused for every sub-group cell
    MemberStats       -> activities in window + snapshots once, reused for
                         every member

FAILURE POLICY:
  Listing the top-level population (activities, members, sub-groups) is
  required: if that fails, the call fails. Below that, nothing aborts:
    - attendance row whose member no longer exists -> skipped, counted in
      ActivityStat.Skipped, WARN
    - activity whose rows cannot be loaded        -> zeroed stat, WARN
    - sub-group whose roster cannot be loaded     -> empty roster, WARN

SEE ALSO:
  - generic/dues.go: ExpectedAmount / CollectedAmount
*/
package association

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/generic"
)

// activitySnapshot is everything the calculations need about one activity.
type activitySnapshot struct {
	activity  generic.Activity
	attendees []generic.Attendee
	payments  []generic.Payment
	skipped   int
}

// memberIndex maps member id to member, loaded once per aggregation.
type memberIndex map[generic.MemberID]generic.Member

func (s *Service) loadMembers(ctx context.Context) (memberIndex, error) {
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(memberIndex, len(members))
	for _, m := range members {
		idx[m.ID] = m
	}
	return idx, nil
}

// loadSnapshot resolves an activity's attendance rows against members.
// A row whose member is unknown is left out and counted.
func (s *Service) loadSnapshot(ctx context.Context, activity generic.Activity, members memberIndex) (activitySnapshot, error) {
	rows, err := s.store.ListAttendanceByActivity(ctx, activity.ID)
	if err != nil {
		return activitySnapshot{}, err
	}
	payments, err := s.store.ListPaymentsByActivity(ctx, activity.ID)
	if err != nil {
		return activitySnapshot{}, err
	}

	snap := activitySnapshot{activity: activity, payments: payments}
	for _, row := range rows {
		member, ok := members[row.MemberID]
		if !ok {
			snap.skipped++
			s.logger.Warn("skipping attendance with unknown member",
				"attendance_id", row.ID,
				"activity_id", activity.ID,
				"member_id", row.MemberID,
			)
			continue
		}
		snap.attendees = append(snap.attendees, generic.Attendee{
			AttendanceID:   row.ID,
			MemberID:       row.MemberID,
			MemberPersonID: member.PersonID,
			GuestPersonID:  row.GuestPersonID,
		})
	}
	return snap, nil
}

func (snap activitySnapshot) stat(rule generic.DiscountRule, scope generic.Scope) generic.ActivityStat {
	b := generic.Reconcile(snap.activity, rule, snap.attendees, snap.payments, scope)
	stat := generic.NewActivityStat(snap.activity, b)
	stat.Skipped = snap.skipped
	return stat
}

// =============================================================================
// PER-ACTIVITY
// =============================================================================

// ActivityStats reconciles one activity over all of its attendees.
func (s *Service) ActivityStats(ctx context.Context, id generic.ActivityID) (generic.ActivityStat, error) {
	activity, err := s.GetActivity(ctx, id)
	if err != nil {
		return generic.ActivityStat{}, err
	}
	members, err := s.loadMembers(ctx)
	if err != nil {
		return generic.ActivityStat{}, err
	}
	snap, err := s.loadSnapshot(ctx, activity, members)
	if err != nil {
		return generic.ActivityStat{}, err
	}
	return snap.stat(activity.Discount, generic.Everyone), nil
}

// ActivityStatsAll reconciles every activity, ordered by date.
func (s *Service) ActivityStatsAll(ctx context.Context) ([]generic.ActivityStat, error) {
	activities, err := s.store.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.loadMembers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]generic.ActivityStat, 0, len(activities))
	for _, a := range activities {
		snap, err := s.loadSnapshot(ctx, a, members)
		if err != nil {
			s.logger.Warn("activity stat zeroed", "activity_id", a.ID, "error", err)
			out = append(out, generic.EmptyActivityStat(a))
			continue
		}
		out = append(out, snap.stat(a.Discount, generic.Everyone))
	}
	return out, nil
}

// =============================================================================
// PER-SUB-GROUP PER-ACTIVITY
// =============================================================================

type subGroupScope struct {
	group generic.SubGroup
	scope generic.Scope
}

func (s *Service) loadSubGroupScopes(ctx context.Context) ([]subGroupScope, error) {
	groups, err := s.store.ListSubGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]subGroupScope, 0, len(groups))
	for _, g := range groups {
		roster := make(map[generic.PersonID]bool)
		persons, err := s.store.ListSubGroupRoster(ctx, g.ID)
		if err != nil {
			s.logger.Warn("sub-group roster unavailable, treating as empty", "subgroup_id", g.ID, "error", err)
		}
		for _, p := range persons {
			roster[p] = true
		}
		out = append(out, subGroupScope{group: g, scope: generic.RosterScope(roster)})
	}
	return out, nil
}

// SubGroupStats returns one cell per (activity, sub-group) pair, activities
// in date order and sub-groups by name within each activity.
//
// Expected uses the activity's discount rule and the whole activity's guest
// counts, so disjoint rosters covering every participant sum to the
// activity total. Projected recomputes the same cell with the sub-group's
// own rule.
func (s *Service) SubGroupStats(ctx context.Context) ([]generic.SubGroupActivityStat, error) {
	activities, err := s.store.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	scopes, err := s.loadSubGroupScopes(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.loadMembers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]generic.SubGroupActivityStat, 0, len(activities)*len(scopes))
	for _, a := range activities {
		snap, err := s.loadSnapshot(ctx, a, members)
		if err != nil {
			s.logger.Warn("sub-group stats zeroed for activity", "activity_id", a.ID, "error", err)
		}
		for _, sg := range scopes {
			out = append(out, subGroupCell(snap, a, sg, err))
		}
	}
	return out, nil
}

func subGroupCell(snap activitySnapshot, a generic.Activity, sg subGroupScope, loadErr error) generic.SubGroupActivityStat {
	cell := generic.SubGroupActivityStat{
		SubGroupID:   sg.group.ID,
		SubGroupName: sg.group.Name,
	}
	if loadErr != nil {
		cell.ActivityStat = generic.EmptyActivityStat(a)
		cell.Projected = generic.Zero()
		return cell
	}
	cell.ActivityStat = snap.stat(a.Discount, sg.scope)
	cell.Projected = generic.ExpectedAmount(a.Due, sg.group.Discount, snap.attendees, sg.scope).Expected
	return cell
}

// =============================================================================
// PER-MEMBER, TIME-WINDOWED
// =============================================================================

// MemberStatsQuery selects the window and an optional what-if discount.
type MemberStatsQuery struct {
	Period generic.Period

	// DiscountPercent, when set, replaces every activity's configured
	// percentage. GuestThreshold > 0 replaces the threshold as well;
	// otherwise each activity's own threshold is kept.
	DiscountPercent *decimal.Decimal
	GuestThreshold  int
}

func (q MemberStatsQuery) rule(a generic.Activity) generic.DiscountRule {
	if q.DiscountPercent == nil {
		return a.Discount
	}
	r := generic.DiscountRule{Percent: *q.DiscountPercent, GuestThreshold: a.Discount.GuestThreshold}
	if q.GuestThreshold > 0 {
		r.GuestThreshold = q.GuestThreshold
	}
	return r
}

// MemberStats computes, for every member, their activity over the window.
func (s *Service) MemberStats(ctx context.Context, q MemberStatsQuery) ([]generic.MemberStat, error) {
	if err := q.Period.Validate(); err != nil {
		return nil, err
	}
	if q.DiscountPercent != nil && (q.DiscountPercent.IsNegative() || q.DiscountPercent.GreaterThan(decimal.NewFromInt(100))) {
		return nil, &generic.ValidationError{Field: "discountPercent", Value: q.DiscountPercent.String(), Reason: "must be within [0, 100]"}
	}
	if q.GuestThreshold < 0 {
		return nil, &generic.ValidationError{Field: "guestThreshold", Value: q.GuestThreshold, Reason: "must not be negative"}
	}

	activities, err := s.store.ListActivitiesInPeriod(ctx, q.Period)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	index := make(memberIndex, len(members))
	for _, m := range members {
		index[m.ID] = m
	}
	names := s.personNames(ctx)

	snapshots := make([]activitySnapshot, 0, len(activities))
	for _, a := range activities {
		snap, err := s.loadSnapshot(ctx, a, index)
		if err != nil {
			s.logger.Warn("activity left out of member stats", "activity_id", a.ID, "error", err)
			snap = activitySnapshot{activity: a}
		}
		snapshots = append(snapshots, snap)
	}

	out := make([]generic.MemberStat, 0, len(members))
	for _, m := range members {
		stat := memberStat(m, snapshots, q)
		stat.Name = names[m.PersonID]
		out = append(out, stat)
	}
	return out, nil
}

// personNames is best effort: a missing name never fails a report.
func (s *Service) personNames(ctx context.Context) map[generic.PersonID]string {
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		s.logger.Warn("person names unavailable", "error", err)
		return nil
	}
	names := make(map[generic.PersonID]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}
	return names
}

// memberStat folds one member over the window's activities.
//
// Expected is the member's own (possibly discounted) due plus the full due
// of every guest they invited. Paid covers every row the member owns.
func memberStat(m generic.Member, snapshots []activitySnapshot, q MemberStatsQuery) generic.MemberStat {
	stat := generic.MemberStat{
		MemberID:           m.ID,
		PersonID:           m.PersonID,
		ActivitiesInPeriod: len(snapshots),
		Expected:           generic.Zero(),
		Paid:               generic.Zero(),
	}

	for _, snap := range snapshots {
		owned := make(map[generic.AttendanceID]bool)
		guests := 0
		for _, a := range snap.attendees {
			if a.MemberID != m.ID {
				continue
			}
			owned[a.AttendanceID] = true
			if a.IsGuest() {
				guests++
			}
		}
		if len(owned) == 0 {
			continue
		}

		due := snap.activity.Due
		stat.ActivitiesAttended++
		stat.GuestsInvited += guests
		stat.Expected = stat.Expected.
			Add(q.rule(snap.activity).MemberDue(due, guests)).
			Add(due.MulInt(guests))

		for _, p := range snap.payments {
			if owned[p.AttendanceID] {
				stat.Paid = stat.Paid.Add(p.Amount)
			}
		}
	}

	stat.Remaining = stat.Expected.Sub(stat.Paid)
	return stat
}
