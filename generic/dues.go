/*
dues.go - What an activity's attendees owe

PURPOSE:
  Computes the expected amount for an activity over a population scope
  (every attendee, or the attendees on one sub-group's roster), and the
  amount collected against it. This is the reconciliation core: the
  ledger, the statistics and the what-if projections all go through here.

DISCOUNT RULE:
  A member who personally invited at least GuestThreshold guests to the
  activity pays Due * (1 - Percent/100). Everybody else pays the full due.

    - Evaluated per member, never pooled across a sub-group.
    - Zero guests and "below threshold" are the same case.
    - Guests always pay the full due. The discount rewards the inviter.
    - Percent == 0 or GuestThreshold == 0 disables the rule outright.

GUEST COUNTING:
  Only attendance rows with a guest count toward the inviting member's
  total. The member's own row is never a guest.

EXAMPLE:
  Due 100, 20% off from 2 guests. Member M brings G1 and G2.
    M:  80   (2 guests >= threshold)
    G1: 100
    G2: 100
    Expected = 280

SEE ALSO:
  - ledger.go: Per-attendance balance (uses the flat due, not the discount)
  - stats.go: Report shapes built from DuesBreakdown
*/
package generic

import "github.com/shopspring/decimal"

// =============================================================================
// DISCOUNT RULE
// =============================================================================

type DiscountRule struct {
	Percent        decimal.Decimal // 0-100
	GuestThreshold int             // guests one member must invite
}

// NoDiscount is the zero rule; it never applies.
var NoDiscount = DiscountRule{}

// Enabled is an explicit guard; it does not rely on the arithmetic of a
// zero percent or a zero threshold.
func (r DiscountRule) Enabled() bool {
	return r.Percent.IsPositive() && r.GuestThreshold > 0
}

// Applies reports whether a member with the given guest count gets the discount.
func (r DiscountRule) Applies(guests int) bool {
	return r.Enabled() && guests >= r.GuestThreshold
}

// MemberDue is the inviting member's own due for one activity.
func (r DiscountRule) MemberDue(due Amount, guests int) Amount {
	if !r.Applies(guests) {
		return due
	}
	factor := decimal.NewFromInt(1).Sub(r.Percent.Div(hundred))
	return due.Mul(factor)
}

// =============================================================================
// ATTENDEES AND SCOPE
// =============================================================================

// Attendee is an attendance row with the member's person resolved, which is
// what scope tests and guest counting need.
type Attendee struct {
	AttendanceID   AttendanceID
	MemberID       MemberID
	MemberPersonID PersonID
	GuestPersonID  PersonID
}

func (a Attendee) IsGuest() bool { return a.GuestPersonID != "" }

// ParticipantID is the person this row bills: the guest on a guest row,
// the member's person otherwise.
func (a Attendee) ParticipantID() PersonID {
	if a.IsGuest() {
		return a.GuestPersonID
	}
	return a.MemberPersonID
}

// Scope selects participants by person.
type Scope func(PersonID) bool

// Everyone is the whole-activity scope.
func Everyone(PersonID) bool { return true }

// RosterScope builds a scope from a sub-group roster.
func RosterScope(roster map[PersonID]bool) Scope {
	return func(p PersonID) bool { return roster[p] }
}

// GuestCounts returns, per member, how many guest rows they created.
// It always covers the whole activity, regardless of any reporting scope.
func GuestCounts(attendees []Attendee) map[MemberID]int {
	counts := make(map[MemberID]int)
	for _, a := range attendees {
		if a.IsGuest() {
			counts[a.MemberID]++
		}
	}
	return counts
}

// =============================================================================
// EXPECTED / COLLECTED
// =============================================================================

// DuesBreakdown is the result of reconciling one activity over one scope.
type DuesBreakdown struct {
	MemberCount       int
	GuestCount        int
	DiscountedMembers int
	Expected          Amount
	Collected         Amount
}

func (b DuesBreakdown) Remaining() Amount {
	return b.Expected.Sub(b.Collected)
}

// ExpectedAmount computes the dues owed by the in-scope attendees.
//
// A member is present if they own any row for the activity (their own
// registration or a guest row). Members and guests are each counted once.
func ExpectedAmount(due Amount, rule DiscountRule, attendees []Attendee, scope Scope) DuesBreakdown {
	if scope == nil {
		scope = Everyone
	}
	guests := GuestCounts(attendees)

	var out DuesBreakdown
	out.Expected = Zero()
	out.Collected = Zero()

	seenMembers := make(map[MemberID]bool)
	seenGuests := make(map[PersonID]bool)
	for _, a := range attendees {
		if !seenMembers[a.MemberID] && scope(a.MemberPersonID) {
			seenMembers[a.MemberID] = true
			out.MemberCount++
			n := guests[a.MemberID]
			if rule.Applies(n) {
				out.DiscountedMembers++
			}
			out.Expected = out.Expected.Add(rule.MemberDue(due, n))
		}
		if a.IsGuest() && !seenGuests[a.GuestPersonID] && scope(a.GuestPersonID) {
			seenGuests[a.GuestPersonID] = true
			out.GuestCount++
			out.Expected = out.Expected.Add(due)
		}
	}
	return out
}

// CollectedAmount sums payments whose attendance row bills an in-scope
// participant. Payments for rows not in attendees are ignored, which
// restricts the sum to the activity the attendees belong to.
func CollectedAmount(attendees []Attendee, payments []Payment, scope Scope) Amount {
	if scope == nil {
		scope = Everyone
	}
	inScope := make(map[AttendanceID]bool, len(attendees))
	for _, a := range attendees {
		if scope(a.ParticipantID()) {
			inScope[a.AttendanceID] = true
		}
	}
	total := Zero()
	for _, p := range payments {
		if inScope[p.AttendanceID] {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// Reconcile runs both halves for one activity and scope.
func Reconcile(activity Activity, rule DiscountRule, attendees []Attendee, payments []Payment, scope Scope) DuesBreakdown {
	out := ExpectedAmount(activity.Due, rule, attendees, scope)
	out.Collected = CollectedAmount(attendees, payments, scope)
	return out
}
