package association

import (
	"context"

	"github.com/warp/dues-engine/generic"
)

// =============================================================================
// ATTENDANCE REGISTRATION
// =============================================================================
//
// unregistered -> registered. Terminal; there is no cancellation.
//
// Uniqueness is checked on the participant being added:
//   - no guest:   the member's own row for the activity
//   - with guest: the guest's row for the activity, whoever invited them
//
// A member may therefore invite several guests, one row each, and the same
// outside guest cannot be booked twice through two different members.

// RegisterAttendance registers a member, or a guest invited by that member,
// at an activity. Pass an empty guestID for the member's own registration.
func (s *Service) RegisterAttendance(ctx context.Context, memberID generic.MemberID, activityID generic.ActivityID, guestID generic.PersonID) (generic.AttendanceID, error) {
	record := generic.Attendance{
		ID:            generic.AttendanceID(s.newID()),
		ActivityID:    activityID,
		MemberID:      memberID,
		GuestPersonID: guestID,
		RegisteredAt:  s.now(),
	}

	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return &generic.NotFoundError{Kind: "member", ID: string(memberID)}
		}

		activity, err := tx.GetActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if activity == nil {
			return &generic.NotFoundError{Kind: "activity", ID: string(activityID)}
		}

		var existing *generic.Attendance
		if guestID != "" {
			if err := checkGuest(ctx, tx, guestID); err != nil {
				return err
			}
			existing, err = tx.FindGuestAttendance(ctx, activityID, guestID)
		} else {
			existing, err = tx.FindMemberAttendance(ctx, activityID, memberID)
		}
		if err != nil {
			return err
		}
		if existing != nil {
			return &generic.ConflictError{
				Kind:   "attendance",
				ID:     string(existing.ID),
				Reason: "already registered",
				Err:    generic.ErrDuplicateAttendance,
			}
		}

		return tx.InsertAttendance(ctx, record)
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("attendance registered",
		"attendance_id", record.ID,
		"activity_id", activityID,
		"member_id", memberID,
		"guest_person_id", guestID,
	)
	return record.ID, nil
}

// checkGuest resolves the guest and rejects persons who hold a membership.
func checkGuest(ctx context.Context, tx generic.Store, guestID generic.PersonID) error {
	person, err := tx.GetPerson(ctx, guestID)
	if err != nil {
		return err
	}
	if person == nil {
		return &generic.NotFoundError{Kind: "person", ID: string(guestID)}
	}
	membership, err := tx.GetMemberByPerson(ctx, guestID)
	if err != nil {
		return err
	}
	if membership != nil {
		return &generic.BusinessRuleError{
			Rule:    generic.RuleGuestIsMember,
			Message: "guest is itself a member",
		}
	}
	return nil
}

// ListAttendance returns every attendance row of an activity.
func (s *Service) ListAttendance(ctx context.Context, activityID generic.ActivityID) ([]generic.Attendance, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return s.store.ListAttendanceByActivity(ctx, activityID)
}
