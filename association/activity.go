package association

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/generic"
)

// NewActivity is the input to CreateActivity.
type NewActivity struct {
	Date                   time.Time       `json:"date" validate:"required"`
	Description            string          `json:"description" validate:"required,max=500"`
	Priority               int             `json:"priority" validate:"min=1,max=10"`
	Region                 string          `json:"region" validate:"max=100"`
	Due                    generic.Amount  `json:"due" validate:"gte=0"`
	DiscountPercent        decimal.Decimal `json:"discountPercent" validate:"gte=0,lte=100"`
	DiscountGuestThreshold int             `json:"discountGuestThreshold" validate:"gte=0"`
}

// CreateActivity validates and persists a new activity.
//
// The date must be strictly after now, and the due must fall within the
// dues constants read at call time.
func (s *Service) CreateActivity(ctx context.Context, in NewActivity) (generic.ActivityID, error) {
	if err := s.check(in); err != nil {
		return "", err
	}
	now := s.now()
	if !in.Date.After(now) {
		return "", &generic.ValidationError{
			Field:  "date",
			Value:  in.Date.Format(time.RFC3339),
			Reason: "must be in the future",
		}
	}

	constants, err := s.store.GetDuesConstants(ctx)
	if err != nil {
		return "", err
	}
	if constants == nil {
		return "", &generic.NotFoundError{Kind: "dues_constants"}
	}
	if !constants.Contains(in.Due) {
		return "", &generic.ValidationError{
			Field:  "due",
			Value:  in.Due.String(),
			Reason: fmt.Sprintf("must be within [%s, %s]", constants.Min, constants.Max),
		}
	}

	activity := generic.Activity{
		ID:          generic.ActivityID(s.newID()),
		Date:        in.Date.UTC(),
		Description: in.Description,
		Priority:    in.Priority,
		Region:      in.Region,
		Due:         in.Due,
		Discount: generic.DiscountRule{
			Percent:        in.DiscountPercent,
			GuestThreshold: in.DiscountGuestThreshold,
		},
		CreatedAt: now,
	}
	if err := s.store.InsertActivity(ctx, activity); err != nil {
		return "", err
	}

	s.logger.Info("activity created",
		"activity_id", activity.ID,
		"date", activity.Date.Format(time.DateOnly),
		"due", activity.Due.String(),
	)
	return activity.ID, nil
}

func (s *Service) GetActivity(ctx context.Context, id generic.ActivityID) (generic.Activity, error) {
	a, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return generic.Activity{}, err
	}
	if a == nil {
		return generic.Activity{}, &generic.NotFoundError{Kind: "activity", ID: string(id)}
	}
	return *a, nil
}

// ListActivities returns every activity ordered by date.
func (s *Service) ListActivities(ctx context.Context) ([]generic.Activity, error) {
	return s.store.ListActivities(ctx)
}
