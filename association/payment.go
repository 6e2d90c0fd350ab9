package association

import (
	"context"

	"github.com/warp/dues-engine/generic"
)

// RecordPayment appends a payment against one attendance record.
//
// Everything happens in one transaction: resolve the record and its
// activity, sum what was already paid, check the bound, insert. A rejected
// payment persists nothing. A non-empty idempotencyKey that was already
// used is rejected with a ConflictError wrapping ErrDuplicateIdempotencyKey.
func (s *Service) RecordPayment(ctx context.Context, attendanceID generic.AttendanceID, amount generic.Amount, idempotencyKey string) (generic.PaymentID, error) {
	payment := generic.Payment{
		ID:             generic.PaymentID(s.newID()),
		AttendanceID:   attendanceID,
		Amount:         amount,
		RecordedAt:     s.now(),
		IdempotencyKey: idempotencyKey,
	}

	var remaining generic.Amount
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		balance, err := loadBalance(ctx, tx, attendanceID)
		if err != nil {
			return err
		}
		if idempotencyKey != "" {
			for _, p := range balance.Payments {
				if p.IdempotencyKey == idempotencyKey {
					return &generic.ConflictError{
						Kind:   "payment",
						ID:     idempotencyKey,
						Reason: "idempotency key already used",
						Err:    generic.ErrDuplicateIdempotencyKey,
					}
				}
			}
		}
		if err := balance.CheckPayment(amount); err != nil {
			return err
		}
		remaining = balance.Remaining.Sub(amount)
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("payment recorded",
		"payment_id", payment.ID,
		"attendance_id", attendanceID,
		"amount", amount.String(),
		"remaining", remaining.String(),
	)
	return payment.ID, nil
}

// AttendanceBalance reports due, paid and remaining for one attendance record.
func (s *Service) AttendanceBalance(ctx context.Context, attendanceID generic.AttendanceID) (generic.AccountBalance, error) {
	return loadBalance(ctx, s.store, attendanceID)
}

// ListPayments returns the payments of one attendance record, oldest first.
func (s *Service) ListPayments(ctx context.Context, attendanceID generic.AttendanceID) ([]generic.Payment, error) {
	b, err := loadBalance(ctx, s.store, attendanceID)
	if err != nil {
		return nil, err
	}
	return b.Payments, nil
}

// loadBalance reads the attendance row first so that, inside a
// transaction, the row lock is taken before the payments are summed.
func loadBalance(ctx context.Context, st generic.Store, attendanceID generic.AttendanceID) (generic.AccountBalance, error) {
	attendance, err := st.GetAttendance(ctx, attendanceID)
	if err != nil {
		return generic.AccountBalance{}, err
	}
	if attendance == nil {
		return generic.AccountBalance{}, &generic.NotFoundError{Kind: "attendance", ID: string(attendanceID)}
	}

	activity, err := st.GetActivity(ctx, attendance.ActivityID)
	if err != nil {
		return generic.AccountBalance{}, err
	}
	if activity == nil {
		return generic.AccountBalance{}, &generic.NotFoundError{Kind: "activity", ID: string(attendance.ActivityID)}
	}

	payments, err := st.ListPaymentsByAttendance(ctx, attendanceID)
	if err != nil {
		return generic.AccountBalance{}, err
	}
	return generic.SettleBalance(attendanceID, activity.Due, payments), nil
}
