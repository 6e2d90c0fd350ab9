/*
ledger.go - Append-only payment ledger for attendance records

PURPOSE:
  Payments are the immutable source of truth for what has been paid.
  The balance of an attendance record is always computed by summing its
  payments - there is no stored "paid" field that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER. No refunds either.
  2. BOUNDED: sum(payments for record R) <= activity(R).Due
  3. ALL-OR-NOTHING: A rejected payment persists nothing.
  4. IDEMPOTENT: Same idempotency key = same payment (no duplicates)

BOUND CHECK:
  remaining = due - alreadyPaid
  amount > remaining  ->  BusinessRuleError{Remaining: remaining}

  The bound uses the flat due of the activity. Discounts are a reporting
  concern of the inviting member's total (dues.go), not a per-row cap.

CONCURRENCY:
  The check reads then writes. Callers MUST run CheckPayment and the
  insert inside TxStore.WithTx so two payments cannot both pass the check.

SEE ALSO:
  - store.go: TxStore.WithTx
  - association/payment.go: RecordPayment wires the check into a transaction
*/
package generic

// =============================================================================
// ACCOUNT BALANCE - Derived from payments, never stored
// =============================================================================

// AccountBalance is the state of one attendance record.
type AccountBalance struct {
	AttendanceID AttendanceID
	Due          Amount
	Paid         Amount
	Remaining    Amount
	Payments     []Payment
}

// SettleBalance sums payments against a due.
func SettleBalance(attendanceID AttendanceID, due Amount, payments []Payment) AccountBalance {
	paid := Zero()
	var own []Payment
	for _, p := range payments {
		if p.AttendanceID != attendanceID {
			continue
		}
		paid = paid.Add(p.Amount)
		own = append(own, p)
	}
	return AccountBalance{
		AttendanceID: attendanceID,
		Due:          due,
		Paid:         paid,
		Remaining:    due.Sub(paid),
		Payments:     own,
	}
}

// IsSettled is true once nothing remains.
func (b AccountBalance) IsSettled() bool {
	return !b.Remaining.IsPositive()
}

// CheckPayment validates a new payment against the balance.
func (b AccountBalance) CheckPayment(amount Amount) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Value: amount.String(), Reason: "must be greater than zero"}
	}
	if amount.GreaterThan(b.Remaining) {
		remaining := b.Remaining
		return &BusinessRuleError{
			Rule:      RuleExceedsBalance,
			Message:   "amount exceeds remaining balance",
			Remaining: &remaining,
		}
	}
	return nil
}
