package generic_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dues-engine/generic"
)

func TestSettleBalance_IgnoresOtherRows(t *testing.T) {
	payments := []generic.Payment{pay("a1", "20"), pay("a2", "50"), pay("a1", "15")}

	b := generic.SettleBalance("a1", money("50"), payments)

	assert.True(t, money("35").Equal(b.Paid))
	assert.True(t, money("15").Equal(b.Remaining))
	assert.Len(t, b.Payments, 2)
	assert.False(t, b.IsSettled())
}

func TestCheckPayment(t *testing.T) {
	// GIVEN: Due 50, already paid 30
	b := generic.SettleBalance("a1", money("50"), []generic.Payment{pay("a1", "30")})

	t.Run("exact remaining is accepted", func(t *testing.T) {
		assert.NoError(t, b.CheckPayment(money("20")))
	})

	t.Run("over remaining is rejected with remaining", func(t *testing.T) {
		err := b.CheckPayment(money("25"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, generic.ErrBusinessRule))

		var rule *generic.BusinessRuleError
		require.True(t, errors.As(err, &rule))
		assert.Equal(t, generic.RuleExceedsBalance, rule.Rule)
		require.NotNil(t, rule.Remaining)
		assert.True(t, money("20").Equal(*rule.Remaining))
	})

	t.Run("zero and negative are validation errors", func(t *testing.T) {
		assert.ErrorIs(t, b.CheckPayment(money("0")), generic.ErrValidation)
		assert.ErrorIs(t, b.CheckPayment(money("-5")), generic.ErrValidation)
	})
}

func TestCheckPayment_SettledRejectsEverything(t *testing.T) {
	b := generic.SettleBalance("a1", money("50"), []generic.Payment{pay("a1", "50")})
	assert.True(t, b.IsSettled())
	assert.ErrorIs(t, b.CheckPayment(money("0.01")), generic.ErrBusinessRule)
}

func TestErrors_Classification(t *testing.T) {
	conflict := &generic.ConflictError{Kind: "attendance", Reason: "already registered", Err: generic.ErrDuplicateAttendance}
	assert.ErrorIs(t, conflict, generic.ErrConflict)
	assert.ErrorIs(t, conflict, generic.ErrDuplicateAttendance)
	assert.True(t, generic.IsClientError(conflict))

	infra := generic.Infra("insert payment", errors.New("disk full"))
	assert.ErrorIs(t, infra, generic.ErrInfrastructure)
	assert.False(t, generic.IsClientError(infra))

	// Domain errors pass through untouched
	nf := &generic.NotFoundError{Kind: "activity", ID: "x"}
	assert.Same(t, nf, generic.Infra("get activity", nf))
	assert.True(t, generic.IsNotFound(nf))
	assert.Nil(t, generic.Infra("noop", nil))
}
