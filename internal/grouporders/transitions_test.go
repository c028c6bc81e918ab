package grouporders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

var lifecycle = []enums.GroupOrderStatus{
	enums.GroupOrderIntentCollection,
	enums.GroupOrderAggregated,
	enums.GroupOrderSubmittedToCenabast,
	enums.GroupOrderConfirmed,
	enums.GroupOrderFulfilled,
	enums.GroupOrderDistributed,
}

func TestCanTransitionOnlyToImmediateSuccessor(t *testing.T) {
	for i, from := range lifecycle {
		for j, to := range lifecycle {
			want := j == i+1
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCancelAllowedOnlyBeforeFulfilled(t *testing.T) {
	assert.True(t, CanTransition(enums.GroupOrderIntentCollection, enums.GroupOrderCancelled))
	assert.True(t, CanTransition(enums.GroupOrderAggregated, enums.GroupOrderCancelled))
	assert.True(t, CanTransition(enums.GroupOrderSubmittedToCenabast, enums.GroupOrderCancelled))
	assert.True(t, CanTransition(enums.GroupOrderConfirmed, enums.GroupOrderCancelled))
	assert.False(t, CanTransition(enums.GroupOrderFulfilled, enums.GroupOrderCancelled))
	assert.False(t, CanTransition(enums.GroupOrderDistributed, enums.GroupOrderCancelled))
	assert.False(t, CanTransition(enums.GroupOrderCancelled, enums.GroupOrderCancelled))
}

func TestTerminalStagesHaveNoExits(t *testing.T) {
	assert.Empty(t, AllowedTransitions(enums.GroupOrderDistributed))
	assert.Empty(t, AllowedTransitions(enums.GroupOrderCancelled))
	for _, to := range lifecycle {
		assert.False(t, CanTransition(enums.GroupOrderCancelled, to))
	}
	assert.Equal(t,
		[]enums.GroupOrderStatus{enums.GroupOrderConfirmed, enums.GroupOrderCancelled},
		AllowedTransitions(enums.GroupOrderSubmittedToCenabast))
}

func TestPricingOpenBeforeConfirmation(t *testing.T) {
	assert.True(t, PricingOpen(enums.GroupOrderAggregated))
	assert.True(t, PricingOpen(enums.GroupOrderSubmittedToCenabast))
	assert.False(t, PricingOpen(enums.GroupOrderConfirmed))
	assert.False(t, PricingOpen(enums.GroupOrderCancelled))
}
