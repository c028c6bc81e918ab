package grouporders

import "github.com/angelmondragon/gpo-backend/pkg/enums"

// next is the forward lifecycle: each stage has exactly one successor.
var next = map[enums.GroupOrderStatus]enums.GroupOrderStatus{
	enums.GroupOrderIntentCollection:    enums.GroupOrderAggregated,
	enums.GroupOrderAggregated:          enums.GroupOrderSubmittedToCenabast,
	enums.GroupOrderSubmittedToCenabast: enums.GroupOrderConfirmed,
	enums.GroupOrderConfirmed:           enums.GroupOrderFulfilled,
	enums.GroupOrderFulfilled:           enums.GroupOrderDistributed,
}

// cancellable lists the stages an order may still be cancelled from.
var cancellable = map[enums.GroupOrderStatus]bool{
	enums.GroupOrderIntentCollection:    true,
	enums.GroupOrderAggregated:          true,
	enums.GroupOrderSubmittedToCenabast: true,
	enums.GroupOrderConfirmed:           true,
}

// NextStatus returns the successor of from, if any.
func NextStatus(from enums.GroupOrderStatus) (enums.GroupOrderStatus, bool) {
	to, ok := next[from]
	return to, ok
}

// CanTransition reports whether from -> to is a single legal step.
func CanTransition(from, to enums.GroupOrderStatus) bool {
	if to == enums.GroupOrderCancelled {
		return cancellable[from]
	}
	successor, ok := next[from]
	return ok && successor == to
}

// AllowedTransitions lists every legal target from the given stage.
func AllowedTransitions(from enums.GroupOrderStatus) []enums.GroupOrderStatus {
	var out []enums.GroupOrderStatus
	if successor, ok := next[from]; ok {
		out = append(out, successor)
	}
	if cancellable[from] {
		out = append(out, enums.GroupOrderCancelled)
	}
	return out
}

// PricingOpen reports whether prices may still change.
func PricingOpen(status enums.GroupOrderStatus) bool {
	switch status {
	case enums.GroupOrderIntentCollection, enums.GroupOrderAggregated, enums.GroupOrderSubmittedToCenabast:
		return true
	}
	return false
}
