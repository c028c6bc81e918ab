package enums

import "fmt"

// GroupOrderStatus is the lifecycle stage of a collective order.
type GroupOrderStatus string

const (
	GroupOrderIntentCollection    GroupOrderStatus = "intent_collection"
	GroupOrderAggregated          GroupOrderStatus = "aggregated"
	GroupOrderSubmittedToCenabast GroupOrderStatus = "submitted_to_cenabast"
	GroupOrderConfirmed           GroupOrderStatus = "confirmed"
	GroupOrderFulfilled           GroupOrderStatus = "fulfilled"
	GroupOrderDistributed         GroupOrderStatus = "distributed"
	GroupOrderCancelled           GroupOrderStatus = "cancelled"
)

var validGroupOrderStatuses = []GroupOrderStatus{
	GroupOrderIntentCollection,
	GroupOrderAggregated,
	GroupOrderSubmittedToCenabast,
	GroupOrderConfirmed,
	GroupOrderFulfilled,
	GroupOrderDistributed,
	GroupOrderCancelled,
}

func (s GroupOrderStatus) String() string {
	return string(s)
}

func (s GroupOrderStatus) IsValid() bool {
	for _, candidate := range validGroupOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave this status.
func (s GroupOrderStatus) IsTerminal() bool {
	return s == GroupOrderDistributed || s == GroupOrderCancelled
}

func ParseGroupOrderStatus(value string) (GroupOrderStatus, error) {
	for _, candidate := range validGroupOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group order status %q", value)
}
