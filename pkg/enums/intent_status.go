package enums

import "fmt"

// IntentStatus tracks a purchase intent from submission to fulfilment.
type IntentStatus string

const (
	IntentStatusSubmitted  IntentStatus = "submitted"
	IntentStatusAggregated IntentStatus = "aggregated"
	IntentStatusCancelled  IntentStatus = "cancelled"
	IntentStatusFulfilled  IntentStatus = "fulfilled"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusSubmitted,
	IntentStatusAggregated,
	IntentStatusCancelled,
	IntentStatusFulfilled,
}

func (s IntentStatus) String() string {
	return string(s)
}

func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
