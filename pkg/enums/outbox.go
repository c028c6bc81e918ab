package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateGroupOrder OutboxAggregateType = "group_order"
	AggregateIntent     OutboxAggregateType = "purchase_intent"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGroupOrder,
	AggregateIntent,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventGroupOrderCreated       OutboxEventType = "group_order_created"
	EventGroupOrderStatusChanged OutboxEventType = "group_order_status_changed"
	EventGroupOrderCancelled     OutboxEventType = "group_order_cancelled"
	EventGroupOrderDistributed   OutboxEventType = "group_order_distributed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGroupOrderCreated,
	EventGroupOrderStatusChanged,
	EventGroupOrderCancelled,
	EventGroupOrderDistributed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
