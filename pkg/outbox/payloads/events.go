package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// GroupOrderCreatedEvent announces a newly pooled order.
type GroupOrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	GroupID       uuid.UUID `json:"group_id"`
	ProductName   string    `json:"product_name"`
	TargetMonth   string    `json:"target_month"`
	TotalQuantity int64     `json:"total_quantity"`
	MemberCount   int       `json:"member_count"`
}

// GroupOrderStatusChangedEvent is emitted for every forward lifecycle move.
type GroupOrderStatusChangedEvent struct {
	OrderID   uuid.UUID              `json:"order_id"`
	GroupID   uuid.UUID              `json:"group_id"`
	From      enums.GroupOrderStatus `json:"from"`
	To        enums.GroupOrderStatus `json:"to"`
	Version   int64                  `json:"version"`
	ChangedAt time.Time              `json:"changed_at"`
}

// GroupOrderCancelledEvent reports a cancelled order and the intents it released.
type GroupOrderCancelledEvent struct {
	OrderID          uuid.UUID              `json:"order_id"`
	GroupID          uuid.UUID              `json:"group_id"`
	PreviousStatus   enums.GroupOrderStatus `json:"previous_status"`
	ReleasedIntentID []uuid.UUID            `json:"released_intent_ids"`
	CancelledAt      time.Time              `json:"cancelled_at"`
}

// GroupOrderDistributedEvent summarises the savings realised at distribution.
type GroupOrderDistributedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	GroupID        uuid.UUID `json:"group_id"`
	MemberCount    int       `json:"member_count"`
	SavingsRecords int       `json:"savings_records"`
	TotalSavings   int64     `json:"total_savings"`
	DistributedAt  time.Time `json:"distributed_at"`
}
