package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// MemberAllocation is one member's share of a group order.
type MemberAllocation struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupOrderID      uuid.UUID              `gorm:"column:group_order_id;type:uuid;not null"`
	MemberID          uuid.UUID              `gorm:"column:member_id;type:uuid;not null"`
	IntentID          uuid.UUID              `gorm:"column:intent_id;type:uuid;not null"`
	QuantityAllocated int64                  `gorm:"column:quantity_allocated;not null"`
	UnitPrice         *int64                 `gorm:"column:unit_price"`
	Subtotal          int64                  `gorm:"column:subtotal;not null;default:0"`
	FacilitationFee   int64                  `gorm:"column:facilitation_fee;not null;default:0"`
	Status            enums.AllocationStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (MemberAllocation) TableName() string { return "gpo_member_allocations" }

func (a *MemberAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
