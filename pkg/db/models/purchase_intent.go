package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// PurchaseIntent is a member's declared need for a product in a target month.
type PurchaseIntent struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID       uuid.UUID          `gorm:"column:group_id;type:uuid;not null"`
	MemberID      uuid.UUID          `gorm:"column:member_id;type:uuid;not null"`
	ProductName   string             `gorm:"column:product_name;not null"`
	QuantityUnits int64              `gorm:"column:quantity_units;not null"`
	TargetMonth   string             `gorm:"column:target_month;type:char(7);not null"`
	Status        enums.IntentStatus `gorm:"column:status;type:text;not null;default:'submitted'"`
	GroupOrderID  *uuid.UUID         `gorm:"column:group_order_id;type:uuid"`
	Notes         *string            `gorm:"column:notes"`
	CancelledAt   *time.Time         `gorm:"column:cancelled_at"`
	FulfilledAt   *time.Time         `gorm:"column:fulfilled_at"`
	CreatedAt     time.Time          `gorm:"column:created_at"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (PurchaseIntent) TableName() string { return "gpo_purchase_intents" }

func (p *PurchaseIntent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
