package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// FacilitationFee is the service charge owed on one group order, kept in
// step with the order's allocations until it is invoiced.
type FacilitationFee struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID      uuid.UUID       `gorm:"column:group_id;type:uuid;not null"`
	GroupOrderID uuid.UUID       `gorm:"column:group_order_id;type:uuid;not null;uniqueIndex"`
	OrderTotal   int64           `gorm:"column:order_total;not null"`
	FeeRate      decimal.Decimal `gorm:"column:fee_rate;type:numeric(5,4);not null"`
	FeeAmount    int64           `gorm:"column:fee_amount;not null"`
	Status       enums.FeeStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (FacilitationFee) TableName() string { return "gpo_facilitation_fees" }

func (f *FacilitationFee) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
