package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// GroupOrder is the pooled order for one (group, product, month) key.
// FacilitationFeeRate is snapshotted from the group at creation so later rate
// changes never touch existing allocations.
type GroupOrder struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID             uuid.UUID              `gorm:"column:group_id;type:uuid;not null"`
	ProductName         string                 `gorm:"column:product_name;not null"`
	TargetMonth         string                 `gorm:"column:target_month;type:char(7);not null"`
	TotalQuantity       int64                  `gorm:"column:total_quantity;not null"`
	MemberCount         int                    `gorm:"column:member_count;not null"`
	UnitPriceGroup      *int64                 `gorm:"column:unit_price_group"`
	UnitPriceMarket     *int64                 `gorm:"column:unit_price_market"`
	FacilitationFeeRate decimal.Decimal        `gorm:"column:facilitation_fee_rate;type:numeric(5,4);not null"`
	FacilitationFee     int64                  `gorm:"column:facilitation_fee;not null;default:0"`
	Status              enums.GroupOrderStatus `gorm:"column:status;type:text;not null"`
	Version             int64                  `gorm:"column:version;not null;default:1"`
	ConfirmedAt         *time.Time             `gorm:"column:confirmed_at"`
	FulfilledAt         *time.Time             `gorm:"column:fulfilled_at"`
	DistributedAt       *time.Time             `gorm:"column:distributed_at"`
	CancelledAt         *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt           time.Time              `gorm:"column:created_at"`
	UpdatedAt           time.Time              `gorm:"column:updated_at"`
}

func (GroupOrder) TableName() string { return "gpo_group_orders" }

func (o *GroupOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
