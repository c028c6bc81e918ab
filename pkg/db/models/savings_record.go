package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SavingsRecord is the realised saving for one allocation; written once.
type SavingsRecord struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID           uuid.UUID `gorm:"column:group_id;type:uuid;not null"`
	MemberID          uuid.UUID `gorm:"column:member_id;type:uuid;not null"`
	GroupOrderID      uuid.UUID `gorm:"column:group_order_id;type:uuid;not null"`
	AllocationID      uuid.UUID `gorm:"column:allocation_id;type:uuid;not null;uniqueIndex"`
	QuantityAllocated int64     `gorm:"column:quantity_allocated;not null"`
	UnitPriceMarket   int64     `gorm:"column:unit_price_market;not null"`
	UnitPriceGroup    int64     `gorm:"column:unit_price_group;not null"`
	MarketCost        int64     `gorm:"column:market_cost;not null"`
	GroupCost         int64     `gorm:"column:group_cost;not null"`
	TotalSavings      int64     `gorm:"column:total_savings;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SavingsRecord) TableName() string { return "gpo_savings_records" }

func (s *SavingsRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
