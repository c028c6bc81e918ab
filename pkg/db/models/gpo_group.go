package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GpoGroup is a buying collective and the aggregation boundary for demand,
// orders and allocations.
type GpoGroup struct {
	ID                      uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Slug                    string          `gorm:"column:slug;not null;uniqueIndex"`
	Name                    string          `gorm:"column:name;not null"`
	Description             *string         `gorm:"column:description"`
	Tier                    *string         `gorm:"column:tier"`
	FacilitationFeeRate     decimal.Decimal `gorm:"column:facilitation_fee_rate;type:numeric(5,4);not null"`
	MinAggregationThreshold int64           `gorm:"column:min_aggregation_threshold;not null"`
	CreatedAt               time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (GpoGroup) TableName() string { return "gpo_groups" }

func (g *GpoGroup) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
