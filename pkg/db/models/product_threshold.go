package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductThreshold overrides the group's default pooling minimum for one product.
type ProductThreshold struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID     uuid.UUID `gorm:"column:group_id;type:uuid;not null"`
	ProductName string    `gorm:"column:product_name;not null"`
	Threshold   int64     `gorm:"column:threshold;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductThreshold) TableName() string { return "gpo_product_thresholds" }

func (p *ProductThreshold) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
