package demand

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/repo"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

type demandRow struct {
	ProductName   string
	TotalQuantity int64
	MemberCount   int
}

// Repository reads the submitted-intent projection.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Sum groups submitted intents of a month by product. A non-empty
// productName narrows the result to that product.
func (r *Repository) Sum(ctx context.Context, groupID uuid.UUID, targetMonth, productName string) ([]demandRow, error) {
	var rows []demandRow
	q := r.DB(ctx).
		Model(&models.PurchaseIntent{}).
		Select("product_name, CAST(SUM(quantity_units) AS BIGINT) AS total_quantity, COUNT(DISTINCT member_id) AS member_count").
		Where("group_id = ? AND target_month = ? AND status = ?", groupID, targetMonth, enums.IntentStatusSubmitted)
	if productName != "" {
		q = q.Where("product_name = ?", productName)
	}
	if err := q.Group("product_name").Order("product_name").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
