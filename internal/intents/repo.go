package intents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/repo"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// Repository persists purchase intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PurchaseIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error)
	FindActive(ctx context.Context, memberID uuid.UUID, productName, targetMonth string) (*models.PurchaseIntent, error)
	ActiveOrderExists(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListByMember(ctx context.Context, groupID, memberID uuid.UUID, targetMonth string) ([]models.PurchaseIntent, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an intents repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, intent *models.PurchaseIntent) error {
	return r.DB(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	if err := r.DB(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindActive returns the member's non-cancelled intent for the key, if any.
func (r *repository) FindActive(ctx context.Context, memberID uuid.UUID, productName, targetMonth string) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	err := r.DB(ctx).
		Where("member_id = ? AND product_name = ? AND target_month = ? AND status <> ?",
			memberID, productName, targetMonth, enums.IntentStatusCancelled).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ActiveOrderExists(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.GroupOrder{}).
		Where("group_id = ? AND product_name = ? AND target_month = ? AND status <> ?",
			groupID, productName, targetMonth, enums.GroupOrderCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkCancelled flips a submitted intent to cancelled. It reports false when
// the intent had already left the submitted state.
func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.PurchaseIntent{}).
		Where("id = ? AND status = ?", id, enums.IntentStatusSubmitted).
		Updates(map[string]any{
			"status":       enums.IntentStatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByMember returns the member's intents in the group, newest first. An
// empty targetMonth lists every month.
func (r *repository) ListByMember(ctx context.Context, groupID, memberID uuid.UUID, targetMonth string) ([]models.PurchaseIntent, error) {
	var rows []models.PurchaseIntent
	q := r.DB(ctx).Where("group_id = ? AND member_id = ?", groupID, memberID)
	if targetMonth != "" {
		q = q.Where("target_month = ?", targetMonth)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
