package groups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gpo-backend/internal/repo"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// Repository persists groups, their members and per-product thresholds.
type Repository struct {
	repo.Base
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) CreateGroup(ctx context.Context, group *models.GpoGroup) error {
	return r.DB(ctx).Create(group).Error
}

func (r *Repository) UpdateGroup(ctx context.Context, group *models.GpoGroup) error {
	return r.DB(ctx).Save(group).Error
}

func (r *Repository) FindGroupByID(ctx context.Context, id uuid.UUID) (*models.GpoGroup, error) {
	var group models.GpoGroup
	if err := r.DB(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *Repository) FindGroupBySlug(ctx context.Context, slug string) (*models.GpoGroup, error) {
	var group models.GpoGroup
	if err := r.DB(ctx).Where("slug = ?", slug).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// ListGroups returns every group, or only those the user belongs to when
// userID is set.
func (r *Repository) ListGroups(ctx context.Context, userID *uuid.UUID) ([]models.GpoGroup, error) {
	var groups []models.GpoGroup
	q := r.DB(ctx).Model(&models.GpoGroup{})
	if userID != nil {
		q = q.Where("id IN (?)", r.DB(ctx).Model(&models.GpoMember{}).
			Select("group_id").
			Where("user_id = ? AND active = ?", *userID, true))
	}
	if err := q.Order("name").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *Repository) CreateMember(ctx context.Context, member *models.GpoMember) error {
	return r.DB(ctx).Create(member).Error
}

func (r *Repository) SaveMember(ctx context.Context, member *models.GpoMember) error {
	return r.DB(ctx).Save(member).Error
}

// ListMembers returns the group's active members.
func (r *Repository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GpoMember, error) {
	var members []models.GpoMember
	err := r.DB(ctx).
		Where("group_id = ? AND active = ?", groupID, true).
		Order("institution_name").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *Repository) FindMemberByUser(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error) {
	var member models.GpoMember
	err := r.DB(ctx).
		Where("group_id = ? AND user_id = ? AND active = ?", groupID, userID, true).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// FindRemovedMember returns the user's deactivated membership in the group.
func (r *Repository) FindRemovedMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error) {
	var member models.GpoMember
	err := r.DB(ctx).
		Where("group_id = ? AND user_id = ? AND active = ?", groupID, userID, false).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveMember deactivates an active member and cancels its submitted
// intents in one transaction. Members keep their rows so allocations and
// savings history stay intact. It returns the number of the member's intents
// frozen into group orders; when that is not zero nothing is changed.
func (r *Repository) RemoveMember(ctx context.Context, groupID, memberID uuid.UUID, at time.Time) (int64, error) {
	var pooled int64
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.GpoMember
		err := tx.Where("id = ? AND group_id = ? AND active = ?", memberID, groupID, true).First(&member).Error
		if err != nil {
			return err
		}
		err = tx.Model(&models.PurchaseIntent{}).
			Where("member_id = ? AND status = ?", memberID, enums.IntentStatusAggregated).
			Count(&pooled).Error
		if err != nil || pooled > 0 {
			return err
		}
		err = tx.Model(&models.PurchaseIntent{}).
			Where("member_id = ? AND status = ?", memberID, enums.IntentStatusSubmitted).
			Updates(map[string]any{
				"status":       enums.IntentStatusCancelled,
				"cancelled_at": at,
				"updated_at":   at,
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.GpoMember{}).
			Where("id = ?", memberID).
			Updates(map[string]any{"active": false, "updated_at": at}).Error
	})
	return pooled, err
}

func (r *Repository) ListThresholds(ctx context.Context, groupID uuid.UUID) ([]models.ProductThreshold, error) {
	var rows []models.ProductThreshold
	err := r.DB(ctx).
		Where("group_id = ?", groupID).
		Order("product_name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertThreshold inserts or replaces the threshold for (group, product).
func (r *Repository) UpsertThreshold(ctx context.Context, row *models.ProductThreshold) error {
	row.UpdatedAt = time.Now().UTC()
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "product_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"threshold", "updated_at"}),
	}).Create(row).Error
}

func (r *Repository) FindThreshold(ctx context.Context, groupID uuid.UUID, productName string) (*models.ProductThreshold, error) {
	var row models.ProductThreshold
	err := r.DB(ctx).
		Where("group_id = ? AND product_name = ?", groupID, productName).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
