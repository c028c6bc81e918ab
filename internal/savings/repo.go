package savings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gpo-backend/internal/repo"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
)

// Repository persists savings records and reads their rollups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, record *models.SavingsRecord) (bool, error)
	GroupTotals(ctx context.Context, groupID uuid.UUID) ([]MemberSavings, error)
	MemberTotals(ctx context.Context, groupID, memberID uuid.UUID) (MemberSavings, error)
	ListByMember(ctx context.Context, groupID, memberID uuid.UUID) ([]models.SavingsRecord, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// InsertIfAbsent writes the record unless its allocation already has one and
// reports whether a row was inserted.
func (r *repository) InsertIfAbsent(ctx context.Context, record *models.SavingsRecord) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "allocation_id"}}, DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

const totalsSelect = `gpo_savings_records.member_id AS member_id,
gpo_members.institution_name AS institution_name,
COUNT(DISTINCT gpo_savings_records.group_order_id) AS total_orders,
CAST(SUM(gpo_savings_records.quantity_allocated) AS BIGINT) AS total_quantity,
CAST(SUM(gpo_savings_records.market_cost) AS BIGINT) AS market_cost,
CAST(SUM(gpo_savings_records.group_cost) AS BIGINT) AS group_cost,
CAST(SUM(gpo_savings_records.total_savings) AS BIGINT) AS total_savings`

func (r *repository) GroupTotals(ctx context.Context, groupID uuid.UUID) ([]MemberSavings, error) {
	var rows []MemberSavings
	err := r.DB(ctx).
		Model(&models.SavingsRecord{}).
		Select(totalsSelect).
		Joins("JOIN gpo_members ON gpo_members.id = gpo_savings_records.member_id").
		Where("gpo_savings_records.group_id = ?", groupID).
		Group("gpo_savings_records.member_id, gpo_members.institution_name").
		Order("total_savings DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MemberTotals(ctx context.Context, groupID, memberID uuid.UUID) (MemberSavings, error) {
	var rows []MemberSavings
	err := r.DB(ctx).
		Model(&models.SavingsRecord{}).
		Select(totalsSelect).
		Joins("JOIN gpo_members ON gpo_members.id = gpo_savings_records.member_id").
		Where("gpo_savings_records.group_id = ? AND gpo_savings_records.member_id = ?", groupID, memberID).
		Group("gpo_savings_records.member_id, gpo_members.institution_name").
		Scan(&rows).Error
	if err != nil {
		return MemberSavings{}, err
	}
	if len(rows) == 0 {
		return MemberSavings{MemberID: memberID}, nil
	}
	return rows[0], nil
}

func (r *repository) ListByMember(ctx context.Context, groupID, memberID uuid.UUID) ([]models.SavingsRecord, error) {
	var rows []models.SavingsRecord
	err := r.DB(ctx).
		Where("group_id = ? AND member_id = ?", groupID, memberID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
