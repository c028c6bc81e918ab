package grouporders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/repo"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	"github.com/angelmondragon/gpo-backend/pkg/pagination"
)

// Repository persists group orders, their allocations and the intents they
// freeze.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.GroupOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error)
	FindActiveByKey(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (*models.GroupOrder, error)
	List(ctx context.Context, groupID uuid.UUID, query listQuery) ([]models.GroupOrder, *pagination.Cursor, error)
	CompareAndSet(ctx context.Context, id uuid.UUID, status enums.GroupOrderStatus, version int64, fields map[string]any) (bool, error)

	SubmittedIntents(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) ([]models.PurchaseIntent, error)
	FreezeIntents(ctx context.Context, orderID uuid.UUID, intentIDs []uuid.UUID, at time.Time) (int64, error)
	ReleaseIntents(ctx context.Context, orderID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	FulfillIntents(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)

	CreateAllocations(ctx context.Context, allocations []models.MemberAllocation) error
	ListAllocations(ctx context.Context, orderID uuid.UUID) ([]models.MemberAllocation, error)
	UpdateAllocationAmounts(ctx context.Context, allocation *models.MemberAllocation) error
	SetAllocationStatus(ctx context.Context, orderID uuid.UUID, from, to enums.AllocationStatus) (int64, error)
	DeleteAllocations(ctx context.Context, orderID uuid.UUID, status enums.AllocationStatus) (int64, error)

	CreateFee(ctx context.Context, fee *models.FacilitationFee) error
	UpdatePendingFee(ctx context.Context, orderID uuid.UUID, orderTotal, feeAmount int64, at time.Time) error
	DeletePendingFee(ctx context.Context, orderID uuid.UUID) error
	ListFees(ctx context.Context, groupID uuid.UUID, limit int) ([]models.FacilitationFee, error)
}

// ListFilter narrows List; zero values match everything. Cursor is the
// opaque value returned by the previous page.
type ListFilter struct {
	TargetMonth string
	Status      enums.GroupOrderStatus
	Limit       int
	Cursor      string
}

type listQuery struct {
	TargetMonth string
	Status      enums.GroupOrderStatus
	Limit       int
	Cursor      *pagination.Cursor
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

func (r *repository) Create(ctx context.Context, order *models.GroupOrder) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error) {
	var order models.GroupOrder
	if err := r.DB(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindActiveByKey(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (*models.GroupOrder, error) {
	var order models.GroupOrder
	err := r.DB(ctx).
		Where("group_id = ? AND product_name = ? AND target_month = ? AND status <> ?",
			groupID, productName, targetMonth, enums.GroupOrderCancelled).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, groupID uuid.UUID, query listQuery) ([]models.GroupOrder, *pagination.Cursor, error) {
	q := r.DB(ctx).Where("group_id = ?", groupID)
	if query.TargetMonth != "" {
		q = q.Where("target_month = ?", query.TargetMonth)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if query.Cursor != nil {
		clause, args := query.Cursor.Where()
		q = q.Where(clause, args...)
	}

	var rows []models.GroupOrder
	if err := q.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(query.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, query.Limit, func(o models.GroupOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

// CompareAndSet applies fields and bumps the version only while the order is
// still at (status, version). It reports false when another writer won.
func (r *repository) CompareAndSet(ctx context.Context, id uuid.UUID, status enums.GroupOrderStatus, version int64, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	res := r.DB(ctx).
		Model(&models.GroupOrder{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SubmittedIntents returns the live intents for a key, oldest first.
func (r *repository) SubmittedIntents(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) ([]models.PurchaseIntent, error) {
	var rows []models.PurchaseIntent
	err := r.DB(ctx).
		Where("group_id = ? AND product_name = ? AND target_month = ? AND status = ?",
			groupID, productName, targetMonth, enums.IntentStatusSubmitted).
		Order("created_at").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FreezeIntents(ctx context.Context, orderID uuid.UUID, intentIDs []uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.PurchaseIntent{}).
		Where("id IN ? AND status = ?", intentIDs, enums.IntentStatusSubmitted).
		Updates(map[string]any{
			"status":         enums.IntentStatusAggregated,
			"group_order_id": orderID,
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

// ReleaseIntents returns the order's frozen intents to the pool.
func (r *repository) ReleaseIntents(ctx context.Context, orderID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.PurchaseIntent{}).
		Where("group_order_id = ? AND status = ?", orderID, enums.IntentStatusAggregated).
		Order("created_at").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = r.DB(ctx).
		Model(&models.PurchaseIntent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":         enums.IntentStatusSubmitted,
			"group_order_id": nil,
			"updated_at":     at,
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) FulfillIntents(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.PurchaseIntent{}).
		Where("group_order_id = ? AND status = ?", orderID, enums.IntentStatusAggregated).
		Updates(map[string]any{
			"status":       enums.IntentStatusFulfilled,
			"fulfilled_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateAllocations(ctx context.Context, allocations []models.MemberAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&allocations).Error
}

func (r *repository) ListAllocations(ctx context.Context, orderID uuid.UUID) ([]models.MemberAllocation, error) {
	var rows []models.MemberAllocation
	err := r.DB(ctx).
		Where("group_order_id = ?", orderID).
		Order("quantity_allocated DESC").
		Order("member_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateAllocationAmounts(ctx context.Context, allocation *models.MemberAllocation) error {
	return r.DB(ctx).
		Model(&models.MemberAllocation{}).
		Where("id = ?", allocation.ID).
		Updates(map[string]any{
			"unit_price":       allocation.UnitPrice,
			"subtotal":         allocation.Subtotal,
			"facilitation_fee": allocation.FacilitationFee,
		}).Error
}

func (r *repository) SetAllocationStatus(ctx context.Context, orderID uuid.UUID, from, to enums.AllocationStatus) (int64, error) {
	res := r.DB(ctx).
		Model(&models.MemberAllocation{}).
		Where("group_order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteAllocations(ctx context.Context, orderID uuid.UUID, status enums.AllocationStatus) (int64, error) {
	res := r.DB(ctx).
		Where("group_order_id = ? AND status = ?", orderID, status).
		Delete(&models.MemberAllocation{})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateFee(ctx context.Context, fee *models.FacilitationFee) error {
	return r.DB(ctx).Create(fee).Error
}

// UpdatePendingFee restates a fee that has not been invoiced yet.
func (r *repository) UpdatePendingFee(ctx context.Context, orderID uuid.UUID, orderTotal, feeAmount int64, at time.Time) error {
	return r.DB(ctx).
		Model(&models.FacilitationFee{}).
		Where("group_order_id = ? AND status = ?", orderID, enums.FeePending).
		Updates(map[string]any{
			"order_total": orderTotal,
			"fee_amount":  feeAmount,
			"updated_at":  at,
		}).Error
}

func (r *repository) DeletePendingFee(ctx context.Context, orderID uuid.UUID) error {
	return r.DB(ctx).
		Where("group_order_id = ? AND status = ?", orderID, enums.FeePending).
		Delete(&models.FacilitationFee{}).Error
}

// ListFees returns the group's fee records, newest first.
func (r *repository) ListFees(ctx context.Context, groupID uuid.UUID, limit int) ([]models.FacilitationFee, error) {
	var rows []models.FacilitationFee
	err := r.DB(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
