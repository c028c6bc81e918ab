// Package grouporders turns threshold-met demand into pooled group orders and
// drives them through their lifecycle.
package grouporders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/allocation"
	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/internal/keylock"
	"github.com/angelmondragon/gpo-backend/internal/savings"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
	"github.com/angelmondragon/gpo-backend/pkg/outbox"
	"github.com/angelmondragon/gpo-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gpo-backend/pkg/pagination"
	"github.com/angelmondragon/gpo-backend/pkg/types"
)

const feeListLimit = 100

var (
	errLostRace     = errors.New("group order changed concurrently")
	errOrderExists  = errors.New("group order already exists for key")
	errIntentsMoved = errors.New("intent set changed while pooling")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type groupReader interface {
	GetGroup(ctx context.Context, groupID uuid.UUID) (*models.GpoGroup, error)
}

type demandReader interface {
	ForKey(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (demand.AggregatedDemand, error)
}

type savingsRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, order *models.GroupOrder, allocations []models.MemberAllocation) (savings.Summary, error)
}

// CreateInput names the key to pool and optional negotiated prices.
type CreateInput struct {
	ProductName     string
	TargetMonth     string
	UnitPriceGroup  *int64
	UnitPriceMarket *int64
	Actor           *outbox.ActorRef
}

// PricingInput sets the negotiated group price and the retail reference.
type PricingInput struct {
	UnitPriceGroup  int64
	UnitPriceMarket *int64
	Actor           *outbox.ActorRef
}

// Service is the group order manager.
type Service interface {
	Create(ctx context.Context, groupID uuid.UUID, input CreateInput) (*models.GroupOrder, bool, error)
	Advance(ctx context.Context, groupID, orderID uuid.UUID, requested enums.GroupOrderStatus, actor *outbox.ActorRef) (*models.GroupOrder, error)
	Cancel(ctx context.Context, groupID, orderID uuid.UUID, actor *outbox.ActorRef) (*models.GroupOrder, error)
	SetPricing(ctx context.Context, groupID, orderID uuid.UUID, input PricingInput) (*models.GroupOrder, error)
	Get(ctx context.Context, groupID, orderID uuid.UUID) (*models.GroupOrder, error)
	List(ctx context.Context, groupID uuid.UUID, filter ListFilter) (*ListResult, error)
	Allocations(ctx context.Context, groupID, orderID uuid.UUID) ([]models.MemberAllocation, error)
	FacilitationFees(ctx context.Context, groupID uuid.UUID) ([]models.FacilitationFee, error)
}

// ServiceParams wires the group order manager.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Groups  groupReader
	Demand  demandReader
	Savings savingsRecorder
	Outbox  outbox.Emitter
	Locker  keylock.Locker
	Logger  *logger.Logger
	Metrics *metrics.GPOMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	groups  groupReader
	demand  demandReader
	savings savingsRecorder
	outbox  outbox.Emitter
	locker  keylock.Locker
	logg    *logger.Logger
	metrics *metrics.GPOMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("group orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Groups == nil:
		return nil, fmt.Errorf("groups reader required")
	case params.Demand == nil:
		return nil, fmt.Errorf("demand reader required")
	case params.Savings == nil:
		return nil, fmt.Errorf("savings recorder required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Locker == nil:
		return nil, fmt.Errorf("key locker required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		groups:  params.Groups,
		demand:  params.Demand,
		savings: params.Savings,
		outbox:  params.Outbox,
		locker:  params.Locker,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Create pools the key into a new order, or returns the existing one. The
// bool reports whether this call created the order.
func (s *service) Create(ctx context.Context, groupID uuid.UUID, input CreateInput) (*models.GroupOrder, bool, error) {
	product := strings.TrimSpace(input.ProductName)
	if product == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "product_name is required")
	}
	month, err := types.ParseMonth(strings.TrimSpace(input.TargetMonth))
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "target_month must be YYYY-MM")
	}
	if err := validatePrices(input.UnitPriceGroup, input.UnitPriceMarket); err != nil {
		return nil, false, err
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, false, err
	}

	unlock, err := s.locker.Lock(ctx, keylock.Key(groupID, product, month.String()))
	if err != nil {
		return nil, false, err
	}
	defer s.release(ctx, unlock)

	if existing, err := s.findActive(ctx, groupID, product, month.String()); err != nil || existing != nil {
		return existing, false, err
	}

	snapshot, err := s.demand.ForKey(ctx, groupID, product, month.String())
	if err != nil {
		return nil, false, err
	}
	if !snapshot.ThresholdMet {
		return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "aggregated demand is below the pooling threshold").
			WithDetails(map[string]any{
				"total_quantity": snapshot.TotalQuantity,
				"threshold":      snapshot.Threshold,
			})
	}

	now := s.now().UTC()
	order := &models.GroupOrder{
		GroupID:             groupID,
		ProductName:         product,
		TargetMonth:         month.String(),
		TotalQuantity:       snapshot.TotalQuantity,
		MemberCount:         snapshot.MemberCount,
		UnitPriceGroup:      input.UnitPriceGroup,
		UnitPriceMarket:     input.UnitPriceMarket,
		FacilitationFeeRate: group.FacilitationFeeRate,
		Status:              enums.GroupOrderIntentCollection,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		frozen, err := repo.SubmittedIntents(ctx, groupID, product, month.String())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intents")
		}
		contributions, total := contributionsOf(frozen)
		if total != snapshot.TotalQuantity {
			return errIntentsMoved
		}

		if err := repo.Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errOrderExists
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group order")
		}

		result, err := allocation.Allocate(allocation.Input{
			Contributions: contributions,
			TotalQuantity: order.TotalQuantity,
			UnitPrice:     priceOf(order.UnitPriceGroup),
			FeeRate:       order.FacilitationFeeRate,
		})
		if err != nil {
			return allocationError(err, "allocate group order")
		}
		if err := repo.CreateAllocations(ctx, allocationRows(order.ID, result, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create allocations")
		}

		ids := make([]uuid.UUID, len(frozen))
		for i, intent := range frozen {
			ids[i] = intent.ID
		}
		frozenCount, err := repo.FreezeIntents(ctx, order.ID, ids, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze intents")
		}
		if frozenCount != int64(len(ids)) {
			return errIntentsMoved
		}

		ok, err := repo.CompareAndSet(ctx, order.ID, enums.GroupOrderIntentCollection, order.Version, map[string]any{
			"status":           enums.GroupOrderAggregated,
			"facilitation_fee": result.FacilitationFee,
			"updated_at":       now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order aggregated")
		}
		if !ok {
			return errLostRace
		}
		order.Status = enums.GroupOrderAggregated
		order.FacilitationFee = result.FacilitationFee
		order.Version++

		err = repo.CreateFee(ctx, &models.FacilitationFee{
			GroupID:      order.GroupID,
			GroupOrderID: order.ID,
			OrderTotal:   result.Subtotal,
			FeeRate:      order.FacilitationFeeRate,
			FeeAmount:    result.FacilitationFee,
			Status:       enums.FeePending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record facilitation fee")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGroupOrderCreated,
			AggregateType: enums.AggregateGroupOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			OccurredAt:    now,
			Data: payloads.GroupOrderCreatedEvent{
				OrderID:       order.ID,
				GroupID:       order.GroupID,
				ProductName:   order.ProductName,
				TargetMonth:   order.TargetMonth,
				TotalQuantity: order.TotalQuantity,
				MemberCount:   order.MemberCount,
			},
		})
	})
	switch {
	case errors.Is(err, errOrderExists):
		existing, findErr := s.findActive(ctx, groupID, product, month.String())
		if findErr != nil {
			return nil, false, findErr
		}
		if existing == nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "group order was created concurrently, retry")
		}
		return existing, false, nil
	case errors.Is(err, errIntentsMoved), errors.Is(err, errLostRace):
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "demand changed while pooling, retry")
	case err != nil:
		return nil, false, err
	}

	s.metrics.OrderCreated()
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithGroupID(ctx, groupID.String()), order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"product_name":   order.ProductName,
			"target_month":   order.TargetMonth,
			"total_quantity": order.TotalQuantity,
			"member_count":   order.MemberCount,
		})
		s.logg.Info(logCtx, "group order created")
	}
	return order, true, nil
}

// Advance moves the order exactly one stage forward. Requesting the current
// stage again is a successful no-op.
func (s *service) Advance(ctx context.Context, groupID, orderID uuid.UUID, requested enums.GroupOrderStatus, actor *outbox.ActorRef) (*models.GroupOrder, error) {
	if !requested.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown status").
			WithDetails(map[string]any{"status": requested})
	}
	if requested == enums.GroupOrderCancelled {
		return s.Cancel(ctx, groupID, orderID, actor)
	}

	order, err := s.Get(ctx, groupID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == requested {
		return order, nil
	}
	if !CanTransition(order.Status, requested) {
		return nil, invalidTransition(order.Status, requested)
	}
	if requested == enums.GroupOrderConfirmed && order.UnitPriceGroup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "unit_price_group must be set before confirming")
	}

	from := order.Status
	now := s.now().UTC()
	var distributed *payloads.GroupOrderDistributedEvent

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fields := map[string]any{"status": requested, "updated_at": now}
		switch requested {
		case enums.GroupOrderConfirmed:
			fields["confirmed_at"] = now
		case enums.GroupOrderFulfilled:
			fields["fulfilled_at"] = now
		case enums.GroupOrderDistributed:
			fields["distributed_at"] = now
		}
		ok, err := repo.CompareAndSet(ctx, order.ID, from, order.Version, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance group order")
		}
		if !ok {
			return errLostRace
		}
		order.Status = requested
		order.Version++
		order.UpdatedAt = now

		switch requested {
		case enums.GroupOrderConfirmed:
			order.ConfirmedAt = &now
			if _, err := repo.SetAllocationStatus(ctx, order.ID, enums.AllocationPending, enums.AllocationConfirmed); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm allocations")
			}
		case enums.GroupOrderFulfilled:
			order.FulfilledAt = &now
		case enums.GroupOrderDistributed:
			order.DistributedAt = &now
			event, err := s.distribute(ctx, tx, repo, order, now)
			if err != nil {
				return err
			}
			distributed = event
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGroupOrderStatusChanged,
			AggregateType: enums.AggregateGroupOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.GroupOrderStatusChangedEvent{
				OrderID:   order.ID,
				GroupID:   order.GroupID,
				From:      from,
				To:        requested,
				Version:   order.Version,
				ChangedAt: now,
			},
		}); err != nil {
			return err
		}
		if distributed == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGroupOrderDistributed,
			AggregateType: enums.AggregateGroupOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data:          *distributed,
		})
	})
	if errors.Is(err, errLostRace) {
		return s.resolveLostRace(ctx, groupID, orderID, requested)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(string(requested))
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": requested})
		s.logg.Info(logCtx, "group order advanced")
	}
	return order, nil
}

// distribute applies the terminal side effects: allocations delivered,
// intents fulfilled, one savings record per allocation.
func (s *service) distribute(ctx context.Context, tx *gorm.DB, repo Repository, order *models.GroupOrder, now time.Time) (*payloads.GroupOrderDistributedEvent, error) {
	if _, err := repo.SetAllocationStatus(ctx, order.ID, enums.AllocationConfirmed, enums.AllocationDelivered); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deliver allocations")
	}
	if _, err := repo.FulfillIntents(ctx, order.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill intents")
	}
	allocations, err := repo.ListAllocations(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocations")
	}
	summary, err := s.savings.RecordTx(ctx, tx, order, allocations)
	if err != nil {
		return nil, err
	}
	return &payloads.GroupOrderDistributedEvent{
		OrderID:        order.ID,
		GroupID:        order.GroupID,
		MemberCount:    order.MemberCount,
		SavingsRecords: summary.Inserted,
		TotalSavings:   summary.TotalSavings,
		DistributedAt:  now,
	}, nil
}

// Cancel cancels an order that has not been fulfilled yet and returns its
// intents to the pool. Cancelling a cancelled order is a no-op.
func (s *service) Cancel(ctx context.Context, groupID, orderID uuid.UUID, actor *outbox.ActorRef) (*models.GroupOrder, error) {
	order, err := s.Get(ctx, groupID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.GroupOrderCancelled {
		return order, nil
	}
	if !CanTransition(order.Status, enums.GroupOrderCancelled) {
		return nil, invalidTransition(order.Status, enums.GroupOrderCancelled)
	}

	unlock, err := s.locker.Lock(ctx, keylock.Key(order.GroupID, order.ProductName, order.TargetMonth))
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, unlock)

	from := order.Status
	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.CompareAndSet(ctx, order.ID, from, order.Version, map[string]any{
			"status":       enums.GroupOrderCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel group order")
		}
		if !ok {
			return errLostRace
		}
		order.Status = enums.GroupOrderCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		order.Version++

		released, err := repo.ReleaseIntents(ctx, order.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release intents")
		}
		if _, err := repo.DeleteAllocations(ctx, order.ID, enums.AllocationPending); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete pending allocations")
		}
		if _, err := repo.SetAllocationStatus(ctx, order.ID, enums.AllocationConfirmed, enums.AllocationCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel confirmed allocations")
		}
		if err := repo.DeletePendingFee(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop facilitation fee")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGroupOrderCancelled,
			AggregateType: enums.AggregateGroupOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.GroupOrderCancelledEvent{
				OrderID:          order.ID,
				GroupID:          order.GroupID,
				PreviousStatus:   from,
				ReleasedIntentID: released,
				CancelledAt:      now,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		return s.resolveLostRace(ctx, groupID, orderID, enums.GroupOrderCancelled)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(string(enums.GroupOrderCancelled))
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "from", from), "group order cancelled")
	}
	return order, nil
}

// SetPricing records negotiated prices and recomputes the allocations from
// the frozen shares using the order's own fee rate.
func (s *service) SetPricing(ctx context.Context, groupID, orderID uuid.UUID, input PricingInput) (*models.GroupOrder, error) {
	groupPrice := input.UnitPriceGroup
	if err := validatePrices(&groupPrice, input.UnitPriceMarket); err != nil {
		return nil, err
	}
	order, err := s.Get(ctx, groupID, orderID)
	if err != nil {
		return nil, err
	}
	if !PricingOpen(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "prices are locked once an order is confirmed").
			WithDetails(map[string]any{"status": order.Status})
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListAllocations(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocations")
		}
		contributions := make([]allocation.Contribution, len(rows))
		for i, row := range rows {
			contributions[i] = allocation.Contribution{IntentID: row.IntentID, MemberID: row.MemberID, Quantity: row.QuantityAllocated}
		}
		result, err := allocation.Allocate(allocation.Input{
			Contributions: contributions,
			TotalQuantity: order.TotalQuantity,
			UnitPrice:     priceOf(&groupPrice),
			FeeRate:       order.FacilitationFeeRate,
		})
		if err != nil {
			return allocationError(err, "reallocate group order")
		}

		fields := map[string]any{
			"unit_price_group":  groupPrice,
			"facilitation_fee":  result.FacilitationFee,
			"unit_price_market": input.UnitPriceMarket,
			"updated_at":        now,
		}
		ok, err := repo.CompareAndSet(ctx, order.ID, order.Status, order.Version, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pricing")
		}
		if !ok {
			return errLostRace
		}
		for i := range rows {
			share := result.Shares[i]
			rows[i].UnitPrice = minorUnits(share.UnitPrice)
			rows[i].Subtotal = share.Subtotal
			rows[i].FacilitationFee = share.FacilitationFee
			if err := repo.UpdateAllocationAmounts(ctx, &rows[i]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update allocation")
			}
		}
		if err := repo.UpdatePendingFee(ctx, order.ID, result.Subtotal, result.FacilitationFee, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update facilitation fee")
		}
		order.UnitPriceGroup = &groupPrice
		order.UnitPriceMarket = input.UnitPriceMarket
		order.FacilitationFee = result.FacilitationFee
		order.UpdatedAt = now
		order.Version++
		return nil
	})
	if errors.Is(err, errLostRace) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order changed while pricing, retry")
	}
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "group order priced")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, groupID, orderID uuid.UUID) (*models.GroupOrder, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group order")
	}
	if order.GroupID != groupID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group order not found")
	}
	return order, nil
}

// ListResult is one page of group orders, newest first. Cursor is empty on
// the last page.
type ListResult struct {
	Items  []models.GroupOrder
	Cursor string
}

func (s *service) List(ctx context.Context, groupID uuid.UUID, filter ListFilter) (*ListResult, error) {
	query := listQuery{Status: filter.Status, Limit: filter.Limit}
	if filter.TargetMonth != "" {
		month, err := types.ParseMonth(strings.TrimSpace(filter.TargetMonth))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "month must be YYYY-MM")
		}
		query.TargetMonth = month.String()
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown status")
	}
	if filter.Cursor != "" {
		cursor, err := pagination.Decode(filter.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, groupID, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list group orders")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

func (s *service) Allocations(ctx context.Context, groupID, orderID uuid.UUID) ([]models.MemberAllocation, error) {
	if _, err := s.Get(ctx, groupID, orderID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListAllocations(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list allocations")
	}
	return rows, nil
}

// FacilitationFees lists the group's most recent fee records.
func (s *service) FacilitationFees(ctx context.Context, groupID uuid.UUID) ([]models.FacilitationFee, error) {
	rows, err := s.repo.ListFees(ctx, groupID, feeListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list facilitation fees")
	}
	return rows, nil
}

func (s *service) findActive(ctx context.Context, groupID uuid.UUID, product, month string) (*models.GroupOrder, error) {
	order, err := s.repo.FindActiveByKey(ctx, groupID, product, month)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group order")
	}
	return order, nil
}

// resolveLostRace re-reads an order whose compare-and-set lost. Another
// caller reaching the same stage makes this call an idempotent success.
func (s *service) resolveLostRace(ctx context.Context, groupID, orderID uuid.UUID, requested enums.GroupOrderStatus) (*models.GroupOrder, error) {
	current, err := s.Get(ctx, groupID, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status == requested {
		return current, nil
	}
	return nil, invalidTransition(current.Status, requested)
}

func (s *service) release(ctx context.Context, unlock keylock.Unlock) {
	if err := unlock(); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "key lock release failed")
	}
}

func invalidTransition(from, to enums.GroupOrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move group order from %s to %s", from, to)).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": AllowedTransitions(from),
		})
}

func allocationError(err error, op string) error {
	if errors.Is(err, allocation.ErrOverflow) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order amounts are too large")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}

func validatePrices(group, market *int64) error {
	if group != nil && *group < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit_price_group must not be negative")
	}
	if market != nil && *market < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit_price_market must not be negative")
	}
	return nil
}

func contributionsOf(intents []models.PurchaseIntent) ([]allocation.Contribution, int64) {
	out := make([]allocation.Contribution, len(intents))
	var total int64
	for i, intent := range intents {
		out[i] = allocation.Contribution{IntentID: intent.ID, MemberID: intent.MemberID, Quantity: intent.QuantityUnits}
		total += intent.QuantityUnits
	}
	return out, total
}

func allocationRows(orderID uuid.UUID, result allocation.Result, now time.Time) []models.MemberAllocation {
	rows := make([]models.MemberAllocation, len(result.Shares))
	for i, share := range result.Shares {
		rows[i] = models.MemberAllocation{
			GroupOrderID:      orderID,
			MemberID:          share.MemberID,
			IntentID:          share.IntentID,
			QuantityAllocated: share.Quantity,
			UnitPrice:         minorUnits(share.UnitPrice),
			Subtotal:          share.Subtotal,
			FacilitationFee:   share.FacilitationFee,
			Status:            enums.AllocationPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}
	return rows
}

func priceOf(v *int64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromInt(*v)
	return &d
}

func minorUnits(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	v := d.Round(0).IntPart()
	return &v
}
