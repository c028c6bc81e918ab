// Package savings records what each member saved by buying through the
// group instead of at the prevailing retail price.
package savings

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/allocation"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
)

// MemberSavings is the rollup of one member's savings records.
type MemberSavings struct {
	MemberID        uuid.UUID `json:"member_id"`
	InstitutionName string    `json:"institution_name"`
	TotalOrders     int       `json:"total_orders"`
	TotalQuantity   int64     `json:"total_quantity"`
	MarketCost      int64     `json:"market_cost"`
	GroupCost       int64     `json:"group_cost"`
	TotalSavings    int64     `json:"total_savings"`
}

// MemberDetail adds the savings percentage and the individual records.
type MemberDetail struct {
	MemberSavings
	SavingsPercentage decimal.Decimal        `json:"savings_percentage"`
	Records           []models.SavingsRecord `json:"records"`
}

// Summary reports what a RecordTx call wrote.
type Summary struct {
	Inserted     int
	TotalSavings int64
}

// Service is the savings ledger.
type Service interface {
	RecordTx(ctx context.Context, tx *gorm.DB, order *models.GroupOrder, allocations []models.MemberAllocation) (Summary, error)
	GroupSummary(ctx context.Context, groupID uuid.UUID) ([]MemberSavings, error)
	MemberDetail(ctx context.Context, groupID, memberID uuid.UUID) (*MemberDetail, error)
}

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

type service struct {
	repo    Repository
	metrics *metrics.GPOMetrics
}

func NewService(repo Repository, m *metrics.GPOMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("savings repository required")
	}
	return &service{repo: repo, metrics: m}, nil
}

// Compute derives the saving of one allocation: (market - group) x quantity,
// floored at zero. A missing market price counts as no saving. Costs that do
// not fit in int64 minor units are an error.
func Compute(order *models.GroupOrder, alloc models.MemberAllocation) (models.SavingsRecord, error) {
	var groupPrice int64
	if order.UnitPriceGroup != nil {
		groupPrice = *order.UnitPriceGroup
	}
	marketPrice := groupPrice
	if order.UnitPriceMarket != nil {
		marketPrice = *order.UnitPriceMarket
	}
	qty := alloc.QuantityAllocated
	marketCost, err := cost(marketPrice, qty)
	if err != nil {
		return models.SavingsRecord{}, fmt.Errorf("market cost of allocation %s: %w", alloc.ID, err)
	}
	groupCost, err := cost(groupPrice, qty)
	if err != nil {
		return models.SavingsRecord{}, fmt.Errorf("group cost of allocation %s: %w", alloc.ID, err)
	}
	saved := marketCost - groupCost
	if saved < 0 {
		saved = 0
	}
	return models.SavingsRecord{
		GroupID:           order.GroupID,
		MemberID:          alloc.MemberID,
		GroupOrderID:      order.ID,
		AllocationID:      alloc.ID,
		QuantityAllocated: qty,
		UnitPriceMarket:   marketPrice,
		UnitPriceGroup:    groupPrice,
		MarketCost:        marketCost,
		GroupCost:         groupCost,
		TotalSavings:      saved,
	}, nil
}

func cost(price, qty int64) (int64, error) {
	total := decimal.NewFromInt(price).Mul(decimal.NewFromInt(qty))
	if total.GreaterThan(maxMinorUnits) || total.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("%s: %w", total, allocation.ErrOverflow)
	}
	return total.IntPart(), nil
}

// RecordTx writes one record per allocation inside tx. Allocations that
// already carry a record are skipped, so repeated calls are no-ops.
func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, order *models.GroupOrder, allocations []models.MemberAllocation) (Summary, error) {
	if order == nil {
		return Summary{}, fmt.Errorf("order required")
	}
	repo := s.repo.WithTx(tx)
	var summary Summary
	for _, alloc := range allocations {
		record, err := Compute(order, alloc)
		if err != nil {
			return Summary{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute savings")
		}
		inserted, err := repo.InsertIfAbsent(ctx, &record)
		if err != nil {
			return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record savings")
		}
		if inserted {
			summary.Inserted++
			summary.TotalSavings += record.TotalSavings
		}
	}
	s.metrics.SavingsRecorded(summary.Inserted)
	return summary, nil
}

func (s *service) GroupSummary(ctx context.Context, groupID uuid.UUID) ([]MemberSavings, error) {
	rows, err := s.repo.GroupTotals(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "group savings")
	}
	return rows, nil
}

func (s *service) MemberDetail(ctx context.Context, groupID, memberID uuid.UUID) (*MemberDetail, error) {
	totals, err := s.repo.MemberTotals(ctx, groupID, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member savings")
	}
	records, err := s.repo.ListByMember(ctx, groupID, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member savings records")
	}
	return &MemberDetail{
		MemberSavings:     totals,
		SavingsPercentage: Percentage(totals.TotalSavings, totals.MarketCost),
		Records:           records,
	}, nil
}

// Percentage returns saved/market x 100 rounded to one decimal.
func Percentage(saved, marketCost int64) decimal.Decimal {
	if marketCost <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(saved).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(marketCost)).
		Round(1)
}
