// Package demand is the read-side projection of submitted intents. Nothing
// is cached: every call recomputes from the intent ledger.
package demand

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gpo-backend/internal/groups"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/types"
)

// AggregatedDemand is the pooled view of one (group, product, month) key.
type AggregatedDemand struct {
	GroupID       uuid.UUID `json:"group_id"`
	ProductName   string    `json:"product_name"`
	TargetMonth   string    `json:"target_month"`
	TotalQuantity int64     `json:"total_quantity"`
	MemberCount   int       `json:"member_count"`
	Threshold     int64     `json:"threshold"`
	ThresholdMet  bool      `json:"threshold_met"`
}

type sumReader interface {
	Sum(ctx context.Context, groupID uuid.UUID, targetMonth, productName string) ([]demandRow, error)
}

type thresholdSource interface {
	Thresholds(ctx context.Context, groupID uuid.UUID) (groups.ThresholdTable, error)
}

// Service computes aggregated demand.
type Service interface {
	Aggregate(ctx context.Context, groupID uuid.UUID, targetMonth string) ([]AggregatedDemand, error)
	ForKey(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (AggregatedDemand, error)
}

type service struct {
	repo       sumReader
	thresholds thresholdSource
}

func NewService(repo sumReader, thresholds thresholdSource) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("demand repository required")
	}
	if thresholds == nil {
		return nil, fmt.Errorf("threshold source required")
	}
	return &service{repo: repo, thresholds: thresholds}, nil
}

func (s *service) Aggregate(ctx context.Context, groupID uuid.UUID, targetMonth string) ([]AggregatedDemand, error) {
	month, err := parseMonth(targetMonth)
	if err != nil {
		return nil, err
	}
	table, err := s.thresholds.Thresholds(ctx, groupID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Sum(ctx, groupID, month, "")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate demand")
	}
	out := make([]AggregatedDemand, 0, len(rows))
	for _, row := range rows {
		out = append(out, build(groupID, month, row, table))
	}
	return out, nil
}

// ForKey returns the demand of a single product. A product with no submitted
// intents yields a zero aggregate that does not meet its threshold.
func (s *service) ForKey(ctx context.Context, groupID uuid.UUID, productName, targetMonth string) (AggregatedDemand, error) {
	month, err := parseMonth(targetMonth)
	if err != nil {
		return AggregatedDemand{}, err
	}
	product := strings.TrimSpace(productName)
	if product == "" {
		return AggregatedDemand{}, pkgerrors.New(pkgerrors.CodeValidation, "product_name is required")
	}
	table, err := s.thresholds.Thresholds(ctx, groupID)
	if err != nil {
		return AggregatedDemand{}, err
	}
	rows, err := s.repo.Sum(ctx, groupID, month, product)
	if err != nil {
		return AggregatedDemand{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate demand")
	}
	row := demandRow{ProductName: product}
	if len(rows) > 0 {
		row = rows[0]
	}
	return build(groupID, month, row, table), nil
}

func build(groupID uuid.UUID, month string, row demandRow, table groups.ThresholdTable) AggregatedDemand {
	threshold := table.For(row.ProductName)
	return AggregatedDemand{
		GroupID:       groupID,
		ProductName:   row.ProductName,
		TargetMonth:   month,
		TotalQuantity: row.TotalQuantity,
		MemberCount:   row.MemberCount,
		Threshold:     threshold,
		ThresholdMet:  row.TotalQuantity > 0 && row.TotalQuantity >= threshold,
	}
}

func parseMonth(value string) (string, error) {
	month, err := types.ParseMonth(strings.TrimSpace(value))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "month must be YYYY-MM")
	}
	return month.String(), nil
}
