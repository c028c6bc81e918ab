package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/types"
)

const poolingJobName = "order-pooling"

// PoolingJobParams configure the automatic order pooling job.
type PoolingJobParams struct {
	Logger    *logger.Logger
	Groups    groupLister
	Demand    demandAggregator
	Orders    orderCreator
	Lookahead int
}

type groupLister interface {
	ListGroups(ctx context.Context, userID *uuid.UUID) ([]models.GpoGroup, error)
}

type demandAggregator interface {
	Aggregate(ctx context.Context, groupID uuid.UUID, targetMonth string) ([]demand.AggregatedDemand, error)
}

type orderCreator interface {
	Create(ctx context.Context, groupID uuid.UUID, input grouporders.CreateInput) (*models.GroupOrder, bool, error)
}

// NewPoolingJob builds the job that turns threshold-met demand into group orders.
func NewPoolingJob(params PoolingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Groups == nil {
		return nil, fmt.Errorf("group lister required")
	}
	if params.Demand == nil {
		return nil, fmt.Errorf("demand aggregator required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order creator required")
	}
	lookahead := params.Lookahead
	if lookahead < 0 {
		lookahead = 0
	}
	return &poolingJob{
		logg:      params.Logger,
		groups:    params.Groups,
		demand:    params.Demand,
		orders:    params.Orders,
		lookahead: lookahead,
		now:       time.Now,
	}, nil
}

type poolingJob struct {
	logg      *logger.Logger
	groups    groupLister
	demand    demandAggregator
	orders    orderCreator
	lookahead int
	now       func() time.Time
}

func (j *poolingJob) Name() string { return poolingJobName }

func (j *poolingJob) Run(ctx context.Context) error {
	groups, err := j.groups.ListGroups(ctx, nil)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	current := types.MonthOf(j.now())
	var errs error
	created := 0
	for _, group := range groups {
		for offset := 0; offset <= j.lookahead; offset++ {
			month := current.AddMonths(offset).String()
			n, err := j.poolMonth(ctx, group.ID, month)
			created += n
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("group %s month %s: %w", group.Slug, month, err))
			}
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"groups":         len(groups),
		"orders_created": created,
	})
	j.logg.Info(logCtx, "order pooling loop complete")
	return errs
}

func (j *poolingJob) poolMonth(ctx context.Context, groupID uuid.UUID, month string) (int, error) {
	rows, err := j.demand.Aggregate(ctx, groupID, month)
	if err != nil {
		return 0, err
	}
	var errs error
	created := 0
	for _, row := range rows {
		if !row.ThresholdMet {
			continue
		}
		order, isNew, err := j.orders.Create(ctx, groupID, grouporders.CreateInput{
			ProductName: row.ProductName,
			TargetMonth: month,
		})
		if err != nil {
			// demand can drop below the threshold between read and create
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("create %q: %w", row.ProductName, err))
			continue
		}
		if isNew {
			created++
			logCtx := j.logg.WithOrderID(j.logg.WithGroupID(ctx, groupID.String()), order.ID.String())
			j.logg.Info(logCtx, "group order pooled")
		}
	}
	return created, errs
}
