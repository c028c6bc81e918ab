package intents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/keylock"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
	"github.com/angelmondragon/gpo-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubmitInput is a member's declared need for a product in a month.
type SubmitInput struct {
	ProductName   string
	QuantityUnits int64
	TargetMonth   string
	Notes         *string
}

// Service is the intent ledger: submit, cancel and list.
type Service interface {
	Submit(ctx context.Context, member *models.GpoMember, input SubmitInput) (*models.PurchaseIntent, error)
	Cancel(ctx context.Context, member *models.GpoMember, intentID uuid.UUID) (*models.PurchaseIntent, error)
	List(ctx context.Context, member *models.GpoMember, targetMonth string) ([]models.PurchaseIntent, error)
}

// ServiceParams wires the intent ledger.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Locker  keylock.Locker
	Logger  *logger.Logger
	Metrics *metrics.GPOMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	locker  keylock.Locker
	logg    *logger.Logger
	metrics *metrics.GPOMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("intents repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("key locker required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		locker:  params.Locker,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Submit(ctx context.Context, member *models.GpoMember, input SubmitInput) (*models.PurchaseIntent, error) {
	if member == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "group membership required")
	}
	product := strings.TrimSpace(input.ProductName)
	if product == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_name is required")
	}
	if input.QuantityUnits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity_units must be positive")
	}
	now := s.now().UTC()
	month, err := types.ParseMonth(strings.TrimSpace(input.TargetMonth))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "target_month must be YYYY-MM")
	}
	if month.Before(types.MonthOf(now)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target_month must be the current or a future month").
			WithDetails(map[string]any{"target_month": month.String(), "current_month": types.MonthOf(now).String()})
	}

	unlock, err := s.locker.Lock(ctx, keylock.Key(member.GroupID, product, month.String()))
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, unlock)

	intent := &models.PurchaseIntent{
		GroupID:       member.GroupID,
		MemberID:      member.ID,
		ProductName:   product,
		QuantityUnits: input.QuantityUnits,
		TargetMonth:   month.String(),
		Status:        enums.IntentStatusSubmitted,
		Notes:         input.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindActive(ctx, member.ID, product, month.String())
		switch {
		case err == nil:
			return duplicateIntent(existing)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing intent")
		}
		pooled, err := repo.ActiveOrderExists(ctx, member.GroupID, product, month.String())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check group order")
		}
		if pooled {
			return alreadyPooled(product, month.String())
		}
		if err := repo.Create(ctx, intent); err != nil {
			if db.IsUniqueViolation(err, "") {
				return duplicateIntent(nil)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create intent")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IntentSubmitted()
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"intent_id":    intent.ID.String(),
			"product_name": product,
			"target_month": intent.TargetMonth,
		})
		s.logg.Info(logCtx, "purchase intent submitted")
	}
	return intent, nil
}

func (s *service) Cancel(ctx context.Context, member *models.GpoMember, intentID uuid.UUID) (*models.PurchaseIntent, error) {
	if member == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "group membership required")
	}
	intent, err := s.repo.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
	}
	if intent.GroupID != member.GroupID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "intent not found")
	}
	if intent.MemberID != member.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owning member can cancel an intent")
	}

	unlock, err := s.locker.Lock(ctx, keylock.Key(intent.GroupID, intent.ProductName, intent.TargetMonth))
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, unlock)

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, intentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload intent")
		}
		if current.Status != enums.IntentStatusSubmitted {
			return pkgerrors.New(pkgerrors.CodeConflict, "intent can no longer be cancelled").
				WithDetails(map[string]any{"status": current.Status})
		}
		pooled, err := repo.ActiveOrderExists(ctx, current.GroupID, current.ProductName, current.TargetMonth)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check group order")
		}
		if pooled {
			return alreadyPooled(current.ProductName, current.TargetMonth)
		}
		ok, err := repo.MarkCancelled(ctx, intentID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel intent")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "intent can no longer be cancelled")
		}
		intent = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	intent.Status = enums.IntentStatusCancelled
	intent.CancelledAt = &now
	intent.UpdatedAt = now
	s.metrics.IntentCancelled()
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "intent_id", intentID.String()), "purchase intent cancelled")
	}
	return intent, nil
}

func (s *service) List(ctx context.Context, member *models.GpoMember, targetMonth string) ([]models.PurchaseIntent, error) {
	if member == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "group membership required")
	}
	targetMonth = strings.TrimSpace(targetMonth)
	if targetMonth != "" {
		if _, err := types.ParseMonth(targetMonth); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "month must be YYYY-MM")
		}
	}
	rows, err := s.repo.ListByMember(ctx, member.GroupID, member.ID, targetMonth)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list intents")
	}
	return rows, nil
}

func (s *service) release(ctx context.Context, unlock keylock.Unlock) {
	if err := unlock(); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "key lock release failed")
	}
}

func duplicateIntent(existing *models.PurchaseIntent) error {
	e := pkgerrors.New(pkgerrors.CodeConflict, "an active intent already exists for this product and month")
	if existing != nil {
		return e.WithDetails(map[string]any{"intent_id": existing.ID})
	}
	return e
}

// alreadyPooled rejects writes to a key whose intents are frozen into a
// non-cancelled group order.
func alreadyPooled(product, month string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order already aggregated for this product and month").
		WithDetails(map[string]any{"product_name": product, "target_month": month})
}
