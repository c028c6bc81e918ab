package groups

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type groupsRepository interface {
	CreateGroup(ctx context.Context, group *models.GpoGroup) error
	UpdateGroup(ctx context.Context, group *models.GpoGroup) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*models.GpoGroup, error)
	FindGroupBySlug(ctx context.Context, slug string) (*models.GpoGroup, error)
	ListGroups(ctx context.Context, userID *uuid.UUID) ([]models.GpoGroup, error)
	CreateMember(ctx context.Context, member *models.GpoMember) error
	SaveMember(ctx context.Context, member *models.GpoMember) error
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GpoMember, error)
	FindMemberByUser(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error)
	FindRemovedMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error)
	RemoveMember(ctx context.Context, groupID, memberID uuid.UUID, at time.Time) (int64, error)
	ListThresholds(ctx context.Context, groupID uuid.UUID) ([]models.ProductThreshold, error)
	UpsertThreshold(ctx context.Context, row *models.ProductThreshold) error
	FindThreshold(ctx context.Context, groupID uuid.UUID, productName string) (*models.ProductThreshold, error)
}

// Service manages groups, membership and pooling thresholds.
type Service interface {
	CreateGroup(ctx context.Context, input CreateGroupInput) (*models.GpoGroup, error)
	UpdateGroup(ctx context.Context, groupID uuid.UUID, input UpdateGroupInput) (*models.GpoGroup, error)
	GetGroup(ctx context.Context, groupID uuid.UUID) (*models.GpoGroup, error)
	GetBySlug(ctx context.Context, slug string) (*models.GpoGroup, error)
	ListGroups(ctx context.Context, userID *uuid.UUID) ([]models.GpoGroup, error)
	AddMember(ctx context.Context, groupID uuid.UUID, input AddMemberInput) (*models.GpoMember, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GpoMember, error)
	RemoveMember(ctx context.Context, groupID, memberID uuid.UUID) error
	ResolveMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error)
	ListThresholds(ctx context.Context, groupID uuid.UUID) ([]models.ProductThreshold, error)
	SetThreshold(ctx context.Context, groupID uuid.UUID, productName string, threshold int64) (*models.ProductThreshold, error)
	Thresholds(ctx context.Context, groupID uuid.UUID) (ThresholdTable, error)
}

type service struct {
	repo             groupsRepository
	defaultThreshold int64
	defaultFeeRate   decimal.Decimal
}

// NewService builds the group service; defaults come from the GPO config.
func NewService(repo groupsRepository, cfg config.GPOConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("groups repository required")
	}
	threshold := cfg.DefaultThreshold
	if threshold <= 0 {
		return nil, fmt.Errorf("default threshold must be positive")
	}
	return &service{
		repo:             repo,
		defaultThreshold: threshold,
		defaultFeeRate:   cfg.FeeRate(),
	}, nil
}

func (s *service) CreateGroup(ctx context.Context, input CreateGroupInput) (*models.GpoGroup, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must be lowercase letters, digits and dashes")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	rate := s.defaultFeeRate
	if input.FacilitationFeeRate != nil {
		rate = *input.FacilitationFeeRate
	}
	if err := validateFeeRate(rate); err != nil {
		return nil, err
	}
	threshold := s.defaultThreshold
	if input.MinAggregationThreshold != nil {
		threshold = *input.MinAggregationThreshold
	}
	if threshold <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_aggregation_threshold must be positive")
	}

	group := &models.GpoGroup{
		Slug:                    slug,
		Name:                    name,
		Description:             input.Description,
		Tier:                    input.Tier,
		FacilitationFeeRate:     rate,
		MinAggregationThreshold: threshold,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "group slug already exists").
				WithDetails(map[string]any{"slug": slug})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group")
	}
	return group, nil
}

func (s *service) UpdateGroup(ctx context.Context, groupID uuid.UUID, input UpdateGroupInput) (*models.GpoGroup, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		group.Name = name
	}
	if input.Description != nil {
		group.Description = input.Description
	}
	if input.FacilitationFeeRate != nil {
		if err := validateFeeRate(*input.FacilitationFeeRate); err != nil {
			return nil, err
		}
		group.FacilitationFeeRate = *input.FacilitationFeeRate
	}
	if input.MinAggregationThreshold != nil {
		if *input.MinAggregationThreshold <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_aggregation_threshold must be positive")
		}
		group.MinAggregationThreshold = *input.MinAggregationThreshold
	}

	if err := s.repo.UpdateGroup(ctx, group); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group")
	}
	return group, nil
}

func (s *service) GetGroup(ctx context.Context, groupID uuid.UUID) (*models.GpoGroup, error) {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return nil, notFoundOr(err, "group not found", "load group")
	}
	return group, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*models.GpoGroup, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	group, err := s.repo.FindGroupBySlug(ctx, slug)
	if err != nil {
		return nil, notFoundOr(err, "group not found", "load group")
	}
	return group, nil
}

func (s *service) ListGroups(ctx context.Context, userID *uuid.UUID) ([]models.GpoGroup, error) {
	groups, err := s.repo.ListGroups(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}
	return groups, nil
}

func (s *service) AddMember(ctx context.Context, groupID uuid.UUID, input AddMemberInput) (*models.GpoMember, error) {
	name := strings.TrimSpace(input.InstitutionName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "institution_name is required")
	}
	if !input.InstitutionType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid institution_type")
	}
	role := input.Role
	if role == "" {
		role = enums.MemberRoleMember
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	if input.UserID != nil {
		removed, err := s.repo.FindRemovedMember(ctx, groupID, *input.UserID)
		switch {
		case err == nil:
			return s.rejoin(ctx, removed, name, role, input)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check removed member")
		}
	}

	member := &models.GpoMember{
		GroupID:         groupID,
		UserID:          input.UserID,
		InstitutionName: name,
		InstitutionType: input.InstitutionType,
		RUT:             input.RUT,
		ContactName:     input.ContactName,
		ContactEmail:    input.ContactEmail,
		ContactPhone:    input.ContactPhone,
		Role:            role,
		Active:          true,
	}
	if err := s.repo.CreateMember(ctx, member); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user is already a member of this group")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add member")
	}
	return member, nil
}

// rejoin reactivates a removed member's row for the same user.
func (s *service) rejoin(ctx context.Context, member *models.GpoMember, name string, role enums.MemberRole, input AddMemberInput) (*models.GpoMember, error) {
	member.InstitutionName = name
	member.InstitutionType = input.InstitutionType
	member.Role = role
	member.RUT = input.RUT
	member.ContactName = input.ContactName
	member.ContactEmail = input.ContactEmail
	member.ContactPhone = input.ContactPhone
	member.Active = true
	if err := s.repo.SaveMember(ctx, member); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-add member")
	}
	return member, nil
}

// RemoveMember deactivates a member and withdraws its submitted intents.
// Members with intents frozen into a group order cannot leave until those
// orders are distributed or cancelled.
func (s *service) RemoveMember(ctx context.Context, groupID, memberID uuid.UUID) error {
	pooled, err := s.repo.RemoveMember(ctx, groupID, memberID, time.Now().UTC())
	if err != nil {
		return notFoundOr(err, "member not found", "remove member")
	}
	if pooled > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "member has intents pooled into an open group order").
			WithDetails(map[string]any{"pooled_intents": pooled})
	}
	return nil
}

func (s *service) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GpoMember, error) {
	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return members, nil
}

// ResolveMember returns the caller's active membership, or nil when the user
// does not belong to the group.
func (s *service) ResolveMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error) {
	member, err := s.repo.FindMemberByUser(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve member")
	}
	return member, nil
}

func (s *service) ListThresholds(ctx context.Context, groupID uuid.UUID) ([]models.ProductThreshold, error) {
	rows, err := s.repo.ListThresholds(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list thresholds")
	}
	return rows, nil
}

func (s *service) SetThreshold(ctx context.Context, groupID uuid.UUID, productName string, threshold int64) (*models.ProductThreshold, error) {
	product := strings.TrimSpace(productName)
	if product == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_name is required")
	}
	if threshold <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold must be positive")
	}
	row := &models.ProductThreshold{GroupID: groupID, ProductName: product, Threshold: threshold}
	if err := s.repo.UpsertThreshold(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set threshold")
	}
	saved, err := s.repo.FindThreshold(ctx, groupID, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload threshold")
	}
	return saved, nil
}

func (s *service) Thresholds(ctx context.Context, groupID uuid.UUID) (ThresholdTable, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return ThresholdTable{}, err
	}
	rows, err := s.ListThresholds(ctx, groupID)
	if err != nil {
		return ThresholdTable{}, err
	}
	table := ThresholdTable{Default: group.MinAggregationThreshold, Overrides: make(map[string]int64, len(rows))}
	for _, row := range rows {
		table.Overrides[row.ProductName] = row.Threshold
	}
	return table, nil
}

func validateFeeRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "facilitation_fee_rate must be between 0 and 1")
	}
	return nil
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
