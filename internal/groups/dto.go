package groups

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// CreateGroupInput carries a new group's attributes. Zero rate or threshold
// falls back to the configured defaults.
type CreateGroupInput struct {
	Slug                    string
	Name                    string
	Description             *string
	Tier                    *string
	FacilitationFeeRate     *decimal.Decimal
	MinAggregationThreshold *int64
}

// UpdateGroupInput lists the mutable group fields; nil leaves a field as is.
type UpdateGroupInput struct {
	Name                    *string
	Description             *string
	FacilitationFeeRate     *decimal.Decimal
	MinAggregationThreshold *int64
}

// AddMemberInput describes an institution joining a group.
type AddMemberInput struct {
	UserID          *uuid.UUID
	InstitutionName string
	InstitutionType enums.InstitutionType
	Role            enums.MemberRole
	RUT             *string
	ContactName     *string
	ContactEmail    *string
	ContactPhone    *string
}

// ThresholdTable resolves the pooling minimum for each product of a group.
type ThresholdTable struct {
	Default   int64
	Overrides map[string]int64
}

// For returns the product override or the group default.
func (t ThresholdTable) For(productName string) int64 {
	if v, ok := t.Overrides[productName]; ok {
		return v
	}
	return t.Default
}
