package gpo

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/internal/savings"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

type createGroupRequest struct {
	Slug                    string           `json:"slug" validate:"required,max=64,slug"`
	Name                    string           `json:"name" validate:"required,max=200"`
	Description             *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	Tier                    *string          `json:"tier,omitempty" validate:"omitempty,max=50"`
	FacilitationFeeRate     *decimal.Decimal `json:"facilitation_fee_rate,omitempty"`
	MinAggregationThreshold *int64           `json:"min_aggregation_threshold,omitempty" validate:"omitempty,gt=0"`
}

type updateGroupRequest struct {
	Name                    *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Description             *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	FacilitationFeeRate     *decimal.Decimal `json:"facilitation_fee_rate,omitempty"`
	MinAggregationThreshold *int64           `json:"min_aggregation_threshold,omitempty" validate:"omitempty,gt=0"`
}

type addMemberRequest struct {
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	InstitutionName string     `json:"institution_name" validate:"required,max=200"`
	InstitutionType string     `json:"institution_type" validate:"required,oneof=pharmacy clinic hospital ngo"`
	Role            string     `json:"role,omitempty" validate:"omitempty,oneof=admin member"`
	RUT             *string    `json:"rut,omitempty" validate:"omitempty,max=20"`
	ContactName     *string    `json:"contact_name,omitempty" validate:"omitempty,max=200"`
	ContactEmail    *string    `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone    *string    `json:"contact_phone,omitempty" validate:"omitempty,max=40"`
}

type setThresholdRequest struct {
	ProductName string `json:"product_name" validate:"required,max=200"`
	Threshold   int64  `json:"threshold" validate:"gt=0"`
}

type submitIntentRequest struct {
	ProductName   string  `json:"product_name" validate:"required,max=200"`
	QuantityUnits int64   `json:"quantity_units" validate:"gt=0,max=100000000"`
	TargetMonth   string  `json:"target_month" validate:"required,month"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type createOrderRequest struct {
	ProductName     string `json:"product_name" validate:"required,max=200"`
	TargetMonth     string `json:"target_month" validate:"required,month"`
	UnitPriceGroup  *int64 `json:"unit_price_group,omitempty" validate:"omitempty,gte=0,max=10000000000"`
	UnitPriceMarket *int64 `json:"unit_price_market,omitempty" validate:"omitempty,gte=0,max=10000000000"`
}

type advanceOrderRequest struct {
	Status string `json:"status" validate:"required"`
}

type pricingRequest struct {
	UnitPriceGroup  *int64 `json:"unit_price_group" validate:"required,gte=0,max=10000000000"`
	UnitPriceMarket *int64 `json:"unit_price_market,omitempty" validate:"omitempty,gte=0,max=10000000000"`
}

type groupDTO struct {
	ID                      uuid.UUID       `json:"id"`
	Slug                    string          `json:"slug"`
	Name                    string          `json:"name"`
	Description             *string         `json:"description,omitempty"`
	Tier                    *string         `json:"tier,omitempty"`
	FacilitationFeeRate     decimal.Decimal `json:"facilitation_fee_rate"`
	MinAggregationThreshold int64           `json:"min_aggregation_threshold"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

func toGroupDTO(g *models.GpoGroup) groupDTO {
	return groupDTO{
		ID:                      g.ID,
		Slug:                    g.Slug,
		Name:                    g.Name,
		Description:             g.Description,
		Tier:                    g.Tier,
		FacilitationFeeRate:     g.FacilitationFeeRate,
		MinAggregationThreshold: g.MinAggregationThreshold,
		CreatedAt:               g.CreatedAt,
		UpdatedAt:               g.UpdatedAt,
	}
}

type memberDTO struct {
	ID              uuid.UUID             `json:"id"`
	GroupID         uuid.UUID             `json:"group_id"`
	UserID          *uuid.UUID            `json:"user_id,omitempty"`
	InstitutionName string                `json:"institution_name"`
	InstitutionType enums.InstitutionType `json:"institution_type"`
	RUT             *string               `json:"rut,omitempty"`
	ContactName     *string               `json:"contact_name,omitempty"`
	ContactEmail    *string               `json:"contact_email,omitempty"`
	ContactPhone    *string               `json:"contact_phone,omitempty"`
	Role            enums.MemberRole      `json:"role"`
	Active          bool                  `json:"active"`
	CreatedAt       time.Time             `json:"created_at"`
}

func toMemberDTO(m *models.GpoMember) memberDTO {
	return memberDTO{
		ID:              m.ID,
		GroupID:         m.GroupID,
		UserID:          m.UserID,
		InstitutionName: m.InstitutionName,
		InstitutionType: m.InstitutionType,
		RUT:             m.RUT,
		ContactName:     m.ContactName,
		ContactEmail:    m.ContactEmail,
		ContactPhone:    m.ContactPhone,
		Role:            m.Role,
		Active:          m.Active,
		CreatedAt:       m.CreatedAt,
	}
}

type thresholdDTO struct {
	ProductName string    `json:"product_name"`
	Threshold   int64     `json:"threshold"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type thresholdsDTO struct {
	Default   int64          `json:"default"`
	Overrides []thresholdDTO `json:"overrides"`
}

func toThresholdDTO(t *models.ProductThreshold) thresholdDTO {
	return thresholdDTO{ProductName: t.ProductName, Threshold: t.Threshold, UpdatedAt: t.UpdatedAt}
}

type intentDTO struct {
	ID            uuid.UUID          `json:"id"`
	GroupID       uuid.UUID          `json:"group_id"`
	MemberID      uuid.UUID          `json:"member_id"`
	ProductName   string             `json:"product_name"`
	QuantityUnits int64              `json:"quantity_units"`
	TargetMonth   string             `json:"target_month"`
	Status        enums.IntentStatus `json:"status"`
	GroupOrderID  *uuid.UUID         `json:"group_order_id,omitempty"`
	Notes         *string            `json:"notes,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	FulfilledAt   *time.Time         `json:"fulfilled_at,omitempty"`
}

func toIntentDTO(i *models.PurchaseIntent) intentDTO {
	return intentDTO{
		ID:            i.ID,
		GroupID:       i.GroupID,
		MemberID:      i.MemberID,
		ProductName:   i.ProductName,
		QuantityUnits: i.QuantityUnits,
		TargetMonth:   i.TargetMonth,
		Status:        i.Status,
		GroupOrderID:  i.GroupOrderID,
		Notes:         i.Notes,
		CreatedAt:     i.CreatedAt,
		CancelledAt:   i.CancelledAt,
		FulfilledAt:   i.FulfilledAt,
	}
}

type orderDTO struct {
	ID                  uuid.UUID                `json:"id"`
	GroupID             uuid.UUID                `json:"group_id"`
	ProductName         string                   `json:"product_name"`
	TargetMonth         string                   `json:"target_month"`
	TotalQuantity       int64                    `json:"total_quantity"`
	MemberCount         int                      `json:"member_count"`
	UnitPriceGroup      *int64                   `json:"unit_price_group"`
	UnitPriceMarket     *int64                   `json:"unit_price_market"`
	FacilitationFeeRate decimal.Decimal          `json:"facilitation_fee_rate"`
	FacilitationFee     int64                    `json:"facilitation_fee"`
	Status              enums.GroupOrderStatus   `json:"status"`
	AllowedTransitions  []enums.GroupOrderStatus `json:"allowed_transitions"`
	Version             int64                    `json:"version"`
	ConfirmedAt         *time.Time               `json:"confirmed_at,omitempty"`
	FulfilledAt         *time.Time               `json:"fulfilled_at,omitempty"`
	DistributedAt       *time.Time               `json:"distributed_at,omitempty"`
	CancelledAt         *time.Time               `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

func toOrderDTO(o *models.GroupOrder) orderDTO {
	allowed := grouporders.AllowedTransitions(o.Status)
	if allowed == nil {
		allowed = []enums.GroupOrderStatus{}
	}
	return orderDTO{
		ID:                  o.ID,
		GroupID:             o.GroupID,
		ProductName:         o.ProductName,
		TargetMonth:         o.TargetMonth,
		TotalQuantity:       o.TotalQuantity,
		MemberCount:         o.MemberCount,
		UnitPriceGroup:      o.UnitPriceGroup,
		UnitPriceMarket:     o.UnitPriceMarket,
		FacilitationFeeRate: o.FacilitationFeeRate,
		FacilitationFee:     o.FacilitationFee,
		Status:              o.Status,
		AllowedTransitions:  allowed,
		Version:             o.Version,
		ConfirmedAt:         o.ConfirmedAt,
		FulfilledAt:         o.FulfilledAt,
		DistributedAt:       o.DistributedAt,
		CancelledAt:         o.CancelledAt,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

type orderPageDTO struct {
	Items  []orderDTO `json:"items"`
	Cursor string     `json:"cursor,omitempty"`
}

type allocationDTO struct {
	ID                uuid.UUID              `json:"id"`
	GroupOrderID      uuid.UUID              `json:"group_order_id"`
	MemberID          uuid.UUID              `json:"member_id"`
	IntentID          uuid.UUID              `json:"intent_id"`
	QuantityAllocated int64                  `json:"quantity_allocated"`
	UnitPrice         *int64                 `json:"unit_price"`
	Subtotal          int64                  `json:"subtotal"`
	FacilitationFee   int64                  `json:"facilitation_fee"`
	Status            enums.AllocationStatus `json:"status"`
}

func toAllocationDTO(a *models.MemberAllocation) allocationDTO {
	return allocationDTO{
		ID:                a.ID,
		GroupOrderID:      a.GroupOrderID,
		MemberID:          a.MemberID,
		IntentID:          a.IntentID,
		QuantityAllocated: a.QuantityAllocated,
		UnitPrice:         a.UnitPrice,
		Subtotal:          a.Subtotal,
		FacilitationFee:   a.FacilitationFee,
		Status:            a.Status,
	}
}

type facilitationFeeDTO struct {
	ID           uuid.UUID       `json:"id"`
	GroupOrderID uuid.UUID       `json:"group_order_id"`
	OrderTotal   int64           `json:"order_total"`
	FeeRate      decimal.Decimal `json:"fee_rate"`
	FeeAmount    int64           `json:"fee_amount"`
	Status       enums.FeeStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toFacilitationFeeDTO(f *models.FacilitationFee) facilitationFeeDTO {
	return facilitationFeeDTO{
		ID:           f.ID,
		GroupOrderID: f.GroupOrderID,
		OrderTotal:   f.OrderTotal,
		FeeRate:      f.FeeRate,
		FeeAmount:    f.FeeAmount,
		Status:       f.Status,
		CreatedAt:    f.CreatedAt,
	}
}

type savingsRecordDTO struct {
	GroupOrderID      uuid.UUID `json:"group_order_id"`
	AllocationID      uuid.UUID `json:"allocation_id"`
	QuantityAllocated int64     `json:"quantity_allocated"`
	UnitPriceMarket   int64     `json:"unit_price_market"`
	UnitPriceGroup    int64     `json:"unit_price_group"`
	MarketCost        int64     `json:"market_cost"`
	GroupCost         int64     `json:"group_cost"`
	TotalSavings      int64     `json:"total_savings"`
	CreatedAt         time.Time `json:"created_at"`
}

type memberSavingsDTO struct {
	savings.MemberSavings
	SavingsPercentage decimal.Decimal    `json:"savings_percentage"`
	Records           []savingsRecordDTO `json:"records"`
}

func toMemberSavingsDTO(d *savings.MemberDetail) memberSavingsDTO {
	out := memberSavingsDTO{
		MemberSavings:     d.MemberSavings,
		SavingsPercentage: d.SavingsPercentage,
		Records:           make([]savingsRecordDTO, 0, len(d.Records)),
	}
	for _, r := range d.Records {
		out.Records = append(out.Records, savingsRecordDTO{
			GroupOrderID:      r.GroupOrderID,
			AllocationID:      r.AllocationID,
			QuantityAllocated: r.QuantityAllocated,
			UnitPriceMarket:   r.UnitPriceMarket,
			UnitPriceGroup:    r.UnitPriceGroup,
			MarketCost:        r.MarketCost,
			GroupCost:         r.GroupCost,
			TotalSavings:      r.TotalSavings,
			CreatedAt:         r.CreatedAt,
		})
	}
	return out
}

func thresholdsFrom(table groups.ThresholdTable, rows []models.ProductThreshold) thresholdsDTO {
	out := thresholdsDTO{Default: table.Default, Overrides: make([]thresholdDTO, 0, len(rows))}
	for i := range rows {
		out.Overrides = append(out.Overrides, toThresholdDTO(&rows[i]))
	}
	return out
}
