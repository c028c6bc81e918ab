package savings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gpo-backend/internal/allocation"
	"github.com/angelmondragon/gpo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

func ptr(v int64) *int64 { return &v }

func TestComputeFloorsAtZero(t *testing.T) {
	order := &models.GroupOrder{ID: uuid.New(), GroupID: uuid.New(), UnitPriceGroup: ptr(1200), UnitPriceMarket: ptr(1500)}
	alloc := models.MemberAllocation{ID: uuid.New(), MemberID: uuid.New(), QuantityAllocated: 300}

	rec, err := Compute(order, alloc)
	require.NoError(t, err)
	assert.EqualValues(t, 450000, rec.MarketCost)
	assert.EqualValues(t, 360000, rec.GroupCost)
	assert.EqualValues(t, 90000, rec.TotalSavings)
	assert.Equal(t, alloc.ID, rec.AllocationID)

	order.UnitPriceMarket = ptr(1000)
	rec, err = Compute(order, alloc)
	require.NoError(t, err)
	assert.Zero(t, rec.TotalSavings)

	order.UnitPriceMarket = nil
	rec, err = Compute(order, alloc)
	require.NoError(t, err)
	assert.Zero(t, rec.TotalSavings)
	assert.EqualValues(t, 1200, rec.UnitPriceMarket)
}

func TestComputeRejectsOverflowingCosts(t *testing.T) {
	order := &models.GroupOrder{ID: uuid.New(), GroupID: uuid.New(), UnitPriceGroup: ptr(1200), UnitPriceMarket: ptr(100_000_000)}
	alloc := models.MemberAllocation{ID: uuid.New(), MemberID: uuid.New(), QuantityAllocated: 1_000_000_000_000}

	_, err := Compute(order, alloc)
	require.Error(t, err)
	assert.ErrorIs(t, err, allocation.ErrOverflow)
}

func TestPercentage(t *testing.T) {
	assert.True(t, Percentage(90000, 450000).Equal(decimal.RequireFromString("20")))
	assert.True(t, Percentage(1, 3).Equal(decimal.RequireFromString("33.3")))
	assert.True(t, Percentage(10, 0).IsZero())
}

func TestRecordTxWritesOncePerAllocation(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	group := models.GpoGroup{Slug: "norte", Name: "Norte", FacilitationFeeRate: decimal.RequireFromString("0.02"), MinAggregationThreshold: 100}
	require.NoError(t, conn.Create(&group).Error)
	a := models.GpoMember{GroupID: group.ID, InstitutionName: "Farmacia A", InstitutionType: enums.InstitutionPharmacy, Role: enums.MemberRoleMember, Active: true}
	b := models.GpoMember{GroupID: group.ID, InstitutionName: "Clinica B", InstitutionType: enums.InstitutionClinic, Role: enums.MemberRoleMember, Active: true}
	require.NoError(t, conn.Create(&a).Error)
	require.NoError(t, conn.Create(&b).Error)

	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)

	order := &models.GroupOrder{ID: uuid.New(), GroupID: group.ID, UnitPriceGroup: ptr(1200), UnitPriceMarket: ptr(1500)}
	allocations := []models.MemberAllocation{
		{ID: uuid.New(), MemberID: a.ID, QuantityAllocated: 300},
		{ID: uuid.New(), MemberID: b.ID, QuantityAllocated: 250},
	}

	first, err := svc.RecordTx(ctx, conn, order, allocations)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.EqualValues(t, 165000, first.TotalSavings)

	second, err := svc.RecordTx(ctx, conn, order, allocations)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)

	var count int64
	require.NoError(t, conn.Model(&models.SavingsRecord{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	summary, err := svc.GroupSummary(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, a.ID, summary[0].MemberID)
	assert.Equal(t, "Farmacia A", summary[0].InstitutionName)
	assert.EqualValues(t, 90000, summary[0].TotalSavings)
	assert.EqualValues(t, 1, summary[0].TotalOrders)
	assert.EqualValues(t, 75000, summary[1].TotalSavings)

	detail, err := svc.MemberDetail(ctx, group.ID, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 250, detail.TotalQuantity)
	assert.EqualValues(t, 375000, detail.MarketCost)
	assert.True(t, detail.SavingsPercentage.Equal(decimal.RequireFromString("20")))
	require.Len(t, detail.Records, 1)

	empty, err := svc.GroupSummary(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
