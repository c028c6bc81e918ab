package groups

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)), config.GPOConfig{DefaultThreshold: 100, DefaultFeeRate: "0.02"})
	require.NoError(t, err)
	return svc
}

func TestCreateGroupAppliesDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "Farmacias-Sur", Name: "Farmacias del Sur"})
	require.NoError(t, err)
	assert.Equal(t, "farmacias-sur", group.Slug)
	assert.EqualValues(t, 100, group.MinAggregationThreshold)
	assert.True(t, group.FacilitationFeeRate.Equal(decimal.RequireFromString("0.02")))

	loaded, err := svc.GetBySlug(ctx, "farmacias-sur")
	require.NoError(t, err)
	assert.Equal(t, group.ID, loaded.ID)
}

func TestCreateGroupRejectsDuplicateSlug(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "norte", Name: "Norte"})
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, CreateGroupInput{Slug: "norte", Name: "Otro"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCreateGroupValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	badRate := decimal.RequireFromString("1.5")
	zero := int64(0)

	cases := map[string]CreateGroupInput{
		"bad slug":       {Slug: "no spaces", Name: "x"},
		"missing name":   {Slug: "ok"},
		"rate above one": {Slug: "ok", Name: "x", FacilitationFeeRate: &badRate},
		"zero threshold": {Slug: "ok", Name: "x", MinAggregationThreshold: &zero},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateGroup(ctx, input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestUpdateGroupChangesRateAndThreshold(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	group, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "centro", Name: "Centro"})
	require.NoError(t, err)

	rate := decimal.RequireFromString("0.035")
	threshold := int64(250)
	updated, err := svc.UpdateGroup(ctx, group.ID, UpdateGroupInput{FacilitationFeeRate: &rate, MinAggregationThreshold: &threshold})
	require.NoError(t, err)
	assert.True(t, updated.FacilitationFeeRate.Equal(rate))
	assert.EqualValues(t, 250, updated.MinAggregationThreshold)
	assert.Equal(t, "centro", updated.Slug)

	_, err = svc.UpdateGroup(ctx, uuid.New(), UpdateGroupInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMembersAndResolve(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	group, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "sur", Name: "Sur"})
	require.NoError(t, err)
	other, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "otro", Name: "Otro"})
	require.NoError(t, err)

	userID := uuid.New()
	member, err := svc.AddMember(ctx, group.ID, AddMemberInput{
		UserID:          &userID,
		InstitutionName: "Farmacia Comunal Sur",
		InstitutionType: enums.InstitutionPharmacy,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.MemberRoleMember, member.Role)

	_, err = svc.AddMember(ctx, group.ID, AddMemberInput{UserID: &userID, InstitutionName: "dup", InstitutionType: enums.InstitutionClinic})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.AddMember(ctx, group.ID, AddMemberInput{InstitutionName: "x", InstitutionType: "bakery"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	resolved, err := svc.ResolveMember(ctx, group.ID, userID)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, member.ID, resolved.ID)

	none, err := svc.ResolveMember(ctx, other.ID, userID)
	require.NoError(t, err)
	assert.Nil(t, none)

	mine, err := svc.ListGroups(ctx, &userID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, group.ID, mine[0].ID)

	all, err := svc.ListGroups(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	members, err := svc.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestThresholdOverrides(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	group, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "oeste", Name: "Oeste"})
	require.NoError(t, err)

	_, err = svc.SetThreshold(ctx, group.ID, "Insulina NPH", 500)
	require.NoError(t, err)
	row, err := svc.SetThreshold(ctx, group.ID, " Insulina NPH ", 450)
	require.NoError(t, err)
	assert.EqualValues(t, 450, row.Threshold)

	rows, err := svc.ListThresholds(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	table, err := svc.Thresholds(ctx, group.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 450, table.For("Insulina NPH"))
	assert.EqualValues(t, 100, table.For("Metformina"))

	_, err = svc.SetThreshold(ctx, group.ID, "Metformina", 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRemoveMember(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), config.GPOConfig{DefaultThreshold: 100, DefaultFeeRate: "0.02"})
	require.NoError(t, err)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, CreateGroupInput{Slug: "sur", Name: "Sur"})
	require.NoError(t, err)
	userA, userB := uuid.New(), uuid.New()
	memberA, err := svc.AddMember(ctx, group.ID, AddMemberInput{UserID: &userA, InstitutionName: "Farmacia A", InstitutionType: enums.InstitutionPharmacy})
	require.NoError(t, err)
	memberB, err := svc.AddMember(ctx, group.ID, AddMemberInput{UserID: &userB, InstitutionName: "Clinica B", InstitutionType: enums.InstitutionClinic})
	require.NoError(t, err)

	orderID := uuid.New()
	open := &models.PurchaseIntent{GroupID: group.ID, MemberID: memberA.ID, ProductName: "Losartan", QuantityUnits: 40, TargetMonth: "2026-03", Status: enums.IntentStatusSubmitted}
	pooled := &models.PurchaseIntent{GroupID: group.ID, MemberID: memberB.ID, ProductName: "Losartan", QuantityUnits: 60, TargetMonth: "2026-03", Status: enums.IntentStatusAggregated, GroupOrderID: &orderID}
	require.NoError(t, conn.Create(open).Error)
	require.NoError(t, conn.Create(pooled).Error)

	err = svc.RemoveMember(ctx, group.ID, memberB.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	stillThere, err := svc.ResolveMember(ctx, group.ID, userB)
	require.NoError(t, err)
	assert.NotNil(t, stillThere, "a refused removal changes nothing")

	require.NoError(t, svc.RemoveMember(ctx, group.ID, memberA.ID))

	var withdrawn models.PurchaseIntent
	require.NoError(t, conn.First(&withdrawn, "id = ?", open.ID).Error)
	assert.Equal(t, enums.IntentStatusCancelled, withdrawn.Status)
	require.NotNil(t, withdrawn.CancelledAt)

	gone, err := svc.ResolveMember(ctx, group.ID, userA)
	require.NoError(t, err)
	assert.Nil(t, gone)
	members, err := svc.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, memberB.ID, members[0].ID)

	err = svc.RemoveMember(ctx, group.ID, memberA.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "already removed")
	err = svc.RemoveMember(ctx, uuid.New(), memberB.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "member of another group")

	back, err := svc.AddMember(ctx, group.ID, AddMemberInput{UserID: &userA, InstitutionName: "Farmacia A Centro", InstitutionType: enums.InstitutionPharmacy})
	require.NoError(t, err)
	assert.Equal(t, memberA.ID, back.ID, "re-adding a removed user reuses the membership")
	assert.True(t, back.Active)
	assert.Equal(t, "Farmacia A Centro", back.InstitutionName)
}
