package demand

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/internal/intents"
	"github.com/angelmondragon/gpo-backend/internal/keylock"
	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
)

type fixture struct {
	demand  Service
	intents intents.Service
	groups  groups.Service
	group   *models.GpoGroup
	members []*models.GpoMember
}

func newFixture(t *testing.T, memberCount int) *fixture {
	t.Helper()
	conn := dbtest.Open(t)

	groupSvc, err := groups.NewService(groups.NewRepository(conn), config.GPOConfig{DefaultThreshold: 100, DefaultFeeRate: "0.02"})
	require.NoError(t, err)
	threshold := int64(500)
	rate := decimal.RequireFromString("0.03")
	group, err := groupSvc.CreateGroup(context.Background(), groups.CreateGroupInput{
		Slug: "sur", Name: "Sur", FacilitationFeeRate: &rate, MinAggregationThreshold: &threshold,
	})
	require.NoError(t, err)

	members := make([]*models.GpoMember, 0, memberCount)
	for i := 0; i < memberCount; i++ {
		m, err := groupSvc.AddMember(context.Background(), group.ID, groups.AddMemberInput{
			InstitutionName: "Farmacia " + string(rune('A'+i)),
			InstitutionType: enums.InstitutionPharmacy,
		})
		require.NoError(t, err)
		members = append(members, m)
	}

	intentSvc, err := intents.NewService(intents.ServiceParams{
		Repo:   intents.NewRepository(conn),
		Tx:     db.Wrap(conn),
		Locker: keylock.NewLocalLocker(),
		Now:    func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	demandSvc, err := NewService(NewRepository(conn), groupSvc)
	require.NoError(t, err)
	return &fixture{demand: demandSvc, intents: intentSvc, groups: groupSvc, group: group, members: members}
}

func TestAggregateInsulinScenario(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.intents.Submit(ctx, f.members[0], intents.SubmitInput{ProductName: "Insulina NPH", QuantityUnits: 300, TargetMonth: "2026-03"})
	require.NoError(t, err)

	d, err := f.demand.ForKey(ctx, f.group.ID, "Insulina NPH", "2026-03")
	require.NoError(t, err)
	assert.EqualValues(t, 300, d.TotalQuantity)
	assert.False(t, d.ThresholdMet)

	_, err = f.intents.Submit(ctx, f.members[1], intents.SubmitInput{ProductName: "Insulina NPH", QuantityUnits: 250, TargetMonth: "2026-03"})
	require.NoError(t, err)

	rows, err := f.demand.Aggregate(ctx, f.group.ID, "2026-03")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 550, rows[0].TotalQuantity)
	assert.Equal(t, 2, rows[0].MemberCount)
	assert.EqualValues(t, 500, rows[0].Threshold)
	assert.True(t, rows[0].ThresholdMet)
}

func TestAggregateUsesProductThreshold(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.groups.SetThreshold(ctx, f.group.ID, "Metformina", 40)
	require.NoError(t, err)
	_, err = f.intents.Submit(ctx, f.members[0], intents.SubmitInput{ProductName: "Metformina", QuantityUnits: 40, TargetMonth: "2026-03"})
	require.NoError(t, err)
	_, err = f.intents.Submit(ctx, f.members[0], intents.SubmitInput{ProductName: "Losartan", QuantityUnits: 40, TargetMonth: "2026-03"})
	require.NoError(t, err)

	rows, err := f.demand.Aggregate(ctx, f.group.ID, "2026-03")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Losartan", rows[0].ProductName)
	assert.False(t, rows[0].ThresholdMet)
	assert.Equal(t, "Metformina", rows[1].ProductName)
	assert.True(t, rows[1].ThresholdMet)
}

func TestForKeyWithoutIntents(t *testing.T) {
	f := newFixture(t, 1)
	d, err := f.demand.ForKey(context.Background(), f.group.ID, "Insulina NPH", "2026-03")
	require.NoError(t, err)
	assert.Zero(t, d.TotalQuantity)
	assert.False(t, d.ThresholdMet)

	_, err = f.demand.Aggregate(context.Background(), f.group.ID, "03-2026")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

// Random submit/cancel sequences: the projection always equals the sum of
// currently submitted intents.
func TestAggregateTracksSubmittedIntents(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	live := map[int]*models.PurchaseIntent{}
	for step := 0; step < 60; step++ {
		idx := rng.Intn(len(f.members))
		if intent, ok := live[idx]; ok && rng.Intn(2) == 0 {
			_, err := f.intents.Cancel(ctx, f.members[idx], intent.ID)
			require.NoError(t, err)
			delete(live, idx)
		} else if !ok {
			intent, err := f.intents.Submit(ctx, f.members[idx], intents.SubmitInput{
				ProductName:   "Insulina NPH",
				QuantityUnits: int64(rng.Intn(100) + 1),
				TargetMonth:   "2026-03",
			})
			require.NoError(t, err)
			live[idx] = intent
		}

		var want int64
		for _, intent := range live {
			want += intent.QuantityUnits
		}
		got, err := f.demand.ForKey(ctx, f.group.ID, "Insulina NPH", "2026-03")
		require.NoError(t, err)
		assert.Equal(t, want, got.TotalQuantity, "step %d", step)
		assert.Equal(t, len(live), got.MemberCount, "step %d", step)
	}
}
