package allocation

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func contribution(member string, qty int64) Contribution {
	return Contribution{IntentID: uuid.New(), MemberID: uuid.MustParse(member), Quantity: qty}
}

const (
	memberA = "00000000-0000-0000-0000-00000000000a"
	memberB = "00000000-0000-0000-0000-00000000000b"
	memberC = "00000000-0000-0000-0000-00000000000c"
)

func sums(r Result) (qty, subtotal, fee int64) {
	for _, s := range r.Shares {
		qty += s.Quantity
		subtotal += s.Subtotal
		fee += s.FacilitationFee
	}
	return
}

func TestAllocateInsulinScenario(t *testing.T) {
	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 300), contribution(memberB, 250)},
		TotalQuantity: 550,
		UnitPrice:     price("1200"),
		FeeRate:       decimal.RequireFromString("0.03"),
	})
	require.NoError(t, err)
	require.Len(t, res.Shares, 2)

	assert.EqualValues(t, 360000, res.Shares[0].Subtotal)
	assert.EqualValues(t, 10800, res.Shares[0].FacilitationFee)
	assert.EqualValues(t, 300000, res.Shares[1].Subtotal)
	assert.EqualValues(t, 9000, res.Shares[1].FacilitationFee)
	assert.EqualValues(t, 660000, res.Subtotal)
	assert.EqualValues(t, 19800, res.FacilitationFee)

	qty, subtotal, fee := sums(res)
	assert.EqualValues(t, 550, qty)
	assert.Equal(t, res.Subtotal, subtotal)
	assert.Equal(t, res.FacilitationFee, fee)
}

func TestAllocateWithoutPriceLeavesMoneyZero(t *testing.T) {
	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 3), contribution(memberB, 4)},
		TotalQuantity: 7,
		FeeRate:       decimal.RequireFromString("0.05"),
	})
	require.NoError(t, err)
	for _, s := range res.Shares {
		assert.Nil(t, s.UnitPrice)
		assert.Zero(t, s.Subtotal)
		assert.Zero(t, s.FacilitationFee)
	}
	assert.Zero(t, res.Subtotal)
}

func TestAllocateFractionalPriceReconciles(t *testing.T) {
	// 3 x 33.335 = 100.005 per member; total 300.015 rounds to 300
	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 3), contribution(memberB, 3), contribution(memberC, 3)},
		TotalQuantity: 9,
		UnitPrice:     price("33.335"),
		FeeRate:       decimal.RequireFromString("0.1"),
	})
	require.NoError(t, err)

	_, subtotal, fee := sums(res)
	assert.EqualValues(t, 300, res.Subtotal)
	assert.Equal(t, res.Subtotal, subtotal)
	assert.EqualValues(t, 30, res.FacilitationFee)
	assert.Equal(t, res.FacilitationFee, fee)
}

func TestAllocateResidualGoesToLargestRemainder(t *testing.T) {
	// exact subtotals 1.5, 2.5 and 3.0; target round(7.0)=7; floors sum 6
	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 3), contribution(memberB, 5), contribution(memberC, 6)},
		TotalQuantity: 14,
		UnitPrice:     price("0.5"),
		FeeRate:       decimal.Zero,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 7, res.Subtotal)
	// remainders tie at .5; the larger quantity wins
	assert.EqualValues(t, 1, res.Shares[0].Subtotal)
	assert.EqualValues(t, 3, res.Shares[1].Subtotal)
	assert.EqualValues(t, 3, res.Shares[2].Subtotal)
}

func TestAllocateTieBreaksOnMemberID(t *testing.T) {
	// equal quantities and remainders: the lower member id takes the unit
	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberB, 1), contribution(memberA, 1)},
		TotalQuantity: 2,
		UnitPrice:     price("0.5"),
		FeeRate:       decimal.Zero,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, res.Subtotal)
	assert.EqualValues(t, 0, res.Shares[0].Subtotal)
	assert.EqualValues(t, 1, res.Shares[1].Subtotal)
}

func TestAllocateFeeResidual(t *testing.T) {
	// subtotals 100 each, rate 0.015 -> exact fees 1.5 each, target round(4.5)=5
	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 1), contribution(memberB, 1), contribution(memberC, 1)},
		TotalQuantity: 3,
		UnitPrice:     price("100"),
		FeeRate:       decimal.RequireFromString("0.015"),
	})
	require.NoError(t, err)

	_, _, fee := sums(res)
	assert.EqualValues(t, 5, res.FacilitationFee)
	assert.EqualValues(t, 5, fee)
	assert.EqualValues(t, 2, res.Shares[0].FacilitationFee)
	assert.EqualValues(t, 2, res.Shares[1].FacilitationFee)
	assert.EqualValues(t, 1, res.Shares[2].FacilitationFee)
}

func TestAllocateRejectsBadInput(t *testing.T) {
	cases := map[string]Input{
		"empty": {TotalQuantity: 0, FeeRate: decimal.Zero},
		"sum mismatch": {
			Contributions: []Contribution{contribution(memberA, 2)},
			TotalQuantity: 3,
		},
		"zero quantity": {
			Contributions: []Contribution{contribution(memberA, 0)},
			TotalQuantity: 0,
		},
		"rate above one": {
			Contributions: []Contribution{contribution(memberA, 1)},
			TotalQuantity: 1,
			FeeRate:       decimal.RequireFromString("1.01"),
		},
		"negative price": {
			Contributions: []Contribution{contribution(memberA, 1)},
			TotalQuantity: 1,
			UnitPrice:     price("-1"),
		},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Allocate(in)
			assert.Error(t, err)
		})
	}
}

func TestAllocateIsDeterministic(t *testing.T) {
	in := Input{
		Contributions: []Contribution{contribution(memberA, 7), contribution(memberB, 11), contribution(memberC, 13)},
		TotalQuantity: 31,
		UnitPrice:     price("17.77"),
		FeeRate:       decimal.RequireFromString("0.0275"),
	}
	first, err := Allocate(in)
	require.NoError(t, err)
	second, err := Allocate(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, subtotal, fee := sums(first)
	assert.Equal(t, first.Subtotal, subtotal)
	assert.Equal(t, first.FacilitationFee, fee)
}

func TestAllocateRejectsOverflowingAmounts(t *testing.T) {
	_, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 1_000_000_000_000)},
		TotalQuantity: 1_000_000_000_000,
		UnitPrice:     price("100000000"),
		FeeRate:       decimal.RequireFromString("0.03"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Allocate(Input{
		Contributions: []Contribution{contribution(memberA, math.MaxInt64), contribution(memberB, 1)},
		TotalQuantity: math.MinInt64,
		FeeRate:       decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrOverflow)

	res, err := Allocate(Input{
		Contributions: []Contribution{contribution(memberA, 1_000_000)},
		TotalQuantity: 1_000_000,
		UnitPrice:     price("9000000000000"),
		FeeRate:       decimal.RequireFromString("0.03"),
	})
	require.NoError(t, err, "large amounts that fit are allocated")
	assert.EqualValues(t, int64(9_000_000_000_000_000_000), res.Subtotal)
}
