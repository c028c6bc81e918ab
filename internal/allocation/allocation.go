// Package allocation splits a frozen group order into per-member shares.
// Allocate is a pure function: it never reads live intent state, so an
// order's shares stay stable while next month's pool keeps changing.
package allocation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrOverflow reports an amount that does not fit in int64 minor units.
var ErrOverflow = errors.New("amount exceeds int64 minor units")

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Contribution is one frozen intent feeding the order.
type Contribution struct {
	IntentID uuid.UUID
	MemberID uuid.UUID
	Quantity int64
}

// Input is the snapshot an order is allocated from. A nil UnitPrice means
// the group price has not been negotiated yet.
type Input struct {
	Contributions []Contribution
	TotalQuantity int64
	UnitPrice     *decimal.Decimal
	FeeRate       decimal.Decimal
}

// Share is one member's slice of the order, in minor currency units.
type Share struct {
	IntentID        uuid.UUID
	MemberID        uuid.UUID
	Quantity        int64
	UnitPrice       *decimal.Decimal
	Subtotal        int64
	FacilitationFee int64
}

// Result carries the shares in input order plus the reconciled totals.
type Result struct {
	Shares          []Share
	Subtotal        int64
	FacilitationFee int64
}

// Allocate computes every share. Subtotals sum exactly to
// round(total_quantity x unit_price) and fees to round(subtotal x rate);
// leftover minor units go to the largest fractional remainders.
func Allocate(in Input) (Result, error) {
	if len(in.Contributions) == 0 {
		return Result{}, fmt.Errorf("no contributions to allocate")
	}
	if in.FeeRate.IsNegative() || in.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return Result{}, fmt.Errorf("facilitation fee rate %s outside [0,1]", in.FeeRate)
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return Result{}, fmt.Errorf("unit price %s is negative", in.UnitPrice)
	}

	var sum int64
	for _, c := range in.Contributions {
		if c.Quantity <= 0 {
			return Result{}, fmt.Errorf("intent %s has non-positive quantity %d", c.IntentID, c.Quantity)
		}
		if c.Quantity > math.MaxInt64-sum {
			return Result{}, fmt.Errorf("total quantity: %w", ErrOverflow)
		}
		sum += c.Quantity
	}
	if sum != in.TotalQuantity {
		return Result{}, fmt.Errorf("contributions sum to %d, order total is %d", sum, in.TotalQuantity)
	}

	shares := make([]Share, len(in.Contributions))
	for i, c := range in.Contributions {
		shares[i] = Share{IntentID: c.IntentID, MemberID: c.MemberID, Quantity: c.Quantity}
	}
	if in.UnitPrice == nil {
		return Result{Shares: shares}, nil
	}

	price := *in.UnitPrice
	exactSubtotals := make([]decimal.Decimal, len(shares))
	for i, s := range shares {
		exactSubtotals[i] = price.Mul(decimal.NewFromInt(s.Quantity))
	}
	exactTotal := price.Mul(decimal.NewFromInt(in.TotalQuantity)).Round(0)
	if exactTotal.GreaterThan(maxMinorUnits) {
		return Result{}, fmt.Errorf("order subtotal %s: %w", exactTotal, ErrOverflow)
	}
	subtotalTarget := exactTotal.IntPart()
	subtotals := distribute(exactSubtotals, shares, subtotalTarget)

	exactFees := make([]decimal.Decimal, len(shares))
	for i, subtotal := range subtotals {
		exactFees[i] = decimal.NewFromInt(subtotal).Mul(in.FeeRate)
	}
	feeTarget := decimal.NewFromInt(subtotalTarget).Mul(in.FeeRate).Round(0).IntPart()
	fees := distribute(exactFees, shares, feeTarget)

	for i := range shares {
		p := price
		shares[i].UnitPrice = &p
		shares[i].Subtotal = subtotals[i]
		shares[i].FacilitationFee = fees[i]
	}
	return Result{Shares: shares, Subtotal: subtotalTarget, FacilitationFee: feeTarget}, nil
}

// distribute floors every exact amount and hands the remaining units to the
// entries with the largest fractional part; ties go to the larger quantity,
// then the lower member id.
func distribute(exact []decimal.Decimal, shares []Share, target int64) []int64 {
	out := make([]int64, len(exact))
	remainders := make([]decimal.Decimal, len(exact))
	var floored int64
	for i, amount := range exact {
		f := amount.Floor()
		out[i] = f.IntPart()
		remainders[i] = amount.Sub(f)
		floored += out[i]
	}

	residual := target - floored
	if residual <= 0 {
		return out
	}

	order := make([]int, len(exact))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if c := remainders[ia].Cmp(remainders[ib]); c != 0 {
			return c > 0
		}
		if shares[ia].Quantity != shares[ib].Quantity {
			return shares[ia].Quantity > shares[ib].Quantity
		}
		return shares[ia].MemberID.String() < shares[ib].MemberID.String()
	})

	for k := 0; residual > 0; k = (k + 1) % len(order) {
		out[order[k]]++
		residual--
	}
	return out
}
