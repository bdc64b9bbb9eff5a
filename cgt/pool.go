package cgt

import (
	"github.com/shopspring/decimal"
)

// Residual rounding dust below this is snapped to zero when the pool empties.
var poolEpsilon = decimal.New(1, -6)

// Section104Pool is the weighted-average-cost holding for a single security.
// Both totals stay non-negative; TotalCost / TotalQuantity is the current
// average cost per unit.
type Section104Pool struct {
	TotalQuantity decimal.Decimal
	TotalCost     decimal.Decimal
}

func NewSection104Pool() *Section104Pool {
	return &Section104Pool{}
}

// Add records an acquisition. Non-positive quantities are ignored.
func (p *Section104Pool) Add(quantity decimal.Decimal, cost decimal.Decimal) {
	if !quantity.IsPositive() {
		return
	}
	p.TotalQuantity = p.TotalQuantity.Add(quantity)
	p.TotalCost = p.TotalCost.Add(cost)
}

// AdjustQuantity scales the share count by ratio (stock splits). The cost of
// the holding is unchanged; splits are tax-neutral.
// Returns the quantity before and after the adjustment.
func (p *Section104Pool) AdjustQuantity(ratio decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	oldQuantity := p.TotalQuantity
	p.TotalQuantity = p.TotalQuantity.Mul(ratio)
	return oldQuantity, p.TotalQuantity
}

// Remove withdraws quantity units and returns the allowable cost for them,
// taken as a proportional share of the pool's total cost.
//
// Withdrawing from an empty pool returns zero cost (a 100% gain). Upstream
// statements can be incomplete, so this is a best-effort default rather than
// an error.
func (p *Section104Pool) Remove(quantity decimal.Decimal) decimal.Decimal {
	if !quantity.IsPositive() {
		return decimal.Zero
	}
	if p.TotalQuantity.IsZero() {
		return decimal.Zero
	}

	// Pro-rate against the pool total rather than going through a per-share
	// price, which would lose precision on small lots.
	cost := quantity.Div(p.TotalQuantity).Mul(p.TotalCost)

	p.TotalQuantity = p.TotalQuantity.Sub(quantity)
	p.TotalCost = p.TotalCost.Sub(cost)

	if p.TotalQuantity.LessThanOrEqual(poolEpsilon) {
		p.TotalQuantity = decimal.Zero
		p.TotalCost = decimal.Zero
	}

	return cost
}

func (p *Section104Pool) AverageCostPerShare() decimal.Decimal {
	if p.TotalQuantity.IsZero() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.TotalQuantity)
}
