package cgt

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ukcgt/cgtcalc/util"
)

// lot is one transaction's mutable match state for the duration of a single
// Calculate call: how much of its original quantity is still unmatched.
// Lots live in a lotArena and are addressed by index, so every decrement has
// one owner and no pass can alias another's state.
type lot struct {
	tx        *Transaction
	remaining decimal.Decimal
}

type lotArena struct {
	lots []lot
}

// newLotArena seeds one lot per transaction, sorted by date ascending.
// The sort is stable: transactions on the same date keep their input order,
// which is the only intraday ordering the engine recognizes.
func newLotArena(txs []*Transaction) *lotArena {
	sorted := make([]*Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	lots := make([]lot, 0, len(sorted))
	for _, tx := range sorted {
		lots = append(lots, lot{tx: tx, remaining: tx.Quantity})
	}
	return &lotArena{lots: lots}
}

func (a *lotArena) len() int {
	return len(a.lots)
}

func (a *lotArena) tx(i int) *Transaction {
	return a.lots[i].tx
}

func (a *lotArena) remaining(i int) decimal.Decimal {
	return a.lots[i].remaining
}

// consume decrements lot i's remaining quantity. Consuming more than is left
// is a bug in a matching pass, not a data problem.
func (a *lotArena) consume(i int, quantity decimal.Decimal) {
	l := &a.lots[i]
	util.Assertf(quantity.IsPositive(),
		"lotArena.consume: quantity %s is not positive", quantity)
	util.Assertf(quantity.LessThanOrEqual(l.remaining),
		"lotArena.consume: quantity %s exceeds remaining %s of tx %s",
		quantity, l.remaining, l.tx.RefID())
	l.remaining = l.remaining.Sub(quantity)
}

// exhaust zeroes lot i's remaining quantity, making it inert for all
// subsequent passes.
func (a *lotArena) exhaust(i int) {
	a.lots[i].remaining = decimal.Zero
}
