package cgt

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ukcgt/cgtcalc/date"
	"github.com/ukcgt/cgtcalc/log"
	"github.com/ukcgt/cgtcalc/util"
)

// Calculate computes realized capital gains from a stream of transactions,
// applying the HMRC share identification rules in precedence order:
//
//  1. Same Day
//  2. Bed & Breakfast (30 days following the disposal)
//  3. Section 104 Pool
//
// Stock splits and reverse splits are replayed against the pool in-line.
// Each security is processed independently; events across securities are
// merged in sorted security-key order so output is deterministic.
//
// Data-quality problems (empty pool on disposal, degenerate split ratios,
// zero-quantity trades) never fail the computation. They either take a
// documented numeric default or surface on Report.Warnings.
func Calculate(
	transactions []*Transaction,
	corporateActions []*CorporateAction,
	taxYear string,
) (*Report, error) {

	report := NewReport(taxYear)

	groups := map[string]*securityGroup{}
	for _, tx := range transactions {
		if tx.Action != BUY && tx.Action != SELL {
			continue
		}
		if tx.TaxWrapper.CgtExempt() {
			continue
		}
		if !tx.Quantity.IsPositive() {
			// Pro-rata arithmetic divides by the original quantity, so a
			// zero (or negative) quantity trade cannot participate.
			report.AddWarningf(
				"skipped %s of %s on %s: non-positive quantity %s",
				tx.Action, tx.SecurityKey(), tx.Date, tx.Quantity)
			continue
		}

		key := tx.SecurityKey()
		group, ok := groups[key]
		if !ok {
			group = &securityGroup{key: key}
			groups[key] = group
		}
		group.txs = append(group.txs, tx)
	}

	if len(groups) == 0 {
		return report, nil
	}

	for _, action := range corporateActions {
		if group, ok := groups[action.SourceID]; ok {
			group.actions = append(group.actions, action)
		} else {
			// No holdings in this security; nothing for the action to act on.
			log.Tracef("cgt", "dropping %s action on %s: no matching security group",
				action.Kind, action.SourceID)
		}
	}

	// Groups share no state, so they can run concurrently. Results merge in
	// sorted key order to keep reports reproducible.
	keys := util.SortedStringMapKeys(groups)
	results := make([][]MatchEvent, len(keys))

	var g errgroup.Group
	for i, key := range keys {
		i, key := i, key // scope!
		g.Go(func() error {
			results[i] = processSecurity(groups[key])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, events := range results {
		for _, event := range events {
			report.AddEvent(event)
		}
	}
	return report, nil
}

type securityGroup struct {
	key     string
	txs     []*Transaction
	actions []*CorporateAction
}

// processSecurity runs the three matching passes over one security group.
// All mutable state (the lot arena and the pool) is local to this call.
func processSecurity(group *securityGroup) []MatchEvent {
	arena := newLotArena(group.txs)

	events := passSameDay(arena, nil)
	events = passBedAndBreakfast(arena, events)
	events = passSection104(arena, group.actions, events)
	return events
}

// prorata spreads a transaction's total cash value over the matched portion
// of its quantity. The arena only holds positive-quantity transactions, so
// the division is safe.
func prorata(quantity decimal.Decimal, tx *Transaction) decimal.Decimal {
	return quantity.Div(tx.Quantity).Mul(tx.TotalValue())
}

// executeMatch pairs a sell lot with a buy lot for min(remaining, remaining)
// units, decrementing both sides.
func executeMatch(
	arena *lotArena, sellIdx int, buyIdx int, matchType MatchType,
	events []MatchEvent,
) []MatchEvent {

	sell := arena.tx(sellIdx)
	buy := arena.tx(buyIdx)

	matchQty := arena.remaining(sellIdx)
	if arena.remaining(buyIdx).LessThan(matchQty) {
		matchQty = arena.remaining(buyIdx)
	}

	proceeds := prorata(matchQty, sell)
	cost := prorata(matchQty, buy)
	gain := proceeds.Sub(cost)

	log.Tracef("cgt", "%s match %s: sell %s buy %s qty %s gain %s",
		matchType, sell.SecurityKey(), sell.RefID(), buy.RefID(), matchQty, gain)

	events = append(events, MatchEvent{
		SellTransactionID: sell.RefID(),
		BuyTransactionID:  buy.RefID(),
		MatchType:         matchType,
		Quantity:          matchQty,
		Proceeds:          proceeds,
		AllowableCost:     cost,
		Gain:              gain,
		Date:              sell.Date,
	})

	arena.consume(sellIdx, matchQty)
	arena.consume(buyIdx, matchQty)
	return events
}

// passSameDay matches sells against buys dated identically. Within a date,
// both sides are taken in input order.
func passSameDay(arena *lotArena, events []MatchEvent) []MatchEvent {
	byDate := map[date.Date][]int{}
	for i := 0; i < arena.len(); i++ {
		if arena.remaining(i).IsPositive() {
			d := arena.tx(i).Date
			byDate[d] = append(byDate[d], i)
		}
	}

	dates := make([]date.Date, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		var buys, sells []int
		for _, i := range byDate[d] {
			switch arena.tx(i).Action {
			case BUY:
				buys = append(buys, i)
			case SELL:
				sells = append(sells, i)
			}
		}

		for _, sellIdx := range sells {
			for _, buyIdx := range buys {
				if !arena.remaining(sellIdx).IsPositive() {
					break
				}
				if !arena.remaining(buyIdx).IsPositive() {
					continue
				}
				events = executeMatch(arena, sellIdx, buyIdx, SAME_DAY, events)
			}
		}
	}
	return events
}

// passBedAndBreakfast matches each remaining sell against buys dated within
// the 30 days after it (day 30 inclusive). The arena is date-sorted, so the
// forward scan stops at the first buy past the window. A buy consumed here is
// gone for every later sell and for the pool pass.
func passBedAndBreakfast(arena *lotArena, events []MatchEvent) []MatchEvent {
	for i := 0; i < arena.len(); i++ {
		sell := arena.tx(i)
		if sell.Action != SELL {
			continue
		}
		if !arena.remaining(i).IsPositive() {
			continue
		}

		windowEnd := sell.Date.AddDays(30)

		for j := i + 1; j < arena.len(); j++ {
			buy := arena.tx(j)
			if buy.Action != BUY {
				continue
			}
			if !arena.remaining(j).IsPositive() {
				continue
			}
			// Same-day acquisitions were already handled by the first pass.
			if !buy.Date.After(sell.Date) {
				continue
			}
			if buy.Date.After(windowEnd) {
				break
			}

			events = executeMatch(arena, i, j, BED_AND_BREAKFAST, events)

			if !arena.remaining(i).IsPositive() {
				break
			}
		}
	}
	return events
}

// Pool timeline ordering: a corporate action dated the same day as a trade
// adjusts the pool before the trade is replayed.
const (
	timelineActionPriority = 0
	timelineTradePriority  = 1
)

type timelineEntry struct {
	date     date.Date
	priority int
	lotIdx   int
	action   *CorporateAction
}

// passSection104 chronologically replays everything the first two passes
// left over against a fresh weighted-average pool, interleaving corporate
// actions at their dates.
func passSection104(
	arena *lotArena, actions []*CorporateAction, events []MatchEvent,
) []MatchEvent {

	pool := NewSection104Pool()

	timeline := make([]timelineEntry, 0, arena.len()+len(actions))
	for i := 0; i < arena.len(); i++ {
		if arena.remaining(i).IsPositive() {
			timeline = append(timeline, timelineEntry{
				date: arena.tx(i).Date, priority: timelineTradePriority, lotIdx: i})
		}
	}
	for _, action := range actions {
		timeline = append(timeline, timelineEntry{
			date: action.Date, priority: timelineActionPriority, lotIdx: -1, action: action})
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		if !timeline[i].date.Equal(timeline[j].date) {
			return timeline[i].date.Before(timeline[j].date)
		}
		return timeline[i].priority < timeline[j].priority
	})

	for _, entry := range timeline {
		if entry.action != nil {
			events = applyCorporateAction(pool, entry.action, events)
			continue
		}

		i := entry.lotIdx
		tx := arena.tx(i)
		remaining := arena.remaining(i)

		switch tx.Action {
		case BUY:
			// Only the unmatched portion of the buy enters the pool, with a
			// proportional share of its cost.
			pool.Add(remaining, prorata(remaining, tx))
			arena.exhaust(i)
		case SELL:
			proceeds := prorata(remaining, tx)
			cost := pool.Remove(remaining)
			gain := proceeds.Sub(cost)

			log.Tracef("cgt", "SECTION_104 match %s: sell %s qty %s gain %s",
				tx.SecurityKey(), tx.RefID(), remaining, gain)

			events = append(events, MatchEvent{
				SellTransactionID: tx.RefID(),
				MatchType:         SECTION_104,
				Quantity:          remaining,
				Proceeds:          proceeds,
				AllowableCost:     cost,
				Gain:              gain,
				Date:              tx.Date,
			})
			arena.exhaust(i)
		}
	}
	return events
}

// applyCorporateAction replays one corporate action against the pool. Splits
// scale the share count and leave the cost alone; the emitted event carries
// the share-count delta and zero gain.
func applyCorporateAction(
	pool *Section104Pool, action *CorporateAction, events []MatchEvent,
) []MatchEvent {

	switch action.Kind {
	case STOCK_SPLIT, REVERSE_SPLIT:
		if action.RatioFrom.IsZero() {
			// Degenerate ratio; adjusting would zero or blow up the pool.
			log.Tracef("cgt", "ignoring %s on %s: zero ratio_from",
				action.Kind, action.SourceID)
			return events
		}
		ratio := action.RatioTo.Div(action.RatioFrom)
		oldQty, newQty := pool.AdjustQuantity(ratio)

		events = append(events, MatchEvent{
			SellTransactionID: "",
			MatchType:         CORPORATE_ACTION,
			Quantity:          newQty.Sub(oldQty),
			Proceeds:          decimal.Zero,
			AllowableCost:     decimal.Zero,
			Gain:              decimal.Zero,
			Date:              action.Date,
		})
	case RIGHTS_ISSUE, MERGER, SPIN_OFF, RETURN_OF_CAPITAL,
		SCRIP_DIVIDEND, TENDER_OFFER, NAME_CHANGE:
		// Recognized but not modelled; no pool effect.
	}
	return events
}
