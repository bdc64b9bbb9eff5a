package cgt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ukcgt/cgtcalc/date"
	decimal_opt "github.com/ukcgt/cgtcalc/decimal_value"
)

const testIsin = "GB00TEST0001"

func mkDateYD(year uint32, day int) date.Date {
	tm := date.New(year, time.January, 1)
	return tm.AddDays(day)
}

func mkDate(day int) date.Date {
	return mkDateYD(2023, day)
}

func mkTx(id string, day int, action TxAction, qty string, amount string) *Transaction {
	return &Transaction{
		ID:       id,
		Date:     mkDate(day),
		Action:   action,
		Quantity: decimal.RequireFromString(qty),
		Amount:   decimal.RequireFromString(amount),
		Isin:     testIsin,
	}
}

func mkSplit(day int, kind CorporateActionKind, from string, to string) *CorporateAction {
	return &CorporateAction{
		Date:      mkDate(day),
		Kind:      kind,
		SourceID:  testIsin,
		RatioFrom: decimal.RequireFromString(from),
		RatioTo:   decimal.RequireFromString(to),
	}
}

func calcNoErr(t *testing.T, txs []*Transaction, actions []*CorporateAction) *Report {
	report, err := Calculate(txs, actions, "2023/2024")
	require.NoError(t, err)
	return report
}

func rqDecEq(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, actual.Equal(decimal.RequireFromString(expected)),
		"expected %s, got %s", expected, actual)
}

func TestSection104PoolAveraging(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("t1", 1, BUY, "100", "-1000"),
		mkTx("t2", 2, BUY, "100", "-2000"),
		mkTx("t3", 5, SELL, "100", "2500"),
	}, nil)

	rq.Len(report.MatchEvents, 1)
	event := report.MatchEvents[0]
	rq.Equal(SECTION_104, event.MatchType)
	rq.Equal("t3", event.SellTransactionID)
	rq.Equal("", event.BuyTransactionID)
	rqDecEq(t, "100", event.Quantity)
	rqDecEq(t, "1500", event.AllowableCost)
	rqDecEq(t, "1000", event.Gain)
	rqDecEq(t, "1000", report.NetGain)
}

func TestSameDayPrecedence(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("pool_buy", 1, BUY, "100", "-1000"),
		mkTx("same_day_buy", 10, BUY, "100", "-2000"),
		mkTx("same_day_sell", 10, SELL, "100", "2500"),
	}, nil)

	rq.Len(report.MatchEvents, 1)
	event := report.MatchEvents[0]
	rq.Equal(SAME_DAY, event.MatchType)
	rq.Equal("same_day_sell", event.SellTransactionID)
	rq.Equal("same_day_buy", event.BuyTransactionID)
	rqDecEq(t, "2000", event.AllowableCost)
	rqDecEq(t, "500", event.Gain)
}

func TestBedAndBreakfastMatchesLaterBuy(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("pool_buy", 1, BUY, "100", "-1000"),
		mkTx("sell", 32, SELL, "100", "1500"),
		mkTx("bnb_buy", 41, BUY, "100", "-1200"),
	}, nil)

	rq.Len(report.MatchEvents, 1)
	event := report.MatchEvents[0]
	rq.Equal(BED_AND_BREAKFAST, event.MatchType)
	rq.Equal("sell", event.SellTransactionID)
	rq.Equal("bnb_buy", event.BuyTransactionID)
	rqDecEq(t, "1200", event.AllowableCost)
	rqDecEq(t, "300", event.Gain)
}

// A buy consumed by a bed & breakfast match must not be reusable by a later
// sell, neither in the same pass nor via the pool.
func TestBnbConsumedBuyExcludedFromPool(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("buy_A", 1, BUY, "100", "-1000"),
		mkTx("sell_A", 5, SELL, "100", "1500"),
		mkTx("buy_B", 10, BUY, "100", "-1200"),
		mkTx("sell_B", 40, SELL, "100", "2000"),
	}, nil)

	rq.Len(report.MatchEvents, 2)

	e1 := report.MatchEvents[0]
	rq.Equal(BED_AND_BREAKFAST, e1.MatchType)
	rq.Equal("sell_A", e1.SellTransactionID)
	rq.Equal("buy_B", e1.BuyTransactionID)
	rqDecEq(t, "1200", e1.AllowableCost)
	rqDecEq(t, "300", e1.Gain)

	e2 := report.MatchEvents[1]
	rq.Equal(SECTION_104, e2.MatchType)
	rq.Equal("sell_B", e2.SellTransactionID)
	rqDecEq(t, "1000", e2.AllowableCost)
	rqDecEq(t, "1000", e2.Gain)
}

func TestThirtyDayWindowBoundary(t *testing.T) {
	// Day 30 after the sell is matched by bed & breakfast.
	t.Run("Day30Matches", func(t *testing.T) {
		rq := require.New(t)
		report := calcNoErr(t, []*Transaction{
			mkTx("sell", 10, SELL, "100", "1500"),
			mkTx("buy", 40, BUY, "100", "-1200"),
		}, nil)

		rq.Len(report.MatchEvents, 1)
		rq.Equal(BED_AND_BREAKFAST, report.MatchEvents[0].MatchType)
		rq.Equal("buy", report.MatchEvents[0].BuyTransactionID)
	})

	// Day 31 falls outside, so the sell draws on the (empty) pool and the
	// buy seeds the pool afterwards.
	t.Run("Day31FallsThrough", func(t *testing.T) {
		rq := require.New(t)
		report := calcNoErr(t, []*Transaction{
			mkTx("sell", 10, SELL, "100", "1500"),
			mkTx("buy", 41, BUY, "100", "-1200"),
		}, nil)

		rq.Len(report.MatchEvents, 1)
		event := report.MatchEvents[0]
		rq.Equal(SECTION_104, event.MatchType)
		rq.Equal("sell", event.SellTransactionID)
		rqDecEq(t, "0", event.AllowableCost)
		rqDecEq(t, "1500", event.Gain)
	})
}

func TestStockSplitIsTaxNeutral(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t,
		[]*Transaction{
			mkTx("buy", 1, BUY, "100", "-10000"),
			mkTx("sell", 300, SELL, "200", "12000"),
		},
		[]*CorporateAction{mkSplit(150, STOCK_SPLIT, "1", "2")})

	rq.Len(report.MatchEvents, 2)

	splitEvent := report.MatchEvents[0]
	rq.Equal(CORPORATE_ACTION, splitEvent.MatchType)
	rq.Equal("", splitEvent.SellTransactionID)
	rq.Equal(mkDate(150), splitEvent.Date)
	rqDecEq(t, "100", splitEvent.Quantity)
	rqDecEq(t, "0", splitEvent.Gain)

	sellEvent := report.MatchEvents[1]
	rq.Equal(SECTION_104, sellEvent.MatchType)
	rqDecEq(t, "200", sellEvent.Quantity)
	rqDecEq(t, "10000", sellEvent.AllowableCost)
	rqDecEq(t, "2000", sellEvent.Gain)
}

func TestReverseSplitNegativeDelta(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t,
		[]*Transaction{
			mkTx("buy", 1, BUY, "100", "-1000"),
			mkTx("sell", 300, SELL, "10", "1500"),
		},
		[]*CorporateAction{mkSplit(150, REVERSE_SPLIT, "10", "1")})

	rq.Len(report.MatchEvents, 2)

	splitEvent := report.MatchEvents[0]
	rq.Equal(CORPORATE_ACTION, splitEvent.MatchType)
	rqDecEq(t, "-90", splitEvent.Quantity)

	sellEvent := report.MatchEvents[1]
	rq.Equal(SECTION_104, sellEvent.MatchType)
	rqDecEq(t, "1000", sellEvent.AllowableCost)
	rqDecEq(t, "500", sellEvent.Gain)
}

func TestSplitInterleavedWithBuys(t *testing.T) {
	rq := require.New(t)

	// 100 @ 1000, split 2:1 -> 200 @ 1000, +100 @ 600 -> 300 @ 1600.
	report := calcNoErr(t,
		[]*Transaction{
			mkTx("buy1", 1, BUY, "100", "-1000"),
			mkTx("buy2", 180, BUY, "100", "-600"),
			mkTx("sell", 300, SELL, "300", "3000"),
		},
		[]*CorporateAction{mkSplit(150, STOCK_SPLIT, "1", "2")})

	var sellEvent *MatchEvent
	for i := range report.MatchEvents {
		if report.MatchEvents[i].MatchType == SECTION_104 {
			sellEvent = &report.MatchEvents[i]
		}
	}
	rq.NotNil(sellEvent)
	rqDecEq(t, "300", sellEvent.Quantity)
	rqDecEq(t, "1600", sellEvent.AllowableCost)
	rqDecEq(t, "1400", sellEvent.Gain)
}

// A split dated the same day as a trade adjusts the pool before the trade.
func TestSameDateSplitAppliesBeforeSell(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t,
		[]*Transaction{
			mkTx("buy", 1, BUY, "100", "-10000"),
			mkTx("sell", 150, SELL, "200", "12000"),
		},
		[]*CorporateAction{mkSplit(150, STOCK_SPLIT, "1", "2")})

	rq.Len(report.MatchEvents, 2)
	rq.Equal(CORPORATE_ACTION, report.MatchEvents[0].MatchType)

	sellEvent := report.MatchEvents[1]
	rq.Equal(SECTION_104, sellEvent.MatchType)
	rqDecEq(t, "200", sellEvent.Quantity)
	rqDecEq(t, "10000", sellEvent.AllowableCost)
}

func TestDegenerateSplitRatioIgnored(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t,
		[]*Transaction{
			mkTx("buy", 1, BUY, "100", "-1000"),
			mkTx("sell", 200, SELL, "100", "1500"),
		},
		[]*CorporateAction{mkSplit(150, STOCK_SPLIT, "0", "2")})

	rq.Len(report.MatchEvents, 1)
	event := report.MatchEvents[0]
	rq.Equal(SECTION_104, event.MatchType)
	rqDecEq(t, "1000", event.AllowableCost)
}

func TestExemptWrappersProduceNoEvents(t *testing.T) {
	for _, wrapper := range []TaxWrapper{ISA, JISA, LISA, SIPP} {
		t.Run(string(wrapper), func(t *testing.T) {
			rq := require.New(t)
			buy := mkTx("buy", 1, BUY, "100", "-1000")
			sell := mkTx("sell", 2, SELL, "100", "1500")
			buy.TaxWrapper = wrapper
			sell.TaxWrapper = wrapper

			report := calcNoErr(t, []*Transaction{buy, sell}, nil)
			rq.Empty(report.MatchEvents)
			rqDecEq(t, "0", report.NetGain)
		})
	}
}

func TestNonTradeActionsIgnored(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("div", 1, DIVIDEND, "0", "50"),
		mkTx("fee", 2, FEE, "0", "-10"),
	}, nil)
	rq.Empty(report.MatchEvents)
	rq.Empty(report.Warnings)
}

func TestEmptyInput(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, nil, nil)
	rq.Equal("2023/2024", report.TaxYear)
	rq.Empty(report.MatchEvents)
	rqDecEq(t, "0", report.TotalGains)
	rqDecEq(t, "0", report.TotalLosses)
	rqDecEq(t, "0", report.NetGain)
}

func TestUnmatchedCorporateActionDropped(t *testing.T) {
	rq := require.New(t)

	action := mkSplit(150, STOCK_SPLIT, "1", "2")
	action.SourceID = "GB00OTHER0009"

	report := calcNoErr(t,
		[]*Transaction{
			mkTx("buy", 1, BUY, "100", "-1000"),
			mkTx("sell", 200, SELL, "100", "1500"),
		},
		[]*CorporateAction{action})

	rq.Len(report.MatchEvents, 1)
	rq.Equal(SECTION_104, report.MatchEvents[0].MatchType)
	rqDecEq(t, "1000", report.MatchEvents[0].AllowableCost)
}

func TestPartialSameDayRemainderFeedsPool(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("buy", 5, BUY, "100", "-1000"),
		mkTx("sell1", 5, SELL, "40", "500"),
		mkTx("sell2", 60, SELL, "60", "900"),
	}, nil)

	rq.Len(report.MatchEvents, 2)

	e1 := report.MatchEvents[0]
	rq.Equal(SAME_DAY, e1.MatchType)
	rqDecEq(t, "40", e1.Quantity)
	rqDecEq(t, "400", e1.AllowableCost)
	rqDecEq(t, "100", e1.Gain)

	// Only the unmatched 60 units (cost 600) entered the pool.
	e2 := report.MatchEvents[1]
	rq.Equal(SECTION_104, e2.MatchType)
	rqDecEq(t, "60", e2.Quantity)
	rqDecEq(t, "600", e2.AllowableCost)
	rqDecEq(t, "300", e2.Gain)
}

func TestBnbSpansMultipleBuys(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("sell", 10, SELL, "100", "2000"),
		mkTx("buy1", 15, BUY, "30", "-300"),
		mkTx("buy2", 20, BUY, "30", "-450"),
		mkTx("pool_buy", 60, BUY, "100", "-1000"),
	}, nil)

	rq.Len(report.MatchEvents, 3)

	e1 := report.MatchEvents[0]
	rq.Equal(BED_AND_BREAKFAST, e1.MatchType)
	rq.Equal("buy1", e1.BuyTransactionID)
	rqDecEq(t, "30", e1.Quantity)
	rqDecEq(t, "600", e1.Proceeds)
	rqDecEq(t, "300", e1.AllowableCost)

	e2 := report.MatchEvents[1]
	rq.Equal(BED_AND_BREAKFAST, e2.MatchType)
	rq.Equal("buy2", e2.BuyTransactionID)
	rqDecEq(t, "30", e2.Quantity)
	rqDecEq(t, "450", e2.AllowableCost)

	// The leftover 40 units sell against an empty pool; pool_buy is past the
	// window.
	e3 := report.MatchEvents[2]
	rq.Equal(SECTION_104, e3.MatchType)
	rqDecEq(t, "40", e3.Quantity)
	rqDecEq(t, "800", e3.Proceeds)
	rqDecEq(t, "0", e3.AllowableCost)
}

// Quantity conservation: the matched quantities across all events for a sell
// sum to its original quantity.
func TestSellQuantityConservation(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("buy0", 1, BUY, "50", "-500"),
		mkTx("day_buy", 10, BUY, "25", "-300"),
		mkTx("sell", 10, SELL, "100", "2000"),
		mkTx("late_buy", 20, BUY, "25", "-350"),
	}, nil)

	total := decimal.Zero
	for _, event := range report.MatchEvents {
		if event.SellTransactionID == "sell" {
			total = total.Add(event.Quantity)
		}
	}
	rqDecEq(t, "100", total)
	rq.Len(report.MatchEvents, 3)
}

func TestTotalsInvariant(t *testing.T) {
	report := calcNoErr(t, []*Transaction{
		mkTx("buy1", 1, BUY, "100", "-2000"),
		mkTx("sell1", 5, SELL, "50", "400"),   // loss
		mkTx("sell2", 90, SELL, "50", "1800"), // gain
	}, nil)

	rqDecEq(t, report.NetGain.String(), report.TotalGains.Add(report.TotalLosses))
	require.True(t, report.TotalGains.IsPositive())
	require.True(t, report.TotalLosses.IsNegative())
}

func TestMultipleSecuritiesMergedDeterministically(t *testing.T) {
	rq := require.New(t)

	other := mkTx("other_sell", 5, SELL, "10", "300")
	other.Isin = "GB00AAAA0001"
	otherBuy := mkTx("other_buy", 1, BUY, "10", "-100")
	otherBuy.Isin = "GB00AAAA0001"

	txs := []*Transaction{
		mkTx("buy", 1, BUY, "100", "-1000"),
		mkTx("sell", 5, SELL, "100", "1500"),
		otherBuy,
		other,
	}

	report := calcNoErr(t, txs, nil)
	rq.Len(report.MatchEvents, 2)

	// Groups merge in sorted security-key order.
	rq.Equal("other_sell", report.MatchEvents[0].SellTransactionID)
	rq.Equal("sell", report.MatchEvents[1].SellTransactionID)
	rqDecEq(t, "700", report.NetGain)
}

func TestCalculateIsDeterministic(t *testing.T) {
	rq := require.New(t)

	mkInput := func() ([]*Transaction, []*CorporateAction) {
		otherBuy := mkTx("zbuy", 1, BUY, "10", "-100")
		otherBuy.Isin = "GB00ZZZZ0001"
		otherSell := mkTx("zsell", 40, SELL, "10", "220")
		otherSell.Isin = "GB00ZZZZ0001"
		return []*Transaction{
				mkTx("buy1", 1, BUY, "100", "-1000"),
				mkTx("sell1", 5, SELL, "60", "900"),
				mkTx("buy2", 20, BUY, "40", "-480"),
				otherBuy,
				otherSell,
			},
			[]*CorporateAction{mkSplit(30, STOCK_SPLIT, "1", "2")}
	}

	txs1, actions1 := mkInput()
	report1 := calcNoErr(t, txs1, actions1)
	txs2, actions2 := mkInput()
	report2 := calcNoErr(t, txs2, actions2)

	diff := cmp.Diff(report1, report2,
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmp.Comparer(func(a, b date.Date) bool { return a.Equal(b) }))
	rq.Empty(diff)

	json1, err := json.Marshal(report1)
	rq.NoError(err)
	json2, err := json.Marshal(report2)
	rq.NoError(err)
	rq.Equal(string(json1), string(json2))
}

func TestZeroQuantityTradeSkippedWithWarning(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("bad_buy", 1, BUY, "0", "-1000"),
	}, nil)

	rq.Empty(report.MatchEvents)
	rq.Len(report.Warnings, 1)
	rq.Contains(report.Warnings[0], "non-positive quantity")
}

func TestGbpAmountTakesPrecedence(t *testing.T) {
	rq := require.New(t)

	buy := mkTx("buy", 1, BUY, "100", "-1000")
	buy.GbpAmount = decimal_opt.RequireFromString("-800")
	sell := mkTx("sell", 5, SELL, "100", "1500")

	report := calcNoErr(t, []*Transaction{buy, sell}, nil)

	rq.Len(report.MatchEvents, 1)
	rqDecEq(t, "800", report.MatchEvents[0].AllowableCost)
	rqDecEq(t, "700", report.MatchEvents[0].Gain)
}

func TestSellBeyondPoolSnapsToZero(t *testing.T) {
	rq := require.New(t)

	report := calcNoErr(t, []*Transaction{
		mkTx("buy", 1, BUY, "50", "-500"),
		mkTx("oversell", 100, SELL, "80", "1600"),
		mkTx("sell2", 200, SELL, "10", "200"),
	}, nil)

	rq.Len(report.MatchEvents, 2)

	// The pool snapped to zero after the oversell, so the second disposal
	// gets zero allowable cost instead of drawing on a negative pool.
	e2 := report.MatchEvents[1]
	rq.Equal(SECTION_104, e2.MatchType)
	rqDecEq(t, "0", e2.AllowableCost)
	rqDecEq(t, "200", e2.Gain)
}
