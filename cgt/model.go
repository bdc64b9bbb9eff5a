package cgt

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ukcgt/cgtcalc/date"
	decimal_opt "github.com/ukcgt/cgtcalc/decimal_value"
)

type TxAction int

const (
	NO_ACTION TxAction = iota
	BUY
	SELL
	DIVIDEND
	FEE
	OTHER
)

func (a TxAction) String() string {
	switch a {
	case BUY:
		return "Buy"
	case SELL:
		return "Sell"
	case DIVIDEND:
		return "Dividend"
	case FEE:
		return "Fee"
	case OTHER:
		return "Other"
	default:
		return "-"
	}
}

type TaxWrapper string

const (
	GIA             TaxWrapper = "GIA"
	ISA             TaxWrapper = "ISA"
	JISA            TaxWrapper = "JISA"
	LISA            TaxWrapper = "LISA"
	SIPP            TaxWrapper = "SIPP"
	SSAS            TaxWrapper = "SSAS"
	OFFSHORE_BOND   TaxWrapper = "OFFSHORE_BOND"
	ONSHORE_BOND    TaxWrapper = "ONSHORE_BOND"
	UNKNOWN_WRAPPER TaxWrapper = "UNKNOWN"
)

// Disposals and acquisitions inside these wrappers are outside the scope of
// CGT entirely, so the engine drops them before matching.
func (w TaxWrapper) CgtExempt() bool {
	switch w {
	case ISA, JISA, LISA, SIPP:
		return true
	}
	return false
}

// Transaction is an already-normalized trade record, as produced by the
// upstream statement parser. It is never mutated by the engine.
type Transaction struct {
	ID       string
	Date     date.Date
	Action   TxAction
	Quantity decimal.Decimal
	// Net cash flow of the trade. Conventionally negative for buys, but only
	// the magnitude is used.
	Amount decimal.Decimal
	// Normalized GBP amount. Takes precedence over Amount when present.
	GbpAmount  decimal_opt.DecimalOpt
	Symbol     string
	Isin       string
	TaxWrapper TaxWrapper
	Memo       string
}

// SecurityKey groups transactions of the same security. ISIN is preferred
// since symbols are not unique across exchanges.
func (t *Transaction) SecurityKey() string {
	if t.Isin != "" {
		return t.Isin
	}
	if t.Symbol != "" {
		return t.Symbol
	}
	return "UNKNOWN"
}

// TotalValue is the positive magnitude of the trade's cash value: proceeds
// for sells, cost for buys.
func (t *Transaction) TotalValue() decimal.Decimal {
	if t.GbpAmount.Present() {
		return t.GbpAmount.Decimal().Abs()
	}
	return t.Amount.Abs()
}

func (t *Transaction) RefID() string {
	if t.ID == "" {
		return "unknown"
	}
	return t.ID
}

type CorporateActionKind int

const (
	STOCK_SPLIT CorporateActionKind = iota
	REVERSE_SPLIT
	RIGHTS_ISSUE
	MERGER
	SPIN_OFF
	RETURN_OF_CAPITAL
	SCRIP_DIVIDEND
	TENDER_OFFER
	NAME_CHANGE
)

func (k CorporateActionKind) String() string {
	switch k {
	case STOCK_SPLIT:
		return "STOCK_SPLIT"
	case REVERSE_SPLIT:
		return "REVERSE_SPLIT"
	case RIGHTS_ISSUE:
		return "RIGHTS_ISSUE"
	case MERGER:
		return "MERGER"
	case SPIN_OFF:
		return "SPIN_OFF"
	case RETURN_OF_CAPITAL:
		return "RETURN_OF_CAPITAL"
	case SCRIP_DIVIDEND:
		return "SCRIP_DIVIDEND"
	case TENDER_OFFER:
		return "TENDER_OFFER"
	case NAME_CHANGE:
		return "NAME_CHANGE"
	default:
		return fmt.Sprintf("CorporateActionKind(%d)", int(k))
	}
}

// CorporateAction is a structural event on a security. Only splits and
// reverse splits affect the pool; the other kinds are recognized so that the
// replay switch stays exhaustive.
type CorporateAction struct {
	Date      date.Date
	Kind      CorporateActionKind
	SourceID  string
	RatioFrom decimal.Decimal
	RatioTo   decimal.Decimal
	Memo      string
}

type MatchType int

const (
	SAME_DAY MatchType = iota
	BED_AND_BREAKFAST
	SECTION_104
	CORPORATE_ACTION
)

func (m MatchType) String() string {
	switch m {
	case SAME_DAY:
		return "SAME_DAY"
	case BED_AND_BREAKFAST:
		return "BED_AND_BREAKFAST"
	case SECTION_104:
		return "SECTION_104"
	case CORPORATE_ACTION:
		return "CORPORATE_ACTION"
	default:
		return fmt.Sprintf("MatchType(%d)", int(m))
	}
}

func (m MatchType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// MatchEvent is one realized disposal (or tax-neutral pool adjustment).
// BuyTransactionID is set only for SAME_DAY and BED_AND_BREAKFAST matches;
// pool disposals draw from the aggregate holding, not a specific buy.
type MatchEvent struct {
	SellTransactionID string          `json:"sell_transaction_id"`
	BuyTransactionID  string          `json:"buy_transaction_id,omitempty"`
	MatchType         MatchType       `json:"match_type"`
	Quantity          decimal.Decimal `json:"quantity"`
	Proceeds          decimal.Decimal `json:"proceeds"`
	AllowableCost     decimal.Decimal `json:"allowable_cost"`
	Gain              decimal.Decimal `json:"gain_gbp"`
	Date              date.Date       `json:"date"`
}

// Report is the sole artifact of a Calculate call.
// Invariant: TotalGains + TotalLosses == NetGain.
type Report struct {
	TaxYear     string          `json:"tax_year"`
	TotalGains  decimal.Decimal `json:"total_gains"`
	TotalLosses decimal.Decimal `json:"total_losses"`
	NetGain     decimal.Decimal `json:"net_gain"`
	MatchEvents []MatchEvent    `json:"match_events"`
	Warnings    []string        `json:"warnings,omitempty"`
}

func NewReport(taxYear string) *Report {
	return &Report{TaxYear: taxYear, MatchEvents: []MatchEvent{}}
}

// AddEvent appends in insertion order. Positive gains accumulate into
// TotalGains, everything else (losses and nil disposals) into TotalLosses.
func (r *Report) AddEvent(event MatchEvent) {
	r.MatchEvents = append(r.MatchEvents, event)
	if event.Gain.IsPositive() {
		r.TotalGains = r.TotalGains.Add(event.Gain)
	} else {
		r.TotalLosses = r.TotalLosses.Add(event.Gain)
	}
	r.NetGain = r.NetGain.Add(event.Gain)
}

func (r *Report) AddWarningf(format string, v ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, v...))
}
