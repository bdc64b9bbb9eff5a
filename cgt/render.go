package cgt

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ukcgt/cgtcalc/util"
)

type _PrintHelper struct {
	PrintAllDecimals bool
}

func humanizeDecimalStr(val string) string {
	if os.Getenv("HUMANIZE") == "" {
		return val
	}
	negative := ""
	if strings.HasPrefix(val, "-") {
		negative, val = val[:1], val[1:]
	}
	before, after, found := strings.Cut(val, ".")
	suffix := ""
	if found {
		suffix = fmt.Sprintf(".%s", after)
	}
	i, err := strconv.ParseInt(before, 10, 64)
	if err != nil {
		panic(err)
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s%d%s", negative, i, suffix)
}

func (h _PrintHelper) CurrStr(val decimal.Decimal) string {
	if h.PrintAllDecimals {
		return val.String()
	}
	return humanizeDecimalStr(val.StringFixed(2))
}

func (h _PrintHelper) PoundStr(val decimal.Decimal) string {
	return "£" + h.CurrStr(val)
}

func (h _PrintHelper) PlusMinusPound(val decimal.Decimal, showPlus bool) string {
	if val.IsNegative() {
		return fmt.Sprintf("-£%s", h.CurrStr(val.Neg()))
	}
	plus := ""
	if showPlus {
		plus = "+"
	}
	return fmt.Sprintf("%s£%s", plus, h.CurrStr(val))
}

func strOrDash(useStr bool, str string) string {
	return util.Tern(useStr, str, "-")
}

type RenderTable struct {
	Header []string
	Rows   [][]string
	Footer []string
	Notes  []string
	Errors []error
}

// RenderMatchTableModel lays out every match event of the report, one row
// per event, with the per-bucket totals in the footer.
func RenderMatchTableModel(report *Report, renderFullValues bool) *RenderTable {
	table := &RenderTable{}
	table.Header = []string{"Date", "Match", "Sell Tx", "Buy Tx", "Quantity",
		"Proceeds", "Allowable Cost", "Gain (Loss)",
	}

	ph := _PrintHelper{PrintAllDecimals: renderFullValues}

	for _, event := range report.MatchEvents {
		corpAction := event.MatchType == CORPORATE_ACTION
		row := []string{
			event.Date.String(),
			event.MatchType.String(),
			strOrDash(event.SellTransactionID != "", event.SellTransactionID),
			strOrDash(event.BuyTransactionID != "", event.BuyTransactionID),
			event.Quantity.String(),
			strOrDash(!corpAction, ph.PoundStr(event.Proceeds)),
			strOrDash(!corpAction, ph.PoundStr(event.AllowableCost)),
			strOrDash(!corpAction, ph.PlusMinusPound(event.Gain, false)),
		}
		table.Rows = append(table.Rows, row)
	}

	totalLabels := strings.Join([]string{"Gains", "Losses", "Net"}, "\n")
	totalVals := strings.Join([]string{
		ph.PlusMinusPound(report.TotalGains, false),
		ph.PlusMinusPound(report.TotalLosses, false),
		ph.PlusMinusPound(report.NetGain, false),
	}, "\n")
	table.Footer = []string{"", "", "", "", "", "", totalLabels, totalVals}

	for _, warning := range report.Warnings {
		table.Notes = append(table.Notes, " [!] "+warning)
	}

	return table
}

/*
Generates a RenderTable that will render out to this:
| Tax Year  | Total Gains | Total Losses | Net Gain |
+-----------+-------------+--------------+----------+
| 2024/2025 | £xxxx.xx    | -£xxxx.xx    | £xxxx.xx |
*/
func RenderReportSummary(report *Report, renderFullValues bool) *RenderTable {
	table := &RenderTable{}
	table.Header = []string{"Tax Year", "Total Gains", "Total Losses", "Net Gain"}

	ph := _PrintHelper{PrintAllDecimals: renderFullValues}

	table.Rows = append(table.Rows, []string{
		report.TaxYear,
		ph.PlusMinusPound(report.TotalGains, false),
		ph.PlusMinusPound(report.TotalLosses, false),
		ph.PlusMinusPound(report.NetGain, false),
	})

	return table
}
