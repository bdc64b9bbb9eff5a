package cgt

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ukcgt/cgtcalc/date"
	decimal_opt "github.com/ukcgt/cgtcalc/decimal_value"
)

type txColParser func(string, *Transaction) error

var txColParserMap = map[string]txColParser{
	"id":          parseTxID,
	"date":        parseTxDate,
	"action":      parseTxAction,
	"symbol":      parseTxSymbol,
	"isin":        parseTxIsin,
	"quantity":    parseTxQuantity,
	"amount":      parseTxAmount,
	"gbp amount":  parseTxGbpAmount,
	"tax wrapper": parseTxWrapper,
	"memo":        parseTxMemo,
}

var TxColNames []string

func init() {
	TxColNames = make([]string, 0, len(txColParserMap))
	for name := range txColParserMap {
		TxColNames = append(TxColNames, name)
	}
}

func DefaultTransaction() *Transaction {
	return &Transaction{Action: NO_ACTION, TaxWrapper: UNKNOWN_WRAPPER}
}

func CheckTransactionSanity(tx *Transaction) error {
	if (tx.Date == date.Date{}) {
		return fmt.Errorf("Transaction has no date")
	} else if tx.Action == NO_ACTION {
		return fmt.Errorf("Transaction has no action (Buy, Sell, ...)")
	} else if tx.Symbol == "" && tx.Isin == "" {
		return fmt.Errorf("Transaction has no security identifier")
	}
	return nil
}

// ParseTxCsv reads already-normalized transactions: ISO dates, decimal
// amounts, resolved identifiers and wrappers. Rows without an id get a
// generated one, so every match event can reference its transactions.
func ParseTxCsv(reader io.Reader, desc string) ([]*Transaction, error) {
	records, err := readCsvRecords(reader, desc)
	if err != nil {
		return nil, err
	}

	colParsers := make([]txColParser, len(records[0]))
	for i, col := range records[0] {
		sanCol := strings.TrimSpace(strings.ToLower(col))
		if parser, ok := txColParserMap[sanCol]; ok {
			colParsers[i] = parser
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Unrecognized column %s\n", sanCol)
			colParsers[i] = parseTxNothing
		}
	}

	txs := make([]*Transaction, 0, len(records)-1)
	for i, record := range records[1:] {
		tx := DefaultTransaction()
		for j, col := range record {
			err = colParsers[j](col, tx)
			if err != nil {
				return nil, fmt.Errorf("Error parsing %s at line:col %d:%d: %v", desc, i+1, j, err)
			}
		}
		err = CheckTransactionSanity(tx)
		if err != nil {
			return nil, fmt.Errorf("Error parsing %s at line %d: %v", desc, i+1, err)
		}
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func ParseTxCsvFile(fname string) ([]*Transaction, error) {
	fp, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ParseTxCsv(fp, fname)
}

func readCsvRecords(reader io.Reader, desc string) ([][]string, error) {
	csvR := csv.NewReader(reader)
	records, err := csvR.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Failed to parse CSV %s: %v", desc, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("No rows found in %s", desc)
	}
	return records, nil
}

func parseTxNothing(data string, tx *Transaction) error {
	return nil
}

func parseTxID(data string, tx *Transaction) error {
	tx.ID = strings.TrimSpace(data)
	return nil
}

func parseTxDate(data string, tx *Transaction) error {
	d, err := date.Parse(strings.TrimSpace(data))
	if err != nil {
		return err
	}
	tx.Date = d
	return nil
}

func parseTxAction(data string, tx *Transaction) error {
	var action TxAction = NO_ACTION
	switch strings.TrimSpace(strings.ToLower(data)) {
	case "buy":
		action = BUY
	case "sell":
		action = SELL
	case "dividend":
		action = DIVIDEND
	case "fee":
		action = FEE
	case "other":
		action = OTHER
	default:
		return fmt.Errorf("Invalid action: '%s'", data)
	}
	tx.Action = action
	return nil
}

func parseTxSymbol(data string, tx *Transaction) error {
	tx.Symbol = strings.TrimSpace(data)
	return nil
}

func parseTxIsin(data string, tx *Transaction) error {
	tx.Isin = strings.TrimSpace(data)
	return nil
}

func parseTxQuantity(data string, tx *Transaction) error {
	q, err := decimal.NewFromString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("Error parsing quantity: %v", err)
	}
	tx.Quantity = q
	return nil
}

func parseTxAmount(data string, tx *Transaction) error {
	amt, err := decimal.NewFromString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("Error parsing amount: %v", err)
	}
	tx.Amount = amt
	return nil
}

func parseTxGbpAmount(data string, tx *Transaction) error {
	data = strings.TrimSpace(data)
	if data == "" {
		tx.GbpAmount = decimal_opt.Null
		return nil
	}
	amt, err := decimal_opt.NewFromString(data)
	if err != nil {
		return fmt.Errorf("Error parsing gbp amount: %v", err)
	}
	tx.GbpAmount = amt
	return nil
}

func parseTxWrapper(data string, tx *Transaction) error {
	data = strings.TrimSpace(strings.ToUpper(data))
	if data == "" {
		tx.TaxWrapper = UNKNOWN_WRAPPER
		return nil
	}
	switch wrapper := TaxWrapper(data); wrapper {
	case GIA, ISA, JISA, LISA, SIPP, SSAS, OFFSHORE_BOND, ONSHORE_BOND, UNKNOWN_WRAPPER:
		tx.TaxWrapper = wrapper
	default:
		return fmt.Errorf("Invalid tax wrapper: '%s'", data)
	}
	return nil
}

func parseTxMemo(data string, tx *Transaction) error {
	tx.Memo = data
	return nil
}

type actionColParser func(string, *CorporateAction) error

var actionColParserMap = map[string]actionColParser{
	"date":        parseActionDate,
	"kind":        parseActionKind,
	"source isin": parseActionSource,
	"ratio from":  parseActionRatioFrom,
	"ratio to":    parseActionRatioTo,
	"memo":        parseActionMemo,
}

func DefaultCorporateAction() *CorporateAction {
	// A 1:1 ratio keeps an unpopulated split harmless.
	return &CorporateAction{
		RatioFrom: decimal.NewFromInt(1),
		RatioTo:   decimal.NewFromInt(1),
	}
}

func CheckCorporateActionSanity(action *CorporateAction) error {
	if (action.Date == date.Date{}) {
		return fmt.Errorf("Corporate action has no date")
	} else if action.SourceID == "" {
		return fmt.Errorf("Corporate action has no source security")
	}
	return nil
}

func ParseCorporateActionCsv(reader io.Reader, desc string) ([]*CorporateAction, error) {
	records, err := readCsvRecords(reader, desc)
	if err != nil {
		return nil, err
	}

	colParsers := make([]actionColParser, len(records[0]))
	for i, col := range records[0] {
		sanCol := strings.TrimSpace(strings.ToLower(col))
		if parser, ok := actionColParserMap[sanCol]; ok {
			colParsers[i] = parser
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Unrecognized column %s\n", sanCol)
			colParsers[i] = func(string, *CorporateAction) error { return nil }
		}
	}

	actions := make([]*CorporateAction, 0, len(records)-1)
	for i, record := range records[1:] {
		action := DefaultCorporateAction()
		for j, col := range record {
			err = colParsers[j](col, action)
			if err != nil {
				return nil, fmt.Errorf("Error parsing %s at line:col %d:%d: %v", desc, i+1, j, err)
			}
		}
		err = CheckCorporateActionSanity(action)
		if err != nil {
			return nil, fmt.Errorf("Error parsing %s at line %d: %v", desc, i+1, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func ParseCorporateActionCsvFile(fname string) ([]*CorporateAction, error) {
	fp, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ParseCorporateActionCsv(fp, fname)
}

func parseActionDate(data string, action *CorporateAction) error {
	d, err := date.Parse(strings.TrimSpace(data))
	if err != nil {
		return err
	}
	action.Date = d
	return nil
}

func parseActionKind(data string, action *CorporateAction) error {
	switch strings.TrimSpace(strings.ToUpper(data)) {
	case "STOCK_SPLIT":
		action.Kind = STOCK_SPLIT
	case "REVERSE_SPLIT":
		action.Kind = REVERSE_SPLIT
	case "RIGHTS_ISSUE":
		action.Kind = RIGHTS_ISSUE
	case "MERGER":
		action.Kind = MERGER
	case "SPIN_OFF":
		action.Kind = SPIN_OFF
	case "RETURN_OF_CAPITAL":
		action.Kind = RETURN_OF_CAPITAL
	case "SCRIP_DIVIDEND":
		action.Kind = SCRIP_DIVIDEND
	case "TENDER_OFFER":
		action.Kind = TENDER_OFFER
	case "NAME_CHANGE":
		action.Kind = NAME_CHANGE
	default:
		return fmt.Errorf("Invalid corporate action kind: '%s'", data)
	}
	return nil
}

func parseActionSource(data string, action *CorporateAction) error {
	action.SourceID = strings.TrimSpace(data)
	return nil
}

func parseActionRatioFrom(data string, action *CorporateAction) error {
	r, err := decimal.NewFromString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("Error parsing ratio from: %v", err)
	}
	action.RatioFrom = r
	return nil
}

func parseActionRatioTo(data string, action *CorporateAction) error {
	r, err := decimal.NewFromString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("Error parsing ratio to: %v", err)
	}
	action.RatioTo = r
	return nil
}

func parseActionMemo(data string, action *CorporateAction) error {
	action.Memo = data
	return nil
}
