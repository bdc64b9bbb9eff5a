package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ukcgt/cgtcalc/app/outfmt"
	"github.com/ukcgt/cgtcalc/cgt"
	"github.com/ukcgt/cgtcalc/log"
)

type Options struct {
	TaxYear          string
	RenderFullValues bool
	JSONOutput       bool
}

type DescribedReader struct {
	Desc   string
	Reader io.Reader
}

// RunCgtApp parses the provided transaction and corporate-action CSVs, runs
// the matching engine over them, and emits the report through writer (or as
// JSON on jsonWriter when Options.JSONOutput is set).
func RunCgtApp(
	txCsvReaders []DescribedReader,
	actionCsvReaders []DescribedReader,
	options Options,
	errPrinter log.ErrorPrinter,
	jsonWriter io.Writer,
	writer outfmt.ReportWriter,
) error {

	allTxs := make([]*cgt.Transaction, 0, 20)
	for _, csvReader := range txCsvReaders {
		txs, err := cgt.ParseTxCsv(csvReader.Reader, csvReader.Desc)
		if err != nil {
			errPrinter.Ln("Error:", err)
			return err
		}
		allTxs = append(allTxs, txs...)
	}

	allActions := make([]*cgt.CorporateAction, 0, 4)
	for _, csvReader := range actionCsvReaders {
		actions, err := cgt.ParseCorporateActionCsv(csvReader.Reader, csvReader.Desc)
		if err != nil {
			errPrinter.Ln("Error:", err)
			return err
		}
		allActions = append(allActions, actions...)
	}

	report, err := cgt.Calculate(allTxs, allActions, options.TaxYear)
	if err != nil {
		errPrinter.Ln("Error:", err)
		return err
	}

	if options.JSONOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Fprintln(jsonWriter, string(out))
		return nil
	}

	err = writer.PrintRenderTable(
		outfmt.Matches, options.TaxYear,
		cgt.RenderMatchTableModel(report, options.RenderFullValues))
	if err != nil {
		return err
	}
	return writer.PrintRenderTable(
		outfmt.Summary, options.TaxYear,
		cgt.RenderReportSummary(report, options.RenderFullValues))
}
