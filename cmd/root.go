package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ukcgt/cgtcalc/app"
	"github.com/ukcgt/cgtcalc/app/outfmt"
	"github.com/ukcgt/cgtcalc/cgt"
	"github.com/ukcgt/cgtcalc/log"
)

var TaxYearOpt = "2024/2025"
var ActionCsvFiles []string
var JSONOutput = false
var RenderFullValues = false
var CsvOutputDir = ""

func openDescribedReaders(fnames []string) ([]app.DescribedReader, []*os.File, error) {
	readers := make([]app.DescribedReader, 0, len(fnames))
	files := make([]*os.File, 0, len(fnames))
	for _, fname := range fnames {
		fp, err := os.Open(fname)
		if err != nil {
			return nil, files, err
		}
		files = append(files, fp)
		readers = append(readers, app.DescribedReader{Desc: fname, Reader: fp})
	}
	return readers, files, nil
}

func runRootCmd(cmd *cobra.Command, args []string) {
	errPrinter := &log.StderrErrorPrinter{}

	txReaders, txFiles, err := openDescribedReaders(args)
	defer func() {
		for _, fp := range txFiles {
			fp.Close()
		}
	}()
	if err != nil {
		errPrinter.F("Error: %v\n", err)
		os.Exit(1)
	}

	actionReaders, actionFiles, err := openDescribedReaders(ActionCsvFiles)
	defer func() {
		for _, fp := range actionFiles {
			fp.Close()
		}
	}()
	if err != nil {
		errPrinter.F("Error: %v\n", err)
		os.Exit(1)
	}

	var writer outfmt.ReportWriter
	if CsvOutputDir != "" {
		writer, err = outfmt.NewCSVWriter(CsvOutputDir)
		if err != nil {
			errPrinter.F("Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		writer = outfmt.NewSTDWriter(os.Stdout)
	}

	options := app.Options{
		TaxYear:          TaxYearOpt,
		RenderFullValues: RenderFullValues,
		JSONOutput:       JSONOutput,
	}

	err = app.RunCgtApp(txReaders, actionReaders, options, errPrinter, os.Stdout, writer)
	if err != nil {
		os.Exit(1)
	}
}

func cmdName() string {
	binName := os.Args[0]
	return filepath.Base(binName)
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   cmdName() + " [CSV_FILE ...]",
	Short: "UK capital gains tax (CGT) share matching calculator",
	Long: fmt.Sprintf(
		`A cli tool which computes realized capital gains and losses from
buy/sell transactions, applying the HMRC share identification rules
(same day, bed & breakfast, section 104 pool), with stock splits applied
in-line on the pool.

Each transaction CSV provided should contain a header with these column names:
%s
Transactions inside exempt wrappers (ISA/JISA/LISA/SIPP) are ignored.

Corporate action CSVs (--actions) use the columns:
date, kind, source isin, ratio from, ratio to, memo
 `, strings.Join(cgt.TxColNames, ", ")),
	Run:     runRootCmd,
	Args:    cobra.MinimumNArgs(1),
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags, which are global to the app cli
	RootCmd.PersistentFlags().BoolVarP(&log.VerboseEnabled, "verbose", "v", false,
		"Print verbose output")
	RootCmd.PersistentFlags().StringVarP(&TaxYearOpt, "tax-year", "y", TaxYearOpt,
		"Tax year label attached to the report. Eg. 2024/2025")
	RootCmd.Flags().StringSliceVarP(&ActionCsvFiles, "actions", "a", []string{},
		"CSV file of corporate actions (splits etc.). May be provided multiple times.")
	RootCmd.PersistentFlags().BoolVar(&JSONOutput, "json", false,
		"Emit the report as JSON instead of tables")
	RootCmd.PersistentFlags().BoolVar(&RenderFullValues, "print-full-values", false,
		"Print full precision values, rather than rounded to pence")
	RootCmd.PersistentFlags().StringVar(&CsvOutputDir, "csv-output-dir", "",
		"Write tables as CSV files into this directory instead of stdout")
}
