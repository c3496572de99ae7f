package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/freshbasket/forecast/cmd/forecastctl/cli"
)

func main() {
	var (
		file         = flag.String("file", "", "Path to the demand workbook (.xlsx, .xls or .csv)")
		vendor       = flag.String("vendor", "", "Vendor (sheet) to project; defaults to the first")
		branch       = flag.String("branch", "", "Branch printed on the invoice; defaults to the first configured")
		horizon      = flag.Int("horizon", 0, "Days to project; defaults to the first configured horizon")
		onHand       = flag.String("onhand", "", "Optional CSV of product,qty on-hand counts")
		format       = flag.String("format", cli.FormatText, "Output format: text, csv, json")
		includeZeros = flag.Bool("include-zeros", false, "Keep zero-quantity products in the output")
		list         = flag.Bool("list", false, "List vendors in the workbook and exit")
	)
	flag.Parse()

	settings, err := cli.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forecastctl: load settings: %v\n", err)
		os.Exit(cli.ExitUsage)
	}

	os.Exit(cli.Run(cli.ProjectOptions{
		File:         *file,
		Vendor:       *vendor,
		Branch:       *branch,
		Horizon:      *horizon,
		OnHandFile:   *onHand,
		Format:       *format,
		IncludeZeros: *includeZeros,
		List:         *list,
		Settings:     settings,
	}))
}
