package cli

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/workbook"
)

// Exit codes returned by Run.
const (
	ExitOK         = 0
	ExitUsage      = 1
	ExitNoValidRow = 2
)

// Output formats accepted by -format.
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Settings carries the layout and branch configuration shared with the server.
type Settings struct {
	Mode         string   `envconfig:"FORECAST_MODE" default:"horizon"`
	Columns      []int    `envconfig:"FORECAST_COLUMNS" default:"1,3,5"`
	Horizons     []int    `envconfig:"FORECAST_HORIZONS"`
	DaysPerMonth int      `envconfig:"FORECAST_DAYS_PER_MONTH" default:"30"`
	Branches     []string `envconfig:"BRANCHES" default:"Shahbaz,Clifton,Badar,DHA Ecom,BHD Ecom,BHD,Head Office"`
	Timezone     string   `envconfig:"INVOICE_TIMEZONE" default:"Local"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	err := envconfig.Process("", &s)
	return s, err
}

// ProjectOptions defines the flags of the offline projection command.
type ProjectOptions struct {
	File         string
	Vendor       string
	Branch       string
	Horizon      int
	OnHandFile   string
	Format       string
	IncludeZeros bool
	List         bool
	Settings     Settings
	Now          func() time.Time
	Stdout       io.Writer
	Stderr       io.Writer
}

// ProjectSummary is the JSON document printed with -format json.
type ProjectSummary struct {
	Vendor     string                   `json:"vendor"`
	Branch     string                   `json:"branch"`
	Horizon    int                      `json:"horizon"`
	Rows       []forecast.ProjectionRow `json:"rows"`
	TotalItems int                      `json:"total_items"`
	TotalQty   int                      `json:"total_qty"`
	Invoice    string                   `json:"invoice"`
}

// VendorSummary describes one vendor in -list output.
type VendorSummary struct {
	Name     string `json:"name"`
	Products int    `json:"products"`
}

// Run loads the workbook, applies on-hand counts and prints the result.
func Run(opts ProjectOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if strings.TrimSpace(opts.File) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "forecastctl: -file is required")
		return ExitUsage
	}
	if !slices.Contains([]string{FormatText, FormatCSV, FormatJSON}, opts.Format) {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: unknown format %q (expected text, csv or json)\n", opts.Format)
		return ExitUsage
	}

	s := opts.Settings
	layout, err := forecast.NewLayout(strings.ToLower(s.Mode), s.Columns, s.Horizons, s.DaysPerMonth)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: %v\n", err)
		return ExitUsage
	}

	catalog, err := loadCatalog(opts.File, layout)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: %v\n", err)
		if errors.Is(err, forecast.ErrNoValidRows) {
			return ExitNoValidRow
		}
		return ExitUsage
	}

	if opts.List {
		return listVendors(opts, catalog)
	}

	vendorName := opts.Vendor
	if vendorName == "" {
		vendorName = catalog.Vendors[0].Name
	}
	vendor, ok := catalog.Vendor(vendorName)
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: vendor %q not found; run with -list\n", vendorName)
		return ExitUsage
	}

	branch := opts.Branch
	if branch == "" && len(s.Branches) > 0 {
		branch = s.Branches[0]
	}
	if len(s.Branches) > 0 && !slices.Contains(s.Branches, branch) {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: unknown branch %q\n", branch)
		return ExitUsage
	}

	horizon := opts.Horizon
	if horizon == 0 {
		horizon = layout.Horizons[0]
	}
	if !layout.Supports(horizon) {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: horizon %d not offered (choose from %v)\n", horizon, layout.Horizons)
		return ExitUsage
	}

	onHand := forecast.OnHand{}
	if opts.OnHandFile != "" {
		onHand, err = loadOnHand(opts.OnHandFile, vendor, opts.Stderr)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: on-hand: %v\n", err)
			return ExitUsage
		}
	}

	rows, err := forecast.ProjectVendor(vendor, onHand, layout, horizon)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: %v\n", err)
		return ExitUsage
	}

	loc := time.Local
	if s.Timezone != "" && s.Timezone != "Local" {
		if loc, err = time.LoadLocation(s.Timezone); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: invoice timezone: %v\n", err)
			return ExitUsage
		}
	}
	invOpts := forecast.InvoiceOptions{IncludeZeros: opts.IncludeZeros}
	invoice := forecast.NewInvoice(vendor.Name, branch, rows, opts.Now().In(loc), invOpts)

	switch opts.Format {
	case FormatCSV:
		err = forecast.WriteCSV(opts.Stdout, rows, invOpts)
	case FormatJSON:
		err = json.NewEncoder(opts.Stdout).Encode(ProjectSummary{
			Vendor:     vendor.Name,
			Branch:     branch,
			Horizon:    horizon,
			Rows:       invoice.Items,
			TotalItems: invoice.TotalItems,
			TotalQty:   invoice.TotalQty,
			Invoice:    invoice.Text(),
		})
	default:
		_, err = fmt.Fprintln(opts.Stdout, invoice.Text())
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: write output: %v\n", err)
		return ExitUsage
	}
	return ExitOK
}

func loadCatalog(path string, layout forecast.Layout) (forecast.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return forecast.Catalog{}, err
	}
	defer f.Close()

	sheets, err := workbook.Read(f, path)
	if errors.Is(err, workbook.ErrEmptyWorkbook) {
		return forecast.Catalog{}, forecast.ErrNoValidRows
	}
	if err != nil {
		return forecast.Catalog{}, err
	}
	catalog := forecast.Normalize(sheets, layout)
	if catalog.Empty() {
		return forecast.Catalog{}, forecast.ErrNoValidRows
	}
	return catalog, nil
}

func listVendors(opts ProjectOptions, catalog forecast.Catalog) int {
	summaries := make([]VendorSummary, 0, len(catalog.Vendors))
	for _, v := range catalog.Vendors {
		summaries = append(summaries, VendorSummary{Name: v.Name, Products: len(v.Products)})
	}
	if opts.Format == FormatJSON {
		if err := json.NewEncoder(opts.Stdout).Encode(summaries); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: encode json: %v\n", err)
			return ExitUsage
		}
		return ExitOK
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VENDOR\tPRODUCTS")
	for _, s := range summaries {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", s.Name, s.Products)
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "forecastctl: write output: %v\n", err)
		return ExitUsage
	}
	return ExitOK
}

// loadOnHand reads product,qty rows. Each name maps to the first product of
// the vendor carrying it; unknown names are reported and skipped.
func loadOnHand(path string, vendor forecast.Vendor, stderr io.Writer) (forecast.OnHand, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(vendor.Products))
	for i, p := range vendor.Products {
		if _, seen := index[p.Name]; !seen {
			index[p.Name] = i
		}
	}

	onHand := forecast.OnHand{}
	for n, record := range records {
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if n == 0 && strings.EqualFold(name, "product") {
			continue
		}
		idx, ok := index[name]
		if !ok {
			_, _ = fmt.Fprintf(stderr, "forecastctl: on-hand: skipping unknown product %q\n", name)
			continue
		}
		onHand[idx] = forecast.CoerceQuantity(record[1])
	}
	return onHand, nil
}
