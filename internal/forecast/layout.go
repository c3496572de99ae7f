package forecast

import (
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

// Mode selects how the numeric columns of a sheet are interpreted.
type Mode string

const (
	// ModeHorizon treats columns 1-3 as demand for fixed day counts.
	ModeHorizon Mode = "horizon"
	// ModeAverage treats column 1 as the average demand per day.
	ModeAverage Mode = "average"
	// ModeMonthly treats columns 1-3 as monthly totals and derives a per-day average.
	ModeMonthly Mode = "monthly"
)

// DemandColumns is the number of numeric columns read after the product name.
const DemandColumns = 3

// Layout describes the workbook format and the horizons offered to users.
type Layout struct {
	Mode         Mode
	Columns      []int
	Horizons     []int
	DaysPerMonth int
}

// DefaultLayout returns the 1/3/5 day column layout.
func DefaultLayout() Layout {
	return Layout{
		Mode:         ModeHorizon,
		Columns:      []int{1, 3, 5},
		Horizons:     []int{1, 3, 5},
		DaysPerMonth: 30,
	}
}

// NewLayout builds a layout from configuration values. Empty horizons fall back
// to the columns in horizon mode and to one week otherwise.
func NewLayout(mode string, columns, horizons []int, daysPerMonth int) (Layout, error) {
	l := Layout{
		Mode:         Mode(mode),
		Columns:      slices.Clone(columns),
		Horizons:     slices.Clone(horizons),
		DaysPerMonth: daysPerMonth,
	}
	if l.Mode == "" {
		l.Mode = ModeHorizon
	}
	if l.DaysPerMonth <= 0 {
		l.DaysPerMonth = 30
	}
	if len(l.Horizons) == 0 {
		if l.Mode == ModeHorizon {
			l.Horizons = slices.Clone(l.Columns)
		} else {
			l.Horizons = []int{1, 2, 3, 4, 5, 6, 7}
		}
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks the layout for configuration errors.
func (l Layout) Validate() error {
	switch l.Mode {
	case ModeHorizon:
		if len(l.Columns) != DemandColumns {
			return fmt.Errorf("forecast: horizon mode needs %d column day counts, got %d", DemandColumns, len(l.Columns))
		}
		for _, h := range l.Horizons {
			if !slices.Contains(l.Columns, h) {
				return fmt.Errorf("forecast: horizon %d has no matching column: %w", h, ErrUnknownHorizon)
			}
		}
	case ModeAverage, ModeMonthly:
	default:
		return fmt.Errorf("forecast: unknown ingestion mode %q", l.Mode)
	}
	if len(l.Horizons) == 0 {
		return fmt.Errorf("forecast: at least one horizon required")
	}
	for _, h := range l.Horizons {
		if h <= 0 {
			return fmt.Errorf("forecast: horizon must be positive, got %d", h)
		}
	}
	for _, c := range l.Columns {
		if c <= 0 {
			return fmt.Errorf("forecast: column day count must be positive, got %d", c)
		}
	}
	return nil
}

// Supports reports whether the horizon is one of the offered day counts.
func (l Layout) Supports(horizon int) bool {
	return slices.Contains(l.Horizons, horizon)
}

// ColumnLabels names the three numeric columns for display.
func (l Layout) ColumnLabels() []string {
	switch l.Mode {
	case ModeAverage:
		return []string{"Per Day", "", ""}
	case ModeMonthly:
		return []string{"Month 1", "Month 2", "Month 3"}
	}
	labels := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		labels[i] = DaysLabel(c)
	}
	return labels
}

// maxDemand saturates averaged demand instead of letting IntPart wrap.
var maxDemand = decimal.NewFromInt(int64(math.MaxInt))

// Demand returns the projected demand of a product over the horizon before
// on-hand stock is subtracted.
func (l Layout) Demand(p Product, horizon int) (int, error) {
	if !l.Supports(horizon) {
		return 0, fmt.Errorf("forecast: %d days: %w", horizon, ErrUnknownHorizon)
	}
	if l.Mode == ModeHorizon {
		idx := slices.Index(l.Columns, horizon)
		if idx < 0 || idx >= len(p.Base) {
			return 0, fmt.Errorf("forecast: %d days: %w", horizon, ErrUnknownHorizon)
		}
		return clampZero(p.Base[idx]), nil
	}
	total := p.PerDay.Mul(decimal.NewFromInt(int64(horizon))).Round(0)
	if total.GreaterThan(maxDemand) {
		return math.MaxInt, nil
	}
	return clampZero(int(total.IntPart())), nil
}

// Project is the three-argument projection: demand over the horizon less the
// on-hand count, never below zero.
func (l Layout) Project(p Product, horizon, onHand int) (int, error) {
	demand, err := l.Demand(p, horizon)
	if err != nil {
		return 0, err
	}
	return Project(demand, onHand), nil
}

// DaysLabel renders "1 Day" or "N Days".
func DaysLabel(days int) string {
	if days == 1 {
		return "1 Day"
	}
	return fmt.Sprintf("%d Days", days)
}
