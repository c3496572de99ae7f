package forecast

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseIntOrZero converts a spreadsheet or form cell to an integer. The value is
// parsed as a float and truncated toward zero; blanks, malformed text, NaN,
// infinities and values outside the int64 range all yield 0. Partially filled
// sheets must still import, so this never reports an error.
func ParseIntOrZero(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int(f)
}

// CoerceQuantity is ParseIntOrZero clamped to zero, used for demand figures and
// on-hand counts which are never negative.
func CoerceQuantity(raw string) int {
	return clampZero(ParseIntOrZero(raw))
}

// ParseDecimalOrZero follows the same coerce-or-zero rule but keeps the
// fractional part. Negative values clamp to zero and values outside the int64
// range yield 0, as in ParseIntOrZero.
func ParseDecimalOrZero(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxInt64 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
