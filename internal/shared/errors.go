package shared

import (
	"errors"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/workbook"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps a domain error to the text shown to the user. Unknown
// errors get a generic message so internals never leak into the page.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, forecast.ErrNoValidRows):
		return "No valid rows found. Please check your Excel file."
	case errors.Is(err, workbook.ErrUnsupportedFormat):
		return "Unsupported file type. Upload an .xlsx, .xls or .csv file."
	case errors.Is(err, workbook.ErrEmptyWorkbook):
		return "The uploaded file is empty."
	case errors.Is(err, forecast.ErrNoCatalog):
		return "Upload a workbook first."
	case errors.Is(err, forecast.ErrUnknownVendor):
		return "That vendor is not in the loaded workbook."
	case errors.Is(err, forecast.ErrUnknownBranch):
		return "Unknown branch."
	case errors.Is(err, forecast.ErrUnknownHorizon):
		return "That projection is not available."
	case errors.Is(err, forecast.ErrUnknownProduct):
		return "That product is not in the selected vendor."
	case errors.Is(err, forecast.ErrNothingToOrder):
		return "Nothing to order: every projected quantity is zero."
	case errors.Is(err, ErrCSRFTokenMissing), errors.Is(err, ErrCSRFTokenMismatch):
		return "Your form expired. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
