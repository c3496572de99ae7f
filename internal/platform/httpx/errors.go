// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/workbook"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, forecast.ErrUnknownHorizon),
		errors.Is(err, forecast.ErrUnknownBranch),
		errors.Is(err, workbook.ErrUnsupportedFormat):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, forecast.ErrUnknownVendor), errors.Is(err, forecast.ErrUnknownProduct):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, forecast.ErrNoCatalog):
		Problem(w, http.StatusConflict, "No Workbook", err.Error())
	case errors.Is(err, forecast.ErrNoValidRows),
		errors.Is(err, forecast.ErrNothingToOrder),
		errors.Is(err, workbook.ErrEmptyWorkbook):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
