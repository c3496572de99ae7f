package forecast

import "errors"

var (
	// ErrNoValidRows indicates a workbook without any named product rows.
	ErrNoValidRows = errors.New("no valid rows found")
	// ErrUnknownHorizon indicates a horizon outside the configured set.
	ErrUnknownHorizon = errors.New("unknown horizon")
	// ErrUnknownVendor indicates a vendor missing from the loaded catalog.
	ErrUnknownVendor = errors.New("unknown vendor")
	// ErrUnknownBranch indicates a branch outside the configured list.
	ErrUnknownBranch = errors.New("unknown branch")
	// ErrUnknownProduct indicates a product index outside the vendor's list.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrNoCatalog indicates an operation that needs an uploaded workbook.
	ErrNoCatalog = errors.New("no workbook loaded")
	// ErrNothingToOrder indicates an invoice without any included rows.
	ErrNothingToOrder = errors.New("nothing to order")
)
