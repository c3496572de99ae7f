package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleCatalog() Catalog {
	return Catalog{Vendors: []Vendor{
		{Name: "Dairy", Products: []Product{
			{Name: "Milk", Base: []int{20, 60, 100}},
			{Name: "Curd", Base: []int{4, 12, 20}},
		}},
		{Name: "Bakery", Products: []Product{
			{Name: "Bread", Base: []int{10, 30, 50}},
		}},
	}}
}

func TestWorkspaceLoadSelectsFirstVendorAndClearsOnHand(t *testing.T) {
	var ws Workspace
	ws.Load(sampleCatalog(), "book.xlsx", time.Now())
	require.Equal(t, "Dairy", ws.Vendor)
	require.NoError(t, ws.SetOnHand("Dairy", 0, "5"))
	require.True(t, ws.HasOnHand("Dairy"))

	ws.Load(sampleCatalog(), "book2.xlsx", time.Now())

	require.False(t, ws.HasOnHand("Dairy"))
	require.Equal(t, "book2.xlsx", ws.Source)
}

func TestWorkspaceProjectionIsLive(t *testing.T) {
	layout := DefaultLayout()
	var ws Workspace
	ws.Load(sampleCatalog(), "book.xlsx", time.Now())

	rows, err := ws.Projection(layout)
	require.NoError(t, err)
	require.Equal(t, 20, rows[0].Qty)

	require.NoError(t, ws.SetOnHand("Dairy", 0, "5"))
	rows, err = ws.Projection(layout)
	require.NoError(t, err)
	require.Equal(t, 15, rows[0].Qty)

	require.NoError(t, ws.SetHorizon(layout, 3))
	rows, err = ws.Projection(layout)
	require.NoError(t, err)
	require.Equal(t, 55, rows[0].Qty)

	require.NoError(t, ws.SetOnHand("Dairy", 0, "not a number"))
	rows, err = ws.Projection(layout)
	require.NoError(t, err)
	require.Equal(t, 60, rows[0].Qty)
}

func TestWorkspaceSelectAndErrors(t *testing.T) {
	layout := DefaultLayout()
	var ws Workspace

	require.ErrorIs(t, ws.Select("Dairy", "BHD"), ErrNoCatalog)
	_, err := ws.Projection(layout)
	require.ErrorIs(t, err, ErrNoCatalog)

	ws.Load(sampleCatalog(), "book.xlsx", time.Now())
	require.ErrorIs(t, ws.Select("Nope", ""), ErrUnknownVendor)
	require.NoError(t, ws.Select("Bakery", "Clifton"))
	require.Equal(t, "Clifton", ws.Branch)
	require.NoError(t, ws.Select("Dairy", ""))
	require.Equal(t, "Clifton", ws.Branch)

	require.ErrorIs(t, ws.SetOnHand("Dairy", 5, "1"), ErrUnknownProduct)
	require.ErrorIs(t, ws.SetOnHand("Ghost", 0, "1"), ErrUnknownVendor)
	require.ErrorIs(t, ws.SetHorizon(layout, 2), ErrUnknownHorizon)
}

func TestWorkspaceOnHandIsPerVendor(t *testing.T) {
	var ws Workspace
	ws.Load(sampleCatalog(), "book.xlsx", time.Now())
	require.NoError(t, ws.SetOnHand("Bakery", 0, "4"))

	require.False(t, ws.HasOnHand("Dairy"))
	require.NoError(t, ws.Select("Bakery", ""))
	rows, err := ws.Projection(DefaultLayout())
	require.NoError(t, err)
	require.Equal(t, 6, rows[0].Qty)
}

func TestWorkspaceResetKeepsBranch(t *testing.T) {
	var ws Workspace
	ws.Load(sampleCatalog(), "book.xlsx", time.Now())
	require.NoError(t, ws.Select("Dairy", "Badar"))
	ws.SetInvoice(NewInvoice("Dairy", "Badar", []ProjectionRow{{Product: "Milk", Qty: 1}}, time.Now(), InvoiceOptions{}))
	require.NotEmpty(t, ws.InvoiceTxt)

	ws.Reset()

	require.False(t, ws.Loaded())
	require.Empty(t, ws.InvoiceTxt)
	require.Nil(t, ws.Invoice)
	require.Equal(t, "Badar", ws.Branch)
}

func TestWorkspaceSwitchVendorClearsInvoice(t *testing.T) {
	var ws Workspace
	ws.Load(sampleCatalog(), "book.xlsx", time.Now())
	ws.SetInvoice(NewInvoice("Dairy", "BHD", []ProjectionRow{{Product: "Milk", Qty: 1}}, time.Now(), InvoiceOptions{}))

	require.NoError(t, ws.Select("Dairy", "BHD"))
	require.NotEmpty(t, ws.InvoiceTxt)
	require.NoError(t, ws.Select("Bakery", "BHD"))
	require.Empty(t, ws.InvoiceTxt)
}
