package forecast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCSVEscapesNames(t *testing.T) {
	rows := []ProjectionRow{{Product: `Rice, 5kg "Premium"`, Qty: 12}}

	out := BuildCSV(rows, InvoiceOptions{})

	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	require.Equal(t, []string{"Product,Projected Qty", `"Rice, 5kg ""Premium""",12`}, lines)
}

func TestBuildCSVFiltersZeros(t *testing.T) {
	rows := []ProjectionRow{{Product: "Milk", Qty: 15}, {Product: "Curd", Qty: 0}}

	require.Equal(t, "Product,Projected Qty\r\nMilk,15\r\n", BuildCSV(rows, InvoiceOptions{}))
	require.Equal(t, "Product,Projected Qty\r\nMilk,15\r\nCurd,0\r\n", BuildCSV(rows, InvoiceOptions{IncludeZeros: true}))
}

func TestBuildCSVHeaderOnly(t *testing.T) {
	require.Equal(t, "Product,Projected Qty\r\n", BuildCSV(nil, InvoiceOptions{}))
}
