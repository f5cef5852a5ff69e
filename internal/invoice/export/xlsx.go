package export

import (
	"fmt"
	"io"

	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Invoices"

var headers = []string{
	"Invoice number", "Status", "Type", "User ID", "Country", "Currency",
	"Subtotal", "Tax rate", "Tax", "Total", "Exempt", "Created at", "Paid at",
}

// WriteXLSX writes invoices as one sheet with a header row. Amounts are
// written as text so no precision is lost to spreadsheet floats.
func WriteXLSX(w io.Writer, invoices []invoicedomain.Invoice) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(sheetName, 1, 1, headerStyle); err != nil {
		return err
	}

	for r, inv := range invoices {
		paidAt := ""
		if inv.PaidAt != nil {
			paidAt = inv.PaidAt.UTC().Format("2006-01-02 15:04:05")
		}
		row := []any{
			inv.InvoiceNumber,
			string(inv.Status),
			string(inv.Type),
			inv.UserID,
			inv.CountryCode,
			inv.CurrencyCode,
			inv.Subtotal.String(),
			inv.TaxRate.String(),
			inv.TaxAmount.String(),
			inv.Total.String(),
			yesNo(inv.IsTaxExempt),
			inv.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			paidAt,
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	_, err = f.WriteTo(w)
	return err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
