// Package export writes a projected transaction view to a spreadsheet.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/txn-review/approvals/src/data"
)

const sheetName = "Transactions"

var header = []any{"ID", "Employee", "Merchant", "Date", "Amount", "Approved"}

// WriteXLSX writes txs, in the given order, to a new workbook at path.
func WriteXLSX(path string, txs []data.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, tx := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		amount, _ := tx.Amount.Float64()
		row := []any{tx.ID, tx.Employee.DisplayName(), tx.Merchant, tx.Date, amount, tx.Approved}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row for %s: %w", tx.ID, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
