package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sheet1"

// ExportStockCardExcel writes the movement history of one medicine as an xlsx
// workbook: every ledger row with its running balance, reversals included.
func ExportStockCardExcel(ctx context.Context, w io.Writer, medicineId int, batchId *int) error {
	rows, err := models.GetStockCard(ctx, medicineId, batchId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(exportSheet); err != nil {
		return err
	}

	headings := []string{"Date", "Type", "Reference", "Line", "Batch", "Qty", "Balance", "Note"}
	for i, h := range headings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
	}

	for i, row := range rows {
		rowNo := i + 2
		m := row.Movement
		batch := ""
		if m.BatchId != nil {
			batch = fmt.Sprint(*m.BatchId)
		}
		values := []interface{}{
			m.MovementDate.Format("2006-01-02"),
			string(m.MovementType),
			fmt.Sprintf("%s-%d", m.ReferenceType, m.ReferenceId),
			m.LineNo,
			batch,
			m.Qty.String(),
			row.Balance.String(),
			m.Note,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, rowNo)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	return f.Write(w)
}

// ExportGeneralLedgerExcel writes the financial ledger for a period, one row
// per transaction with a running balance per the query's account filter.
func ExportGeneralLedgerExcel(ctx context.Context, w io.Writer, from, to time.Time, accountId *int) error {
	transactions, err := models.GetGeneralLedger(ctx, from, to, accountId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(exportSheet); err != nil {
		return err
	}

	headings := []string{"Date", "Account", "Type", "Reference", "Amount", "Description", "Reversal"}
	for i, h := range headings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
	}

	for i, t := range transactions {
		rowNo := i + 2
		reversal := ""
		if t.IsReversal {
			reversal = "yes"
		}
		values := []interface{}{
			t.TransactionDate.Format("2006-01-02"),
			t.AccountId,
			string(t.TransactionType),
			fmt.Sprintf("%s-%d", t.ReferenceType, t.ReferenceId),
			t.Amount.String(),
			t.Description,
			reversal,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, rowNo)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	return f.Write(w)
}
