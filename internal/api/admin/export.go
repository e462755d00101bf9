package admin

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

const loansSheet = "Loans"

var loanExportHeaders = []string{
	"Loan ID", "License", "Organization ID", "User", "Email", "Status",
	"Loan Date", "Due Date", "Returned At", "Overdue", "Days Remaining",
}

var loanExportWidths = []float64{38, 24, 38, 20, 28, 10, 20, 20, 20, 9, 15}

// loansWorkbook renders loans as a single-sheet XLSX file with a frozen header row
func loansWorkbook(loans []*models.LoanDetail) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(loansSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, header := range loanExportHeaders {
		if err := setCell(f, i+1, 1, header); err != nil {
			return nil, err
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(loansSheet, col, col, loanExportWidths[i]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(loanExportHeaders), 1)
	if err := f.SetCellStyle(loansSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, l := range loans {
		row := i + 2
		returned := ""
		if l.ReturnedAt != nil {
			returned = formatExportTime(*l.ReturnedAt)
		}
		overdue := "No"
		if l.IsOverdue {
			overdue = "Yes"
		}
		values := []interface{}{
			l.ID, l.LicenseName, l.OrganizationID, l.UserName, l.UserEmail, l.Status,
			formatExportTime(l.LoanDate), formatExportTime(l.DueDate), returned, overdue, l.DaysRemaining,
		}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(loansSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header row: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(loansSheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

func formatExportTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
