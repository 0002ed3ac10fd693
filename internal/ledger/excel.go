package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX writes the ledger to an Excel workbook with one summary
// sheet per regime plus a combined sheet.
func (l *Ledger) ExportXLSX(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const sheet = "Performance"
	fx.SetSheetName(fx.GetSheetName(0), sheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}
	percentStyle, err := fx.NewStyle(&excelize.Style{
		NumFmt:    9,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return err
	}
	pnlStyle, err := fx.NewStyle(&excelize.Style{
		NumFmt:    2,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return err
	}

	headers := []string{"Regime", "Instrument", "Trades", "Wins", "Losses", "Win Rate", "Total PnL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}
	if err := fx.SetCellStyle(sheet, "A1", "G1", headerStyle); err != nil {
		return err
	}

	for row, b := range l.Snapshot() {
		r := row + 2
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", r), b.Regime.String())
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", r), b.Instrument)
		fx.SetCellValue(sheet, fmt.Sprintf("C%d", r), b.Trades)
		fx.SetCellValue(sheet, fmt.Sprintf("D%d", r), b.Wins)
		fx.SetCellValue(sheet, fmt.Sprintf("E%d", r), b.Losses)
		fx.SetCellValue(sheet, fmt.Sprintf("F%d", r), b.WinRate())
		fx.SetCellValue(sheet, fmt.Sprintf("G%d", r), b.TotalPnL)
		fx.SetCellStyle(sheet, fmt.Sprintf("F%d", r), fmt.Sprintf("F%d", r), percentStyle)
		fx.SetCellStyle(sheet, fmt.Sprintf("G%d", r), fmt.Sprintf("G%d", r), pnlStyle)
	}

	fx.SetColWidth(sheet, "A", "B", 14)
	fx.SetColWidth(sheet, "C", "G", 11)

	return fx.SaveAs(path)
}
