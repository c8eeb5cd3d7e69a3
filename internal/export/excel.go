// Package export renders rota weeks for external consumers: Excel workbooks
// for download and an optional Google Sheets mirror of published weeks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pharmarota/internal/models"
)

// ExcelWriter is the minimal sheet-writing surface the exporter needs.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// ExcelizeWriter implements ExcelWriter using the excelize library.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewExcelizeWriter creates a new Excel writer.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet adds a new sheet with the given name.
func (w *ExcelizeWriter) AddSheet(name string) error {
	// Truncate sheet name to 31 chars (Excel limit)
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		w.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers to the current sheet.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}

	w.currentRow++
	return nil
}

// WriteRow writes a data row to the current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}

	w.currentRow++
	return nil
}

// Save writes the workbook to w.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

var assignmentColumns = []string{"Location", "Type", "Staff", "Start", "End", "Category"}

// WriteWeekWorkbook renders one sheet per generated date plus a conflicts
// sheet and an audit trail sheet.
func WriteWeekWorkbook(w ExcelWriter, docs []*models.RotaDocument, audit []models.AuditEntry) error {
	var conflictRows [][]interface{}

	for _, doc := range docs {
		if len(doc.Assignments) == 0 {
			continue
		}
		name := doc.Date.Format("Mon 2006-01-02")
		if err := w.AddSheet(name); err != nil {
			return err
		}
		if err := w.WriteHeader(assignmentColumns); err != nil {
			return err
		}
		for i := range doc.Assignments {
			if err := w.WriteRow(assignmentRowValues(&doc.Assignments[i])); err != nil {
				return err
			}
		}
		for _, c := range doc.Conflicts {
			conflictRows = append(conflictRows, []interface{}{
				doc.Date.Format("2006-01-02"), c.Severity, c.Type, c.Description,
			})
		}
	}

	if len(conflictRows) > 0 {
		if err := w.AddSheet("Conflicts"); err != nil {
			return err
		}
		if err := w.WriteHeader([]string{"Date", "Severity", "Type", "Description"}); err != nil {
			return err
		}
		for _, row := range conflictRows {
			if err := w.WriteRow(row); err != nil {
				return err
			}
		}
	}

	if len(audit) > 0 {
		if err := w.AddSheet("Audit"); err != nil {
			return err
		}
		if err := w.WriteHeader([]string{"When", "Actor", "Action", "Detail"}); err != nil {
			return err
		}
		for _, e := range audit {
			if err := w.WriteRow([]interface{}{
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Detail,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func assignmentRowValues(a *models.Assignment) []interface{} {
	staff := a.StaffName
	if !a.Filled() {
		staff = "UNFILLED"
	}
	return []interface{}{a.Location, a.Type, staff, a.StartTime, a.EndTime, a.Category}
}
