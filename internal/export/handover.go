// Package export renders the roster as an xlsx handover sheet for the shift
// change.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"wardroster/pkg/domain"
)

// SheetName is the worksheet holding the roster.
const SheetName = "Consegne"

// Header lists the handover columns in order.
var Header = []string{
	"Room",
	"Name",
	"Age",
	"Priority",
	"Recent History",
	"Past History",
	"Management",
	"Notes",
	"Admitted",
	"Last Updated",
}

var columnWidths = []float64{8, 28, 6, 14, 40, 40, 40, 40, 18, 18}

const timeLayout = "2006-01-02 15:04"

// Handover writes patients (already filtered and ordered by the caller) to an
// xlsx workbook. The title row records generatedAt and the roster version.
func Handover(patients []domain.PatientRecord, version domain.VersionToken, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	title := fmt.Sprintf("Handover %s (version %s)", generatedAt.Format(timeLayout), version)
	if err := f.SetCellValue(SheetName, "A1", title); err != nil {
		f.Close()
		return nil, fmt.Errorf("set title: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create body style: %w", err)
	}

	for col, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 2)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set width %s: %w", name, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 2)
	if err := f.SetCellStyle(SheetName, "A2", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, p := range patients {
		row := i + 3
		values := []any{
			p.Room,
			p.Name,
			p.Age,
			string(p.Priority),
			p.RecentHistory,
			p.PastHistory,
			p.Management,
			p.Notes,
			formatTime(p.AdmissionDate),
			formatTime(p.LastUpdated),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		end, _ := excelize.CoordinatesToCellName(len(Header), row)
		if err := f.SetCellStyle(SheetName, start, end, wrapStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("style row %d: %w", row, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      2,
		TopLeftCell: "A3",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
