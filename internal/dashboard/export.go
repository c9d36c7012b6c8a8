package dashboard

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"yashubustudio/reviewlens/sentiment"
)

const (
	predictionsSheet = "Predictions"
	summarySheet     = "Summary"
)

// Fill colors for label cells, light tints of the chart colors.
var labelFills = [sentiment.NumLabels]string{"#F8D7DA", "#E2E3E5", "#D4EDDA"}

// ExportXLSX writes the full batch as a workbook with a per-label summary sheet.
func (s *Session) ExportXLSX(w io.Writer) error {
	f, err := s.workbook()
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (s *Session) workbook() (*excelize.File, error) {
	t := s.Table()
	labels := s.Labels()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", predictionsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	var labelStyles [sentiment.NumLabels]int
	for i, color := range labelFills {
		labelStyles[i], err = f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return nil, fmt.Errorf("label style: %w", err)
		}
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(predictionsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(predictionsSheet, 1, 1, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	labelCol := s.labelIdx + 1
	for i, rec := range t.Records {
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		row[s.labelIdx] = int(labels[i])
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(predictionsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
		labelCell, _ := excelize.CoordinatesToCellName(labelCol, i+2)
		if err := f.SetCellStyle(predictionsSheet, labelCell, labelCell, labelStyles[labels[i]]); err != nil {
			return nil, fmt.Errorf("style row %d: %w", i+1, err)
		}
	}
	if s.textIdx >= 0 {
		col, _ := excelize.ColumnNumberToName(s.textIdx + 1)
		_ = f.SetColWidth(predictionsSheet, col, col, 60)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	counts := Histogram(s.View(Filter{}))
	summary := [][]interface{}{{"label", "name", "count"}}
	for _, l := range sentiment.Labels {
		summary = append(summary, []interface{}{int(l), l.String(), counts[l]})
	}
	for i := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &summary[i]); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetRowStyle(summarySheet, 1, 1, headerStyle)
	return f, nil
}
