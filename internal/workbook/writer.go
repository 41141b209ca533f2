package workbook

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"wp_schema_sync/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the result workbook.
const (
	ResultSheet  = "result"
	SummarySheet = "summary"
)

// ResultRows renders the result table as a header row plus one row per
// processed item. The site column appears only when some row has a site.
// The change column holds the line counts of successful writes.
func ResultRows(table *model.ResultTable) [][]string {
	withSite := table.HasSites()

	header := []string{"STT", "url"}
	if withSite {
		header = append(header, "site")
	}
	header = append(header, "type", "result", "change")

	rows := [][]string{header}
	for _, r := range table.Rows {
		row := []string{strconv.Itoa(r.Seq), r.URL}
		if withSite {
			row = append(row, r.Site)
		}
		row = append(row, r.Type.String(), r.Outcome.String(), r.ChangeText())
		rows = append(rows, row)
	}
	return rows
}

// SummaryRows renders the batch summary as label/value rows.
func SummaryRows(table *model.ResultTable) [][]string {
	rows := [][]string{{"Batch", table.BatchID}}
	for _, item := range table.Summary() {
		rows = append(rows, []string{item.Label, item.Value})
	}
	return rows
}

// Write renders the result workbook to w.
func Write(w io.Writer, table *model.ResultTable) error {
	f, err := build(table)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write result workbook: %w", err)
	}
	return nil
}

// Bytes renders the result workbook in memory.
func Bytes(table *model.ResultTable) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveFile writes the result workbook to path.
func SaveFile(path string, table *model.ResultTable) error {
	f, err := build(table)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save result workbook %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("rows", len(table.Rows)).Msg("Saved result workbook")
	return nil
}

func build(table *model.ResultTable) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ResultSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name result sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add summary sheet: %w", err)
	}

	if err := writeRows(f, ResultSheet, ResultRows(table)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, SummarySheet, SummaryRows(table)); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(ResultSheet, 1, 1, bold)
		_ = f.SetColStyle(SummarySheet, "A", bold)
	}
	_ = f.SetColWidth(ResultSheet, "B", "B", 60)
	_ = f.SetColWidth(SummarySheet, "A", "A", 28)

	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]string) error {
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cellName, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
