package sheets

import (
	"context"
	"fmt"
	"strings"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/workbook"

	"github.com/rs/zerolog/log"
)

// ReadTables loads every tab of a spreadsheet for workbook.ParseBatch.
func ReadTables(ctx context.Context, sheetsClient *Client, spreadsheetID string) ([]workbook.Table, error) {
	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Reading spreadsheet tabs")

	titles, err := sheetsClient.SheetTitles(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}

	tables := make([]workbook.Table, 0, len(titles))
	for _, title := range titles {
		values, err := sheetsClient.ReadSheet(ctx, spreadsheetID, quoteTitle(title))
		if err != nil {
			return nil, fmt.Errorf("tab %q: %w", title, err)
		}
		tables = append(tables, workbook.Table{Name: title, Rows: toStringRows(values)})
		log.Debug().Str("tab", title).Int("rows", len(values)).Msg("Read tab")
	}
	return tables, nil
}

// WriteResults writes the result and summary tabs, creating them when absent.
// Existing content of those tabs is replaced.
func WriteResults(ctx context.Context, sheetsClient *Client, spreadsheetID string, table *model.ResultTable) error {
	titles, err := sheetsClient.SheetTitles(ctx, spreadsheetID)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(titles))
	for _, title := range titles {
		existing[title] = true
	}

	tabs := []struct {
		title string
		rows  [][]string
	}{
		{workbook.ResultSheet, workbook.ResultRows(table)},
		{workbook.SummarySheet, workbook.SummaryRows(table)},
	}
	for _, tab := range tabs {
		if !existing[tab.title] {
			if err := sheetsClient.AddSheet(ctx, spreadsheetID, tab.title); err != nil {
				return err
			}
		}
		if err := sheetsClient.ReplaceRange(ctx, spreadsheetID, quoteTitle(tab.title), toValueRows(tab.rows)); err != nil {
			return fmt.Errorf("tab %q: %w", tab.title, err)
		}
	}

	log.Info().
		Str("spreadsheet_id", spreadsheetID).
		Int("rows", len(table.Rows)).
		Msg("Wrote results to spreadsheet")
	return nil
}

// quoteTitle makes a tab title usable as an A1 range.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toStringRows(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		out := make([]string, len(row))
		for j := range row {
			out[j] = extractStringField(row, j)
		}
		rows[i] = out
	}
	return rows
}

func toValueRows(rows [][]string) [][]interface{} {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		out := make([]interface{}, len(row))
		for j, v := range row {
			out[j] = v
		}
		values[i] = out
	}
	return values
}

// extractStringField safely extracts a string field from a row at the given index
func extractStringField(row []interface{}, index int) string {
	if len(row) > index && row[index] != nil {
		return fmt.Sprintf("%v", row[index])
	}
	return ""
}
