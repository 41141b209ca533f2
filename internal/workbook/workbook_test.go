package workbook

import (
	"bytes"
	"errors"
	"testing"

	"wp_schema_sync/internal/model"

	"github.com/xuri/excelize/v2"
)

// xlsx builds an in-memory workbook with the given sheets, in order.
func xlsx(t *testing.T, sheets []Table) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				t.Fatalf("Failed to rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			t.Fatalf("Failed to add sheet: %v", err)
		}
		if err := writeRows(f, sheet.Name, sheet.Rows); err != nil {
			t.Fatalf("Failed to write rows: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return buf
}

func TestParseMultiAccountWorkbook(t *testing.T) {
	buf := xlsx(t, []Table{
		{Name: "Accounts", Rows: [][]string{
			{"Site", "Base URL", "Username", "App Password"},
			{" Alpha ", "https://alpha.test", "admin", "abcd efgh"},
			{"beta", "https://beta.test/wp-json", "editor", "pw"},
		}},
		{Name: "DATA", Rows: [][]string{
			{"url", "type", "site", "script_schema"},
			{"https://alpha.test/hello", "post", "ALPHA", "<script>A</script>"},
			{"", "", "", ""},
			{"https://beta.test/news", "Categories", "beta", "<script>B</script>"},
		}},
	})

	tables, err := Read(buf)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	batch, err := ParseBatch(tables, model.ModeInsert, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !batch.Registry.MultiAccount() || batch.Registry.Len() != 2 {
		t.Errorf("Expected multi-account registry with 2 accounts, got %d", batch.Registry.Len())
	}
	acct, ok := batch.Registry.Lookup("alpha")
	if !ok {
		t.Fatal("Expected alpha account to be found")
	}
	if acct.BaseURL != "https://alpha.test" || acct.AppPassword != "abcd efgh" {
		t.Errorf("Unexpected alpha account %+v", acct)
	}

	if len(batch.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(batch.Items))
	}
	second := batch.Items[1]
	if second.Seq != 3 {
		t.Errorf("Expected blank row to keep numbering, got seq %d", second.Seq)
	}
	if second.Type != model.ContentCategory || second.Site != "beta" || second.Schema != "<script>B</script>" {
		t.Errorf("Unexpected item %+v", second)
	}
}

func TestParseSingleAccountUsesFirstSheet(t *testing.T) {
	tables := []Table{{Name: "Sheet1", Rows: [][]string{
		{"url", "script_schema"},
		{"https://site.test/a", "<script>1</script>"},
		{"https://site.test/b"},
	}}}
	fallback := model.Account{BaseURL: "https://site.test", Token: "t"}

	batch, err := ParseBatch(tables, model.ModeInsert, &fallback)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if batch.Registry.MultiAccount() {
		t.Error("Expected single-account registry")
	}
	if len(batch.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(batch.Items))
	}
	if batch.Items[0].Type != model.ContentAuto {
		t.Errorf("Expected auto type without a type column, got %s", batch.Items[0].Type)
	}
	if batch.Items[1].Schema != "" {
		t.Errorf("Expected empty schema for short row, got %q", batch.Items[1].Schema)
	}
	if acct, ok := batch.Registry.Lookup("anything"); !ok || acct.Token != "t" {
		t.Errorf("Expected fallback account for any site, got %+v", acct)
	}
}

func TestParseConfigurationErrors(t *testing.T) {
	fallback := model.Account{BaseURL: "https://site.test"}
	tests := []struct {
		name     string
		tables   []Table
		mode     model.Mode
		fallback *model.Account
		wantErr  error
	}{
		{
			name:    "no accounts sheet and no default account",
			tables:  []Table{{Name: "data", Rows: [][]string{{"url", "site", "script_schema"}}}},
			wantErr: ErrSheetMissing,
		},
		{
			name:    "accounts without data",
			tables:  []Table{{Name: "account", Rows: [][]string{{"site", "base_url", "token"}}}},
			wantErr: ErrSheetMissing,
		},
		{
			name: "data without site column",
			tables: []Table{
				{Name: "accounts", Rows: [][]string{{"site", "base_url", "token"}}},
				{Name: "data", Rows: [][]string{{"url", "script_schema"}}},
			},
			wantErr: ErrColumnsMissing,
		},
		{
			name:     "insert without schema column",
			tables:   []Table{{Name: "Sheet1", Rows: [][]string{{"url"}}}},
			fallback: &fallback,
			wantErr:  ErrColumnsMissing,
		},
		{
			name: "accounts without credentials",
			tables: []Table{
				{Name: "accounts", Rows: [][]string{{"site", "base_url"}}},
				{Name: "data", Rows: [][]string{{"url", "site", "script_schema"}}},
			},
			wantErr: ErrColumnsMissing,
		},
		{
			name:     "empty sheet",
			tables:   []Table{{Name: "Sheet1"}},
			fallback: &fallback,
			wantErr:  ErrColumnsMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatch(tt.tables, tt.mode, tt.fallback)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseDeleteModeIgnoresSchema(t *testing.T) {
	tables := []Table{{Name: "data", Rows: [][]string{
		{"url", "script_schema"},
		{"https://site.test/a", "<script>1</script>"},
	}}}
	fallback := model.Account{BaseURL: "https://site.test"}

	batch, err := ParseBatch(tables, model.ModeDelete, &fallback)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if batch.Items[0].Schema != "" {
		t.Errorf("Expected schema to be dropped in delete mode, got %q", batch.Items[0].Schema)
	}

	noSchema := []Table{{Name: "data", Rows: [][]string{{"url"}, {"https://site.test/a"}}}}
	if _, err := ParseBatch(noSchema, model.ModeDelete, &fallback); err != nil {
		t.Errorf("Expected delete mode to accept a sheet without schema column, got %v", err)
	}
}

func TestUnknownTypeIsKept(t *testing.T) {
	items, err := ParseItems(Table{Name: "data", Rows: [][]string{
		{"url", "type", "script_schema"},
		{"https://site.test/tag/x", "tag", "S"},
	}}, model.ModeInsert, false)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if items[0].Type != model.ContentType("tag") || items[0].Type.Supported() {
		t.Errorf("Expected unsupported tag type, got %q", items[0].Type)
	}
}

func TestWriteResultWorkbook(t *testing.T) {
	table := &model.ResultTable{
		BatchID: "b-1",
		Total:   3,
		Rows: []model.ResultRow{
			{Seq: 1, URL: "https://a.test/x", Type: model.ContentPost, Outcome: model.Success(), Changed: true, AddedLines: 2},
			{Seq: 2, URL: "https://a.test/y", Type: model.ContentPage, Outcome: model.Failed("HTTP 500")},
		},
		Cancelled: true,
	}

	raw, err := Bytes(table)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	tables, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(tables) != 2 || tables[0].Name != ResultSheet || tables[1].Name != SummarySheet {
		t.Fatalf("Expected result and summary sheets, got %+v", tables)
	}

	rows := tables[0].Rows
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(rows))
	}
	wantHeader := []string{"STT", "url", "type", "result", "change"}
	for i, h := range wantHeader {
		if rows[0][i] != h {
			t.Errorf("Expected header %q at %d, got %q", h, i, rows[0][i])
		}
	}
	if rows[1][4] != "+2/-0" {
		t.Errorf("Expected change +2/-0, got %q", rows[1][4])
	}
	if rows[2][3] != "Lỗi: HTTP 500" {
		t.Errorf("Expected error text, got %q", rows[2][3])
	}
	if len(rows[2]) > 4 && rows[2][4] != "" {
		t.Errorf("Expected no change text on a failed row, got %q", rows[2][4])
	}

	found := false
	for _, row := range tables[1].Rows {
		if len(row) == 2 && row[0] == model.TextCancelled && row[1] == "Có" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected summary to state the batch was cancelled, got %v", tables[1].Rows)
	}
}

func TestResultRowsIncludeSiteWhenPresent(t *testing.T) {
	table := &model.ResultTable{Rows: []model.ResultRow{
		{Seq: 1, URL: "u", Site: "alpha", Type: model.ContentCategory, Outcome: model.AccountNotFound()},
	}}
	rows := ResultRows(table)
	if len(rows[0]) != 6 || rows[0][2] != "site" || rows[0][5] != "change" {
		t.Errorf("Expected site column, got %v", rows[0])
	}
	if rows[1][4] != model.TextAccountNotFound {
		t.Errorf("Expected %q, got %q", model.TextAccountNotFound, rows[1][4])
	}
	if rows[1][5] != "" {
		t.Errorf("Expected empty change for a failed row, got %q", rows[1][5])
	}
}
