package workbook

import (
	"errors"
	"fmt"
	"strings"

	"wp_schema_sync/internal/accounts"
	"wp_schema_sync/internal/model"

	"github.com/rs/zerolog/log"
)

// Configuration errors. Either aborts the batch before any row runs.
var (
	ErrSheetMissing   = errors.New("required sheet missing")
	ErrColumnsMissing = errors.New("required columns missing")
)

// Table is one sheet as a grid of cell strings, header row first. Both the
// xlsx reader and the Google Sheets source produce it.
type Table struct {
	Name string
	Rows [][]string
}

// Batch is a parsed input: the rows to process and the accounts they run under.
type Batch struct {
	Items    []model.WorkItem
	Registry *accounts.Registry
}

const (
	colURL         = "url"
	colType        = "type"
	colSite        = "site"
	colSchema      = "script_schema"
	colBaseURL     = "base_url"
	colUsername    = "username"
	colAppPassword = "app_password"
	colToken       = "token"
)

// headerAliases maps normalised header text to a canonical column.
var headerAliases = map[string]string{
	"url":                  colURL,
	"link":                 colURL,
	"type":                 colType,
	"content_type":         colType,
	"site":                 colSite,
	"site_key":             colSite,
	"script_schema":        colSchema,
	"schema":               colSchema,
	"script":               colSchema,
	"base_url":             colBaseURL,
	"api_url":              colBaseURL,
	"wp_api_url":           colBaseURL,
	"domain":               colBaseURL,
	"username":             colUsername,
	"user":                 colUsername,
	"app_password":         colAppPassword,
	"application_password": colAppPassword,
	"password":             colAppPassword,
	"token":                colToken,
	"jwt_token":            colToken,
}

func normaliseHeader(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if canonical, ok := headerAliases[h]; ok {
		return canonical
	}
	return h
}

// columnIndex maps canonical column names to their position in the header row.
// The first occurrence of a column wins.
func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		name := normaliseHeader(cell)
		if name == "" {
			continue
		}
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	return index
}

func requireColumns(table Table, index map[string]int, required ...string) error {
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: sheet %q needs %s", ErrColumnsMissing, table.Name, strings.Join(missing, ", "))
	}
	return nil
}

func cell(row []string, index map[string]int, col string) string {
	i, ok := index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// findTable matches sheet names case-insensitively against the given names.
func findTable(tables []Table, names ...string) (Table, bool) {
	for _, t := range tables {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		for _, want := range names {
			if name == want {
				return t, true
			}
		}
	}
	return Table{}, false
}

// ParseBatch turns input sheets into a Batch.
//
// With an accounts sheet ("accounts" or "account") and a "data" sheet the
// batch is multi-account: every data row names its site. Otherwise, when
// fallback is non-nil, the "data" sheet (or the first sheet) is read as a
// single-account sheet and every row runs under fallback.
func ParseBatch(tables []Table, mode model.Mode, fallback *model.Account) (*Batch, error) {
	accountsTable, hasAccounts := findTable(tables, "accounts", "account")
	dataTable, hasData := findTable(tables, "data")

	if hasAccounts {
		if !hasData {
			return nil, fmt.Errorf("%w: data", ErrSheetMissing)
		}
		accts, err := ParseAccounts(accountsTable)
		if err != nil {
			return nil, err
		}
		items, err := ParseItems(dataTable, mode, true)
		if err != nil {
			return nil, err
		}
		return &Batch{Items: items, Registry: accounts.NewRegistry(accts)}, nil
	}

	if fallback == nil {
		return nil, fmt.Errorf("%w: accounts", ErrSheetMissing)
	}
	if !hasData {
		if len(tables) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrSheetMissing)
		}
		dataTable = tables[0]
	}
	items, err := ParseItems(dataTable, mode, false)
	if err != nil {
		return nil, err
	}
	return &Batch{Items: items, Registry: accounts.Single(*fallback)}, nil
}

// ParseAccounts reads site, base URL and credentials from an accounts sheet.
// Rows without a site key are skipped.
func ParseAccounts(table Table) ([]model.Account, error) {
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrColumnsMissing, table.Name)
	}
	index := columnIndex(table.Rows[0])
	if err := requireColumns(table, index, colSite, colBaseURL); err != nil {
		return nil, err
	}
	_, hasUser := index[colUsername]
	_, hasToken := index[colToken]
	if !hasUser && !hasToken {
		return nil, fmt.Errorf("%w: sheet %q needs username/app_password or token", ErrColumnsMissing, table.Name)
	}

	var accts []model.Account
	for i, row := range table.Rows[1:] {
		site := cell(row, index, colSite)
		if site == "" {
			log.Debug().Int("row", i+2).Str("sheet", table.Name).Msg("Skipping account row without site")
			continue
		}
		accts = append(accts, model.Account{
			Site:        site,
			BaseURL:     cell(row, index, colBaseURL),
			Username:    cell(row, index, colUsername),
			AppPassword: cell(row, index, colAppPassword),
			Token:       cell(row, index, colToken),
		})
	}
	return accts, nil
}

// ParseItems reads work items from a data sheet. Rows with an empty URL are
// skipped; Seq is the row's position below the header, so it still points at
// the right spreadsheet line. In delete mode the schema column is optional
// and ignored.
func ParseItems(table Table, mode model.Mode, multiAccount bool) ([]model.WorkItem, error) {
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrColumnsMissing, table.Name)
	}
	index := columnIndex(table.Rows[0])

	required := []string{colURL}
	if multiAccount {
		required = append(required, colSite)
	}
	if mode == model.ModeInsert {
		required = append(required, colSchema)
	}
	if err := requireColumns(table, index, required...); err != nil {
		return nil, err
	}

	var items []model.WorkItem
	for i, row := range table.Rows[1:] {
		url := cell(row, index, colURL)
		if url == "" {
			continue
		}

		contentType, err := model.ParseContentType(cell(row, index, colType))
		if err != nil {
			// kept as is: the row resolves to "not found" instead of failing the batch
			log.Warn().Err(err).Int("row", i+1).Str("url", url).Msg("Unknown content type")
		}

		item := model.WorkItem{
			Seq:  i + 1,
			URL:  url,
			Type: contentType,
		}
		if multiAccount {
			item.Site = cell(row, index, colSite)
		}
		if mode == model.ModeInsert {
			// schema cells are taken verbatim; the merger does its own trimming
			if j, ok := index[colSchema]; ok && j < len(row) {
				item.Schema = row[j]
			}
		}
		items = append(items, item)
	}

	log.Debug().
		Str("sheet", table.Name).
		Int("items", len(items)).
		Bool("multi_account", multiAccount).
		Msg("Parsed data sheet")
	return items, nil
}
