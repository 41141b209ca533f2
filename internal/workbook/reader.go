package workbook

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Read loads every sheet of an xlsx stream as a Table.
func Read(r io.Reader) ([]Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close workbook")
		}
	}()
	return tablesFromFile(f)
}

// ReadFile is Read for a workbook on disk.
func ReadFile(path string) ([]Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Failed to close workbook")
		}
	}()
	return tablesFromFile(f)
}

func tablesFromFile(f *excelize.File) ([]Table, error) {
	var tables []Table
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		tables = append(tables, Table{Name: name, Rows: rows})
	}
	log.Debug().Int("sheets", len(tables)).Msg("Read workbook")
	return tables, nil
}
