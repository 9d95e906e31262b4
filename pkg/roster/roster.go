// Package roster reads student rosters from spreadsheet uploads.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than xlsx and csv.
	ErrUnsupportedFormat = errors.New("unsupported roster format")
	// ErrMissingColumns is returned when the header lacks name or email.
	ErrMissingColumns = errors.New("roster must contain name and email columns")
	// ErrEmpty is returned when the workbook has no sheets or no header row.
	ErrEmpty = errors.New("roster is empty")
)

const (
	columnName  = "name"
	columnEmail = "email"
)

// Row is one data row. Line is the spreadsheet line number, with the header on line 1.
type Row struct {
	Line        int
	Name        string
	Email       string
	EmailIsText bool
	Fields      map[string]string
}

// Parse decodes the upload according to its file extension.
func Parse(filename string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func parseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	sheet := sheets[0]

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	header, err := indexHeader(records[0])
	if err != nil {
		return nil, err
	}

	emailCol := header[columnEmail]
	return buildRows(records[1:], header, func(sheetRow int, value string) bool {
		if value == "" {
			return false
		}
		cell, err := excelize.CoordinatesToCellName(emailCol+1, sheetRow)
		if err != nil {
			return false
		}
		kind, err := f.GetCellType(sheet, cell)
		if err != nil {
			return false
		}
		return isTextCell(kind)
	}), nil
}

func parseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")

	header, err := indexHeader(records[0])
	if err != nil {
		return nil, err
	}
	return buildRows(records[1:], header, func(_ int, value string) bool {
		return value != ""
	}), nil
}

func indexHeader(cells []string) (map[string]int, error) {
	header := make(map[string]int, len(cells))
	for i, cell := range cells {
		key := strings.ToLower(strings.TrimSpace(cell))
		if key == "" {
			continue
		}
		if _, seen := header[key]; !seen {
			header[key] = i
		}
	}
	_, hasName := header[columnName]
	_, hasEmail := header[columnEmail]
	if !hasName || !hasEmail {
		return nil, ErrMissingColumns
	}
	return header, nil
}

// buildRows skips fully blank rows; line numbers count only the rows kept.
func buildRows(records [][]string, header map[string]int, emailIsText func(sheetRow int, value string) bool) []Row {
	rows := make([]Row, 0, len(records))
	for i, record := range records {
		if isBlank(record) {
			continue
		}
		fields := make(map[string]string, len(header))
		for key, col := range header {
			fields[key] = cellAt(record, col)
		}
		email := fields[columnEmail]
		rows = append(rows, Row{
			Line:        len(rows) + 2,
			Name:        fields[columnName],
			Email:       email,
			EmailIsText: emailIsText(i+2, email),
			Fields:      fields,
		})
	}
	return rows
}

func isTextCell(kind excelize.CellType) bool {
	switch kind {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return true
	default:
		return false
	}
}

func cellAt(record []string, col int) string {
	if col < len(record) {
		return record[col]
	}
	return ""
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
