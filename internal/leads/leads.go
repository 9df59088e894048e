// Package leads parses lead CSV files for personalized scene URLs.
package leads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Static errors for lead resolution.
var (
	// ErrEmptyCSV is returned when the file has no data rows.
	ErrEmptyCSV = errors.New("leads: csv has no data rows")
	// ErrRowOutOfRange is returned when the requested row index does not
	// exist in the file.
	ErrRowOutOfRange = errors.New("leads: row index out of range")
	// ErrColumnNotFound is returned when a scene references a column the
	// header does not contain.
	ErrColumnNotFound = errors.New("leads: column not found")
)

// identifierColumns are checked in order when deriving a display name for a
// lead.
var identifierColumns = []string{"name", "full_name", "first_name", "company", "email"}

// Sheet is one parsed lead CSV: a header and its data rows.
type Sheet struct {
	header  []string
	columns map[string]int
	rows    [][]string
}

// Parse reads a lead CSV. The first record is the header; header matching is
// case-insensitive and whitespace-trimmed. Ragged rows are tolerated, short
// rows read as empty cells.
func Parse(r io.Reader) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing lead csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmptyCSV
	}

	header := records[0]
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[normalizeColumn(name)] = i
	}

	return &Sheet{header: header, columns: columns, rows: records[1:]}, nil
}

// Rows returns the number of data rows.
func (s *Sheet) Rows() int {
	return len(s.rows)
}

// Columns returns the header as written in the file.
func (s *Sheet) Columns() []string {
	return append([]string(nil), s.header...)
}

// HasColumn reports whether the header contains the column.
func (s *Sheet) HasColumn(name string) bool {
	_, ok := s.columns[normalizeColumn(name)]
	return ok
}

// Value returns the cell at (row, column). Rows are zero-based over the data
// rows, excluding the header.
func (s *Sheet) Value(row int, column string) (string, error) {
	if row < 0 || row >= len(s.rows) {
		return "", fmt.Errorf("row %d of %d: %w", row, len(s.rows), ErrRowOutOfRange)
	}
	idx, ok := s.columns[normalizeColumn(column)]
	if !ok {
		return "", fmt.Errorf("column %q: %w", column, ErrColumnNotFound)
	}
	record := s.rows[row]
	if idx >= len(record) {
		return "", nil
	}
	return strings.TrimSpace(record[idx]), nil
}

// Identifier derives a human-readable label for a lead row, for render
// listings. Well-known identity columns are tried in order; when none has a
// value the label falls back to the one-based row number.
func (s *Sheet) Identifier(row int) string {
	for _, col := range identifierColumns {
		if !s.HasColumn(col) {
			continue
		}
		if v, err := s.Value(row, col); err == nil && v != "" {
			return v
		}
	}
	return fmt.Sprintf("Lead %d", row+1)
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
