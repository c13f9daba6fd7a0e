package ml

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Table is a CSV file held as raw string cells.
type Table struct {
	Header  []string
	Records [][]string
}

func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	if len(rows) == 0 {
		return nil, errors.New("csv has no header")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		records = append(records, row)
	}
	return &Table{Header: header, Records: records}, nil
}

func (t *Table) Len() int {
	return len(t.Records)
}

// Dedupe drops records identical to an earlier one across every column and
// returns how many were removed. Numeric cells compare by value, so "1" and
// "1.0" are the same.
func (t *Table) Dedupe() int {
	seen := make(map[string]bool, len(t.Records))
	kept := t.Records[:0]
	removed := 0
	for _, record := range t.Records {
		key := recordKey(record)
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		kept = append(kept, record)
	}
	t.Records = kept
	return removed
}

func recordKey(record []string) string {
	parts := make([]string, len(record))
	for i, cell := range record {
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
			continue
		}
		parts[i] = cell
	}
	return strings.Join(parts, "\x1f")
}

func (t *Table) columnIndex(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, errors.Newf("column %q not found", name)
}

// Floats returns the named columns as a row-major matrix in the given order.
func (t *Table) Floats(columns ...string) ([][]float64, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		j, err := t.columnIndex(name)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}
	out := make([][]float64, len(t.Records))
	for r, record := range t.Records {
		row := make([]float64, len(idx))
		for i, j := range idx {
			if j >= len(record) {
				return nil, errors.Newf("row %d: missing column %q", r+1, columns[i])
			}
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %q", r+1, columns[i])
			}
			row[i] = v
		}
		out[r] = row
	}
	return out, nil
}

func (t *Table) Strings(column string) ([]string, error) {
	j, err := t.columnIndex(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Records))
	for r, record := range t.Records {
		if j >= len(record) {
			return nil, errors.Newf("row %d: missing column %q", r+1, column)
		}
		out[r] = record[j]
	}
	return out, nil
}

// Ints reads an integral column; "2.0" is accepted, "2.5" is not.
func (t *Table) Ints(column string) ([]int, error) {
	values, err := t.Floats(column)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(values))
	for r, row := range values {
		if row[0] != math.Trunc(row[0]) {
			return nil, errors.Newf("row %d column %q: %v is not integral", r+1, column, row[0])
		}
		out[r] = int(row[0])
	}
	return out, nil
}
