// Package dataset loads, joins and generates the time series the exercises
// fit and simulate.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownColumn indicates a column name missing from a frame.
	ErrUnknownColumn = errors.New("dataset: unknown column")

	// ErrRaggedColumns indicates columns of different lengths.
	ErrRaggedColumns = errors.New("dataset: columns have different lengths")

	// ErrEmpty indicates a source with a header but no rows.
	ErrEmpty = errors.New("dataset: no data rows")
)

// Frame is a table of float columns aligned by row. Missing values are NaN.
type Frame struct {
	Header  []string
	Columns [][]float64
}

func NewFrame(header []string, columns ...[]float64) (*Frame, error) {
	if len(header) != len(columns) {
		return nil, fmt.Errorf("dataset: %d names for %d columns", len(header), len(columns))
	}
	for _, c := range columns {
		if len(c) != len(columns[0]) {
			return nil, ErrRaggedColumns
		}
	}
	return &Frame{Header: header, Columns: columns}, nil
}

func (f *Frame) Len() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return len(f.Columns[0])
}

// Column returns the named column. Names are matched case-insensitively and
// ignoring surrounding spaces, since lab files are not consistent about
// either.
func (f *Frame) Column(name string) ([]float64, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range f.Header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return f.Columns[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s (have %v)", ErrUnknownColumn, name, f.Header)
}

// Rows returns the named columns as row vectors, the layout the identifiers
// take.
func (f *Frame) Rows(names ...string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for i, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	rows := make([][]float64, f.Len())
	for k := range rows {
		rows[k] = make([]float64, len(cols))
		for i, c := range cols {
			rows[k][i] = c[k]
		}
	}
	return rows, nil
}

// Mask marks the measured (non-NaN) entries of a column.
func Mask(col []float64) []bool {
	m := make([]bool, len(col))
	for i, v := range col {
		m[i] = !math.IsNaN(v)
	}
	return m
}

// OuterJoin merges two frames on a shared key column. The result holds the
// sorted union of key values; cells a frame does not measure are NaN.
func OuterJoin(a, b *Frame, key string) (*Frame, error) {
	ka, err := a.Column(key)
	if err != nil {
		return nil, err
	}
	kb, err := b.Column(key)
	if err != nil {
		return nil, err
	}

	keys := make([]float64, 0, len(ka)+len(kb))
	seen := make(map[float64]bool)
	for _, k := range append(append([]float64{}, ka...), kb...) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Float64s(keys)

	index := make(map[float64]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	header := []string{key}
	columns := [][]float64{keys}
	for _, src := range []struct {
		frame *Frame
		keys  []float64
	}{{a, ka}, {b, kb}} {
		for ci, name := range src.frame.Header {
			if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(key)) {
				continue
			}
			col := make([]float64, len(keys))
			for i := range col {
				col[i] = math.NaN()
			}
			for r, k := range src.keys {
				col[index[k]] = src.frame.Columns[ci][r]
			}
			header = append(header, name)
			columns = append(columns, col)
		}
	}
	return &Frame{Header: header, Columns: columns}, nil
}

// ReadCSV parses a comma separated table with a header row. Empty cells and
// "nan" read as NaN.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmpty
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	columns := make([][]float64, len(header))
	for i := range columns {
		columns[i] = make([]float64, 0, len(records)-1)
	}

	for line, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("dataset: line %d has %d fields, want %d", line+2, len(rec), len(header))
		}
		for i, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("dataset: line %d column %s: %w", line+2, header[i], err)
			}
			columns[i] = append(columns[i], v)
		}
	}
	if len(columns) == 0 || len(columns[0]) == 0 {
		return nil, ErrEmpty
	}
	return &Frame{Header: header, Columns: columns}, nil
}

func parseCell(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSV writes the frame with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Header); err != nil {
		return err
	}
	row := make([]string, len(f.Columns))
	for k := 0; k < f.Len(); k++ {
		for i, c := range f.Columns {
			row[i] = strconv.FormatFloat(c[k], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
