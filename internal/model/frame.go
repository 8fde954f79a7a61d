package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Frame is a rectangular, column-named numeric dataset. It is treated as
// immutable once loaded; stages that need modified data produce a new Frame.
type Frame struct {
	Columns []string    `json:"columns" yaml:"columns"`
	Rows    [][]float64 `json:"rows" yaml:"rows"`
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// ColumnIndex returns the position of the named column, or -1 if absent.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column extracts the named column restricted to the given row indices.
// A nil index slice selects all rows.
func (f *Frame) Column(name string, rows []int) ([]float64, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("frame has no column %q", name)
	}
	if rows == nil {
		out := make([]float64, len(f.Rows))
		for i, r := range f.Rows {
			out[i] = r[idx]
		}
		return out, nil
	}
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r < 0 || r >= len(f.Rows) {
			return nil, fmt.Errorf("row index %d out of range (frame has %d rows)", r, len(f.Rows))
		}
		out = append(out, f.Rows[r][idx])
	}
	return out, nil
}

// Select materializes a new frame containing only the given rows, in order.
func (f *Frame) Select(rows []int) (*Frame, error) {
	sub := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([][]float64, 0, len(rows)),
	}
	for _, r := range rows {
		if r < 0 || r >= len(f.Rows) {
			return nil, fmt.Errorf("row index %d out of range (frame has %d rows)", r, len(f.Rows))
		}
		sub.Rows = append(sub.Rows, append([]float64(nil), f.Rows[r]...))
	}
	return sub, nil
}

// LoadFrame reads a frame from a JSON file. Two layouts are accepted: the
// columnar form {"columns": [...], "rows": [[...]]}, and an array of
// flat objects with numeric values (column order is then alphabetical so
// repeated loads are deterministic).
func LoadFrame(path string) (*Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	return ParseFrame(raw)
}

// ParseFrame decodes frame JSON; see LoadFrame for the accepted layouts.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err == nil && len(f.Columns) > 0 {
		for i, r := range f.Rows {
			if len(r) != len(f.Columns) {
				return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(f.Columns))
			}
		}
		return &f, nil
	}

	var records []map[string]float64
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("data is neither columnar frame JSON nor an array of numeric records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("data file contains no records")
	}

	cols := make([]string, 0, len(records[0]))
	for name := range records[0] {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	out := &Frame{Columns: cols, Rows: make([][]float64, 0, len(records))}
	for i, rec := range records {
		row := make([]float64, len(cols))
		for j, name := range cols {
			v, ok := rec[name]
			if !ok {
				return nil, fmt.Errorf("record %d is missing column %q", i, name)
			}
			row[j] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
