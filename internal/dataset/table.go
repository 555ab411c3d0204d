// Package dataset keeps the consolidated per-form datasets: load, merge, order, save.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row one dataset row keyed by column name
type Row map[string]any

// Table ordered columns and rows
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given columns
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append adds a row and registers any new column in encounter order
func (t *Table) Append(row Row, order []string) {
	t.addColumns(order)
	t.Rows = append(t.Rows, row)
}

// HasColumn reports whether name is a column of the table
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *Table) addColumns(cols []string) {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		seen[c] = true
	}
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			t.Columns = append(t.Columns, c)
		}
	}
}

// Load reads a consolidated dataset. A missing file is an empty table;
// any other failure is returned so history is never silently discarded.
func Load(path, sheet string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewTable(), nil
		}
		return nil, fmt.Errorf("stat dataset: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(sheet); idx < 0 || sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read dataset sheet %q: %w", sheet, err)
	}

	t := NewTable()
	if len(rows) == 0 {
		return t, nil
	}

	header := rows[0]
	t.addColumns(header)
	for _, raw := range rows[1:] {
		row := make(Row, len(header))
		empty := true
		for i, name := range header {
			if name == "" || i >= len(raw) || raw[i] == "" {
				continue
			}
			row[name] = typedCell(raw[i])
			empty = false
		}
		if !empty {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// typedCell restores numbers written by Save; anything that would not print back
// identically (leading zeros, thousands separators) stays text
func typedCell(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == s {
		return f
	}
	return s
}

// KeyOf composite key of a row: each value trimmed and upper-cased
func KeyOf(row Row, key []string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = normalizeKeyValue(row[k])
	}
	return strings.Join(parts, "\x1f")
}

func normalizeKeyValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToUpper(strings.TrimSpace(x))
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.ToUpper(strings.TrimSpace(fmt.Sprint(x)))
	}
}

// Merge concatenates prev and batch and keeps one row per composite key.
// The batch wins: its row (the last one when the batch repeats a key) takes the
// position of the key's first occurrence. Prior duplicates keep the first row.
func Merge(prev, batch *Table, key []string) *Table {
	out := NewTable()
	if prev != nil {
		out.addColumns(prev.Columns)
	}
	if batch != nil {
		out.addColumns(batch.Columns)
	}

	latest := make(map[string]Row)
	if batch != nil {
		for _, r := range batch.Rows {
			latest[KeyOf(r, key)] = r
		}
	}

	emitted := make(map[string]bool)
	emit := func(rows []Row) {
		for _, r := range rows {
			k := KeyOf(r, key)
			if emitted[k] {
				continue
			}
			emitted[k] = true
			if newer, ok := latest[k]; ok {
				r = newer
			}
			out.Rows = append(out.Rows, r)
		}
	}
	if prev != nil {
		emit(prev.Rows)
	}
	if batch != nil {
		emit(batch.Rows)
	}
	return out
}

// OrderColumns puts the common columns first in their fixed order, then the rest
// in encounter order. Common columns missing from the data are still emitted.
func (t *Table) OrderColumns(common []string) {
	ordered := make([]string, 0, len(t.Columns)+len(common))
	seen := make(map[string]bool, len(common))
	for _, c := range common {
		if !seen[c] {
			seen[c] = true
			ordered = append(ordered, c)
		}
	}
	for _, c := range t.Columns {
		if !seen[c] {
			seen[c] = true
			ordered = append(ordered, c)
		}
	}
	t.Columns = ordered
}
