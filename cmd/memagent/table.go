package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Table renders rows of cells in left-aligned columns.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

func NewTable(headers ...string) *Table {
	t := &Table{headers: headers, widths: make([]int, len(headers))}
	for i, h := range headers {
		t.widths[i] = len(h)
	}
	return t
}

// AddRow appends a row; missing or empty cells render as "-".
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		row[i] = "-"
		if i < len(cells) && cells[i] != "" {
			row[i] = cells[i]
		}
		t.widths[i] = max(t.widths[i], len(row[i]))
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Render(w io.Writer) error {
	if err := t.line(w, t.headers); err != nil {
		return err
	}
	sep := lo.Map(t.widths, func(width int, _ int) string { return strings.Repeat("-", width) })
	if err := t.line(w, sep); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := t.line(w, row); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) line(w io.Writer, cells []string) error {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = c + strings.Repeat(" ", t.widths[i]-len(c))
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, " "), " "))
	return err
}

// tableOf builds a table whose columns are the union of the objects' keys:
// the first object's keys sorted, then keys first seen later.
func tableOf(objects []map[string]any) *Table {
	var columns []string
	for _, obj := range objects {
		keys := lo.Keys(obj)
		sort.Strings(keys)
		for _, k := range keys {
			if !lo.Contains(columns, k) {
				columns = append(columns, k)
			}
		}
	}

	t := NewTable(columns...)
	for _, obj := range objects {
		t.AddRow(lo.Map(columns, func(c string, _ int) string { return cell(obj[c]) })...)
	}
	return t
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}
