// Package resultset turns raw tabular payloads from the assistant backend
// into display-ready tables with pagination and sorting bookkeeping.
package resultset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/hongcheng-ai/sqlchat-console/pkg/apperrors"
	"github.com/hongcheng-ai/sqlchat-console/pkg/jsonutil"
)

// NullPlaceholder is rendered for null result fields.
const NullPlaceholder = "-"

// DefaultPageSize is applied to every fresh result.
const DefaultPageSize = 10

// pageSizes are the sizes the table view accepts.
var pageSizes = map[int]bool{5: true, 10: true, 20: true, 50: true, 100: true}

// Table is the display model of one query result. Derived, never
// authoritative: it is recomputed from the raw payload whenever a new
// result arrives.
type Table struct {
	Columns     []string            `json:"columns"`
	Rows        []map[string]string `json:"rows"`
	Total       int                 `json:"total"`
	CurrentPage int                 `json:"currentPage"`
	PageSize    int                 `json:"pageSize"`

	SortColumn    string `json:"sortColumn,omitempty"`
	SortAscending bool   `json:"sortAscending"`
}

// Process normalizes a raw payload into a Table. The payload may be a JSON
// array of row objects or that array double-encoded as a string. Column
// order follows the first row's key order; every row is re-emitted with
// that same order and null fields become the placeholder dash. Pagination
// starts at page 1 with the default size.
func Process(raw json.RawMessage) (*Table, error) {
	rows, err := jsonutil.DecodeRows(raw)
	if err != nil {
		return nil, err
	}

	table := &Table{
		CurrentPage: 1,
		PageSize:    DefaultPageSize,
	}
	if len(rows) == 0 {
		return table, nil
	}

	columns, err := jsonutil.ObjectKeys(rows[0])
	if err != nil {
		return nil, fmt.Errorf("first row: %w", err)
	}
	table.Columns = columns

	for i, rawRow := range rows {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawRow, &fields); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		row := make(map[string]string, len(columns))
		for _, col := range columns {
			value, ok := jsonutil.DisplayValue(fields[col])
			if !ok {
				value = NullPlaceholder
			}
			row[col] = value
		}
		table.Rows = append(table.Rows, row)
	}

	table.Total = len(table.Rows)
	return table, nil
}

// SortBy sorts by the given column, ascending on the first click and
// toggling direction on repeated clicks of the same column. A different
// column replaces the prior sort. Numeric-looking values compare
// numerically so "9" sorts before "10".
func (t *Table) SortBy(column string) {
	if !t.hasColumn(column) {
		return
	}

	if t.SortColumn == column {
		t.SortAscending = !t.SortAscending
	} else {
		t.SortColumn = column
		t.SortAscending = true
	}

	asc := t.SortAscending
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i][column], t.Rows[j][column]
		if cmp, ok := numericCompare(a, b); ok {
			if asc {
				return cmp < 0
			}
			return cmp > 0
		}
		if asc {
			return a < b
		}
		return a > b
	})
}

// SetPage moves to the given page, clamped to the valid range.
func (t *Table) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	if last := t.PageCount(); page > last {
		page = last
	}
	t.CurrentPage = page
}

// SetPageSize changes the page size and resets to page 1. Only the sizes
// offered by the table view are accepted.
func (t *Table) SetPageSize(size int) error {
	if !pageSizes[size] {
		return apperrors.ErrInvalidPageSize
	}
	t.PageSize = size
	t.CurrentPage = 1
	return nil
}

// PageCount returns the number of pages, at least 1.
func (t *Table) PageCount() int {
	if t.Total == 0 {
		return 1
	}
	pages := t.Total / t.PageSize
	if t.Total%t.PageSize != 0 {
		pages++
	}
	return pages
}

// PageRows returns the rows of the current page.
func (t *Table) PageRows() []map[string]string {
	start := (t.CurrentPage - 1) * t.PageSize
	if start >= len(t.Rows) {
		return nil
	}
	end := start + t.PageSize
	if end > len(t.Rows) {
		end = len(t.Rows)
	}
	return t.Rows[start:end]
}

func (t *Table) hasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// numericCompare three-way compares two values numerically. Equal numbers
// with different spellings ("1" vs "1.0") must compare equal in both
// directions or the sort comparator loses its ordering guarantee.
func numericCompare(a, b string) (cmp int, ok bool) {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	default:
		return 0, true
	}
}
