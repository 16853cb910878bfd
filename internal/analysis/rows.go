package analysis

import "github.com/13879107157/wyclient/model"

// RowPage is one page of a platform's matched rows. Columns are the
// uploaded sheet's columns.
type RowPage struct {
	Columns  []string    `json:"columns"`
	Rows     []model.Row `json:"rows"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// DefaultRowPageSize is the drill-down page size when none is given.
const DefaultRowPageSize = 10

// PageRows cuts one page out of rows. A page before the first is the
// first; a page past the end is empty.
func PageRows(rows []model.Row, columns []string, page, pageSize int) RowPage {
	if pageSize <= 0 {
		pageSize = DefaultRowPageSize
	}
	if page < 1 {
		page = 1
	}
	out := RowPage{Columns: columns, Rows: []model.Row{}, Total: len(rows), Page: page, PageSize: pageSize}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	pages := len(rows) / pageSize
	if len(rows)%pageSize != 0 {
		pages++
	}
	if page > pages {
		return out
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(rows))
	out.Rows = append(out.Rows, rows[start:end]...)
	return out
}
