package analysis

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/13879107157/wyclient/model"
)

// Export file layout.
const (
	SheetName  = "Sheet1"
	ExportName = "exported_data.xlsx"
	XLSXType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Summary row column names.
const (
	ColGroupName    = "平台组名称"
	ColOrder        = "排序"
	ColMatchCount   = "匹配数量"
	ColPlatformName = "平台名称"
	ColPlatformType = "平台类型名称"
)

// Export flattens a filtered view into spreadsheet rows in document order:
// a summary row per group, then for each of its platforms a summary row
// followed by the platform's matched rows verbatim.
func Export(view []model.PlatformGroupNode) []model.Row {
	var rows []model.Row
	for _, g := range view {
		rows = append(rows, model.NewRow(
			ColGroupName, g.GroupName,
			ColOrder, g.Order,
			ColMatchCount, g.MatchCount,
		))
		for _, p := range g.Children {
			rows = append(rows, model.NewRow(
				ColPlatformName, p.PlatformName,
				ColMatchCount, p.MatchCount,
				ColPlatformType, p.PlatformTypeName,
			))
			for _, data := range p.MatchedData {
				rows = append(rows, data.Clone())
			}
		}
	}
	return rows
}

// Headers returns the union of row keys in first-appearance order.
func Headers(rows []model.Row) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		for _, k := range r.Keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// WriteWorkbook writes rows to w as a single-sheet xlsx workbook with a
// header row from Headers. A row leaves cells empty for keys it lacks.
func WriteWorkbook(w io.Writer, rows []model.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("analysis: stream writer: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("analysis: header style: %w", err)
	}

	headers := Headers(rows)
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("analysis: header row: %w", err)
	}

	for i, r := range rows {
		values := make([]any, len(headers))
		for j, h := range headers {
			if v, ok := r.Get(h); ok {
				values[j] = cellValue(v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("analysis: row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("analysis: flush: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("analysis: write workbook: %w", err)
	}
	return nil
}

// cellValue keeps scalars as they are and writes anything else as JSON.
func cellValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ReadWorkbook reads the first sheet written by WriteWorkbook back into rows.
// Cell values come back as text and empty cells are left out of their row.
func ReadWorkbook(r io.Reader) ([]model.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("analysis: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("analysis: workbook has no sheets")
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("analysis: read %s: %w", sheets[0], err)
	}
	if len(grid) == 0 {
		return []model.Row{}, nil
	}

	headers := grid[0]
	out := make([]model.Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := model.Row{Values: map[string]any{}}
		for i, cell := range cells {
			if i < len(headers) && cell != "" {
				row.Set(headers[i], cell)
			}
		}
		out = append(out, row)
	}
	return out, nil
}
