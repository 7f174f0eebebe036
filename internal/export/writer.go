package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/query"
)

// Sheet names of XLSX exports.
const (
	RowsSheet  = "Rows"
	PivotSheet = "Pivot"
)

// Columns is the union of row keys in first-seen order.
func Columns(rows []*domain.Row) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		for _, key := range row.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	return columns
}

// WriteCSV writes a header line and one record per row.
func WriteCSV(w io.Writer, columns []string, rows []*domain.Row) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			v, _ := row.Get(column)
			record[i] = formatValue(v)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteXLSX writes the rows to a workbook. A non-nil pivot adds a second
// sheet with its counts, row totals and column totals.
func WriteXLSX(w io.Writer, columns []string, rows []*domain.Row, pivot *query.PivotTable) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", RowsSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	records := make([][]any, 0, len(rows)+1)
	records = append(records, stringsToCells(columns))
	for _, row := range rows {
		record := make([]any, len(columns))
		for i, column := range columns {
			v, _ := row.Get(column)
			record[i] = cellValue(v)
		}
		records = append(records, record)
	}
	if err := streamSheet(f, RowsSheet, records); err != nil {
		return err
	}

	if pivot != nil {
		if _, err := f.NewSheet(PivotSheet); err != nil {
			return fmt.Errorf("create pivot sheet: %w", err)
		}
		if err := streamSheet(f, PivotSheet, pivotRecords(pivot)); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func streamSheet(f *excelize.File, sheet string, records [][]any) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open %s sheet: %w", sheet, err)
	}
	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, record); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush %s sheet: %w", sheet, err)
	}
	return nil
}

// pivotRecords lays the pivot out with row keys down the first column,
// column keys across the header and totals on the last row and column.
func pivotRecords(p *query.PivotTable) [][]any {
	header := make([]any, 0, len(p.ColKeys)+2)
	header = append(header, p.RowField+" / "+p.ColField)
	for _, ck := range p.ColKeys {
		header = append(header, ck)
	}
	header = append(header, "Total")

	records := [][]any{header}
	for _, rk := range p.RowKeys {
		record := make([]any, 0, len(header))
		record = append(record, rk)
		for _, ck := range p.ColKeys {
			record = append(record, p.Count(rk, ck))
		}
		record = append(record, p.RowTotals[rk])
		records = append(records, record)
	}

	totals := make([]any, 0, len(header))
	totals = append(totals, "Total")
	for _, ck := range p.ColKeys {
		totals = append(totals, p.ColTotals[ck])
	}
	totals = append(totals, p.Total)
	return append(records, totals)
}

func stringsToCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// cellValue keeps numbers and booleans typed in the workbook.
func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case float64, float32, int, int32, int64, bool:
		return v
	default:
		return formatValue(v)
	}
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
