package ingestion

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
)

// ValuesRequest describes a custom field value import from a CSV or XLSX
// sheet. One column holds the nct id; every other column whose header
// matches a custom field id name or label is imported into that field.
type ValuesRequest struct {
	FileName       string
	HeaderRowIndex *int
	Data           io.Reader
}

// ValuesSummary reports the outcome of a value import.
type ValuesSummary struct {
	TotalRows      int        `json:"totalRows"`
	ValuesWritten  int        `json:"valuesWritten"`
	MatchedColumns []string   `json:"matchedColumns"`
	UnknownColumns []string   `json:"unknownColumns"`
	MissingEntries []string   `json:"missingEntries"`
	Errors         []RowError `json:"errors"`
}

func isNCTColumn(header string) bool {
	switch strings.ToLower(header) {
	case "nctid", "nct_id":
		return true
	default:
		return false
	}
}

// ImportValues writes spreadsheet cells into custom field values. Empty
// cells are left untouched; cells that do not coerce to the field type are
// reported and skipped.
func (s *Service) ImportValues(ctx context.Context, req ValuesRequest) (ValuesSummary, error) {
	summary := ValuesSummary{
		MatchedColumns: []string{},
		UnknownColumns: []string{},
		MissingEntries: []string{},
		Errors:         []RowError{},
	}
	if req.Data == nil {
		return summary, fmt.Errorf("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, ErrEmptyUpload
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	summary.TotalRows = len(table.rows)

	defs, err := s.values.ListCustomFieldDefinitions(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list custom fields: %w", err)
	}

	nctCol := -1
	columns := make(map[int]domain.CustomFieldDefinition)
	var order []int
	for i, header := range table.headers {
		if nctCol < 0 && isNCTColumn(header) {
			nctCol = i
			continue
		}
		def, ok := matchField(defs, header, table.rawHeaders[i])
		if !ok {
			summary.UnknownColumns = append(summary.UnknownColumns, table.rawHeaders[i])
			continue
		}
		columns[i] = def
		order = append(order, i)
		summary.MatchedColumns = append(summary.MatchedColumns, def.IDName)
	}
	if nctCol < 0 {
		return summary, fmt.Errorf("%w: no nctId column", ErrUnsupportedFormat)
	}
	if len(columns) == 0 {
		return summary, nil
	}

	ids := make([]string, 0, len(table.rows))
	for _, row := range table.rows {
		if id := strings.TrimSpace(row[nctCol]); id != "" {
			ids = append(ids, id)
		}
	}
	entries, err := s.entries.FindByNCTIDs(ctx, ids)
	if err != nil {
		return summary, fmt.Errorf("failed to look up entries: %w", err)
	}

	for r, row := range table.rows {
		nctID := strings.TrimSpace(row[nctCol])
		if nctID == "" {
			summary.Errors = append(summary.Errors, RowError{Row: r + 1, Message: "nct id is empty"})
			continue
		}
		entry, ok := entries[nctID]
		if !ok {
			summary.MissingEntries = append(summary.MissingEntries, nctID)
			continue
		}

		for _, col := range order {
			def := columns[col]
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			if _, err := def.Coerce(cell); err != nil {
				summary.Errors = append(summary.Errors, RowError{Row: r + 1, NCTID: nctID, Message: err.Error()})
				continue
			}
			if err := s.values.SetValue(ctx, entry.ID, def.ID, &cell); err != nil {
				return summary, fmt.Errorf("failed to store %s of %s: %w", def.IDName, nctID, err)
			}
			summary.ValuesWritten++
		}
	}

	s.log.Info().
		Str("func", "Service.ImportValues").
		Int("rows", summary.TotalRows).
		Int("values", summary.ValuesWritten).
		Int("missing_entries", len(summary.MissingEntries)).
		Msg("custom field values imported")
	return summary, nil
}

func matchField(defs []domain.CustomFieldDefinition, header, raw string) (domain.CustomFieldDefinition, bool) {
	for _, d := range defs {
		if d.IDName == header {
			return d, true
		}
	}
	for _, d := range defs {
		if strings.EqualFold(d.Label, raw) {
			return d, true
		}
	}
	return domain.CustomFieldDefinition{}, false
}
