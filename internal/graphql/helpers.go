package graphql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/export"
	"github.com/rpattn/trialnotes/internal/query"
)

// Safely dereference strings
func stringOrEmpty(s *string) string {
	if s != nil {
		return *s
	}
	return ""
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q: %w", kind, raw, domain.ErrNotFound)
	}
	return id, nil
}

func convertFieldsToGraph(fields []query.Field) []*Field {
	result := make([]*Field, len(fields))
	for i, f := range fields {
		result[i] = &Field{
			Name:            f.Name,
			Label:           f.Label,
			InputType:       f.InputType,
			DefaultOperator: f.DefaultOperator,
			Source:          string(f.Source),
		}
	}
	return result
}

func convertBucketsToGraph(buckets []query.Bucket) []*Bucket {
	result := make([]*Bucket, len(buckets))
	for i, b := range buckets {
		result[i] = &Bucket{Key: b.Key, Count: b.Count}
	}
	return result
}

func convertAggregationToGraph(agg query.Aggregation) *Aggregation {
	return &Aggregation{
		Field:    agg.Field,
		Buckets:  convertBucketsToGraph(agg.Buckets),
		Total:    agg.Total,
		Distinct: agg.Distinct,
	}
}

// convertPivotToGraph flattens the nested counts into cells ordered like
// the row and column keys. Empty cells are left out.
func convertPivotToGraph(p *query.PivotTable) *PivotTable {
	out := &PivotTable{
		RowField: p.RowField,
		ColField: p.ColField,
		RowKeys:  p.RowKeys,
		ColKeys:  p.ColKeys,
		Total:    p.Total,
	}
	for _, rk := range p.RowKeys {
		out.RowTotals = append(out.RowTotals, &Bucket{Key: rk, Count: p.RowTotals[rk]})
		for _, ck := range p.ColKeys {
			if n := p.Count(rk, ck); n > 0 {
				out.Cells = append(out.Cells, &PivotCell{Row: rk, Col: ck, Count: n})
			}
		}
	}
	for _, ck := range p.ColKeys {
		out.ColTotals = append(out.ColTotals, &Bucket{Key: ck, Count: p.ColTotals[ck]})
	}
	return out
}

func convertGeoPointsToGraph(points []query.GeoPoint) []*GeoPoint {
	result := make([]*GeoPoint, len(points))
	for i, p := range points {
		result[i] = &GeoPoint{Lat: p.Lat, Lon: p.Lon, Count: p.Count}
	}
	return result
}

func convertAutocompleteToGraph(values map[string][]string) []*AutocompleteValues {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]*AutocompleteValues, len(names))
	for i, name := range names {
		result[i] = &AutocompleteValues{Field: name, Values: values[name]}
	}
	return result
}

func convertRulesToGraph(rules []domain.DeriveRule) []*DeriveRule {
	result := make([]*DeriveRule, len(rules))
	for i, r := range rules {
		rule := &DeriveRule{
			PropertyName: r.PropertyName,
			Func:         r.Func,
			DisplayName:  optionalString(r.DisplayName),
			Description:  optionalString(r.Description),
		}
		if r.Args != nil {
			rule.Args = r.Args
		}
		if r.JSONLogic != nil {
			rule.JSONLogic = r.JSONLogic
		}
		result[i] = rule
	}
	return result
}

func convertCustomFieldToGraph(d domain.CustomFieldDefinition) *CustomField {
	return &CustomField{
		ID:                  strconv.FormatInt(d.ID, 10),
		IDName:              d.IDName,
		DataType:            string(d.DataType),
		Label:               d.Label,
		Description:         optionalString(d.Description),
		AIDescription:       optionalString(d.AIDescription),
		AutocompleteEnabled: d.AutocompleteEnabled,
		IsDisabled:          d.IsDisabled,
		CreatedAt:           formatTime(d.CreatedAt),
		UpdatedAt:           formatTime(d.UpdatedAt),
	}
}

func convertCustomFieldsToGraph(defs []domain.CustomFieldDefinition) []*CustomField {
	result := make([]*CustomField, len(defs))
	for i, d := range defs {
		result[i] = convertCustomFieldToGraph(d)
	}
	return result
}

func customFieldFromInput(id int64, input CustomFieldInput) domain.CustomFieldDefinition {
	def := domain.CustomFieldDefinition{
		ID:            id,
		IDName:        input.IDName,
		DataType:      domain.FieldType(input.DataType),
		Label:         input.Label,
		Description:   stringOrEmpty(input.Description),
		AIDescription: stringOrEmpty(input.AIDescription),
	}
	if input.AutocompleteEnabled != nil {
		def.AutocompleteEnabled = *input.AutocompleteEnabled
	}
	if input.IsDisabled != nil {
		def.IsDisabled = *input.IsDisabled
	}
	return def
}

func convertEntryToGraph(e domain.Entry) *Entry {
	history := make([]*HistoryRecord, len(e.History))
	for i, h := range e.History {
		history[i] = &HistoryRecord{
			Index:       i,
			Date:        h.Date,
			Type:        string(h.Type),
			Description: optionalString(h.Description),
			APIQuery:    optionalString(h.APIQuery),
			HasData:     !isNullJSON(h.Data),
		}
	}
	return &Entry{
		ID:          strconv.FormatInt(e.ID, 10),
		NCTID:       e.NCTID,
		Title:       e.Title,
		Description: e.Description,
		Notes:       e.Notes,
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
		RawJSON:     e.RawJSON,
		History:     history,
	}
}

func convertExportResultToGraph(r export.Result) *ExportResult {
	return &ExportResult{
		ID:          r.ID.String(),
		FileName:    r.FileName,
		Format:      r.Format,
		MimeType:    r.MimeType,
		Rows:        r.Rows,
		ByteSize:    r.ByteSize,
		CreatedAt:   formatTime(r.CreatedAt),
		DownloadURL: r.DownloadURL,
	}
}
