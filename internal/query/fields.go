package query

import (
	"context"
	"fmt"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/filter"
)

// FieldSource tells where a filterable field comes from.
type FieldSource string

const (
	SourceCustom  FieldSource = "custom"
	SourceDerived FieldSource = "derived"
	SourceEntry   FieldSource = "entry"
)

// Field describes one filterable row key for the query builder.
type Field struct {
	Name            string      `json:"name"`
	Label           string      `json:"label"`
	InputType       string      `json:"inputType"`
	DefaultOperator string      `json:"defaultOperator"`
	Source          FieldSource `json:"source"`
}

var customInputTypes = map[domain.FieldType]string{
	domain.FieldTypeString:  "text",
	domain.FieldTypeNumber:  "number",
	domain.FieldTypeBoolean: "text",
}

var entryInputTypes = map[string]string{
	domain.AttrID:        "number",
	domain.AttrCreatedAt: "datetime-local",
	domain.AttrUpdatedAt: "datetime-local",
}

// BuildFields lists custom fields, then derived columns, then entry
// attributes.
func BuildFields(defs []domain.CustomFieldDefinition, rules []domain.DeriveRule) []Field {
	fields := make([]Field, 0, len(defs)+len(rules)+len(domain.EntryAttributeNames))
	for _, def := range defs {
		inputType, ok := customInputTypes[def.DataType]
		if !ok {
			inputType = "text"
		}
		fields = append(fields, Field{
			Name:            def.IDName,
			Label:           def.Label,
			InputType:       inputType,
			DefaultOperator: filter.OpContains,
			Source:          SourceCustom,
		})
	}
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if _, dup := seen[rule.PropertyName]; dup {
			continue
		}
		seen[rule.PropertyName] = struct{}{}
		fields = append(fields, Field{
			Name:            rule.OutputKey(),
			Label:           fmt.Sprintf("Derived field: %s", rule.PropertyName),
			InputType:       "text",
			DefaultOperator: filter.OpContains,
			Source:          SourceDerived,
		})
	}
	for _, attr := range domain.EntryAttributeNames {
		inputType, ok := entryInputTypes[attr]
		if !ok {
			inputType = "text"
		}
		fields = append(fields, Field{
			Name:            attr,
			Label:           attr,
			InputType:       inputType,
			DefaultOperator: filter.OpContains,
			Source:          SourceEntry,
		})
	}
	return fields
}

// Fields returns the filter field catalogue for the current definitions
// and rules.
func (s *Service) Fields(ctx context.Context, rules []domain.DeriveRule) ([]Field, error) {
	defs, err := s.store.ListCustomFieldDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom field definitions: %w", err)
	}
	return BuildFields(defs, rules), nil
}
