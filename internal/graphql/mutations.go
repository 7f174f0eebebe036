package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/export"
)

// Mutation resolvers

// SaveRules validates and stores the derive rules
func (r *Resolver) SaveRules(ctx context.Context, raw json.RawMessage) ([]*DeriveRule, error) {
	var rules []domain.DeriveRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
	}
	if err := r.settings.SaveRules(ctx, rules); err != nil {
		return nil, err
	}
	return convertRulesToGraph(rules), nil
}

// ResetRules restores and returns the default rules
func (r *Resolver) ResetRules(ctx context.Context) ([]*DeriveRule, error) {
	rules, err := r.settings.ResetRules(ctx)
	if err != nil {
		return nil, err
	}
	return convertRulesToGraph(rules), nil
}

func (r *Resolver) SaveFilter(ctx context.Context, raw json.RawMessage) (*domain.FilterGroup, error) {
	tree, err := domain.DecodeFilter(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, err)
	}
	if err := r.settings.SaveFilter(ctx, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func (r *Resolver) CreateCustomField(ctx context.Context, input CustomFieldInput) (*CustomField, error) {
	created, err := r.settings.CreateCustomField(ctx, customFieldFromInput(0, input))
	if err != nil {
		return nil, err
	}
	return convertCustomFieldToGraph(created), nil
}

func (r *Resolver) UpdateCustomField(ctx context.Context, id string, input CustomFieldInput) (*CustomField, error) {
	fieldID, err := parseID("custom field", id)
	if err != nil {
		return nil, err
	}
	updated, err := r.settings.UpdateCustomField(ctx, customFieldFromInput(fieldID, input))
	if err != nil {
		return nil, err
	}
	return convertCustomFieldToGraph(updated), nil
}

func (r *Resolver) DeleteCustomField(ctx context.Context, id string) (bool, error) {
	fieldID, err := parseID("custom field", id)
	if err != nil {
		return false, err
	}
	if err := r.settings.DeleteCustomField(ctx, fieldID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) UpdateNotes(ctx context.Context, entryID string, notes string) (bool, error) {
	id, err := parseID("entry", entryID)
	if err != nil {
		return false, err
	}
	if err := r.entries.UpdateNotes(ctx, id, notes); err != nil {
		return false, err
	}
	return true, nil
}

// SetFieldValue stores one custom field value. The value must coerce to
// the field's data type; a null or blank value clears it.
func (r *Resolver) SetFieldValue(ctx context.Context, entryID, fieldID string, value *string) (bool, error) {
	eid, err := parseID("entry", entryID)
	if err != nil {
		return false, err
	}
	fid, err := parseID("custom field", fieldID)
	if err != nil {
		return false, err
	}
	def, err := r.customField(ctx, fid)
	if err != nil {
		return false, err
	}

	if value != nil && strings.TrimSpace(*value) == "" {
		value = nil
	}
	if value != nil {
		if _, err := def.Coerce(*value); err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrInvalidCustomField, err)
		}
	}
	if err := r.entries.SetValue(ctx, eid, fid, value); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) customField(ctx context.Context, id int64) (domain.CustomFieldDefinition, error) {
	defs, err := r.settings.CustomFields(ctx)
	if err != nil {
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to list custom fields: %w", err)
	}
	for _, d := range defs {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.CustomFieldDefinition{}, fmt.Errorf("custom field %d: %w", id, domain.ErrNotFound)
}

// ExportRows writes the requested rows to a file and returns its signed
// download URL.
func (r *Resolver) ExportRows(ctx context.Context, input ExportInput) (*ExportResult, error) {
	if r.exporter == nil {
		return nil, errors.New("export service is not configured")
	}
	rules, saved, err := r.savedState(ctx)
	if err != nil {
		return nil, err
	}

	var tree *domain.FilterGroup
	if input.AllRows == nil || !*input.AllRows {
		if tree, err = requestTree(input.Filter, saved); err != nil {
			return nil, err
		}
	}

	result, err := r.exporter.Export(ctx, export.Request{
		Name:      stringOrEmpty(input.Name),
		Format:    stringOrEmpty(input.Format),
		Rules:     rules,
		Filter:    tree,
		Columns:   input.Columns,
		PivotRows: stringOrEmpty(input.PivotRows),
		PivotCols: stringOrEmpty(input.PivotCols),
	})
	if err != nil {
		return nil, err
	}
	return convertExportResultToGraph(result), nil
}
