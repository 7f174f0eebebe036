// Package flatten turns entries and their custom field values into
// denormalised rows keyed by attribute name and custom field id name.
package flatten

import (
	"encoding/json"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

// Flattener joins custom field values to their definitions.
type Flattener struct {
	log *logger.Logger
}

// New creates a Flattener. A nil logger discards output.
func New(log *logger.Logger) *Flattener {
	if log == nil {
		log = logger.Nop()
	}
	return &Flattener{log: log}
}

// Flatten produces one row per entry, in entry order. Values stay raw text;
// a field never filled in for an entry is absent from its row.
func (f *Flattener) Flatten(entries []domain.Entry, defs []domain.CustomFieldDefinition) []*domain.Row {
	byID := IndexDefinitions(defs)
	rows := make([]*domain.Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, f.FlattenEntry(entry, byID))
	}
	return rows
}

// IndexDefinitions maps definitions by id.
func IndexDefinitions(defs []domain.CustomFieldDefinition) map[int64]domain.CustomFieldDefinition {
	byID := make(map[int64]domain.CustomFieldDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}
	return byID
}

// FlattenEntry builds the row of a single entry.
func (f *Flattener) FlattenEntry(entry domain.Entry, byID map[int64]domain.CustomFieldDefinition) *domain.Row {
	row := NewEntryRow(entry, len(entry.CustomFieldValues))

	for _, value := range entry.CustomFieldValues {
		def, ok := byID[value.CustomFieldID]
		if !ok {
			err := &domain.DanglingReferenceError{EntryID: entry.ID, CustomFieldID: value.CustomFieldID}
			f.log.Debug().Err(err).Msg("skipping custom field value")
			continue
		}
		if domain.IsEntryAttribute(def.IDName) {
			f.log.Warn().
				Str("field", def.IDName).
				Int64("entry_id", entry.ID).
				Msg("custom field shadows an entry attribute, keeping the entry attribute")
			continue
		}
		var v any
		if value.Value != nil {
			v = *value.Value
		}
		row.Set(def.IDName, v)
	}
	return row
}

// NewEntryRow builds a row holding only the native entry attributes.
// extra reserves room for custom field keys.
func NewEntryRow(entry domain.Entry, extra int) *domain.Row {
	row := domain.NewRow(len(domain.EntryAttributeNames) + extra)
	row.Set(domain.AttrID, entry.ID)
	row.Set(domain.AttrCreatedAt, entry.CreatedAt)
	row.Set(domain.AttrUpdatedAt, entry.UpdatedAt)
	row.Set(domain.AttrNCTID, entry.NCTID)
	row.Set(domain.AttrTitle, entry.Title)
	row.Set(domain.AttrDescription, stringOrNil(entry.Description))
	row.Set(domain.AttrNotes, stringOrNil(entry.Notes))
	if entry.RawJSON != nil {
		row.Set(domain.AttrRawJSON, entry.RawJSON)
	} else {
		row.Set(domain.AttrRawJSON, nil)
	}
	row.Set(domain.AttrHistory, historyValue(entry.History))
	return row
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// historyValue exposes the history log as plain JSON values so that path
// expressions can walk it.
func historyValue(history []domain.EntryHistory) any {
	if len(history) == 0 {
		return []any{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return []any{}
	}
	var out []any
	if err := json.Unmarshal(data, &out); err != nil {
		return []any{}
	}
	return out
}
