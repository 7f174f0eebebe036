package domain

import (
	"encoding/json"
	"time"
)

// Entry attribute keys as they appear in a flattened row. Custom field id
// names and derived column names must not reuse them.
const (
	AttrID          = "id"
	AttrCreatedAt   = "createdAt"
	AttrUpdatedAt   = "updatedAt"
	AttrNCTID       = "nctId"
	AttrTitle       = "title"
	AttrDescription = "description"
	AttrNotes       = "notes"
	AttrRawJSON     = "rawJson"
	AttrHistory     = "history"
)

// EntryAttributeNames lists the native entry attributes in row order.
var EntryAttributeNames = []string{
	AttrID,
	AttrCreatedAt,
	AttrUpdatedAt,
	AttrNCTID,
	AttrTitle,
	AttrDescription,
	AttrNotes,
	AttrRawJSON,
	AttrHistory,
}

// IsEntryAttribute reports whether name is one of the native entry attributes.
func IsEntryAttribute(name string) bool {
	for _, attr := range EntryAttributeNames {
		if attr == name {
			return true
		}
	}
	return false
}

// HistoryType distinguishes import history records.
type HistoryType string

const (
	HistoryTypeLegacy     HistoryType = "legacy"
	HistoryTypeNewVersion HistoryType = "new_version"
)

// EntryHistory is one record of the import-history log of an entry.
type EntryHistory struct {
	Date        string          `json:"date"`
	Description string          `json:"desc,omitempty"`
	Type        HistoryType     `json:"type"`
	APIQuery    string          `json:"apiQuery,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Entry represents one clinical-trial record under annotation.
type Entry struct {
	ID          int64          `json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	NCTID       string         `json:"nctId"`
	Title       string         `json:"title"`
	Description *string        `json:"description"`
	Notes       *string        `json:"notes"`
	RawJSON     map[string]any `json:"rawJson"`
	History     []EntryHistory `json:"history,omitempty"`

	// CustomFieldValues holds the values attached to this entry. The store
	// adapter fills it when listing entries.
	CustomFieldValues []CustomFieldValue `json:"customFieldsData,omitempty"`
}

// NewEntry creates a new entry for an imported study.
func NewEntry(nctID, title string, description *string, raw map[string]any) Entry {
	now := time.Now()
	return Entry{
		NCTID:       nctID,
		Title:       title,
		Description: description,
		RawJSON:     raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithNotes returns a copy of the entry with updated notes.
func (e Entry) WithNotes(notes string) Entry {
	updated := e
	updated.Notes = &notes
	updated.UpdatedAt = time.Now()
	return updated
}

// WithHistory returns a copy of the entry with one more history record appended.
func (e Entry) WithHistory(record EntryHistory) Entry {
	updated := e
	updated.History = append(append([]EntryHistory(nil), e.History...), record)
	return updated
}

// RawJSONBytes encodes the raw study payload for storage.
func (e Entry) RawJSONBytes() ([]byte, error) {
	if e.RawJSON == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e.RawJSON)
}

// HistoryBytes encodes the history log for storage.
func (e Entry) HistoryBytes() ([]byte, error) {
	if e.History == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.History)
}

// DecodeRawJSON parses a stored raw payload. Empty input yields a nil map.
func DecodeRawJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DecodeHistory parses a stored history log.
func DecodeHistory(data []byte) ([]EntryHistory, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var history []EntryHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
