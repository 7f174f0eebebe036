package repository

import (
	"context"
	"encoding/json"

	"github.com/rpattn/trialnotes/internal/domain"
)

// EntryRepository persists entries and reads them back joined with their
// custom field values.
type EntryRepository interface {
	ListEntries(ctx context.Context) ([]domain.Entry, error)
	GetEntry(ctx context.Context, id int64) (domain.Entry, error)
	FindByNCTIDs(ctx context.Context, nctIDs []string) (map[string]domain.Entry, error)
	CreateEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error)
	// UpsertEntries inserts entries or replaces the imported columns of
	// existing ones, matching on nct id, in one transaction.
	UpsertEntries(ctx context.Context, entries []domain.Entry) error
	UpdateNotes(ctx context.Context, id int64, notes string) error
	DeleteEntry(ctx context.Context, id int64) error
	ListValuesByEntryIDs(ctx context.Context, entryIDs []int64) ([]domain.CustomFieldValue, error)
}

// CustomFieldRepository persists custom field definitions and their values.
type CustomFieldRepository interface {
	ListCustomFieldDefinitions(ctx context.Context) ([]domain.CustomFieldDefinition, error)
	GetCustomField(ctx context.Context, id int64) (domain.CustomFieldDefinition, error)
	CreateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error)
	UpdateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error)
	DeleteCustomField(ctx context.Context, id int64) error
	// SetValue upserts the value of one (entry, field) pair. A nil value
	// clears it.
	SetValue(ctx context.Context, entryID, customFieldID int64, value *string) error
}

// SettingsRepository stores named JSON documents.
type SettingsRepository interface {
	Get(ctx context.Context, name string) (json.RawMessage, error)
	Put(ctx context.Context, name string, data json.RawMessage) error
}
