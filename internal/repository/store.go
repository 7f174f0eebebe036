package repository

import (
	"context"

	"github.com/rpattn/trialnotes/internal/db"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

// Store bundles the repositories over one database.
type Store struct {
	Entries      EntryRepository
	CustomFields CustomFieldRepository
	Settings     SettingsRepository
}

// NewStore creates every repository over conn.
func NewStore(conn *db.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		Entries:      NewEntryRepository(conn, log),
		CustomFields: NewCustomFieldRepository(conn, log),
		Settings:     NewSettingsRepository(conn, log),
	}
}

// ListEntries returns every entry with its custom field values attached.
func (s *Store) ListEntries(ctx context.Context) ([]domain.Entry, error) {
	return s.Entries.ListEntries(ctx)
}

// ListCustomFieldDefinitions returns every custom field definition.
func (s *Store) ListCustomFieldDefinitions(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	return s.CustomFields.ListCustomFieldDefinitions(ctx)
}

// UpdateNotes replaces the notes of an entry.
func (s *Store) UpdateNotes(ctx context.Context, id int64, notes string) error {
	return s.Entries.UpdateNotes(ctx, id, notes)
}

// SetValue upserts one custom field value of an entry. A nil value clears it.
func (s *Store) SetValue(ctx context.Context, entryID, customFieldID int64, value *string) error {
	return s.CustomFields.SetValue(ctx, entryID, customFieldID, value)
}

// GetEntry returns one entry with its custom field values.
func (s *Store) GetEntry(ctx context.Context, id int64) (domain.Entry, error) {
	return s.Entries.GetEntry(ctx, id)
}
