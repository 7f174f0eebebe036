// Package ingestion imports ClinicalTrials.gov studies as entries and
// spreadsheet columns as custom field values.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyUpload is returned when the upload carries no data.
	ErrEmptyUpload = errors.New("file is empty")
)

// EntryStore is the entry persistence the importer writes through.
type EntryStore interface {
	FindByNCTIDs(ctx context.Context, nctIDs []string) (map[string]domain.Entry, error)
	UpsertEntries(ctx context.Context, entries []domain.Entry) error
}

// ValueStore is the custom field persistence the importer writes through.
type ValueStore interface {
	ListCustomFieldDefinitions(ctx context.Context) ([]domain.CustomFieldDefinition, error)
	SetValue(ctx context.Context, entryID, customFieldID int64, value *string) error
}

// Service imports uploaded files.
type Service struct {
	entries EntryStore
	values  ValueStore
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a new ingestion service.
func NewService(entries EntryStore, values ValueStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		entries: entries,
		values:  values,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RowError reports one record that could not be imported. Row is 1-based
// within the uploaded records.
type RowError struct {
	Row     int    `json:"row"`
	NCTID   string `json:"nctId,omitempty"`
	Message string `json:"message"`
}
