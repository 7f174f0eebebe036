package query

import (
	"context"

	"github.com/rpattn/trialnotes/internal/derive"
	"github.com/rpattn/trialnotes/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/query_mock.go -package=mock

// EntryStore is the entity store consumed by the facade.
type EntryStore interface {
	// ListEntries returns every entry with its custom field values attached.
	ListEntries(ctx context.Context) ([]domain.Entry, error)
	ListCustomFieldDefinitions(ctx context.Context) ([]domain.CustomFieldDefinition, error)
}

// Notifier receives the non-fatal outcomes of a derivation run, such as
// rules that failed on some rows.
type Notifier interface {
	DerivationReport(ctx context.Context, report derive.Report)
}
