// Package graphql serves the query facade, settings and entry edits over
// GraphQL.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/export"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/internal/query"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// ErrInvalidArgument marks arguments that are well-typed but unusable.
var ErrInvalidArgument = errors.New("invalid argument")

// Queries is the read side of the API.
type Queries interface {
	GetAllRows(ctx context.Context, rules []domain.DeriveRule) ([]*domain.Row, error)
	GetFilteredRows(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup) ([]*domain.Row, error)
	CountFiltered(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup) (int, error)
	Fields(ctx context.Context, rules []domain.DeriveRule) ([]query.Field, error)
	AggregateByField(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup, field string, top int, opts ...query.AggregateOption) (query.Aggregation, error)
	Pivot(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup, rowField, colField string) (*query.PivotTable, error)
	GeoHeatMap(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup, decimals int) ([]query.GeoPoint, error)
	UniqueValues(ctx context.Context) (map[string][]string, error)
}

// Settings holds the saved rules, filter and custom field catalogue.
type Settings interface {
	Rules(ctx context.Context) ([]domain.DeriveRule, error)
	SaveRules(ctx context.Context, rules []domain.DeriveRule) error
	ResetRules(ctx context.Context) ([]domain.DeriveRule, error)
	Filter(ctx context.Context) (*domain.FilterGroup, error)
	SaveFilter(ctx context.Context, tree *domain.FilterGroup) error
	CustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error)
	CreateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error)
	UpdateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error)
	DeleteCustomField(ctx context.Context, id int64) error
}

// Entries applies user edits to entries.
type Entries interface {
	GetEntry(ctx context.Context, id int64) (domain.Entry, error)
	UpdateNotes(ctx context.Context, id int64, notes string) error
	SetValue(ctx context.Context, entryID, customFieldID int64, value *string) error
}

// Exporter writes export files.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (export.Result, error)
}

// Resolver handles GraphQL queries and mutations
type Resolver struct {
	queries  Queries
	settings Settings
	entries  Entries
	exporter Exporter
	logger   *logger.Logger
}

// NewResolver creates a new GraphQL resolver. exporter may be nil, in
// which case exportRows fails.
func NewResolver(queries Queries, settings Settings, entries Entries, exporter Exporter, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		queries:  queries,
		settings: settings,
		entries:  entries,
		exporter: exporter,
		logger:   log,
	}
}

// savedState loads the rules and filter tree that every read path is
// evaluated against.
func (r *Resolver) savedState(ctx context.Context) ([]domain.DeriveRule, *domain.FilterGroup, error) {
	rules, err := r.settings.Rules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules: %w", err)
	}
	tree, err := r.settings.Filter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load filter: %w", err)
	}
	return rules, tree, nil
}

// requestTree decodes the filter argument, falling back to the saved tree
// when it is null.
func requestTree(raw json.RawMessage, saved *domain.FilterGroup) (*domain.FilterGroup, error) {
	if isNullJSON(raw) {
		return saved, nil
	}
	tree, err := domain.DecodeFilter(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, err)
	}
	return tree, nil
}

// Query resolvers

// Rows returns every entry with the saved rules applied
func (r *Resolver) Rows(ctx context.Context) ([]*domain.Row, error) {
	rules, err := r.settings.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return r.queries.GetAllRows(ctx, rules)
}

// FilteredRows returns the rows passing filter, or the saved filter
func (r *Resolver) FilteredRows(ctx context.Context, filter json.RawMessage) ([]*domain.Row, error) {
	rules, saved, err := r.savedState(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := requestTree(filter, saved)
	if err != nil {
		return nil, err
	}
	return r.queries.GetFilteredRows(ctx, rules, tree)
}

func (r *Resolver) Count(ctx context.Context, filter json.RawMessage) (int, error) {
	rules, saved, err := r.savedState(ctx)
	if err != nil {
		return 0, err
	}
	tree, err := requestTree(filter, saved)
	if err != nil {
		return 0, err
	}
	return r.queries.CountFiltered(ctx, rules, tree)
}

// Fields returns the filterable field catalogue
func (r *Resolver) Fields(ctx context.Context) ([]*Field, error) {
	rules, err := r.settings.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	fields, err := r.queries.Fields(ctx, rules)
	if err != nil {
		return nil, err
	}
	return convertFieldsToGraph(fields), nil
}

// Aggregate counts the values of one field over the filtered rows
func (r *Resolver) Aggregate(ctx context.Context, input AggregateInput) (*Aggregation, error) {
	field := strings.TrimSpace(input.Field)
	if field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrInvalidArgument)
	}
	top := 0
	if input.Top != nil {
		if *input.Top < 0 {
			return nil, fmt.Errorf("%w: top must be a non-negative integer", ErrInvalidArgument)
		}
		top = *input.Top
	}

	var opts []query.AggregateOption
	if sub := strings.TrimSpace(stringOrEmpty(input.SubPath)); sub != "" {
		opts = append(opts, query.WithSubPath(sub))
	}
	if !isNullJSON(input.Where) {
		where, err := jsonlogic.Parse(input.Where)
		if err != nil {
			return nil, fmt.Errorf("%w: where: %v", ErrInvalidArgument, err)
		}
		opts = append(opts, query.WithWhere(where))
	}

	rules, saved, err := r.savedState(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := requestTree(input.Filter, saved)
	if err != nil {
		return nil, err
	}
	agg, err := r.queries.AggregateByField(ctx, rules, tree, field, top, opts...)
	if err != nil {
		return nil, err
	}
	return convertAggregationToGraph(agg), nil
}

// Pivot cross-tabulates two fields over the filtered rows
func (r *Resolver) Pivot(ctx context.Context, rowField, colField string, filter json.RawMessage) (*PivotTable, error) {
	rowField, colField = strings.TrimSpace(rowField), strings.TrimSpace(colField)
	if rowField == "" || colField == "" {
		return nil, fmt.Errorf("%w: rows and cols are required", ErrInvalidArgument)
	}
	rules, saved, err := r.savedState(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := requestTree(filter, saved)
	if err != nil {
		return nil, err
	}
	table, err := r.queries.Pivot(ctx, rules, tree, rowField, colField)
	if err != nil {
		return nil, err
	}
	return convertPivotToGraph(table), nil
}

// GeoHeatMap counts study sites per coordinate
func (r *Resolver) GeoHeatMap(ctx context.Context, decimals *int, filter json.RawMessage) ([]*GeoPoint, error) {
	places := -1
	if decimals != nil {
		if *decimals < 0 || *decimals > 10 {
			return nil, fmt.Errorf("%w: decimals must be between 0 and 10", ErrInvalidArgument)
		}
		places = *decimals
	}
	rules, saved, err := r.savedState(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := requestTree(filter, saved)
	if err != nil {
		return nil, err
	}
	points, err := r.queries.GeoHeatMap(ctx, rules, tree, places)
	if err != nil {
		return nil, err
	}
	return convertGeoPointsToGraph(points), nil
}

// Autocomplete returns the distinct values of autocomplete-enabled fields
func (r *Resolver) Autocomplete(ctx context.Context) ([]*AutocompleteValues, error) {
	values, err := r.queries.UniqueValues(ctx)
	if err != nil {
		return nil, err
	}
	return convertAutocompleteToGraph(values), nil
}

func (r *Resolver) Rules(ctx context.Context) ([]*DeriveRule, error) {
	rules, err := r.settings.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return convertRulesToGraph(rules), nil
}

// SavedFilter returns the saved tree, an empty and-group when none is saved
func (r *Resolver) SavedFilter(ctx context.Context) (*domain.FilterGroup, error) {
	tree, err := r.settings.Filter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter: %w", err)
	}
	if tree == nil {
		tree = domain.NewFilterGroup(domain.CombinatorAnd)
	}
	return tree, nil
}

func (r *Resolver) CustomFields(ctx context.Context) ([]*CustomField, error) {
	defs, err := r.settings.CustomFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom fields: %w", err)
	}
	return convertCustomFieldsToGraph(defs), nil
}

// Entry returns one entry by ID
func (r *Resolver) Entry(ctx context.Context, id string) (*Entry, error) {
	entryID, err := parseID("entry", id)
	if err != nil {
		return nil, err
	}
	entry, err := r.entries.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return convertEntryToGraph(entry), nil
}

// EntryDiff renders a unified diff from the payload superseded by one
// history record to the entry's current payload.
func (r *Resolver) EntryDiff(ctx context.Context, id string, index int) (string, error) {
	entryID, err := parseID("entry", id)
	if err != nil {
		return "", err
	}
	entry, err := r.entries.GetEntry(ctx, entryID)
	if err != nil {
		return "", fmt.Errorf("failed to get entry: %w", err)
	}
	if index < 0 || index >= len(entry.History) {
		return "", fmt.Errorf("history %d of entry %d: %w", index, entryID, domain.ErrNotFound)
	}
	record := entry.History[index]

	previous, err := domain.SnapshotFromHistory(entry, record)
	if err != nil {
		return "", err
	}
	return domain.DiffSnapshots("version before "+record.Date, previous, "current", domain.SnapshotOf(entry)), nil
}
