// Package query composes flattening, derivation and filtering into the
// read paths used by the UI bridge and exports. Every call recomputes from
// the store; rules and filter trees are passed in by the caller.
package query

import (
	"context"
	"fmt"

	"github.com/rpattn/trialnotes/internal/derive"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/filter"
	"github.com/rpattn/trialnotes/internal/flatten"
	"github.com/rpattn/trialnotes/internal/logger"
)

// Service is the query facade.
type Service struct {
	store     EntryStore
	flattener *flatten.Flattener
	pipeline  *derive.Pipeline
	compiler  *filter.Compiler
	notifier  Notifier
	log       *logger.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier sets the receiver of derivation reports.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRegistry replaces the derive function registry.
func WithRegistry(r *derive.Registry) Option {
	return func(s *Service) { s.pipeline = derive.NewPipeline(r, s.log.Component("derive")) }
}

// NewService creates the facade over store.
func NewService(store EntryStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:     store,
		flattener: flatten.New(log.Component("flatten")),
		pipeline:  derive.NewPipeline(nil, log.Component("derive")),
		compiler:  filter.NewCompiler(log.Component("filter")),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the derive function registry in use.
func (s *Service) Registry() *derive.Registry {
	return s.pipeline.Evaluator().Registry()
}

// GetAllRows flattens every entry and attaches derived columns.
func (s *Service) GetAllRows(ctx context.Context, rules []domain.DeriveRule) ([]*domain.Row, error) {
	rows, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	report := s.pipeline.Run(rows, rules)
	if s.notifier != nil && (len(report.Failures) > 0 || len(report.Skipped) > 0) {
		s.notifier.DerivationReport(ctx, report)
	}
	return rows, nil
}

// GetFilteredRows is GetAllRows followed by the filter tree.
func (s *Service) GetFilteredRows(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup) ([]*domain.Row, error) {
	f, err := s.compiler.Build(tree)
	if err != nil {
		return nil, err
	}
	rows, err := s.GetAllRows(ctx, rules)
	if err != nil {
		return nil, err
	}
	return f.Apply(rows), nil
}

// CountFiltered is the length of GetFilteredRows.
func (s *Service) CountFiltered(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup) (int, error) {
	rows, err := s.GetFilteredRows(ctx, rules, tree)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Service) load(ctx context.Context) ([]*domain.Row, []domain.CustomFieldDefinition, error) {
	defs, err := s.store.ListCustomFieldDefinitions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list custom field definitions: %w", err)
	}
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list entries: %w", err)
	}
	return s.flattener.Flatten(entries, defs), defs, nil
}
