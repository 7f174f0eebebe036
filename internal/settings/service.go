// Package settings persists the user's derive rules, saved filter tree and
// custom field catalogue, validating them before every write.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/trialnotes/internal/derive"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/filter"
	"github.com/rpattn/trialnotes/internal/logger"
)

// Setting names in the settings store.
const (
	RulesKey  = "derivedRules"
	FilterKey = "entryFilter"
)

// DocumentStore stores named JSON documents.
type DocumentStore interface {
	Get(ctx context.Context, name string) (json.RawMessage, error)
	Put(ctx context.Context, name string, data json.RawMessage) error
}

// FieldStore manages custom field definitions.
type FieldStore interface {
	ListCustomFieldDefinitions(ctx context.Context) ([]domain.CustomFieldDefinition, error)
	CreateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error)
	UpdateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error)
	DeleteCustomField(ctx context.Context, id int64) error
}

// Service loads and saves settings.
type Service struct {
	docs     DocumentStore
	fields   FieldStore
	registry *derive.Registry
	compiler *filter.Compiler
	log      *logger.Logger
}

// NewService creates a settings service. A nil registry uses the built-in
// function set.
func NewService(docs DocumentStore, fields FieldStore, registry *derive.Registry, log *logger.Logger) *Service {
	if registry == nil {
		registry = derive.DefaultRegistry()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		docs:     docs,
		fields:   fields,
		registry: registry,
		compiler: filter.NewCompiler(log),
		log:      log,
	}
}

// Rules returns the saved derive rules, or the default rule set when none
// have been saved yet.
func (s *Service) Rules(ctx context.Context) ([]domain.DeriveRule, error) {
	data, err := s.docs.Get(ctx, RulesKey)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Debug().Str("func", "Service.Rules").Msg("no saved rules, using defaults")
		return derive.DefaultRules(), nil
	}
	if err != nil {
		return nil, err
	}

	var rules []domain.DeriveRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decode saved rules: %w", err)
	}
	return rules, nil
}

// ValidateRules checks every rule against the registry and the namespace
// constraints. All problems are reported together.
func (s *Service) ValidateRules(ctx context.Context, rules []domain.DeriveRule) error {
	var errs []error
	for _, rule := range rules {
		if err := checkPropertyName(rule.PropertyName); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.registry.ResolveArgs(rule); err != nil {
			errs = append(errs, err)
		}
	}

	defs, err := s.fields.ListCustomFieldDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("list custom field definitions: %w", err)
	}
	if err := domain.CheckNamespaces(defs, rules); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// checkPropertyName keeps saved names usable as filter field keys, which
// are split on dots.
func checkPropertyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: property name is required", domain.ErrInvalidRule)
	}
	if strings.ContainsAny(name, " .") {
		return fmt.Errorf("%w: property name %q must not contain spaces or dots", domain.ErrInvalidRule, name)
	}
	return nil
}

// SaveRules validates and stores rules.
func (s *Service) SaveRules(ctx context.Context, rules []domain.DeriveRule) error {
	if err := s.ValidateRules(ctx, rules); err != nil {
		s.log.Warn().Err(err).Str("func", "Service.SaveRules").Msg("rejected derive rules")
		return err
	}
	if rules == nil {
		rules = []domain.DeriveRule{}
	}

	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := s.docs.Put(ctx, RulesKey, data); err != nil {
		return err
	}
	s.log.Info().Str("func", "Service.SaveRules").Int("rules", len(rules)).Msg("derive rules saved")
	return nil
}

// ResetRules replaces the saved rules with the default set.
func (s *Service) ResetRules(ctx context.Context) ([]domain.DeriveRule, error) {
	rules := derive.DefaultRules()
	if err := s.SaveRules(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Filter returns the saved filter tree, or nil when none is saved.
func (s *Service) Filter(ctx context.Context) (*domain.FilterGroup, error) {
	data, err := s.docs.Get(ctx, FilterKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.DecodeFilter(data)
}

// SaveFilter stores tree after checking that it compiles. Missing node ids
// are assigned.
func (s *Service) SaveFilter(ctx context.Context, tree *domain.FilterGroup) error {
	if _, err := s.compiler.Compile(tree); err != nil {
		return err
	}
	if tree == nil {
		tree = domain.NewFilterGroup(domain.CombinatorAnd)
	}
	tree.EnsureIDs()

	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	return s.docs.Put(ctx, FilterKey, data)
}

// CustomFields lists every custom field definition.
func (s *Service) CustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	return s.fields.ListCustomFieldDefinitions(ctx)
}

// CreateCustomField stores a new definition unless its id name collides
// with an entry attribute, another field or the derived prefix.
func (s *Service) CreateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error) {
	if err := def.Validate(); err != nil {
		return domain.CustomFieldDefinition{}, err
	}
	if err := s.checkFieldNamespace(ctx, def); err != nil {
		return domain.CustomFieldDefinition{}, err
	}
	return s.fields.CreateCustomField(ctx, def)
}

// UpdateCustomField rewrites an existing definition under the same checks
// as CreateCustomField.
func (s *Service) UpdateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error) {
	if err := def.Validate(); err != nil {
		return domain.CustomFieldDefinition{}, err
	}
	if err := s.checkFieldNamespace(ctx, def); err != nil {
		return domain.CustomFieldDefinition{}, err
	}
	return s.fields.UpdateCustomField(ctx, def)
}

// DeleteCustomField removes a definition with its values.
func (s *Service) DeleteCustomField(ctx context.Context, id int64) error {
	return s.fields.DeleteCustomField(ctx, id)
}

func (s *Service) checkFieldNamespace(ctx context.Context, def domain.CustomFieldDefinition) error {
	defs, err := s.fields.ListCustomFieldDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("list custom field definitions: %w", err)
	}

	merged := make([]domain.CustomFieldDefinition, 0, len(defs)+1)
	for _, d := range defs {
		if def.ID != 0 && d.ID == def.ID {
			continue
		}
		merged = append(merged, d)
	}
	merged = append(merged, def)

	return domain.CheckNamespaces(merged, nil)
}
