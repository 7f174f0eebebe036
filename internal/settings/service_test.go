package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/trialnotes/internal/derive"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/filter"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

type memDocs struct {
	docs map[string]json.RawMessage
	err  error
}

func newMemDocs() *memDocs { return &memDocs{docs: map[string]json.RawMessage{}} }

func (m *memDocs) Get(_ context.Context, name string) (json.RawMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("setting %q: %w", name, domain.ErrNotFound)
	}
	return d, nil
}

func (m *memDocs) Put(_ context.Context, name string, data json.RawMessage) error {
	m.docs[name] = data
	return nil
}

type memFields struct {
	defs []domain.CustomFieldDefinition
}

func (m *memFields) ListCustomFieldDefinitions(context.Context) ([]domain.CustomFieldDefinition, error) {
	return m.defs, nil
}

func (m *memFields) CreateCustomField(_ context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error) {
	def.ID = int64(len(m.defs) + 1)
	m.defs = append(m.defs, def)
	return def, nil
}

func (m *memFields) UpdateCustomField(_ context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error) {
	for i := range m.defs {
		if m.defs[i].ID == def.ID {
			m.defs[i] = def
			return def, nil
		}
	}
	return domain.CustomFieldDefinition{}, domain.ErrNotFound
}

func (m *memFields) DeleteCustomField(_ context.Context, id int64) error {
	for i := range m.defs {
		if m.defs[i].ID == id {
			m.defs = append(m.defs[:i], m.defs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func newTestService() (*Service, *memDocs, *memFields) {
	docs := newMemDocs()
	fields := &memFields{defs: []domain.CustomFieldDefinition{
		{ID: 1, IDName: "drug_name", DataType: domain.FieldTypeString, Label: "Drug"},
	}}
	return NewService(docs, fields, nil, nil), docs, fields
}

func TestRules_DefaultsWhenUnsaved(t *testing.T) {
	svc, _, _ := newTestService()

	rules, err := svc.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, derive.DefaultRules(), rules)
}

func TestRules_StoreError(t *testing.T) {
	svc, docs, _ := newTestService()
	docs.err = errors.New("disk full")

	_, err := svc.Rules(context.Background())
	assert.Error(t, err)
}

func TestSaveRules_RoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	rules := []domain.DeriveRule{
		{PropertyName: "first_drug", Func: derive.FuncSplitFirst, Args: map[string]any{"delimeter": "|"}, JSONLogic: jsonlogic.Var("drug_name")},
		{PropertyName: "status", Func: derive.FuncGet, Args: map[string]any{}, JSONLogic: jsonlogic.Var("rawJson.statusModule.overallStatus")},
	}

	require.NoError(t, svc.SaveRules(ctx, rules))

	got, err := svc.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first_drug", got[0].PropertyName)
	path, ok := got[0].JSONLogic.VarPath()
	require.True(t, ok)
	assert.Equal(t, "drug_name", path)
	assert.Equal(t, "|", got[0].Args["delimeter"])
}

func TestSaveRules_RejectsInvalid(t *testing.T) {
	svc, docs, _ := newTestService()
	ctx := context.Background()

	err := svc.SaveRules(ctx, []domain.DeriveRule{
		{PropertyName: "a", Func: "no_such_function", JSONLogic: jsonlogic.Var("title")},
		{PropertyName: "b", Func: derive.FuncJoin, JSONLogic: jsonlogic.Var("title")},
		{PropertyName: "b", Func: derive.FuncGet, JSONLogic: jsonlogic.Var("title")},
	})
	require.Error(t, err)

	var unknown *domain.UnknownFunctionError
	assert.ErrorAs(t, err, &unknown)
	var invalid *domain.ValidationError
	assert.ErrorAs(t, err, &invalid)
	assert.ErrorIs(t, err, domain.ErrNameCollision)
	assert.Empty(t, docs.docs)
}

func TestSaveRules_RejectsUnusablePropertyNames(t *testing.T) {
	svc, docs, _ := newTestService()
	ctx := context.Background()

	for _, name := range []string{"", "first drug", "first.drug"} {
		err := svc.SaveRules(ctx, []domain.DeriveRule{
			{PropertyName: name, Func: derive.FuncGet, JSONLogic: jsonlogic.Var("title")},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRule, "name %q", name)
	}
	assert.Empty(t, docs.docs)
}

func TestResetRules(t *testing.T) {
	svc, docs, _ := newTestService()

	rules, err := svc.ResetRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, len(derive.DefaultRules()))
	assert.Contains(t, docs.docs, RulesKey)
}

func TestFilter_SaveAssignsIDs(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	none, err := svc.Filter(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	tree := domain.NewFilterGroup(domain.CombinatorAnd).AddRule("derived_status", filter.OpEqual, "RECRUITING")
	tree.ID = ""
	require.NoError(t, svc.SaveFilter(ctx, tree))

	got, err := svc.Filter(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	require.Len(t, got.Rules, 1)
	require.NotNil(t, got.Rules[0].Rule)
	assert.NotEmpty(t, got.Rules[0].Rule.ID)
	assert.Equal(t, "derived_status", got.Rules[0].Rule.Field)
}

func TestFilter_SaveRejectsBadCombinator(t *testing.T) {
	svc, docs, _ := newTestService()
	tree := &domain.FilterGroup{Combinator: "xor", Rules: []domain.FilterNode{
		{Rule: &domain.FilterRule{Field: "title", Operator: filter.OpEqual, Value: "x"}},
	}}

	err := svc.SaveFilter(context.Background(), tree)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
	assert.NotContains(t, docs.docs, FilterKey)
}

func TestCreateCustomField_Namespace(t *testing.T) {
	svc, _, fields := newTestService()
	ctx := context.Background()

	cases := []domain.CustomFieldDefinition{
		{IDName: "title", DataType: domain.FieldTypeString, Label: "Title"},
		{IDName: "derived_x", DataType: domain.FieldTypeString, Label: "X"},
		{IDName: "drug_name", DataType: domain.FieldTypeString, Label: "Again"},
	}
	for _, def := range cases {
		_, err := svc.CreateCustomField(ctx, def)
		assert.ErrorIs(t, err, domain.ErrNameCollision, def.IDName)
	}

	created, err := svc.CreateCustomField(ctx, domain.CustomFieldDefinition{IDName: "dose", DataType: domain.FieldTypeNumber, Label: "Dose"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.ID)
	assert.Len(t, fields.defs, 2)
}

func TestUpdateCustomField_KeepsOwnName(t *testing.T) {
	svc, _, _ := newTestService()

	updated, err := svc.UpdateCustomField(context.Background(), domain.CustomFieldDefinition{
		ID: 1, IDName: "drug_name", DataType: domain.FieldTypeString, Label: "Drug (INN)", AutocompleteEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Drug (INN)", updated.Label)
}

func TestDeleteCustomField(t *testing.T) {
	svc, _, fields := newTestService()

	require.NoError(t, svc.DeleteCustomField(context.Background(), 1))
	assert.Empty(t, fields.defs)
	assert.ErrorIs(t, svc.DeleteCustomField(context.Background(), 1), domain.ErrNotFound)
}
