package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rpattn/trialnotes/internal/derive"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/filter"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/internal/mock"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

func strPtr(s string) *string { return &s }

func study(id int64, status string, conditions []any, values ...domain.CustomFieldValue) domain.Entry {
	return domain.Entry{
		ID:    id,
		NCTID: "NCT0000000" + string(rune('0'+id)),
		Title: "Study",
		RawJSON: map[string]any{
			"statusModule":     map[string]any{"overallStatus": status},
			"conditionsModule": map[string]any{"conditions": conditions},
		},
		CustomFieldValues: values,
	}
}

func drug(entryID int64, v string) domain.CustomFieldValue {
	return domain.CustomFieldValue{EntryID: entryID, CustomFieldID: 1, Value: strPtr(v)}
}

var (
	testDefs = []domain.CustomFieldDefinition{
		{ID: 1, IDName: "drug_name", DataType: domain.FieldTypeString, Label: "Drug", AutocompleteEnabled: true},
		{ID: 2, IDName: "dose", DataType: domain.FieldTypeNumber, Label: "Dose", AutocompleteEnabled: true},
	}
	testEntries = []domain.Entry{
		study(1, "RECRUITING", []any{"Asthma", "Rhinitis"}, drug(1, "dupilumab|placebo")),
		study(2, "COMPLETED", []any{"asthma"}, drug(2, "cetirizine")),
		study(3, "RECRUITING", nil, drug(3, "dupilumab")),
		study(4, "WITHDRAWN", []any{"Eczema"}),
	}
	testRules = []domain.DeriveRule{
		{PropertyName: "status", Func: derive.FuncGet, JSONLogic: jsonlogic.Var("rawJson.statusModule.overallStatus")},
		{PropertyName: "first_drug", Func: derive.FuncSplitFirst, Args: map[string]any{"delimiter": "|"}, JSONLogic: jsonlogic.Var("drug_name")},
	}
)

func newTestService(t *testing.T, opts ...Option) (*Service, *mock.MockEntryStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mock.NewMockEntryStore(ctrl)
	store.EXPECT().ListCustomFieldDefinitions(gomock.Any()).Return(testDefs, nil).AnyTimes()
	store.EXPECT().ListEntries(gomock.Any()).Return(testEntries, nil).AnyTimes()
	return NewService(store, logger.Nop(), opts...), store
}

func rowIDs(rows []*domain.Row) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		v, _ := r.Get(domain.AttrID)
		out = append(out, v.(int64))
	}
	return out
}

func TestService_GetAllRows(t *testing.T) {
	svc, _ := newTestService(t)

	rows, err := svc.GetAllRows(context.Background(), testRules)
	require.NoError(t, err)
	require.Len(t, rows, len(testEntries))

	status, _ := rows[0].Get("derived_status")
	assert.Equal(t, "RECRUITING", status)
	first, _ := rows[0].Get("derived_first_drug")
	assert.Equal(t, "dupilumab", first)
	first, _ = rows[3].Get("derived_first_drug")
	assert.Equal(t, "", first)
}

func TestService_FilterByDerivedField(t *testing.T) {
	svc, _ := newTestService(t)
	tree := domain.NewFilterGroup(domain.CombinatorAnd).
		AddRule("derived_status", filter.OpEqual, "RECRUITING").
		AddRule("derived_first_drug", filter.OpEqual, "dupilumab")

	rows, err := svc.GetFilteredRows(context.Background(), testRules, tree)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, rowIDs(rows))
}

func TestService_CountConsistency(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	trees := []*domain.FilterGroup{
		nil,
		domain.NewFilterGroup(domain.CombinatorAnd),
		domain.NewFilterGroup(domain.CombinatorOr).
			AddRule("derived_status", filter.OpEqual, "COMPLETED").
			AddRule("drug_name", filter.OpContains, "mab"),
		domain.NewFilterGroup(domain.CombinatorAnd).AddRule("dose", filter.OpNotNull, nil),
	}

	all, err := svc.GetAllRows(ctx, testRules)
	require.NoError(t, err)

	for i, tree := range trees {
		rows, err := svc.GetFilteredRows(ctx, testRules, tree)
		require.NoError(t, err)
		n, err := svc.CountFiltered(ctx, testRules, tree)
		require.NoError(t, err)
		assert.Equal(t, len(rows), n, "tree %d", i)
		if tree.IsEmpty() {
			assert.Equal(t, len(all), n, "empty tree %d", i)
		}
	}
}

func TestService_StoreFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockEntryStore(ctrl)
	boom := errors.New("database is locked")
	store.EXPECT().ListCustomFieldDefinitions(gomock.Any()).Return(testDefs, nil)
	store.EXPECT().ListEntries(gomock.Any()).Return(nil, boom)

	_, err := NewService(store, nil).CountFiltered(context.Background(), testRules, nil)
	assert.ErrorIs(t, err, boom)
}

func TestService_InvalidTreeFailsBeforeLoading(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockEntryStore(ctrl)
	tree := &domain.FilterGroup{Combinator: "xor", Rules: []domain.FilterNode{
		{Rule: &domain.FilterRule{Field: "title", Operator: filter.OpEqual, Value: "x"}},
	}}

	_, err := NewService(store, nil).GetFilteredRows(context.Background(), testRules, tree)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestService_NotifiesRuleFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mock.NewMockNotifier(ctrl)
	notifier.EXPECT().
		DerivationReport(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, report derive.Report) {
			assert.Equal(t, 4, report.Rows)
			assert.Equal(t, []string{"future"}, report.Skipped)
			require.Len(t, report.Failures, 1)
			assert.Equal(t, "joined", report.Failures[0].Rule)
		}).
		Times(1)

	svc, _ := newTestService(t, WithNotifier(notifier))
	rules := append([]domain.DeriveRule{
		{PropertyName: "future", Func: "llm_extract", JSONLogic: jsonlogic.Var("title")},
		{PropertyName: "joined", Func: derive.FuncJoin, Args: map[string]any{"delimiter": ","}, JSONLogic: jsonlogic.Var("drug_name")},
	}, testRules...)

	_, err := svc.GetAllRows(context.Background(), rules)
	require.NoError(t, err)
}

func TestService_NoNotificationWhenClean(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mock.NewMockNotifier(ctrl)
	notifier.EXPECT().DerivationReport(gomock.Any(), gomock.Any()).Times(0)

	svc, _ := newTestService(t, WithNotifier(notifier))
	_, err := svc.GetAllRows(context.Background(), testRules)
	require.NoError(t, err)
}

func TestService_WithRegistry(t *testing.T) {
	reg := derive.DefaultRegistry()
	reg.Register(derive.Function{
		Name: "upper_status",
		Apply: func(v any, _ derive.Args) (any, error) {
			return "S:" + jsonlogic.ToString(v), nil
		},
	})
	svc, _ := newTestService(t, WithRegistry(reg))

	rows, err := svc.GetAllRows(context.Background(), []domain.DeriveRule{
		{PropertyName: "s", Func: "upper_status", JSONLogic: jsonlogic.Var("rawJson.statusModule.overallStatus")},
	})
	require.NoError(t, err)
	v, _ := rows[1].Get("derived_s")
	assert.Equal(t, "S:COMPLETED", v)
	_, ok := svc.Registry().Lookup("upper_status")
	assert.True(t, ok)
}
