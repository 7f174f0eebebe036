package derive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

func drugRows(values ...string) []*domain.Row {
	rows := make([]*domain.Row, 0, len(values))
	for i, v := range values {
		row := domain.NewRow(2)
		row.Set(domain.AttrID, int64(i+1))
		if v != "" {
			row.Set("drug_name", v)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestDeriveAll_PerRuleIsolation(t *testing.T) {
	rows := drugRows("cetirizine|loratadine", "ibuprofen", "")
	rules := []domain.DeriveRule{
		ruleFor("broken", FuncSplitFirst, "drug_name", map[string]any{}),
		ruleFor("first_drug", FuncSplitFirst, "drug_name", map[string]any{"delimiter": "|"}),
	}

	out := NewPipeline(nil, logger.Nop()).DeriveAll(rows, rules)
	require.Len(t, out, 3)

	want := []string{"cetirizine", "ibuprofen", ""}
	for i, row := range out {
		broken, ok := row.Get("derived_broken")
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(broken.(string), ErrorPrefix))

		first, ok := row.Get("derived_first_drug")
		require.True(t, ok)
		assert.Equal(t, want[i], first)
	}
}

func TestDeriveAll_LastWriteWins(t *testing.T) {
	rows := drugRows("a|b")
	rules := []domain.DeriveRule{
		ruleFor("drug", FuncGet, "drug_name", nil),
		ruleFor("drug", FuncSplitFirst, "drug_name", map[string]any{"delimiter": "|"}),
	}

	NewPipeline(nil, nil).DeriveAll(rows, rules)

	v, _ := rows[0].Get("derived_drug")
	assert.Equal(t, "a", v)
	assert.Equal(t, 3, rows[0].Len())
}

func TestDeriveAll_RulesSeePreDerivationRow(t *testing.T) {
	rows := drugRows("a|b")
	rules := []domain.DeriveRule{
		ruleFor("chained", FuncGet, "derived_first", nil),
		ruleFor("first", FuncSplitFirst, "drug_name", map[string]any{"delimiter": "|"}),
	}

	NewPipeline(nil, nil).DeriveAll(rows, rules)

	chained, _ := rows[0].Get("derived_chained")
	assert.Equal(t, "", chained)
	first, _ := rows[0].Get("derived_first")
	assert.Equal(t, "a", first)
}

func TestDeriveAll_UnknownFunctionSkipped(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLoggerTo(&buf, "test", "warn")
	rows := drugRows("a|b", "c")
	rules := []domain.DeriveRule{
		ruleFor("future", "llm_extract", "drug_name", nil),
		ruleFor("drug", FuncGet, "drug_name", nil),
	}

	NewPipeline(nil, log).DeriveAll(rows, rules)

	for _, row := range rows {
		assert.False(t, row.Has("derived_future"))
		assert.True(t, row.Has("derived_drug"))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "skipping derive rule"))
}

func TestDeriveAll_DefaultRulesOnImportedStudy(t *testing.T) {
	row := domain.NewRow(3)
	row.Set(domain.AttrRawJSON, map[string]any{
		"eligibilityModule": map[string]any{"sex": "ALL", "stdAges": []any{"ADULT", "OLDER_ADULT"}},
		"designModule":      map[string]any{"phases": []any{"PHASE2", "PHASE3"}},
		"statusModule": map[string]any{
			"overallStatus":            "RECRUITING",
			"startDateStruct":          map[string]any{"date": "2020-03"},
			"studyFirstPostDateStruct": map[string]any{"date": "2019-11-21"},
		},
	})
	row.Set("drug_name", "dupilumab|placebo")

	NewPipeline(nil, nil).DeriveAll([]*domain.Row{row}, DefaultRules())

	expect := map[string]string{
		"derived_sex":              "ALL",
		"derived_first_phase":      "PHASE2",
		"derived_status":           "RECRUITING",
		"derived_study_start_date": "2020",
		"derived_study_first_post": "2019",
		"derived_first_drug_name":  "dupilumab",
		"derived_age":              "ADULT,OLDER_ADULT",
		"derived_design_masking":   "",
		"derived_first_mesh_term":  "",
	}
	for key, want := range expect {
		got, ok := row.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestDeriveRow_DoesNotMutate(t *testing.T) {
	rows := drugRows("a|b")
	results := NewPipeline(nil, nil).DeriveRow(rows[0], []domain.DeriveRule{
		ruleFor("first", FuncSplitFirst, "drug_name", map[string]any{"delimiter": "|"}),
		ruleFor("future", "llm_extract", "drug_name", nil),
	})

	assert.False(t, rows[0].Has("derived_first"))
	require.Contains(t, results, "derived_first")
	assert.Equal(t, "a", results["derived_first"].Value)
	assert.NotContains(t, results, "derived_future")
}

func TestRun_Report(t *testing.T) {
	rows := drugRows("a|b", "c", "")
	report := NewPipeline(nil, nil).Run(rows, []domain.DeriveRule{
		ruleFor("future", "llm_extract", "drug_name", nil),
		ruleFor("broken", FuncJoin, "drug_name", map[string]any{"delimiter": ","}),
		ruleFor("ok", FuncGet, "drug_name", nil),
	})

	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, []string{"future"}, report.Skipped)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken", report.Failures[0].Rule)
	assert.Equal(t, 2, report.Failures[0].Count)
	assert.ErrorIs(t, report.Failures[0].First, errNotArray)
}
