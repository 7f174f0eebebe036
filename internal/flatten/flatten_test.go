package flatten

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

func strPtr(s string) *string { return &s }

func fixtures() ([]domain.Entry, []domain.CustomFieldDefinition) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	defs := []domain.CustomFieldDefinition{
		{ID: 1, IDName: "drug_name", DataType: domain.FieldTypeString, Label: "Drug"},
		{ID: 2, IDName: "dose", DataType: domain.FieldTypeNumber, Label: "Dose"},
		{ID: 3, IDName: "title", DataType: domain.FieldTypeString, Label: "Shadow"},
	}
	entries := []domain.Entry{
		{
			ID:        10,
			CreatedAt: created,
			UpdatedAt: created,
			NCTID:     "NCT00000010",
			Title:     "First",
			RawJSON:   map[string]any{"statusModule": map[string]any{"overallStatus": "COMPLETED"}},
			CustomFieldValues: []domain.CustomFieldValue{
				{EntryID: 10, CustomFieldID: 1, Value: strPtr("cetirizine|loratadine")},
				{EntryID: 10, CustomFieldID: 2, Value: strPtr("5")},
				{EntryID: 10, CustomFieldID: 99, Value: strPtr("orphan")},
				{EntryID: 10, CustomFieldID: 3, Value: strPtr("shadowed")},
			},
		},
		{
			ID:    11,
			NCTID: "NCT00000011",
			Title: "Second",
			Notes: strPtr("check eligibility"),
			History: []domain.EntryHistory{
				{Date: "2024-02-01", Type: domain.HistoryTypeNewVersion},
			},
		},
	}
	return entries, defs
}

func TestFlatten_JoinsValuesByIDName(t *testing.T) {
	entries, defs := fixtures()
	rows := New(logger.Nop()).Flatten(entries, defs)
	require.Len(t, rows, 2)

	first := rows[0]
	v, ok := first.Get("drug_name")
	require.True(t, ok)
	assert.Equal(t, "cetirizine|loratadine", v)

	dose, _ := first.Get("dose")
	assert.Equal(t, "5", dose, "values stay raw text")

	title, _ := first.Get(domain.AttrTitle)
	assert.Equal(t, "First", title, "entry attributes win over shadowing custom fields")

	status, err := jsonlogic.Apply(jsonlogic.Var("rawJson.statusModule.overallStatus"), first)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", status)
}

func TestFlatten_DanglingReferenceSkipped(t *testing.T) {
	entries, defs := fixtures()
	rows := New(nil).Flatten(entries, defs)

	for _, key := range rows[0].Keys() {
		assert.NotEqual(t, "orphan", key)
	}
	assert.Equal(t, len(domain.EntryAttributeNames)+2, rows[0].Len())
}

func TestFlatten_AbsentFieldIsNotNull(t *testing.T) {
	entries, defs := fixtures()
	rows := New(nil).Flatten(entries, defs)

	second := rows[1]
	assert.False(t, second.Has("drug_name"))

	v, err := jsonlogic.Apply(jsonlogic.Var("drug_name"), second)
	require.NoError(t, err)
	assert.Nil(t, v)

	date, err := jsonlogic.Apply(jsonlogic.Var("history.0.date"), second)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", date)
}

func TestFlatten_Idempotent(t *testing.T) {
	entries, defs := fixtures()
	f := New(nil)

	a := f.Flatten(entries, defs)
	b := f.Flatten(entries, defs)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Keys(), b[i].Keys())
		assert.Equal(t, a[i].Map(), b[i].Map())
	}
}
