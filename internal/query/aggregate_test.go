package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/filter"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

func TestAggregateByField_ConditionsLowerCased(t *testing.T) {
	svc, _ := newTestService(t)

	agg, err := svc.AggregateByField(context.Background(), testRules, nil, "rawJson.conditionsModule.conditions", 0)
	require.NoError(t, err)

	assert.Equal(t, []Bucket{
		{Key: "asthma", Count: 2},
		{Key: MissingKey, Count: 1},
		{Key: "eczema", Count: 1},
		{Key: "rhinitis", Count: 1},
	}, agg.Buckets)
	assert.Equal(t, 5, agg.Total)
	assert.Equal(t, 4, agg.Distinct)
}

func TestAggregateByField_TopAndFilter(t *testing.T) {
	svc, _ := newTestService(t)
	tree := domain.NewFilterGroup(domain.CombinatorAnd).AddRule("derived_status", filter.OpNotEqual, "WITHDRAWN")

	agg, err := svc.AggregateByField(context.Background(), testRules, tree, "derived_status", 1)
	require.NoError(t, err)

	assert.Equal(t, []Bucket{{Key: "recruiting", Count: 2}}, agg.Buckets)
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 2, agg.Distinct)
}

func rawRow(id int64, raw map[string]any) *domain.Row {
	row := domain.NewRow(2)
	row.Set(domain.AttrID, id)
	row.Set(domain.AttrRawJSON, raw)
	return row
}

func interventionRows() []*domain.Row {
	return []*domain.Row{
		rawRow(1, map[string]any{
			"armsInterventionsModule": map[string]any{"interventions": []any{
				map[string]any{"type": "DRUG", "name": "Dupilumab"},
				map[string]any{"type": "DRUG", "name": "Placebo"},
			}},
			"conditionBrowseModule": map[string]any{
				"meshes": []any{map[string]any{"id": "D001249", "term": "Asthma"}},
				"browseLeaves": []any{
					map[string]any{"name": "Asthma", "relevance": "HIGH"},
					map[string]any{"name": "Lung Diseases", "relevance": "LOW"},
				},
			},
		}),
		rawRow(2, map[string]any{
			"armsInterventionsModule": map[string]any{"interventions": []any{
				map[string]any{"type": "DRUG", "name": "dupilumab"},
				map[string]any{"type": "DEVICE"},
			}},
			"conditionBrowseModule": map[string]any{
				"meshes": []any{
					map[string]any{"id": "D001249", "term": "Asthma"},
					map[string]any{"id": "D004485", "term": "Eczema"},
				},
				"browseLeaves": []any{map[string]any{"name": "Eczema", "relevance": "HIGH"}},
			},
		}),
		rawRow(3, map[string]any{}),
	}
}

func TestAggregateRows_InterventionNames(t *testing.T) {
	rows := interventionRows()

	projected, err := AggregateRows(rows, "rawJson.armsInterventionsModule.interventions.name", 0)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{
		{Key: "dupilumab", Count: 2},
		{Key: MissingKey, Count: 1},
		{Key: "placebo", Count: 1},
	}, projected.Buckets)

	sub, err := AggregateRows(rows, "rawJson.armsInterventionsModule.interventions", 0, WithSubPath("name"))
	require.NoError(t, err)
	assert.Equal(t, "rawJson.armsInterventionsModule.interventions.name", sub.Field)
	// the DEVICE element has no name and the third study has no list
	assert.Equal(t, []Bucket{
		{Key: "dupilumab", Count: 2},
		{Key: MissingKey, Count: 2},
		{Key: "placebo", Count: 1},
	}, sub.Buckets)
}

func TestAggregateRows_MeshTerms(t *testing.T) {
	agg, err := AggregateRows(interventionRows(), "rawJson.conditionBrowseModule.meshes", 1, WithSubPath("term"))
	require.NoError(t, err)

	assert.Equal(t, []Bucket{{Key: "asthma", Count: 2}}, agg.Buckets)
	assert.Equal(t, 3, agg.Distinct)
	assert.Equal(t, 4, agg.Total)
}

func TestAggregateRows_WherePredicate(t *testing.T) {
	where, err := jsonlogic.ParseString(`{"==":[{"var":"relevance"},"HIGH"]}`)
	require.NoError(t, err)

	agg, err := AggregateRows(interventionRows(), "rawJson.conditionBrowseModule.browseLeaves", 0,
		WithSubPath("name"), WithWhere(where))
	require.NoError(t, err)

	assert.Equal(t, []Bucket{{Key: "asthma", Count: 1}, {Key: "eczema", Count: 1}}, agg.Buckets)
	assert.Equal(t, 2, agg.Total)
}

func TestGeoHeatMap(t *testing.T) {
	site := func(lat, lon any) map[string]any {
		return map[string]any{"city": "x", "geoPoint": map[string]any{"lat": lat, "lon": lon}}
	}
	rows := []*domain.Row{
		rawRow(1, map[string]any{"contactsLocationsModule": map[string]any{"locations": []any{
			site(51.50735, -0.12776),
			site(48.85341, 2.3488),
			map[string]any{"city": "unknown"},
		}}}),
		rawRow(2, map[string]any{"contactsLocationsModule": map[string]any{"locations": []any{
			site(51.5074, -0.1278),
		}}}),
		rawRow(3, map[string]any{}),
	}

	rounded := GeoHeatMap(rows, 3)
	assert.Equal(t, []GeoPoint{
		{Lat: 51.507, Lon: -0.128, Count: 2},
		{Lat: 48.853, Lon: 2.349, Count: 1},
	}, rounded)

	raw := GeoHeatMap(rows, -1)
	require.Len(t, raw, 3)
	for _, p := range raw {
		assert.Equal(t, 1, p.Count)
	}
}

func TestPivot_TotalsMatchCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tree := domain.NewFilterGroup(domain.CombinatorAnd).AddRule("derived_status", filter.OpNotEqual, "WITHDRAWN")

	pivot, err := svc.Pivot(ctx, testRules, tree, "derived_status", "derived_first_drug")
	require.NoError(t, err)

	n, err := svc.CountFiltered(ctx, testRules, tree)
	require.NoError(t, err)
	assert.Equal(t, n, pivot.Total)

	assert.Equal(t, []string{"RECRUITING", "COMPLETED"}, pivot.RowKeys)
	assert.Equal(t, []string{"dupilumab", "cetirizine"}, pivot.ColKeys)
	assert.Equal(t, 2, pivot.Count("RECRUITING", "dupilumab"))
	assert.Equal(t, 0, pivot.Count("COMPLETED", "dupilumab"))
	assert.Equal(t, 1, pivot.RowTotals["COMPLETED"])
}

func TestPivotRows_MissingValues(t *testing.T) {
	row := domain.NewRow(1)
	row.Set("a", "x")

	pivot := PivotRows([]*domain.Row{row}, "a", "b")
	assert.Equal(t, 1, pivot.Count("x", MissingKey))
}

func TestFields_Catalogue(t *testing.T) {
	svc, _ := newTestService(t)

	fields, err := svc.Fields(context.Background(), append(testRules, testRules[0]))
	require.NoError(t, err)
	require.Len(t, fields, len(testDefs)+len(testRules)+len(domain.EntryAttributeNames))

	assert.Equal(t, Field{Name: "drug_name", Label: "Drug", InputType: "text", DefaultOperator: filter.OpContains, Source: SourceCustom}, fields[0])
	assert.Equal(t, "number", fields[1].InputType)
	assert.Equal(t, "derived_status", fields[2].Name)
	assert.Equal(t, "Derived field: status", fields[2].Label)
	assert.Equal(t, domain.AttrID, fields[4].Name)
	assert.Equal(t, "number", fields[4].InputType)
}

func TestUniqueValues(t *testing.T) {
	svc, _ := newTestService(t)

	values, err := svc.UniqueValues(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"drug_name": {"cetirizine", "dupilumab", "dupilumab|placebo"},
	}, values)
}
