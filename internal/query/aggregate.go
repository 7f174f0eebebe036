package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// MissingKey labels rows without a value in aggregations and pivots.
const MissingKey = "<na>"

// Bucket is one counted value.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Aggregation counts the values found under one field path.
type Aggregation struct {
	Field    string   `json:"field"`
	Buckets  []Bucket `json:"buckets"`
	Total    int      `json:"total"`
	Distinct int      `json:"distinct"`
}

// AggregateOption narrows what AggregateRows counts.
type AggregateOption func(*aggregateConfig)

type aggregateConfig struct {
	subPath string
	where   *jsonlogic.Node
}

// WithSubPath counts the value at sub inside each element found at the
// field path instead of the element itself, e.g. the name of each
// intervention object.
func WithSubPath(sub string) AggregateOption {
	return func(c *aggregateConfig) { c.subPath = sub }
}

// WithWhere keeps only the elements for which the jsonlogic predicate is
// truthy. The predicate sees the element, not the row.
func WithWhere(where *jsonlogic.Node) AggregateOption {
	return func(c *aggregateConfig) { c.where = where }
}

// AggregateRows counts the lower-cased values at path. Array values count
// each element, and a key applied to an array of objects is read from
// every element. Buckets are ordered by count, then key, and cut to top
// when top is positive.
func AggregateRows(rows []*domain.Row, path string, top int, opts ...AggregateOption) (Aggregation, error) {
	var cfg aggregateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	field := path
	if cfg.subPath != "" {
		field = path + "." + cfg.subPath
	}

	counts := make(map[string]int)
	total := 0
	for _, row := range rows {
		items := expand(project(row, jsonlogic.SplitPath(path)))
		if cfg.where != nil {
			kept := items[:0:0]
			for _, item := range items {
				if item == nil {
					continue
				}
				ok, err := jsonlogic.Truth(cfg.where, item)
				if err != nil {
					return Aggregation{}, err
				}
				if ok {
					kept = append(kept, item)
				}
			}
			items = kept
		}
		for _, item := range items {
			values := []any{item}
			if cfg.subPath != "" {
				values = expand(project(item, jsonlogic.SplitPath(cfg.subPath)))
			}
			for _, v := range values {
				key := strings.ToLower(jsonlogic.ToString(v))
				if strings.TrimSpace(key) == "" {
					key = MissingKey
				}
				counts[key]++
				total++
			}
		}
	}

	buckets := sortedBuckets(counts)
	distinct := len(buckets)
	if top > 0 && len(buckets) > top {
		buckets = buckets[:top]
	}
	return Aggregation{Field: field, Buckets: buckets, Total: total, Distinct: distinct}, nil
}

// project resolves parts like jsonlogic.Resolve, except that a non-index
// key applied to a list is read from every element and the results are
// flattened. Elements lacking the key are skipped.
func project(data any, parts []string) any {
	current := data
	for i, part := range parts {
		if current == nil {
			return nil
		}
		if list, ok := current.([]any); ok {
			if _, err := strconv.Atoi(part); err != nil {
				out := make([]any, 0, len(list))
				for _, el := range list {
					v := project(el, parts[i:])
					if v == nil {
						continue
					}
					if nested, ok := v.([]any); ok {
						out = append(out, nested...)
						continue
					}
					out = append(out, v)
				}
				return out
			}
		}
		next, ok := jsonlogic.Resolve(current, part)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func expand(v any) []any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return []any{nil}
		}
		return t
	case []string:
		if len(t) == 0 {
			return []any{nil}
		}
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func sortedBuckets(counts map[string]int) []Bucket {
	buckets := make([]Bucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, Bucket{Key: key, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})
	return buckets
}

// AggregateByField aggregates the filtered, derived rows.
func (s *Service) AggregateByField(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup, field string, top int, opts ...AggregateOption) (Aggregation, error) {
	rows, err := s.GetFilteredRows(ctx, rules, tree)
	if err != nil {
		return Aggregation{}, err
	}
	agg, err := AggregateRows(rows, field, top, opts...)
	if err != nil {
		return Aggregation{}, fmt.Errorf("aggregate %s: %w", field, err)
	}
	return agg, nil
}

// PivotTable cross-tabulates two fields. Every row lands in exactly one
// cell, so Total equals the number of rows pivoted.
type PivotTable struct {
	RowField  string                    `json:"rowField"`
	ColField  string                    `json:"colField"`
	RowKeys   []string                  `json:"rowKeys"`
	ColKeys   []string                  `json:"colKeys"`
	Counts    map[string]map[string]int `json:"counts"`
	RowTotals map[string]int            `json:"rowTotals"`
	ColTotals map[string]int            `json:"colTotals"`
	Total     int                       `json:"total"`
}

// Count returns the cell count for a row and column key.
func (p *PivotTable) Count(rowKey, colKey string) int {
	return p.Counts[rowKey][colKey]
}

// PivotRows builds the pivot of rowField against colField. Values are
// rendered as derived columns are, and missing values use MissingKey.
func PivotRows(rows []*domain.Row, rowField, colField string) *PivotTable {
	p := &PivotTable{
		RowField:  rowField,
		ColField:  colField,
		Counts:    make(map[string]map[string]int),
		RowTotals: make(map[string]int),
		ColTotals: make(map[string]int),
	}
	for _, row := range rows {
		rk := pivotKey(row, rowField)
		ck := pivotKey(row, colField)
		if p.Counts[rk] == nil {
			p.Counts[rk] = make(map[string]int)
		}
		p.Counts[rk][ck]++
		p.RowTotals[rk]++
		p.ColTotals[ck]++
		p.Total++
	}
	p.RowKeys = keysByCount(p.RowTotals)
	p.ColKeys = keysByCount(p.ColTotals)
	return p
}

func pivotKey(row *domain.Row, path string) string {
	v, _ := jsonlogic.Resolve(row, path)
	key := jsonlogic.ToString(v)
	if strings.TrimSpace(key) == "" {
		return MissingKey
	}
	return key
}

func keysByCount(totals map[string]int) []string {
	buckets := sortedBuckets(totals)
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Key
	}
	return keys
}

// Pivot cross-tabulates the filtered, derived rows.
func (s *Service) Pivot(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup, rowField, colField string) (*PivotTable, error) {
	rows, err := s.GetFilteredRows(ctx, rules, tree)
	if err != nil {
		return nil, err
	}
	return PivotRows(rows, rowField, colField), nil
}
