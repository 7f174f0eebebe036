package query

import (
	"context"
	"sort"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
)

// UniqueValues returns, per autocomplete-enabled text field, the distinct
// non-empty values entered so far, sorted.
func (s *Service) UniqueValues(ctx context.Context) (map[string][]string, error) {
	rows, defs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return CollectUniqueValues(rows, defs), nil
}

// CollectUniqueValues is UniqueValues over already flattened rows.
func CollectUniqueValues(rows []*domain.Row, defs []domain.CustomFieldDefinition) map[string][]string {
	out := make(map[string][]string)
	for _, def := range defs {
		if !def.AutocompleteEnabled || def.IsDisabled || def.DataType != domain.FieldTypeString {
			continue
		}
		seen := make(map[string]struct{})
		values := []string{}
		for _, row := range rows {
			v, ok := row.Get(def.IDName)
			if !ok {
				continue
			}
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			values = append(values, s)
		}
		sort.Strings(values)
		out[def.IDName] = values
	}
	return out
}
