package filter

import (
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// Filter is a compiled filter tree.
type Filter struct {
	expr *jsonlogic.Node
	log  *logger.Logger
}

// Build compiles tree into a Filter.
func (c *Compiler) Build(tree *domain.FilterGroup) (*Filter, error) {
	expr, err := c.Compile(tree)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, log: c.log}, nil
}

// Expression returns the compiled expression, nil when everything matches.
func (f *Filter) Expression() *jsonlogic.Node {
	return f.expr
}

// Matches reports whether row passes the filter. An evaluation error counts
// as no match.
func (f *Filter) Matches(row *domain.Row) bool {
	if f.expr == nil {
		return true
	}
	ok, err := jsonlogic.Truth(f.expr, row)
	if err != nil {
		f.log.Warn().Err(err).Msg("filter evaluation failed")
		return false
	}
	return ok
}

// Apply returns the matching rows in their original order.
func (f *Filter) Apply(rows []*domain.Row) []*domain.Row {
	out := make([]*domain.Row, 0, len(rows))
	for _, row := range rows {
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}

// Count returns the number of matching rows.
func (f *Filter) Count(rows []*domain.Row) int {
	return len(f.Apply(rows))
}

// Matches compiles tree and tests a single row.
func Matches(row *domain.Row, tree *domain.FilterGroup) (bool, error) {
	f, err := NewCompiler(nil).Build(tree)
	if err != nil {
		return false, err
	}
	return f.Matches(row), nil
}

// Count compiles tree and counts matching rows.
func Count(rows []*domain.Row, tree *domain.FilterGroup) (int, error) {
	f, err := NewCompiler(nil).Build(tree)
	if err != nil {
		return 0, err
	}
	return f.Count(rows), nil
}
