// Package filter compiles visual query builder trees into jsonlogic
// expressions and evaluates them against derived rows.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// Operators understood by the compiler.
const (
	OpEqual            = "="
	OpNotEqual         = "!="
	OpLess             = "<"
	OpLessOrEqual      = "<="
	OpGreater          = ">"
	OpGreaterOrEqual   = ">="
	OpContains         = "contains"
	OpBeginsWith       = "beginsWith"
	OpEndsWith         = "endsWith"
	OpDoesNotContain   = "doesNotContain"
	OpDoesNotBeginWith = "doesNotBeginWith"
	OpDoesNotEndWith   = "doesNotEndWith"
	OpNull             = "null"
	OpNotNull          = "notNull"
	OpIn               = "in"
	OpNotIn            = "notIn"
	OpBetween          = "between"
	OpNotBetween       = "notBetween"
)

// Operator describes one comparison for the filter field catalogue.
type Operator struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Operators lists the supported comparisons in builder order.
var Operators = []Operator{
	{OpEqual, "="},
	{OpNotEqual, "!="},
	{OpLess, "<"},
	{OpGreater, ">"},
	{OpLessOrEqual, "<="},
	{OpGreaterOrEqual, ">="},
	{OpContains, "contains"},
	{OpBeginsWith, "begins with"},
	{OpEndsWith, "ends with"},
	{OpDoesNotContain, "does not contain"},
	{OpDoesNotBeginWith, "does not begin with"},
	{OpDoesNotEndWith, "does not end with"},
	{OpNull, "is null"},
	{OpNotNull, "is not null"},
	{OpIn, "in"},
	{OpNotIn, "not in"},
	{OpBetween, "between"},
	{OpNotBetween, "not between"},
}

// Compiler turns filter trees into jsonlogic.
type Compiler struct {
	log *logger.Logger
}

// NewCompiler creates a compiler. A nil logger discards output.
func NewCompiler(log *logger.Logger) *Compiler {
	if log == nil {
		log = logger.Nop()
	}
	return &Compiler{log: log}
}

// Compile converts tree into an expression. A nil expression means the tree
// has no effective leaf and matches every row. Leaves with an unknown
// operator are dropped with a warning.
func (c *Compiler) Compile(tree *domain.FilterGroup) (*jsonlogic.Node, error) {
	if tree.IsEmpty() {
		return nil, nil
	}
	return c.group(tree)
}

func (c *Compiler) group(g *domain.FilterGroup) (*jsonlogic.Node, error) {
	combinator := strings.ToLower(strings.TrimSpace(g.Combinator))
	switch combinator {
	case domain.CombinatorAnd, domain.CombinatorOr:
	case "":
		combinator = domain.CombinatorAnd
	default:
		return nil, fmt.Errorf("%w: unsupported combinator %q", domain.ErrInvalidFilter, g.Combinator)
	}

	var parts []*jsonlogic.Node
	for _, node := range g.Rules {
		switch {
		case node.Group != nil:
			if node.Group.IsEmpty() {
				continue
			}
			sub, err := c.group(node.Group)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				parts = append(parts, sub)
			}
		case node.Rule != nil && !node.Rule.Disabled:
			leaf, err := c.rule(node.Rule)
			if err != nil {
				c.log.Warn().Err(err).Str("field", node.Rule.Field).Msg("dropping filter rule")
				continue
			}
			parts = append(parts, leaf)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	expr := jsonlogic.Op(combinator, parts...)
	if g.Not {
		expr = jsonlogic.Op("!", expr)
	}
	return expr, nil
}

func (c *Compiler) rule(r *domain.FilterRule) (*jsonlogic.Node, error) {
	if strings.TrimSpace(r.Field) == "" {
		return nil, fmt.Errorf("%w: rule without field", domain.ErrInvalidFilter)
	}
	field := jsonlogic.Var(r.Field)
	value := jsonlogic.Literal(r.Value)

	var leaf *jsonlogic.Node
	switch r.Operator {
	case OpNull:
		return jsonlogic.Op("==", field, jsonlogic.Literal(nil)), nil
	case OpNotNull:
		return jsonlogic.Op("!=", field, jsonlogic.Literal(nil)), nil
	case OpEqual:
		leaf = jsonlogic.Op("==", field, value)
	case OpNotEqual:
		leaf = jsonlogic.Op("!=", field, value)
	case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		leaf = jsonlogic.Op(r.Operator, field, jsonlogic.Literal(numericValue(r.Value)))
	case OpContains:
		leaf = jsonlogic.Op("in", value, field)
	case OpBeginsWith:
		leaf = jsonlogic.Op("startsWith", field, value)
	case OpEndsWith:
		leaf = jsonlogic.Op("endsWith", field, value)
	case OpDoesNotContain:
		leaf = jsonlogic.Op("!", jsonlogic.Op("in", value, field))
	case OpDoesNotBeginWith:
		leaf = jsonlogic.Op("!", jsonlogic.Op("startsWith", field, value))
	case OpDoesNotEndWith:
		leaf = jsonlogic.Op("!", jsonlogic.Op("endsWith", field, value))
	case OpIn, OpNotIn:
		leaf = jsonlogic.Op("in", field, jsonlogic.Literal(listValue(r.Value)))
		if r.Operator == OpNotIn {
			leaf = jsonlogic.Op("!", leaf)
		}
	case OpBetween, OpNotBetween:
		bounds := listValue(r.Value)
		if len(bounds) < 2 {
			return nil, fmt.Errorf("%w: %s needs two values", domain.ErrInvalidFilter, r.Operator)
		}
		leaf = jsonlogic.Op("<=",
			jsonlogic.Literal(numericValue(bounds[0])),
			field,
			jsonlogic.Literal(numericValue(bounds[1])),
		)
		if r.Operator == OpNotBetween {
			leaf = jsonlogic.Op("!", leaf)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidFilter, r.Operator)
	}

	return jsonlogic.Op("and", present(r.Field), leaf), nil
}

// present is true when the row holds a non-null value under field.
func present(field string) *jsonlogic.Node {
	return jsonlogic.Op("!==", jsonlogic.Var(field), jsonlogic.Literal(nil))
}

// numericValue turns numeric text into a number so that comparisons are
// numeric rather than lexical.
func numericValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return n
	}
	return v
}

// listValue accepts either a list or comma separated text.
func listValue(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return []any{}
		}
		parts := strings.Split(t, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out
	case nil:
		return []any{}
	default:
		return []any{t}
	}
}
