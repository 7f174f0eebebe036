package derive

import (
	"fmt"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// ErrorPrefix starts the rendered value of a failed rule.
const ErrorPrefix = "error: "

// Result is the outcome of evaluating one rule against one row.
type Result struct {
	Value string
	Err   error
}

// OK reports whether the rule produced a value.
func (r Result) OK() bool {
	return r.Err == nil
}

// String renders the result as it appears in the derived column.
func (r Result) String() string {
	if r.Err != nil {
		return ErrorPrefix + r.Err.Error()
	}
	return r.Value
}

// Evaluator applies single rules to rows.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator over registry. A nil registry uses the
// default function set.
func NewEvaluator(registry *Registry) *Evaluator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Evaluator{registry: registry}
}

// Registry returns the function registry in use.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Evaluate checks the rule's arguments, resolves its path against row and
// applies its function. Failures never escape: they are returned in
// Result.Err.
func (e *Evaluator) Evaluate(row any, rule domain.DeriveRule) (res Result) {
	args, err := e.registry.ResolveArgs(rule)
	if err != nil {
		return Result{Err: err}
	}
	fn, _ := e.registry.Lookup(rule.Func)

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &domain.ResolutionError{Rule: rule.PropertyName, Err: fmt.Errorf("%v", r)}}
		}
	}()

	value, err := jsonlogic.Apply(rule.JSONLogic, row)
	if err != nil {
		return Result{Err: &domain.ResolutionError{Rule: rule.PropertyName, Err: err}}
	}
	out, err := fn.Apply(value, args)
	if err != nil {
		return Result{Err: &domain.ResolutionError{Rule: rule.PropertyName, Err: err}}
	}
	return Result{Value: Stringify(out)}
}

// Stringify converts a function result to its column text.
func Stringify(v any) string {
	return jsonlogic.ToString(v)
}
