package derive

import (
	"errors"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

// Pipeline attaches derived columns to rows.
type Pipeline struct {
	eval *Evaluator
	log  *logger.Logger
}

// NewPipeline creates a pipeline. A nil registry uses the default
// function set and a nil logger discards output.
func NewPipeline(registry *Registry, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{eval: NewEvaluator(registry), log: log}
}

// Evaluator returns the evaluator used by the pipeline.
func (p *Pipeline) Evaluator() *Evaluator {
	return p.eval
}

// RuleFailure summarises the rows on which one rule failed.
type RuleFailure struct {
	Rule  string
	Count int
	First error
}

// Report describes the non-fatal outcomes of a derivation run.
type Report struct {
	Rows     int
	Skipped  []string
	Failures []RuleFailure
}

// DeriveAll evaluates every rule against every row and stores the results
// under derived_<propertyName>. Rules read the row as it was before this
// call, and results are attached in rule order, so of two rules sharing a
// property name the later one wins. Rules naming an unknown function are
// skipped. The same rows are returned.
func (p *Pipeline) DeriveAll(rows []*domain.Row, rules []domain.DeriveRule) []*domain.Row {
	p.Run(rows, rules)
	return rows
}

// Run is DeriveAll returning a report instead of the rows.
func (p *Pipeline) Run(rows []*domain.Row, rules []domain.DeriveRule) Report {
	report := Report{Rows: len(rows)}
	active, skipped := p.activeRules(rules)
	report.Skipped = skipped
	if len(active) == 0 {
		return report
	}

	failures := make([]RuleFailure, len(active))
	results := make([]Result, len(active))
	for _, row := range rows {
		for i, rule := range active {
			results[i] = p.eval.Evaluate(row, rule)
			if results[i].Err != nil {
				failures[i].Rule = rule.PropertyName
				failures[i].Count++
				if failures[i].First == nil {
					failures[i].First = results[i].Err
				}
			}
		}
		for i, rule := range active {
			row.Set(rule.OutputKey(), results[i].String())
		}
	}
	for _, f := range failures {
		if f.Count > 0 {
			report.Failures = append(report.Failures, f)
		}
	}
	return report
}

// activeRules drops rules with an unknown function, logging each once.
func (p *Pipeline) activeRules(rules []domain.DeriveRule) (active []domain.DeriveRule, skipped []string) {
	active = make([]domain.DeriveRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if _, ok := p.eval.registry.Lookup(rule.Func); !ok {
			err := &domain.UnknownFunctionError{Rule: rule.PropertyName, Function: rule.Func}
			p.log.Warn().Err(err).Msg("skipping derive rule")
			skipped = append(skipped, rule.PropertyName)
			continue
		}
		if _, dup := seen[rule.PropertyName]; dup {
			p.log.Warn().
				Str("property", rule.PropertyName).
				Msg("derive rules share a property name, the later rule wins")
		}
		seen[rule.PropertyName] = struct{}{}
		active = append(active, rule)
	}
	return active, skipped
}

// DeriveRow evaluates rules against a single row without modifying it and
// returns the results keyed by output column.
func (p *Pipeline) DeriveRow(row *domain.Row, rules []domain.DeriveRule) map[string]Result {
	out := make(map[string]Result, len(rules))
	for _, rule := range rules {
		res := p.eval.Evaluate(row, rule)
		var unknown *domain.UnknownFunctionError
		if errors.As(res.Err, &unknown) {
			continue
		}
		out[rule.OutputKey()] = res
	}
	return out
}
