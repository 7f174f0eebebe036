// Package derive evaluates derive rules against flattened rows and attaches
// the results as derived columns.
package derive

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// Function names in the default registry.
const (
	FuncGet                 = "get"
	FuncGetFirst            = "get_first"
	FuncJoin                = "join"
	FuncSplitFirst          = "split_first"
	FuncFormatDate          = "format_date"
	FuncJSONLogicExtraction = "json_logic_extraction"
)

// ArgKind is the primitive type an argument must have.
type ArgKind string

const ArgString ArgKind = "string"

// ArgSpec declares one named argument of a derive function.
type ArgSpec struct {
	Name        string   `json:"name"`
	Kind        ArgKind  `json:"kind"`
	Required    bool     `json:"required"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Args holds validated arguments keyed by canonical name.
type Args map[string]string

// Function is a registered derive function. Apply receives the value the
// rule's path expression resolved to.
type Function struct {
	Name        string                                 `json:"name"`
	Description string                                 `json:"description"`
	Args        []ArgSpec                              `json:"args"`
	Apply       func(value any, args Args) (any, error) `json:"-"`
}

// Registry is the set of functions rules may name.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry builds a registry from fns. Later functions replace earlier
// ones with the same name.
func NewRegistry(fns ...Function) *Registry {
	r := &Registry{funcs: make(map[string]Function, len(fns))}
	for _, fn := range fns {
		r.Register(fn)
	}
	return r
}

// Register adds or replaces a function.
func (r *Registry) Register(fn Function) {
	r.funcs[fn.Name] = fn
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Functions lists the registered functions sorted by name.
func (r *Registry) Functions() []Function {
	out := make([]Function, 0, len(r.funcs))
	for _, fn := range r.funcs {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateArgs checks raw rule arguments against the function's schema.
// Unknown keys are ignored; required keys and primitive types are enforced.
func (fn Function) ValidateArgs(rule string, raw map[string]any) (Args, error) {
	args := make(Args, len(fn.Args))
	var violations []string
	for _, spec := range fn.Args {
		value, present := lookupArg(raw, spec)
		if !present {
			if spec.Required {
				violations = append(violations, fmt.Sprintf("missing required argument %q", spec.Name))
			}
			continue
		}
		s, ok := value.(string)
		if !ok {
			violations = append(violations, fmt.Sprintf("argument %q must be a %s, got %T", spec.Name, spec.Kind, value))
			continue
		}
		args[spec.Name] = s
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Rule: rule, Function: fn.Name, Violations: violations}
	}
	return args, nil
}

func lookupArg(raw map[string]any, spec ArgSpec) (any, bool) {
	if v, ok := raw[spec.Name]; ok && v != nil {
		return v, true
	}
	for _, alias := range spec.Aliases {
		if v, ok := raw[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ResolveArgs checks the rule against its function: known function,
// argument schema and the path expression. The property name is not
// inspected; any name yields a column.
func (r *Registry) ResolveArgs(rule domain.DeriveRule) (Args, error) {
	fn, ok := r.Lookup(rule.Func)
	if !ok {
		return nil, &domain.UnknownFunctionError{Rule: rule.PropertyName, Function: rule.Func}
	}
	args, err := fn.ValidateArgs(rule.PropertyName, rule.Args)
	if err != nil {
		return nil, err
	}
	if rule.JSONLogic == nil {
		return nil, &domain.ValidationError{Rule: rule.PropertyName, Function: fn.Name, Violations: []string{"missing path expression"}}
	}
	if rule.Func == FuncJSONLogicExtraction {
		if _, err := jsonlogic.ParseString(args["jsonLogic"]); err != nil {
			return nil, &domain.ValidationError{Rule: rule.PropertyName, Function: fn.Name, Violations: []string{fmt.Sprintf("argument %q: %v", "jsonLogic", err)}}
		}
	}
	return args, nil
}

var errNotArray = errors.New("value is not an array")

// DefaultRegistry returns the built-in function set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Function{
			Name:        FuncGet,
			Description: "Get the value of a field that may be nested in the data.",
			Args:        []ArgSpec{},
			Apply: func(value any, _ Args) (any, error) {
				return value, nil
			},
		},
		Function{
			Name:        FuncGetFirst,
			Description: "Get the first value of an array field, optionally reading a sub path of that first element.",
			Args: []ArgSpec{
				{Name: "subPath", Kind: ArgString, Description: "Path inside the first element. Leave empty for a plain array of strings."},
			},
			Apply: getFirst,
		},
		Function{
			Name:        FuncJoin,
			Description: "Join the values of an array into a single string.",
			Args: []ArgSpec{
				{Name: "delimiter", Kind: ArgString, Required: true, Description: "Text placed between values.", Aliases: []string{"delimeter"}},
			},
			Apply: join,
		},
		Function{
			Name:        FuncSplitFirst,
			Description: "Get the first part of a string split by a delimiter, e.g. for values separated by '|' or ','.",
			Args: []ArgSpec{
				{Name: "delimiter", Kind: ArgString, Required: true, Description: "Text to split on.", Aliases: []string{"delimeter"}},
			},
			Apply: splitFirst,
		},
		Function{
			Name:        FuncFormatDate,
			Description: "Format a date or date string using dayjs-style tokens, e.g. YYYY or YYYY-MM-DD.",
			Args: []ArgSpec{
				{Name: "format", Kind: ArgString, Required: true, Description: "Format template."},
			},
			Apply: func(value any, args Args) (any, error) {
				if value == nil || value == "" {
					return "", nil
				}
				t, err := parseDate(value)
				if err != nil {
					return nil, err
				}
				return formatDate(t, args["format"]), nil
			},
		},
		Function{
			Name:        FuncJSONLogicExtraction,
			Description: "Apply a second expression to the value the path resolved to, for deeply nested data.",
			Args: []ArgSpec{
				{Name: "jsonLogic", Kind: ArgString, Required: true, Description: "Expression applied to the intermediate value, as JSON text."},
			},
			Apply: func(value any, args Args) (any, error) {
				inner, err := jsonlogic.ParseString(args["jsonLogic"])
				if err != nil {
					return nil, err
				}
				return jsonlogic.Apply(inner, value)
			},
		},
	)
}

func getFirst(value any, args Args) (any, error) {
	if value == nil {
		return nil, nil
	}
	var first any
	switch list := value.(type) {
	case []any:
		if len(list) == 0 {
			return nil, nil
		}
		first = list[0]
	case []string:
		if len(list) == 0 {
			return nil, nil
		}
		first = list[0]
	default:
		return nil, fmt.Errorf("get_first: %w (got %T)", errNotArray, value)
	}
	subPath := strings.TrimSpace(args["subPath"])
	if subPath == "" {
		return first, nil
	}
	v, _ := jsonlogic.Resolve(first, subPath)
	return v, nil
}

func join(value any, args Args) (any, error) {
	switch list := value.(type) {
	case nil:
		return "", nil
	case []string:
		return strings.Join(list, args["delimiter"]), nil
	case []any:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = jsonlogic.ToString(item)
		}
		return strings.Join(parts, args["delimiter"]), nil
	default:
		return nil, fmt.Errorf("join: %w (got %T)", errNotArray, value)
	}
}

func splitFirst(value any, args Args) (any, error) {
	switch s := value.(type) {
	case nil:
		return "", nil
	case string:
		if s == "" {
			return "", nil
		}
		return strings.SplitN(s, args["delimiter"], 2)[0], nil
	default:
		return nil, fmt.Errorf("split_first: value is not a string (got %T)", value)
	}
}
