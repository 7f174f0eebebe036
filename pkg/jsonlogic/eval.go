package jsonlogic

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaxDepth bounds expression nesting during evaluation.
const MaxDepth = 64

var (
	// ErrUnknownOperation is returned for an operation name with no evaluator.
	ErrUnknownOperation = errors.New("unrecognized operation")
	// ErrTooDeep is returned when evaluation exceeds MaxDepth.
	ErrTooDeep = errors.New("expression nesting too deep")
)

// Apply evaluates the expression against data. data may be any
// JSON-shaped value or a Getter.
func Apply(n *Node, data any) (any, error) {
	return eval(n, data, 0)
}

// ApplyJSON parses text and evaluates it against data.
func ApplyJSON(text string, data any) (any, error) {
	n, err := ParseString(text)
	if err != nil {
		return nil, err
	}
	return Apply(n, data)
}

// Truth evaluates the expression and applies Truthy to the result.
func Truth(n *Node, data any) (bool, error) {
	v, err := Apply(n, data)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

type opFunc func(args []*Node, data any, depth int) (any, error)

var operations map[string]opFunc

func init() {
	operations = map[string]opFunc{
		"var":          opVar,
		"missing":      opMissing,
		"missing_some": opMissingSome,
		"if":           opIf,
		"?:":           opIf,
		"and":          opAnd,
		"or":           opOr,
		"!":            opNot,
		"!!":           opDoubleNot,
		"==":           binary(func(a, b any) any { return LooseEqual(a, b) }),
		"!=":           binary(func(a, b any) any { return !LooseEqual(a, b) }),
		"===":          binary(func(a, b any) any { return StrictEqual(a, b) }),
		"!==":          binary(func(a, b any) any { return !StrictEqual(a, b) }),
		"<":            opCompare(false),
		"<=":           opCompare(true),
		">":            binary(func(a, b any) any { return lessThan(b, a, false) }),
		">=":           binary(func(a, b any) any { return lessThan(b, a, true) }),
		"in":           binary(in),
		"startsWith":   binary(func(a, b any) any { return isString(a) && strings.HasPrefix(a.(string), ToString(b)) }),
		"endsWith":     binary(func(a, b any) any { return isString(a) && strings.HasSuffix(a.(string), ToString(b)) }),
		"cat":          eager(cat),
		"substr":       eager(substr),
		"+":            eager(add),
		"*":            eager(multiply),
		"-":            eager(subtract),
		"/":            binary(func(a, b any) any { return ToNumber(a) / ToNumber(b) }),
		"%":            binary(func(a, b any) any { return math.Mod(ToNumber(a), ToNumber(b)) }),
		"min":          eager(minmax(math.Min)),
		"max":          eager(minmax(math.Max)),
		"merge":        eager(merge),
		"map":          opMap,
		"filter":       opFilter,
		"reduce":       opReduce,
		"all":          opAll,
		"some":         opSome,
		"none":         opNone,
	}
}

// HasOperation reports whether name is a known operation.
func HasOperation(name string) bool {
	_, ok := operations[name]
	return ok
}

func eval(n *Node, data any, depth int) (any, error) {
	if n == nil {
		return nil, nil
	}
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch n.Kind {
	case KindLiteral:
		return n.Value, nil
	case KindArray:
		return evalAll(n.Args, data, depth+1)
	}
	op, ok := operations[n.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, n.Op)
	}
	return op(n.Args, data, depth+1)
}

func evalAll(args []*Node, data any, depth int) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := eval(arg, data, depth)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func eager(fn func(values []any) any) opFunc {
	return func(args []*Node, data any, depth int) (any, error) {
		values, err := evalAll(args, data, depth)
		if err != nil {
			return nil, err
		}
		return fn(values), nil
	}
}

func binary(fn func(a, b any) any) opFunc {
	return eager(func(values []any) any {
		return fn(at(values, 0), at(values, 1))
	})
}

func at(values []any, i int) any {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func opVar(args []*Node, data any, depth int) (any, error) {
	values, err := evalAll(args, data, depth)
	if err != nil {
		return nil, err
	}
	var path string
	switch p := at(values, 0).(type) {
	case nil:
		return data, nil
	case string:
		path = p
	default:
		path = ToString(p)
	}
	if path == "" {
		return data, nil
	}
	v, ok := Resolve(data, path)
	if !ok {
		return at(values, 1), nil
	}
	return v, nil
}

func opMissing(args []*Node, data any, depth int) (any, error) {
	values, err := evalAll(args, data, depth)
	if err != nil {
		return nil, err
	}
	keys := values
	if len(values) > 0 && isList(values[0]) {
		keys = toList(values[0])
	}
	missing := make([]any, 0)
	for _, key := range keys {
		v, ok := Resolve(data, ToString(key))
		if !ok || v == nil || v == "" {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

func opMissingSome(args []*Node, data any, depth int) (any, error) {
	values, err := evalAll(args, data, depth)
	if err != nil {
		return nil, err
	}
	need := int(ToNumber(at(values, 0)))
	keys := toList(at(values, 1))
	missing := make([]any, 0)
	for _, key := range keys {
		v, ok := Resolve(data, ToString(key))
		if !ok || v == nil || v == "" {
			missing = append(missing, key)
		}
	}
	if len(keys)-len(missing) >= need {
		return []any{}, nil
	}
	return missing, nil
}

func opIf(args []*Node, data any, depth int) (any, error) {
	i := 0
	for ; i+1 < len(args); i += 2 {
		cond, err := eval(args[i], data, depth)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return eval(args[i+1], data, depth)
		}
	}
	if i < len(args) {
		return eval(args[i], data, depth)
	}
	return nil, nil
}

func opAnd(args []*Node, data any, depth int) (any, error) {
	var last any
	for _, arg := range args {
		v, err := eval(arg, data, depth)
		if err != nil {
			return nil, err
		}
		if !Truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func opOr(args []*Node, data any, depth int) (any, error) {
	var last any
	for _, arg := range args {
		v, err := eval(arg, data, depth)
		if err != nil {
			return nil, err
		}
		if Truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func opNot(args []*Node, data any, depth int) (any, error) {
	ok, err := firstTruthy(args, data, depth)
	return !ok, err
}

func opDoubleNot(args []*Node, data any, depth int) (any, error) {
	return firstTruthy(args, data, depth)
}

func firstTruthy(args []*Node, data any, depth int) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	v, err := eval(args[0], data, depth)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// opCompare supports the three-argument "between" form of < and <=.
func opCompare(orEqual bool) opFunc {
	return eager(func(values []any) any {
		if len(values) == 3 {
			return lessThan(values[0], values[1], orEqual) && lessThan(values[1], values[2], orEqual)
		}
		return lessThan(at(values, 0), at(values, 1), orEqual)
	})
}

// in reports array membership (loose equality) or substring containment.
func in(needle, haystack any) any {
	if isList(haystack) {
		for _, item := range toList(haystack) {
			if LooseEqual(item, needle) {
				return true
			}
		}
		return false
	}
	if s, ok := haystack.(string); ok {
		return strings.Contains(s, ToString(needle))
	}
	return false
}

func cat(values []any) any {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(ToString(v))
	}
	return b.String()
}

func substr(values []any) any {
	runes := []rune(ToString(at(values, 0)))
	start := int(ToNumber(at(values, 1)))
	if math.IsNaN(ToNumber(at(values, 1))) {
		start = 0
	}
	if start < 0 {
		start = max(len(runes)+start, 0)
	}
	if start > len(runes) {
		start = len(runes)
	}
	end := len(runes)
	if length := at(values, 2); length != nil {
		l := int(ToNumber(length))
		if l < 0 {
			end = max(len(runes)+l, start)
		} else {
			end = min(start+l, len(runes))
		}
	}
	return string(runes[start:end])
}

func add(values []any) any {
	total := 0.0
	for _, v := range values {
		total += ToNumber(v)
	}
	return total
}

func multiply(values []any) any {
	if len(values) == 0 {
		return nil
	}
	total := 1.0
	for _, v := range values {
		total *= ToNumber(v)
	}
	return total
}

func subtract(values []any) any {
	if len(values) == 1 {
		return -ToNumber(values[0])
	}
	return ToNumber(at(values, 0)) - ToNumber(at(values, 1))
}

func minmax(pick func(a, b float64) float64) func(values []any) any {
	return func(values []any) any {
		if len(values) == 0 {
			return nil
		}
		out := ToNumber(values[0])
		for _, v := range values[1:] {
			out = pick(out, ToNumber(v))
		}
		return out
	}
}

func merge(values []any) any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if isList(v) {
			out = append(out, toList(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// scope evaluates the first argument into a list for the iterating
// operations. A non-list yields an empty list.
func scope(args []*Node, data any, depth int) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	v, err := eval(args[0], data, depth)
	if err != nil {
		return nil, err
	}
	return toList(v), nil
}

func opMap(args []*Node, data any, depth int) (any, error) {
	items, err := scope(args, data, depth)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := eval(argAt(args, 1), item, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func opFilter(args []*Node, data any, depth int) (any, error) {
	items, err := scope(args, data, depth)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := eval(argAt(args, 1), item, depth)
		if err != nil {
			return nil, err
		}
		if Truthy(v) {
			out = append(out, item)
		}
	}
	return out, nil
}

func opReduce(args []*Node, data any, depth int) (any, error) {
	items, err := scope(args, data, depth)
	if err != nil {
		return nil, err
	}
	acc, err := eval(argAt(args, 2), data, depth)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		acc, err = eval(argAt(args, 1), map[string]any{"current": item, "accumulator": acc}, depth)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func opAll(args []*Node, data any, depth int) (any, error) {
	items, err := scope(args, data, depth)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return false, nil
	}
	for _, item := range items {
		v, err := eval(argAt(args, 1), item, depth)
		if err != nil {
			return nil, err
		}
		if !Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func opSome(args []*Node, data any, depth int) (any, error) {
	items, err := scope(args, data, depth)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		v, err := eval(argAt(args, 1), item, depth)
		if err != nil {
			return nil, err
		}
		if Truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func opNone(args []*Node, data any, depth int) (any, error) {
	some, err := opSome(args, data, depth)
	if err != nil {
		return nil, err
	}
	return !some.(bool), nil
}

func argAt(args []*Node, i int) *Node {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// Operations lists the registered operation names.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

