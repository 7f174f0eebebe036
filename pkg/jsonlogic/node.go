// Package jsonlogic implements the small JSON expression language used for
// derive-rule paths and compiled filters. An expression is parsed into a
// tree of Nodes (literal, array or operation) and evaluated by a single
// recursive evaluator against arbitrary input data.
package jsonlogic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the variant held by a Node.
type Kind uint8

const (
	KindLiteral Kind = iota
	KindArray
	KindOperation
)

// Node is one expression tree node.
//
// Literal nodes carry Value. Array nodes carry Args, evaluated element-wise.
// Operation nodes carry Op and Args.
type Node struct {
	Kind  Kind
	Op    string
	Args  []*Node
	Value any

	// bare marks an operation written with a single non-array operand,
	// e.g. {"var": "a.b"}, so it serialises back in the same shape.
	bare bool
}

// Var builds {"var": path}.
func Var(path string) *Node {
	return &Node{Kind: KindOperation, Op: "var", Args: []*Node{Literal(path)}, bare: true}
}

// Literal builds a literal node.
func Literal(value any) *Node {
	return &Node{Kind: KindLiteral, Value: value}
}

// Array builds an array node.
func Array(items ...*Node) *Node {
	return &Node{Kind: KindArray, Args: items}
}

// Op builds an operation node.
func Op(name string, args ...*Node) *Node {
	return &Node{Kind: KindOperation, Op: name, Args: args}
}

// Parse decodes JSON text into an expression tree.
func Parse(data []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}
	return FromValue(raw), nil
}

// ParseString is Parse for a string argument.
func ParseString(text string) (*Node, error) {
	return Parse([]byte(text))
}

// FromValue converts a decoded JSON value into an expression tree. A map with
// exactly one key is an operation; any other map is a literal object.
func FromValue(raw any) *Node {
	switch v := raw.(type) {
	case []any:
		items := make([]*Node, len(v))
		for i, item := range v {
			items[i] = FromValue(item)
		}
		return Array(items...)
	case map[string]any:
		if len(v) != 1 {
			return Literal(v)
		}
		for op, operand := range v {
			if list, ok := operand.([]any); ok {
				args := make([]*Node, len(list))
				for i, item := range list {
					args[i] = FromValue(item)
				}
				return &Node{Kind: KindOperation, Op: op, Args: args}
			}
			return &Node{Kind: KindOperation, Op: op, Args: []*Node{FromValue(operand)}, bare: true}
		}
	}
	return Literal(raw)
}

// ToValue converts the tree back into plain JSON-compatible values.
func (n *Node) ToValue() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindArray:
		items := make([]any, len(n.Args))
		for i, item := range n.Args {
			items[i] = item.ToValue()
		}
		return items
	case KindOperation:
		if n.bare && len(n.Args) == 1 {
			return map[string]any{n.Op: n.Args[0].ToValue()}
		}
		args := make([]any, len(n.Args))
		for i, arg := range n.Args {
			args[i] = arg.ToValue()
		}
		return map[string]any{n.Op: args}
	default:
		return n.Value
	}
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.ToValue())
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// String renders the expression as compact JSON.
func (n *Node) String() string {
	out, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid expression: %v>", err)
	}
	return string(out)
}

// VarPath returns the path of a plain {"var": "<path>"} expression.
func (n *Node) VarPath() (string, bool) {
	if n == nil || n.Kind != KindOperation || n.Op != "var" || len(n.Args) == 0 {
		return "", false
	}
	lit := n.Args[0]
	if lit.Kind != KindLiteral {
		return "", false
	}
	path, ok := lit.Value.(string)
	return path, ok
}

// Vars lists every literal variable path referenced by the expression,
// sorted and de-duplicated.
func (n *Node) Vars() []string {
	seen := make(map[string]struct{})
	var walk func(*Node)
	walk = func(node *Node) {
		if node == nil {
			return
		}
		if path, ok := node.VarPath(); ok {
			seen[path] = struct{}{}
		}
		for _, arg := range node.Args {
			walk(arg)
		}
	}
	walk(n)
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
