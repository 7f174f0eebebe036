package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Group combinators.
const (
	CombinatorAnd = "and"
	CombinatorOr  = "or"
)

// FilterGroup is a node of the filter rule tree built by the visual query
// builder: a combinator over nested rules and groups.
type FilterGroup struct {
	ID         string       `json:"id,omitempty"`
	Combinator string       `json:"combinator"`
	Not        bool         `json:"not,omitempty"`
	Rules      []FilterNode `json:"rules"`
}

// FilterRule is a leaf comparison against one row field.
type FilterRule struct {
	ID       string `json:"id,omitempty"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// FilterNode holds either a leaf rule or a nested group.
type FilterNode struct {
	Rule  *FilterRule
	Group *FilterGroup
}

// NewFilterGroup creates an empty group with the given combinator.
func NewFilterGroup(combinator string) *FilterGroup {
	return &FilterGroup{ID: uuid.NewString(), Combinator: combinator, Rules: []FilterNode{}}
}

// AddRule appends a leaf rule to the group.
func (g *FilterGroup) AddRule(field, operator string, value any) *FilterGroup {
	g.Rules = append(g.Rules, FilterNode{Rule: &FilterRule{ID: uuid.NewString(), Field: field, Operator: operator, Value: value}})
	return g
}

// AddGroup appends a nested group.
func (g *FilterGroup) AddGroup(child *FilterGroup) *FilterGroup {
	g.Rules = append(g.Rules, FilterNode{Group: child})
	return g
}

// IsEmpty reports whether the tree holds no enabled leaf rule.
func (g *FilterGroup) IsEmpty() bool {
	if g == nil {
		return true
	}
	for _, node := range g.Rules {
		switch {
		case node.Rule != nil && !node.Rule.Disabled:
			return false
		case node.Group != nil && !node.Group.IsEmpty():
			return false
		}
	}
	return true
}

// EnsureIDs assigns identifiers to every group and rule lacking one.
func (g *FilterGroup) EnsureIDs() {
	if g == nil {
		return
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	for _, node := range g.Rules {
		if node.Rule != nil && node.Rule.ID == "" {
			node.Rule.ID = uuid.NewString()
		}
		node.Group.EnsureIDs()
	}
}

// Fields lists the row fields referenced by enabled leaves, in tree order.
func (g *FilterGroup) Fields() []string {
	var fields []string
	if g == nil {
		return fields
	}
	for _, node := range g.Rules {
		if node.Rule != nil && !node.Rule.Disabled {
			fields = append(fields, node.Rule.Field)
		}
		fields = append(fields, node.Group.Fields()...)
	}
	return fields
}

// MarshalJSON writes whichever variant is set.
func (n FilterNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Group != nil:
		return json.Marshal(n.Group)
	case n.Rule != nil:
		return json.Marshal(n.Rule)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a node; an object with a "rules" key is a group.
func (n *FilterNode) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if _, ok := fields["rules"]; ok {
		var group FilterGroup
		if err := json.Unmarshal(data, &group); err != nil {
			return err
		}
		n.Group = &group
		return nil
	}
	var rule FilterRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	n.Rule = &rule
	return nil
}

// DecodeFilter parses a persisted filter tree. Empty input yields an empty
// "and" group.
func DecodeFilter(data []byte) (*FilterGroup, error) {
	if len(data) == 0 || string(data) == "null" {
		return &FilterGroup{Combinator: CombinatorAnd, Rules: []FilterNode{}}, nil
	}
	var group FilterGroup
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	if group.Rules == nil {
		group.Rules = []FilterNode{}
	}
	return &group, nil
}
