package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

const builderTree = `{
  "id": "root",
  "combinator": "and",
  "rules": [
    {"field": "derived_status", "operator": "=", "value": "RECRUITING"},
    {"combinator": "or", "not": true, "rules": [
      {"id": "r2", "field": "drug_name", "operator": "contains", "value": "mab"},
      {"field": "title", "operator": "null", "value": "", "disabled": true}
    ]}
  ]
}`

func TestFilterNodeDecodesGroupsAndRules(t *testing.T) {
	tree, err := DecodeFilter([]byte(builderTree))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tree.Rules) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d", len(tree.Rules))
	}
	if tree.Rules[0].Rule == nil || tree.Rules[0].Rule.Field != "derived_status" {
		t.Fatalf("expected first node to be a leaf, got %+v", tree.Rules[0])
	}
	nested := tree.Rules[1].Group
	if nested == nil || !nested.Not || nested.Combinator != CombinatorOr {
		t.Fatalf("expected negated or-group, got %+v", tree.Rules[1])
	}

	if got := tree.Fields(); !reflect.DeepEqual(got, []string{"derived_status", "drug_name"}) {
		t.Fatalf("unexpected fields %v", got)
	}

	out, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := DecodeFilter(out)
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	if !reflect.DeepEqual(tree, again) {
		t.Fatalf("tree changed across encode/decode")
	}
}

func TestFilterGroupIsEmpty(t *testing.T) {
	empty, err := DecodeFilter(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if !empty.IsEmpty() {
		t.Fatalf("expected empty tree")
	}

	onlyDisabled := NewFilterGroup(CombinatorAnd).AddGroup(NewFilterGroup(CombinatorOr))
	onlyDisabled.Rules = append(onlyDisabled.Rules, FilterNode{Rule: &FilterRule{Field: "x", Operator: "=", Disabled: true}})
	if !onlyDisabled.IsEmpty() {
		t.Fatalf("expected tree with only disabled leaves to be empty")
	}

	if NewFilterGroup(CombinatorAnd).AddRule("x", "=", "1").IsEmpty() {
		t.Fatalf("expected tree with a leaf to be non-empty")
	}
}

func TestFilterGroupEnsureIDs(t *testing.T) {
	tree, err := DecodeFilter([]byte(builderTree))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tree.EnsureIDs()

	if tree.ID != "root" {
		t.Fatalf("existing id replaced: %q", tree.ID)
	}
	if tree.Rules[0].Rule.ID == "" || tree.Rules[1].Group.ID == "" {
		t.Fatalf("expected ids to be assigned")
	}
	if tree.Rules[1].Group.Rules[0].Rule.ID != "r2" {
		t.Fatalf("existing leaf id replaced")
	}
}
