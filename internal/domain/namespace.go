package domain

import (
	"fmt"
	"strings"
)

// CheckNamespaces verifies that entry attribute names, custom field id names
// and derived column names never shadow each other, and that no two rules
// share a property name.
func CheckNamespaces(fields []CustomFieldDefinition, rules []DeriveRule) error {
	var problems []string

	idNames := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		switch {
		case IsEntryAttribute(f.IDName):
			problems = append(problems, fmt.Sprintf("custom field %q shadows an entry attribute", f.IDName))
		case IsDerivedKey(f.IDName):
			problems = append(problems, fmt.Sprintf("custom field %q uses the reserved %q prefix", f.IDName, DerivedPrefix))
		}
		if _, dup := idNames[f.IDName]; dup {
			problems = append(problems, fmt.Sprintf("custom field %q is defined twice", f.IDName))
		}
		idNames[f.IDName] = struct{}{}
	}

	properties := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := properties[r.PropertyName]; dup {
			problems = append(problems, fmt.Sprintf("derive rule property %q is used by more than one rule", r.PropertyName))
		}
		properties[r.PropertyName] = struct{}{}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrNameCollision, strings.Join(problems, "; "))
	}
	return nil
}
