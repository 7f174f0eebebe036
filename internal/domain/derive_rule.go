package domain

import (
	"strings"

	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// DerivedPrefix marks computed columns in a flattened row.
const DerivedPrefix = "derived_"

// DerivedKey returns the row key under which a rule's output is stored.
func DerivedKey(propertyName string) string {
	return DerivedPrefix + propertyName
}

// IsDerivedKey reports whether a row key names a derived column.
func IsDerivedKey(key string) bool {
	return strings.HasPrefix(key, DerivedPrefix)
}

// DeriveRule is a user-authored declarative computation producing one
// derived column per row.
type DeriveRule struct {
	PropertyName string          `json:"propertyName"`
	Func         string          `json:"func"`
	Args         map[string]any  `json:"args"`
	JSONLogic    *jsonlogic.Node `json:"jsonLogic"`
	DisplayName  string          `json:"displayName,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// OutputKey returns the derived column name of the rule.
func (r DeriveRule) OutputKey() string {
	return DerivedKey(r.PropertyName)
}

// Label returns the display name, falling back to the property name.
func (r DeriveRule) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.PropertyName
}

// StringArg returns a string argument and whether it was present.
func (r DeriveRule) StringArg(name string) (string, bool) {
	v, ok := r.Args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
