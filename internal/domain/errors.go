package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCustomField = errors.New("invalid custom field")
	ErrInvalidRule        = errors.New("invalid derive rule")
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrNameCollision      = errors.New("field name collision")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
)

// ValidationError reports that a derive rule's arguments do not satisfy the
// argument schema of its function.
type ValidationError struct {
	Rule       string
	Function   string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for rule %q (%s): %s", e.Rule, e.Function, strings.Join(e.Violations, "; "))
}

// ResolutionError reports a failure while resolving a path or applying a
// function to the resolved value.
type ResolutionError struct {
	Rule string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Rule == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// UnknownFunctionError reports a rule naming a function that is not registered.
type UnknownFunctionError struct {
	Rule     string
	Function string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("rule %q references unknown function %q", e.Rule, e.Function)
}

// DanglingReferenceError reports a custom field value whose definition no
// longer exists.
type DanglingReferenceError struct {
	EntryID       int64
	CustomFieldID int64
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("entry %d references missing custom field %d", e.EntryID, e.CustomFieldID)
}
