package graphql

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Argument values arrive as parsed literals or decoded variables, so
// numbers may be int64, float64 or json.Number.

func argString(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return s, nil
}

func argOptionalString(args map[string]any, name string) (*string, error) {
	if v, ok := args[name]; !ok || v == nil {
		return nil, nil
	}
	s, err := argString(args, name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func argInt(args map[string]any, name string) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return n, nil
}

func argOptionalInt(args map[string]any, name string) (*int, error) {
	if v, ok := args[name]; !ok || v == nil {
		return nil, nil
	}
	n, err := argInt(args, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// argJSON re-encodes a JSON scalar argument. A missing or null argument
// yields nil.
func argJSON(args map[string]any, name string) (json.RawMessage, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return data, nil
}

// argInput decodes an input object argument into dst through its json tags.
func argInput(args map[string]any, name string, dst any) error {
	data, err := argJSON(args, name)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return nil
}
