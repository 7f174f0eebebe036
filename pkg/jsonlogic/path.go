package jsonlogic

import (
	"strconv"
	"strings"
)

// Getter is implemented by row-like inputs that can resolve a key without
// being converted to a map first.
type Getter interface {
	Get(key string) (any, bool)
}

// SplitPath breaks a dotted path into its components.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Resolve reads the value at a dotted path. Any missing intermediate key,
// nil intermediate value or unsupported container short-circuits to
// (nil, false). An empty path resolves to data itself.
func Resolve(data any, path string) (any, bool) {
	current := data
	for _, part := range SplitPath(path) {
		if current == nil {
			return nil, false
		}
		next, ok := step(current, part)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func step(current any, key string) (any, bool) {
	switch c := current.(type) {
	case Getter:
		return c.Get(key)
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case map[string]string:
		v, ok := c[key]
		return v, ok
	case []any:
		idx, ok := index(key, len(c))
		if !ok {
			return nil, false
		}
		return c[idx], true
	case []string:
		idx, ok := index(key, len(c))
		if !ok {
			return nil, false
		}
		return c[idx], true
	case string:
		if key == "length" {
			return float64(len([]rune(c))), true
		}
		runes := []rune(c)
		idx, ok := index(key, len(runes))
		if !ok {
			return nil, false
		}
		return string(runes[idx]), true
	default:
		return nil, false
	}
}

func index(key string, length int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= length {
		return 0, false
	}
	return i, true
}
