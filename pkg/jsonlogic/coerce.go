package jsonlogic

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Truthy applies jsonlogic truthiness: nil, false, 0, NaN, "" and empty
// arrays are false; everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any, time.Time:
		return true
	}
	if n, ok := numeric(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// ToString renders a value the way derived columns and cat expect: nil is
// empty, numbers use their shortest form, arrays are comma-joined and
// objects are JSON encoded.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = ToString(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	case map[string]any:
		out, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(out)
	}
	if n, ok := numeric(v); ok {
		return formatNumber(n)
	}
	if out, err := cast.ToStringE(v); err == nil {
		return out
	}
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	if abs := math.Abs(n); abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return jsExponent(strconv.FormatFloat(n, 'e', -1, 64))
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// jsExponent drops the zero padding Go puts on two-digit exponents, so
// 1.5e-07 reads 1.5e-7 as Number.prototype.toString prints it.
func jsExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}
	mantissa, sign, digits := s[:i], s[i+1], strings.TrimLeft(s[i+2:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + string(sign) + digits
}

// ToNumber converts a value to a float64 with JavaScript Number()
// semantics. Values that cannot be converted yield NaN.
func ToNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return math.NaN()
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return 0
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	case time.Time:
		return float64(t.UnixMilli())
	case []any:
		if len(t) == 0 {
			return 0
		}
		if len(t) == 1 {
			return ToNumber(t[0])
		}
		return math.NaN()
	}
	if n, ok := numeric(v); ok {
		return n
	}
	return math.NaN()
}

// numeric handles the Go numeric kinds and json.Number.
func numeric(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return math.NaN(), true
		}
		return n, true
	}
	return 0, false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return nil
}

// LooseEqual implements JavaScript == for JSON-shaped values.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		a = ta.UTC().Format(time.RFC3339)
	}
	if tb, ok := b.(time.Time); ok {
		b = tb.UTC().Format(time.RFC3339)
	}
	switch {
	case isList(a) && isList(b):
		return false
	case isList(a):
		return LooseEqual(ToString(a), b)
	case isList(b):
		return LooseEqual(a, ToString(b))
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return sa == sb
	}
	ba, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool && bBool {
		return ba == bb
	}
	_, aNum := numeric(a)
	_, bNum := numeric(b)
	if aNum || bNum || aBool || bBool {
		na, nb := ToNumber(a), ToNumber(b)
		return na == nb
	}
	return false
}

// StrictEqual implements JavaScript === for JSON-shaped values.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := numeric(a); ok {
		nb, ok := numeric(b)
		return ok && na == nb
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	case time.Time:
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return false
}

// lessThan implements JavaScript < (strict) and <= (orEqual), except that a
// blank string never orders against a number.
func lessThan(a, b any, orEqual bool) bool {
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		if orEqual {
			return sa <= sb
		}
		return sa < sb
	}
	if (aStr && strings.TrimSpace(sa) == "") || (bStr && strings.TrimSpace(sb) == "") {
		return false
	}
	na, nb := ToNumber(a), ToNumber(b)
	if math.IsNaN(na) || math.IsNaN(nb) {
		return false
	}
	if orEqual {
		return na <= nb
	}
	return na < nb
}
