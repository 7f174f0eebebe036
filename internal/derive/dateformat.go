package derive

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// partialDateLayouts covers the month and year precision dates found in
// registry records, which cast does not parse.
var partialDateLayouts = []string{"2006-01", "2006"}

// parseDate converts a date-like value to a time. Numbers are epoch
// milliseconds; strings go through cast and the partial layouts.
func parseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range partialDateLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return parsed, nil
			}
		}
		parsed, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", t)
		}
		return parsed, nil
	case int, int32, int64, float32, float64:
		ms, err := cast.ToInt64E(t)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("invalid date value of type %T", v)
	}
}

// formatDate renders t using dayjs-style tokens (YYYY, MM, DD, HH, mm, ...).
// Text inside square brackets is copied literally.
func formatDate(t time.Time, format string) string {
	var b strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		if runes[i] == '[' {
			end := i + 1
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			b.WriteString(string(runes[i+1 : min(end, len(runes))]))
			i = end + 1
			continue
		}
		token, ok := matchToken(runes[i:])
		if !ok {
			b.WriteRune(runes[i])
			i++
			continue
		}
		b.WriteString(renderToken(t, token))
		i += len(token)
	}
	return b.String()
}

// dateTokens is ordered longest first so that greedy matching works.
var dateTokens = []string{
	"YYYY", "MMMM", "dddd", "SSS", "MMM", "ddd",
	"YY", "MM", "DD", "dd", "HH", "hh", "mm", "ss", "ZZ", "Do",
	"M", "D", "d", "H", "h", "m", "s", "A", "a", "Z", "Q", "X", "x",
}

func matchToken(rest []rune) (string, bool) {
	for _, token := range dateTokens {
		if len(rest) >= len(token) && string(rest[:len(token)]) == token {
			return token, true
		}
	}
	return "", false
}

func renderToken(t time.Time, token string) string {
	switch token {
	case "YYYY":
		return fmt.Sprintf("%04d", t.Year())
	case "YY":
		return fmt.Sprintf("%02d", t.Year()%100)
	case "Q":
		return strconv.Itoa((int(t.Month())-1)/3 + 1)
	case "MMMM":
		return t.Month().String()
	case "MMM":
		return t.Month().String()[:3]
	case "MM":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "DD":
		return fmt.Sprintf("%02d", t.Day())
	case "D":
		return strconv.Itoa(t.Day())
	case "Do":
		return ordinal(t.Day())
	case "dddd":
		return t.Weekday().String()
	case "ddd":
		return t.Weekday().String()[:3]
	case "dd":
		return t.Weekday().String()[:2]
	case "d":
		return strconv.Itoa(int(t.Weekday()))
	case "HH":
		return fmt.Sprintf("%02d", t.Hour())
	case "H":
		return strconv.Itoa(t.Hour())
	case "hh":
		return fmt.Sprintf("%02d", hour12(t))
	case "h":
		return strconv.Itoa(hour12(t))
	case "mm":
		return fmt.Sprintf("%02d", t.Minute())
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return fmt.Sprintf("%02d", t.Second())
	case "s":
		return strconv.Itoa(t.Second())
	case "SSS":
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	case "A":
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case "a":
		if t.Hour() < 12 {
			return "am"
		}
		return "pm"
	case "Z":
		return t.Format("-07:00")
	case "ZZ":
		return t.Format("-0700")
	case "X":
		return strconv.FormatInt(t.Unix(), 10)
	case "x":
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	return token
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

func ordinal(day int) string {
	suffix := "th"
	switch {
	case day%100 >= 11 && day%100 <= 13:
	case day%10 == 1:
		suffix = "st"
	case day%10 == 2:
		suffix = "nd"
	case day%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(day) + suffix
}
