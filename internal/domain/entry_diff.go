package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EntrySnapshot is the part of an entry compared between study versions.
type EntrySnapshot struct {
	NCTID   string
	Title   string
	RawJSON map[string]any
}

// SnapshotOf captures the current version of an entry.
func SnapshotOf(e Entry) EntrySnapshot {
	return EntrySnapshot{NCTID: e.NCTID, Title: e.Title, RawJSON: e.RawJSON}
}

// SnapshotFromHistory rebuilds the version superseded by a history record.
// Legacy records hold the flat row of the previous spreadsheet export
// instead of a protocol section. Records without a stored payload yield
// ErrNotFound.
func SnapshotFromHistory(e Entry, record EntryHistory) (EntrySnapshot, error) {
	if len(record.Data) == 0 || string(record.Data) == "null" {
		return EntrySnapshot{}, fmt.Errorf("history of %s on %s has no payload: %w", e.NCTID, record.Date, ErrNotFound)
	}
	raw, err := DecodeRawJSON(record.Data)
	if err != nil {
		return EntrySnapshot{}, err
	}
	if record.Type == HistoryTypeLegacy {
		nctID := stringAt(raw, "NCTId")
		if nctID == "" {
			nctID = e.NCTID
		}
		return EntrySnapshot{NCTID: nctID, Title: stringAt(raw, "BriefTitle"), RawJSON: raw}, nil
	}
	return EntrySnapshot{NCTID: e.NCTID, Title: stringAt(raw, "identificationModule", "briefTitle"), RawJSON: raw}, nil
}

func stringAt(m map[string]any, keys ...string) string {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[k]
	}
	s, _ := cur.(string)
	return s
}

// CanonicalText renders the snapshot as sorted "path: json" lines.
func (s EntrySnapshot) CanonicalText() []string {
	lines := []string{
		"nctId: " + s.NCTID,
		"title: " + s.Title,
		"rawJson:",
	}

	flat := map[string]string{}
	flattenPayload("", s.RawJSON, flat)
	if len(flat) == 0 {
		return append(lines, "  (empty)")
	}

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, flat[key]))
	}
	return lines
}

// DiffSnapshots returns a unified diff from base to target.
func DiffSnapshots(baseLabel string, base EntrySnapshot, targetLabel string, target EntrySnapshot) string {
	ops := diffLines(base.CanonicalText(), target.CanonicalText())

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", baseLabel, targetLabel)
	for _, op := range ops {
		b.WriteByte(op.kind)
		b.WriteString(op.line)
		b.WriteByte('\n')
	}
	return b.String()
}

func flattenPayload(prefix string, value any, acc map[string]string) {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return
		}
		for key, child := range typed {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			flattenPayload(next, child, acc)
		}
	case []any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "[]"
			}
			return
		}
		for idx, item := range typed {
			flattenPayload(fmt.Sprintf("%s[%d]", prefix, idx), item, acc)
		}
	case nil:
		if prefix != "" {
			acc[prefix] = "null"
		}
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			acc[prefix] = fmt.Sprintf("%v", typed)
			return
		}
		acc[prefix] = string(encoded)
	}
}

type diffOp struct {
	kind byte
	line string
}

// diffLines walks a longest-common-subsequence table of the two inputs.
func diffLines(base, target []string) []diffOp {
	m, n := len(base), len(target)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case base[i] == target[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case base[i] == target[j]:
			ops = append(ops, diffOp{' ', base[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{'-', base[i]})
			i++
		default:
			ops = append(ops, diffOp{'+', target[j]})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, diffOp{'-', base[i]})
	}
	for ; j < n; j++ {
		ops = append(ops, diffOp{'+', target[j]})
	}
	return ops
}
