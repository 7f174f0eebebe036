package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEntrySnapshotCanonicalText(t *testing.T) {
	snapshot := EntrySnapshot{
		NCTID: "NCT01",
		Title: "Base",
		RawJSON: map[string]any{
			"statusModule":     map[string]any{"overallStatus": "RECRUITING"},
			"conditionsModule": map[string]any{"conditions": []any{"Asthma", "Rhinitis"}, "keywords": []any{}},
			"enrollment":       float64(120),
		},
	}

	expected := []string{
		"nctId: NCT01",
		"title: Base",
		"rawJson:",
		`  conditionsModule.conditions[0]: "Asthma"`,
		`  conditionsModule.conditions[1]: "Rhinitis"`,
		"  conditionsModule.keywords: []",
		"  enrollment: 120",
		`  statusModule.overallStatus: "RECRUITING"`,
	}

	lines := snapshot.CanonicalText()
	if len(lines) != len(expected) {
		t.Fatalf("expected %d canonical lines, got %d\n%v", len(expected), len(lines), lines)
	}
	for idx, line := range expected {
		if lines[idx] != line {
			t.Errorf("line %d mismatch: expected %q got %q", idx, line, lines[idx])
		}
	}

	empty := EntrySnapshot{NCTID: "NCT02"}.CanonicalText()
	if empty[len(empty)-1] != "  (empty)" {
		t.Fatalf("expected empty marker, got %v", empty)
	}
}

func TestDiffSnapshots(t *testing.T) {
	base := EntrySnapshot{NCTID: "NCT01", Title: "Study", RawJSON: map[string]any{
		"statusModule": map[string]any{"overallStatus": "RECRUITING"},
	}}
	target := EntrySnapshot{NCTID: "NCT01", Title: "Study", RawJSON: map[string]any{
		"statusModule": map[string]any{"overallStatus": "COMPLETED"},
	}}

	diff := DiffSnapshots("previous", base, "current", target)

	for _, want := range []string{
		"--- previous\n+++ current\n",
		" nctId: NCT01\n",
		`-  statusModule.overallStatus: "RECRUITING"` + "\n",
		`+  statusModule.overallStatus: "COMPLETED"` + "\n",
	} {
		if !strings.Contains(diff, want) {
			t.Fatalf("diff missing %q:\n%s", want, diff)
		}
	}
}

func TestSnapshotFromHistory(t *testing.T) {
	entry := Entry{NCTID: "NCT01"}
	data, _ := json.Marshal(map[string]any{"identificationModule": map[string]any{"briefTitle": "Old title"}})

	snap, err := SnapshotFromHistory(entry, EntryHistory{Type: HistoryTypeNewVersion, Data: data})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Title != "Old title" || snap.NCTID != "NCT01" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	_, err = SnapshotFromHistory(entry, EntryHistory{Type: HistoryTypeLegacy})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotFromHistory_Legacy(t *testing.T) {
	entry := Entry{NCTID: "NCT01"}
	data, _ := json.Marshal(map[string]any{"NCTId": "NCT01", "BriefTitle": "Legacy title", "OverallStatus": "Completed"})

	snap, err := SnapshotFromHistory(entry, EntryHistory{Type: HistoryTypeLegacy, Description: "Legacy import", Data: data})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Title != "Legacy title" || snap.NCTID != "NCT01" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	text := strings.Join(snap.CanonicalText(), "\n")
	if !strings.Contains(text, `OverallStatus: "Completed"`) {
		t.Fatalf("legacy columns missing from canonical text:\n%s", text)
	}
}
