package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/trialnotes/internal/domain"
)

type stubEntryStore struct {
	stored   map[string]domain.Entry
	upserted []domain.Entry
	err      error
}

func (s *stubEntryStore) FindByNCTIDs(_ context.Context, ids []string) (map[string]domain.Entry, error) {
	out := map[string]domain.Entry{}
	for _, id := range ids {
		if e, ok := s.stored[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (s *stubEntryStore) UpsertEntries(_ context.Context, entries []domain.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, entries...)
	return nil
}

type setCall struct {
	entryID, fieldID int64
	value            string
}

type stubValueStore struct {
	defs  []domain.CustomFieldDefinition
	calls []setCall
}

func (s *stubValueStore) ListCustomFieldDefinitions(context.Context) ([]domain.CustomFieldDefinition, error) {
	return s.defs, nil
}

func (s *stubValueStore) SetValue(_ context.Context, entryID, fieldID int64, value *string) error {
	s.calls = append(s.calls, setCall{entryID: entryID, fieldID: fieldID, value: *value})
	return nil
}

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestService(entries *stubEntryStore, values *stubValueStore) *Service {
	svc := NewService(entries, values, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

const studiesPayload = `{"studies":[
 {"protocolSection":{"identificationModule":{"nctId":"NCT001","briefTitle":"Brief"},"descriptionModule":{"briefSummary":"Summary"}}},
 {"protocolSection":{"identificationModule":{"nctId":"NCT002","officialTitle":"Official"}}},
 {"protocolSection":{"identificationModule":{"briefTitle":"No id"}}},
 {"protocolSection":{"identificationModule":{"nctId":"NCT003"}}}
]}`

func TestImportStudies_CreatesEntries(t *testing.T) {
	entries := &stubEntryStore{}
	svc := newTestService(entries, &stubValueStore{})

	summary, err := svc.ImportStudies(context.Background(), StudyRequest{Query: "asthma", Data: strings.NewReader(studiesPayload)})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if summary.TotalStudies != 4 || summary.Created != 2 || summary.Updated != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Errors) != 2 {
		t.Fatalf("expected 2 row errors, got %+v", summary.Errors)
	}
	if summary.Errors[1].NCTID != "NCT003" {
		t.Fatalf("expected error for NCT003, got %+v", summary.Errors[1])
	}

	if len(entries.upserted) != 2 {
		t.Fatalf("expected 2 upserted entries, got %d", len(entries.upserted))
	}
	first := entries.upserted[0]
	if first.Title != "Brief" || first.Description == nil || *first.Description != "Summary" {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if entries.upserted[1].Title != "Official" {
		t.Fatalf("expected official title fallback, got %q", entries.upserted[1].Title)
	}
	if len(first.History) != 1 || first.History[0].Type != domain.HistoryTypeNewVersion || first.History[0].APIQuery != "asthma" {
		t.Fatalf("unexpected history: %+v", first.History)
	}
	if first.History[0].Date != "2025-01-02T03:04:05Z" {
		t.Fatalf("unexpected history date %q", first.History[0].Date)
	}
	if _, ok := first.RawJSON["identificationModule"]; !ok {
		t.Fatalf("raw json should hold the protocol section: %+v", first.RawJSON)
	}
}

func TestImportStudies_NewVersionKeepsNotes(t *testing.T) {
	notes := "reviewed"
	created := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	entries := &stubEntryStore{stored: map[string]domain.Entry{
		"NCT001": {
			ID:        9,
			NCTID:     "NCT001",
			Title:     "Old",
			Notes:     &notes,
			CreatedAt: created,
			RawJSON:   map[string]any{"old": true},
			History:   []domain.EntryHistory{{Date: "2023-05-01T00:00:00Z", Type: domain.HistoryTypeLegacy}},
		},
	}}
	svc := newTestService(entries, &stubValueStore{})

	payload := `[{"identificationModule":{"nctId":"NCT001","briefTitle":"New"}}]`
	summary, err := svc.ImportStudies(context.Background(), StudyRequest{Data: strings.NewReader(payload)})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if summary.Updated != 1 || summary.Created != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	got := entries.upserted[0]
	if got.ID != 9 || got.Title != "New" || got.Notes == nil || *got.Notes != "reviewed" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected updated entry: %+v", got)
	}
	if len(got.History) != 2 {
		t.Fatalf("expected history to grow to 2, got %d", len(got.History))
	}
	var previous map[string]any
	if err := json.Unmarshal(got.History[1].Data, &previous); err != nil || previous["old"] != true {
		t.Fatalf("expected previous payload in history, got %s (%v)", got.History[1].Data, err)
	}
}

func TestImportStudies_DuplicateInPayloadLastWins(t *testing.T) {
	entries := &stubEntryStore{}
	svc := newTestService(entries, &stubValueStore{})

	payload := `[{"identificationModule":{"nctId":"NCT1","briefTitle":"A"}},{"identificationModule":{"nctId":"NCT1","briefTitle":"B"}}]`
	if _, err := svc.ImportStudies(context.Background(), StudyRequest{Data: strings.NewReader(payload)}); err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if len(entries.upserted) != 1 || entries.upserted[0].Title != "B" {
		t.Fatalf("expected a single entry titled B, got %+v", entries.upserted)
	}
}

func TestImportStudies_Errors(t *testing.T) {
	svc := newTestService(&stubEntryStore{}, &stubValueStore{})

	if _, err := svc.ImportStudies(context.Background(), StudyRequest{Data: strings.NewReader("  ")}); !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}
	if _, err := svc.ImportStudies(context.Background(), StudyRequest{Data: strings.NewReader(`{"foo":1}`)}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	boom := errors.New("database is locked")
	failing := newTestService(&stubEntryStore{err: boom}, &stubValueStore{})
	if _, err := failing.ImportStudies(context.Background(), StudyRequest{Data: strings.NewReader(studiesPayload)}); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func valueFixtures() (*stubEntryStore, *stubValueStore) {
	entries := &stubEntryStore{stored: map[string]domain.Entry{
		"NCT001": {ID: 1, NCTID: "NCT001"},
		"NCT002": {ID: 2, NCTID: "NCT002"},
	}}
	values := &stubValueStore{defs: []domain.CustomFieldDefinition{
		{ID: 10, IDName: "drug_name", DataType: domain.FieldTypeString, Label: "Drug"},
		{ID: 11, IDName: "dose", DataType: domain.FieldTypeNumber, Label: "Dose (mg)"},
	}}
	return entries, values
}

func TestImportValues_CSV(t *testing.T) {
	entries, values := valueFixtures()
	svc := newTestService(entries, values)

	data := "NCT ID,drug_name,Dose (mg),comment\nNCT001,dupilumab,300,x\nNCT002,,abc,\nNCT404,placebo,,\n"
	summary, err := svc.ImportValues(context.Background(), ValuesRequest{FileName: "values.csv", Data: strings.NewReader(data)})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	if summary.TotalRows != 3 || summary.ValuesWritten != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.UnknownColumns) != 1 || summary.UnknownColumns[0] != "comment" {
		t.Fatalf("unexpected unknown columns: %+v", summary.UnknownColumns)
	}
	if len(summary.MissingEntries) != 1 || summary.MissingEntries[0] != "NCT404" {
		t.Fatalf("unexpected missing entries: %+v", summary.MissingEntries)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].NCTID != "NCT002" {
		t.Fatalf("expected a coercion error for NCT002, got %+v", summary.Errors)
	}
	want := []setCall{{1, 10, "dupilumab"}, {1, 11, "300"}}
	if len(values.calls) != len(want) {
		t.Fatalf("unexpected SetValue calls: %+v", values.calls)
	}
	for i := range want {
		if values.calls[i] != want[i] {
			t.Fatalf("call %d: got %+v want %+v", i, values.calls[i], want[i])
		}
	}
}

func xlsxPayload(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	return buf.Bytes()
}

func TestImportValues_XLSX(t *testing.T) {
	entries, values := valueFixtures()
	svc := newTestService(entries, values)

	payload := xlsxPayload(t,
		[]any{"exported sheet"},
		[]any{"nctId", "drug_name"},
		[]any{"NCT002", "cetirizine"},
	)
	idx := 1
	summary, err := svc.ImportValues(context.Background(), ValuesRequest{FileName: "values.xlsx", HeaderRowIndex: &idx, Data: bytes.NewReader(payload)})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if summary.ValuesWritten != 1 || len(values.calls) != 1 || values.calls[0] != (setCall{2, 10, "cetirizine"}) {
		t.Fatalf("unexpected result: %+v %+v", summary, values.calls)
	}
}

func TestImportValues_RequiresNCTColumn(t *testing.T) {
	entries, values := valueFixtures()
	svc := newTestService(entries, values)

	_, err := svc.ImportValues(context.Background(), ValuesRequest{FileName: "v.csv", Data: strings.NewReader("drug_name\nx\n")})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	_, err = svc.ImportValues(context.Background(), ValuesRequest{FileName: "v.txt", Data: strings.NewReader("x")})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for .txt, got %v", err)
	}
}

func TestHTTPHandler_Studies(t *testing.T) {
	entries := &stubEntryStore{}
	handler := NewHTTPHandler(newTestService(entries, &stubValueStore{}))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "studies.json")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(studiesPayload))
	_ = mw.WriteField("kind", KindStudies)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary StudySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Created != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHTTPHandler_RejectsGet(t *testing.T) {
	handler := NewHTTPHandler(newTestService(&stubEntryStore{}, &stubValueStore{}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHTTPHandler_OversizedUpload(t *testing.T) {
	handler := NewHTTPHandler(newTestService(&stubEntryStore{}, &stubValueStore{}))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "studies.json")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(strings.Repeat(" ", 4096) + studiesPayload))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 1024)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}
