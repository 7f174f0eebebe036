package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// StudyRequest describes a study import.
type StudyRequest struct {
	// Query is the search that produced the payload, kept in the history.
	Query       string
	Description string
	Data        io.Reader
}

// StudySummary reports the outcome of a study import.
type StudySummary struct {
	TotalStudies int        `json:"totalStudies"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Errors       []RowError `json:"errors"`
}

// ImportStudies stores every study of a ClinicalTrials.gov v2 payload. The
// payload is either {"studies": [...]} or a bare array; each study is either
// a full record with a protocolSection or the protocol section itself.
// Studies already stored by nct id get a new version: the imported columns
// are replaced, notes and values are kept, and the history records the
// superseded payload. Invalid studies are reported and skipped.
func (s *Service) ImportStudies(ctx context.Context, req StudyRequest) (StudySummary, error) {
	summary := StudySummary{Errors: []RowError{}}
	if req.Data == nil {
		return summary, fmt.Errorf("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return summary, ErrEmptyUpload
	}

	sections, err := parseStudies(payload)
	if err != nil {
		return summary, err
	}
	summary.TotalStudies = len(sections)

	parsed := make([]domain.Entry, 0, len(sections))
	position := make(map[string]int, len(sections))
	for i, section := range sections {
		entry, err := studyEntry(section)
		if err != nil {
			summary.Errors = append(summary.Errors, RowError{Row: i + 1, NCTID: entry.NCTID, Message: err.Error()})
			continue
		}
		if at, dup := position[entry.NCTID]; dup {
			parsed[at] = entry
			continue
		}
		position[entry.NCTID] = len(parsed)
		parsed = append(parsed, entry)
	}
	if len(parsed) == 0 {
		return summary, nil
	}

	ids := make([]string, len(parsed))
	for i, e := range parsed {
		ids[i] = e.NCTID
	}
	existing, err := s.entries.FindByNCTIDs(ctx, ids)
	if err != nil {
		return summary, fmt.Errorf("failed to look up existing entries: %w", err)
	}

	now := s.now()
	for i, entry := range parsed {
		record := domain.EntryHistory{
			Date:        now.Format(time.RFC3339),
			Description: req.Description,
			Type:        domain.HistoryTypeNewVersion,
			APIQuery:    req.Query,
		}

		prev, found := existing[entry.NCTID]
		if !found {
			summary.Created++
			entry.CreatedAt = now
			parsed[i] = entry.WithHistory(record)
			continue
		}

		if prev.RawJSON != nil {
			data, err := json.Marshal(prev.RawJSON)
			if err != nil {
				return summary, fmt.Errorf("failed to encode previous version of %s: %w", entry.NCTID, err)
			}
			record.Data = data
		}
		entry.ID = prev.ID
		entry.CreatedAt = prev.CreatedAt
		entry.Notes = prev.Notes
		entry.History = prev.History
		parsed[i] = entry.WithHistory(record)
		summary.Updated++
	}

	if err := s.entries.UpsertEntries(ctx, parsed); err != nil {
		return summary, fmt.Errorf("failed to store studies: %w", err)
	}

	s.log.Info().
		Str("func", "Service.ImportStudies").
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("errors", len(summary.Errors)).
		Msg("studies imported")
	return summary, nil
}

func parseStudies(payload []byte) ([]map[string]any, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	var items []any
	switch t := doc.(type) {
	case []any:
		items = t
	case map[string]any:
		if studies, ok := t["studies"].([]any); ok {
			items = studies
		} else if _, ok := t["protocolSection"]; ok {
			items = []any{t}
		} else {
			return nil, fmt.Errorf("%w: expected a studies array", ErrUnsupportedFormat)
		}
	default:
		return nil, fmt.Errorf("%w: expected a studies array", ErrUnsupportedFormat)
	}

	sections := make([]map[string]any, len(items))
	for i, item := range items {
		study, _ := item.(map[string]any)
		if section, ok := study["protocolSection"].(map[string]any); ok {
			sections[i] = section
			continue
		}
		sections[i] = study
	}
	return sections, nil
}

func lookupString(section map[string]any, path string) string {
	v, ok := jsonlogic.Resolve(section, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func studyEntry(section map[string]any) (domain.Entry, error) {
	if section == nil {
		return domain.Entry{}, fmt.Errorf("study is not an object")
	}

	nctID := lookupString(section, "identificationModule.nctId")
	if nctID == "" {
		return domain.Entry{}, fmt.Errorf("identificationModule.nctId is required")
	}

	title := lookupString(section, "identificationModule.briefTitle")
	if title == "" {
		title = lookupString(section, "identificationModule.officialTitle")
	}
	if title == "" {
		return domain.Entry{NCTID: nctID}, fmt.Errorf("study %s has no title", nctID)
	}

	var description *string
	if summary := lookupString(section, "descriptionModule.briefSummary"); summary != "" {
		description = &summary
	}

	return domain.NewEntry(nctID, title, description, section), nil
}
