package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/trialnotes/internal/logger"
)

// Upload kinds accepted by the handler.
const (
	KindStudies = "studies"
	KindValues  = "values"
)

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint taking a multipart
// "file" plus a "kind" of studies or values.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), status)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	var summary any
	switch kind := strings.TrimSpace(r.FormValue("kind")); kind {
	case KindStudies, "":
		summary, err = h.service.ImportStudies(r.Context(), StudyRequest{
			Query:       strings.TrimSpace(r.FormValue("query")),
			Description: strings.TrimSpace(r.FormValue("description")),
			Data:        bytes.NewReader(data),
		})
	case KindValues:
		req := ValuesRequest{FileName: header.Filename, Data: bytes.NewReader(data)}
		if raw := strings.TrimSpace(r.FormValue("headerRowIndex")); raw != "" {
			idx, convErr := strconv.Atoi(raw)
			if convErr != nil {
				http.Error(w, fmt.Sprintf("invalid headerRowIndex: %v", convErr), http.StatusBadRequest)
				return
			}
			req.HeaderRowIndex = &idx
		}
		summary, err = h.service.ImportValues(r.Context(), req)
	default:
		http.Error(w, fmt.Sprintf("unknown kind %q", kind), http.StatusBadRequest)
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrEmptyUpload) {
			status = http.StatusBadRequest
		}
		log.Err(err).Str("func", "ingestion.Handler.ServeHTTP").Str("file", header.Filename).Msg("import failed")
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
