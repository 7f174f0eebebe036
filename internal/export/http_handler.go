package export

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

// Handler serves downloads of written export files. Exports are created
// through the GraphQL exportRows mutation.
type Handler struct {
	service *Service
}

// NewHTTPHandler mounts GET .../files/{id}?token= (download).
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		http.Error(w, "missing export identifier", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid export identifier: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.ValidateDownloadToken(id, r.URL.Query().Get("token")); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	file, err := h.service.OpenFile(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			logger.FromRequest(r).Err(err).Str("func", "export.Handler.handleDownload").Msg("open export failed")
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	filename := filepath.Base(file.Name())
	w.Header().Set("Content-Type", MimeType(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	http.ServeContent(w, r, filename, info.ModTime(), file)
}
