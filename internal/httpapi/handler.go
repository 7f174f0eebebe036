// Package httpapi mounts the GraphQL endpoint, the upload and the export
// download behind one router for the web UI.
package httpapi

import (
	"net/http"

	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/internal/valueloader"
)

// DefaultMaxBodyBytes caps request bodies unless WithMaxBodyBytes says otherwise.
const DefaultMaxBodyBytes int64 = 8 << 20

// Handler serves the API.
type Handler struct {
	graphql   http.Handler
	importer  http.Handler
	downloads http.Handler
	values    valueloader.ValueSource

	allowedOrigins []string
	maxBodyBytes   int64
	logger         *logger.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithImporter mounts the upload handler under /api/import.
func WithImporter(h http.Handler) Option {
	return func(a *Handler) { a.importer = h }
}

// WithExporter mounts the export download handler under /api/export/files.
func WithExporter(h http.Handler) Option {
	return func(a *Handler) { a.downloads = h }
}

// WithValueSource shares one custom field value loader per request.
func WithValueSource(src valueloader.ValueSource) Option {
	return func(a *Handler) { a.values = src }
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(a *Handler) { a.allowedOrigins = origins }
}

// WithMaxBodyBytes sets the request body limit. Non-positive values keep
// the default.
func WithMaxBodyBytes(n int64) Option {
	return func(a *Handler) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// NewHandler creates the API handler around the GraphQL server.
func NewHandler(graphql http.Handler, log *logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{
		graphql:      graphql,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       log,
	}
	for _, opt := range opts {
		opt(h)
	}
	log.Info().Int64("max_body_bytes", h.maxBodyBytes).Msg("http handler created")
	return h
}
