package httpapi

import (
	"fmt"
	"net/http"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/middleware"
)

// Init builds the router.
func (h *Handler) Init() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logging(h.logger))

	router.Get("/", playground.Handler("GraphQL playground", "/query"))

	router.Group(func(r chi.Router) {
		r.Use(h.bodyLimit)
		if h.values != nil {
			r.Use(middleware.ValueLoader(h.values))
		}
		r.Handle("/query", h.graphql)
	})

	router.Route("/api", func(r chi.Router) {
		if h.importer != nil {
			r.With(h.bodyLimit).Handle("/import", h.importer)
		}
		if h.downloads != nil {
			r.Get("/export/files/{id}", h.downloads.ServeHTTP)
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, "httpapi.NotFound", fmt.Errorf("%w: %s %s", domain.ErrNotFound, r.Method, r.URL.Path))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, "httpapi.MethodNotAllowed", fmt.Errorf("%w: %s %s", ErrMethodNotAllowed, r.Method, r.URL.Path))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})
	return corsHandler.Handler(router)
}
