package middleware

import (
	"net/http"

	"github.com/rpattn/trialnotes/internal/valueloader"
)

// ValueLoader attaches a request-scoped custom field value loader, so every
// entry listing within one request shares batches and cached results.
func ValueLoader(source valueloader.ValueSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := valueloader.New(source, valueloader.DefaultBatchSize)
			ctx := valueloader.WithLoader(r.Context(), loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
