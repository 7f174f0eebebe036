package httpapi

import (
	"fmt"
	"net/http"
)

// bodyLimit rejects declared oversized bodies up front and caps the rest
// with http.MaxBytesReader, so handlers reading past the limit get a
// *http.MaxBytesError.
func (h *Handler) bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > h.maxBodyBytes {
			writeError(w, r, "httpapi.bodyLimit",
				fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, r.ContentLength, h.maxBodyBytes))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
