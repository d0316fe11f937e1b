package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mockstash.org/internal/audit"
	"mockstash.org/internal/docstore"
	"mockstash.org/internal/obs"
)

// problem is the uniform error body for every failed request.
type problem struct {
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeJSON(w, status, problem{
		Title:     title,
		Status:    status,
		Detail:    detail,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// writeStoreError classifies docstore errors into the problem taxonomy.
// Not-found stays a plain 404; anything unclassified is logged and surfaced
// as a 500 with the detail echoed.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, docstore.ErrPayloadTooLarge):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "input size is too large")
	case errors.Is(err, docstore.ErrMalformedPayload):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "input body is not valid")
	case errors.Is(err, docstore.ErrQuotaExceeded):
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "trial token quota exceeded")
	case errors.Is(err, docstore.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, docstore.ErrInvalidToken):
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid token")
	case errors.Is(err, docstore.ErrTokenExpired):
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "token expired")
	default:
		obs.Logger().Error("store failure",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeProblem(w, r, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}
