package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"mockstash.org/internal/audit"
	"mockstash.org/internal/docstore"
	"mockstash.org/internal/obs"
)

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Data       []map[string]any `json:"data"`
	TotalCount int              `json:"total_count"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	scope := resolveScope(r)
	doc, err := a.docs.CreateDocument(r.Context(), scope, r.PathValue("route"), payload)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	obs.DocumentCreated(string(scope.Kind))
	_ = audit.LogEvent(r.Context(), "document.create", map[string]any{
		"document_id": doc.ID,
		"route":       doc.Route,
		"scope":       string(scope.Kind),
	})
	writeJSON(w, http.StatusOK, createResponse{ID: doc.ID})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := readPaging(w, r)
	if !ok {
		return
	}
	items, total, err := a.docs.ListDocuments(r.Context(), resolveScope(r), r.PathValue("route"), page, pageSize)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: items, TotalCount: total})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	payload, err := a.docs.GetDocument(r.Context(), resolveScope(r), r.PathValue("route"), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	fields, ok := readPayload(w, r)
	if !ok {
		return
	}
	scope := resolveScope(r)
	id := r.PathValue("id")
	if err := a.docs.UpdateDocument(r.Context(), scope, r.PathValue("route"), id, fields); err != nil {
		writeStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.update", map[string]any{
		"document_id": id,
		"scope":       string(scope.Kind),
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope := resolveScope(r)
	id := r.PathValue("id")
	if err := a.docs.DeleteDocument(r.Context(), scope, r.PathValue("route"), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.delete", map[string]any{
		"document_id": id,
		"scope":       string(scope.Kind),
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// readPayload reads the raw body and applies the size and shape rules before
// anything touches the store. On failure the problem response has already
// been written.
func readPayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeStoreError(w, r, docstore.ErrPayloadTooLarge)
		} else {
			writeProblem(w, r, http.StatusBadRequest, "Bad Request", "could not read request body")
		}
		return nil, false
	}
	payload, err := docstore.DecodePayload(raw)
	if err != nil {
		writeStoreError(w, r, err)
		return nil, false
	}
	return payload, true
}

// maxPagingValue bounds page and pageSize so their product cannot overflow.
const maxPagingValue = 1 << 30

func readPaging(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 || page > maxPagingValue {
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "page must be a positive integer")
		return 0, 0, false
	}
	pageSize, err = strconv.Atoi(r.PathValue("pageSize"))
	if err != nil || pageSize < 1 || pageSize > maxPagingValue {
		writeProblem(w, r, http.StatusBadRequest, "Bad Request", "pageSize must be a positive integer")
		return 0, 0, false
	}
	return page, pageSize, true
}
