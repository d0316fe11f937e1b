package httpapi

import (
	"errors"
	"net/http"
	"time"

	"mockstash.org/internal/audit"
	"mockstash.org/internal/auth"
	"mockstash.org/internal/docstore"
	"mockstash.org/internal/obs"
)

type tokenResponse struct {
	Token         string     `json:"token"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ResourceCount int        `json:"resource_count"`
}

// handleIssueToken returns the caller's durable token, creating it on the
// first call. Requires a verified identity and a resolvable caller address.
func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	ip := clientIP(r)
	if ip == "" {
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "caller address could not be determined")
		return
	}

	tok, err := a.docs.FindUserToken(r.Context(), userID)
	if errors.Is(err, docstore.ErrNotFound) {
		tok, err = a.docs.IssueToken(r.Context(), userID, ip)
		if errors.Is(err, docstore.ErrTokenExists) {
			// Raced with a concurrent issuance; the durable token now exists.
			tok, err = a.docs.FindUserToken(r.Context(), userID)
		}
		if err == nil {
			obs.TokenIssued()
			_ = audit.LogEvent(r.Context(), "token.issue", map[string]any{
				"token_id": tok.ID,
			})
		}
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:         tok.Value,
		CreatedAt:     tok.CreatedAt,
		ExpiresAt:     tok.ExpiresAt,
		ResourceCount: tok.ResourceCount,
	})
}

func (a *API) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	tok, ok := a.resolveToken(w, r, true)
	if !ok {
		return
	}
	doc, err := a.docs.CreateDocument(r.Context(), docstore.TokenScope(tok.ID), r.PathValue("route"), payload)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	obs.DocumentCreated(string(docstore.ScopeToken))
	_ = audit.LogEvent(r.Context(), "document.create", map[string]any{
		"document_id": doc.ID,
		"route":       doc.Route,
		"scope":       string(docstore.ScopeToken),
		"token_id":    tok.ID,
	})
	writeJSON(w, http.StatusOK, createResponse{ID: doc.ID})
}

func (a *API) handleTokenList(w http.ResponseWriter, r *http.Request) {
	tok, ok := a.resolveToken(w, r, false)
	if !ok {
		return
	}
	page, pageSize, ok := readPaging(w, r)
	if !ok {
		return
	}
	items, total, err := a.docs.ListDocuments(r.Context(), docstore.TokenScope(tok.ID), r.PathValue("route"), page, pageSize)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: items, TotalCount: total})
}

func (a *API) handleTokenGet(w http.ResponseWriter, r *http.Request) {
	tok, ok := a.resolveToken(w, r, false)
	if !ok {
		return
	}
	payload, err := a.docs.GetDocument(r.Context(), docstore.TokenScope(tok.ID), r.PathValue("route"), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleTokenUpdate(w http.ResponseWriter, r *http.Request) {
	fields, ok := readPayload(w, r)
	if !ok {
		return
	}
	tok, ok := a.resolveToken(w, r, false)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.docs.UpdateDocument(r.Context(), docstore.TokenScope(tok.ID), r.PathValue("route"), id, fields); err != nil {
		writeStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.update", map[string]any{
		"document_id": id,
		"scope":       string(docstore.ScopeToken),
		"token_id":    tok.ID,
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (a *API) handleTokenDelete(w http.ResponseWriter, r *http.Request) {
	tok, ok := a.resolveToken(w, r, false)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.docs.DeleteDocument(r.Context(), docstore.TokenScope(tok.ID), r.PathValue("route"), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.delete", map[string]any{
		"document_id": id,
		"scope":       string(docstore.ScopeToken),
		"token_id":    tok.ID,
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
