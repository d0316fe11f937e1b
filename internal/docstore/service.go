package docstore

import "context"

// Service defines scope-filtered document operations and the access token
// lifecycle. Implemented by InMemory here and by the PostgreSQL store in
// internal/store/pg.
type Service interface {
	// CreateDocument persists a new document under the given scope and
	// normalized route, allocating its id and injecting it into the payload
	// as "_id". Under a token scope it also records one use against the
	// token; a trial token that has reached its cap fails with
	// ErrQuotaExceeded and nothing is persisted.
	CreateDocument(ctx context.Context, scope Scope, route string, payload map[string]any) (Document, error)

	// ListDocuments returns one page of payloads for route+scope ordered by
	// creation time, plus the total number of matching documents.
	ListDocuments(ctx context.Context, scope Scope, route string, page, pageSize int) ([]map[string]any, int, error)

	// GetDocument returns the payload matching route, scope, and document id,
	// or ErrNotFound.
	GetDocument(ctx context.Context, scope Scope, route, id string) (map[string]any, error)

	// UpdateDocument merges fields into an existing payload: every supplied
	// key overwrites or inserts, absent keys are preserved, and "_id" is
	// reasserted afterwards so identity cannot be rewritten.
	UpdateDocument(ctx context.Context, scope Scope, route, id string, fields map[string]any) error

	// DeleteDocument removes the document, or returns ErrNotFound.
	DeleteDocument(ctx context.Context, scope Scope, route, id string) error

	// IssueToken creates a non-expiring token owned by a user. Fails with
	// ErrTokenExists when the user already holds one.
	IssueToken(ctx context.Context, ownerUserID, issuerIP string) (AccessToken, error)

	// FindToken looks a token up by its presented value, or ErrNotFound.
	FindToken(ctx context.Context, value string) (AccessToken, error)

	// FindUserToken returns the non-expiring token owned by the user,
	// or ErrNotFound.
	FindUserToken(ctx context.Context, ownerUserID string) (AccessToken, error)

	// ProvisionToken registers a token bound to the presented value on first
	// use, with the default provisioning TTL. Returns the existing token if
	// the value is already registered.
	ProvisionToken(ctx context.Context, value, issuerIP string) (AccessToken, error)
}
