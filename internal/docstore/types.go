package docstore

import (
	"strings"
	"time"
)

// ScopeKind selects the isolation boundary a document belongs to.
type ScopeKind string

const (
	// ScopeUser isolates documents per authenticated account.
	ScopeUser ScopeKind = "user"
	// ScopeIP isolates documents per caller address. Deliberately weak:
	// shared NAT or proxy addresses collide. Best-effort only.
	ScopeIP ScopeKind = "ip"
	// ScopeToken isolates documents per access token.
	ScopeToken ScopeKind = "token"
)

// Scope is the tenancy key every document operation is filtered by.
// It is fixed at document creation time and never changes.
type Scope struct {
	Kind  ScopeKind
	Value string
}

func UserScope(userID string) Scope   { return Scope{Kind: ScopeUser, Value: userID} }
func IPScope(ip string) Scope         { return Scope{Kind: ScopeIP, Value: ip} }
func TokenScope(tokenID string) Scope { return Scope{Kind: ScopeToken, Value: tokenID} }

// Document is a stored schema-less JSON object. ID and Route are immutable;
// Payload merges field-by-field on update and always mirrors ID under "_id".
type Document struct {
	ID        string
	Scope     Scope
	Route     string
	Payload   map[string]any
	CreatedAt time.Time
}

// AccessToken grants a durable private scope without an account.
// A nil ExpiresAt means the token never expires.
type AccessToken struct {
	ID            string
	Value         string
	OwnerUserID   string
	IssuerIP      string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	ResourceCount int
}

// ExpiredAt reports whether the token is expired at the given instant.
// A token is expired iff ExpiresAt is set and strictly before now.
func (t AccessToken) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// TrialResourceCap is the number of documents a trial token may create.
const TrialResourceCap = 5

// DefaultProvisionTTL is the lifetime of tokens registered on first use.
const DefaultProvisionTTL = 24 * time.Hour

// NormalizeRoute canonicalizes a client-chosen collection name so that
// "/Users" and "/users " address the same logical collection.
func NormalizeRoute(route string) string {
	return strings.ToLower(strings.TrimSpace(route))
}
