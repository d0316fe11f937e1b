package docstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"mockstash.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety. Used for
// tests and for running the API without a database.
type InMemory struct {
	mu           sync.RWMutex
	docs         []*Document
	tokensByID   map[string]*AccessToken
	tokensByVal  map[string]string
	trialToken   string
	provisionTTL time.Duration
	now          func() time.Time
}

var _ Service = (*InMemory)(nil)

// Option configures InMemory.
type Option func(*InMemory)

// WithTrialToken marks the token value subject to the trial creation cap.
func WithTrialToken(value string) Option {
	return func(s *InMemory) { s.trialToken = value }
}

// WithProvisionTTL overrides the lifetime of first-use provisioned tokens.
func WithProvisionTTL(ttl time.Duration) Option {
	return func(s *InMemory) { s.provisionTTL = ttl }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewInMemory creates an empty store.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		tokensByID:   make(map[string]*AccessToken),
		tokensByVal:  make(map[string]string),
		provisionTTL: DefaultProvisionTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) CreateDocument(ctx context.Context, scope Scope, route string, payload map[string]any) (Document, error) {
	route = NormalizeRoute(route)

	s.mu.Lock()
	defer s.mu.Unlock()

	var tok *AccessToken
	if scope.Kind == ScopeToken {
		tok = s.tokensByID[scope.Value]
		if tok == nil {
			return Document{}, ErrInvalidToken
		}
		if s.trialToken != "" && tok.Value == s.trialToken && tok.ResourceCount >= TrialResourceCap {
			return Document{}, ErrQuotaExceeded
		}
	}

	id := uuid.NewString()
	stored := maps.Clone(payload)
	if stored == nil {
		stored = make(map[string]any, 1)
	}
	stored["_id"] = id

	doc := &Document{
		ID:        id,
		Scope:     scope,
		Route:     route,
		Payload:   stored,
		CreatedAt: s.now().UTC(),
	}
	s.docs = append(s.docs, doc)
	if tok != nil {
		tok.ResourceCount++
	}

	out := *doc
	out.Payload = maps.Clone(stored)
	return out, nil
}

func (s *InMemory) ListDocuments(ctx context.Context, scope Scope, route string, page, pageSize int) ([]map[string]any, int, error) {
	route = NormalizeRoute(route)
	if page < 1 {
		page = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Document
	for _, d := range s.docs {
		if d.Route == route && d.Scope == scope {
			matched = append(matched, d)
		}
	}
	total := len(matched)

	// A negative offset or end means the multiplication overflowed; any such
	// page is past the end of the match set.
	offset := (page - 1) * pageSize
	if offset < 0 || offset > total {
		offset = total
	}
	end := offset + pageSize
	if end < offset || end > total {
		end = total
	}

	items := make([]map[string]any, 0, end-offset)
	for _, d := range matched[offset:end] {
		items = append(items, maps.Clone(d.Payload))
	}
	return items, total, nil
}

func (s *InMemory) GetDocument(ctx context.Context, scope Scope, route, id string) (map[string]any, error) {
	route = NormalizeRoute(route)

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.find(scope, route, id)
	if d == nil {
		return nil, ErrNotFound
	}
	return maps.Clone(d.Payload), nil
}

func (s *InMemory) UpdateDocument(ctx context.Context, scope Scope, route, id string, fields map[string]any) error {
	route = NormalizeRoute(route)

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.find(scope, route, id)
	if d == nil {
		return ErrNotFound
	}
	for k, v := range fields {
		d.Payload[k] = v
	}
	// Identity is immutable even if the merge touched it.
	d.Payload["_id"] = d.ID
	return nil
}

func (s *InMemory) DeleteDocument(ctx context.Context, scope Scope, route, id string) error {
	route = NormalizeRoute(route)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.docs {
		if d.ID == id && d.Route == route && d.Scope == scope {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemory) IssueToken(ctx context.Context, ownerUserID, issuerIP string) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tok := range s.tokensByID {
		if tok.OwnerUserID == ownerUserID && tok.ExpiresAt == nil {
			return AccessToken{}, ErrTokenExists
		}
	}
	tok := &AccessToken{
		ID:          ids.New(),
		Value:       uuid.NewString(),
		OwnerUserID: ownerUserID,
		IssuerIP:    issuerIP,
		CreatedAt:   s.now().UTC(),
	}
	s.tokensByID[tok.ID] = tok
	s.tokensByVal[tok.Value] = tok.ID
	return *tok, nil
}

func (s *InMemory) FindToken(ctx context.Context, value string) (AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokensByVal[value]
	if !ok {
		return AccessToken{}, ErrNotFound
	}
	return *s.tokensByID[id], nil
}

func (s *InMemory) FindUserToken(ctx context.Context, ownerUserID string) (AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tok := range s.tokensByID {
		if tok.OwnerUserID == ownerUserID && tok.ExpiresAt == nil {
			return *tok, nil
		}
	}
	return AccessToken{}, ErrNotFound
}

func (s *InMemory) ProvisionToken(ctx context.Context, value, issuerIP string) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.tokensByVal[value]; ok {
		return *s.tokensByID[id], nil
	}
	now := s.now().UTC()
	expires := now.Add(s.provisionTTL)
	tok := &AccessToken{
		ID:        ids.New(),
		Value:     value,
		IssuerIP:  issuerIP,
		CreatedAt: now,
		ExpiresAt: &expires,
	}
	s.tokensByID[tok.ID] = tok
	s.tokensByVal[tok.Value] = tok.ID
	return *tok, nil
}

// find assumes the caller holds at least the read lock.
func (s *InMemory) find(scope Scope, route, id string) *Document {
	for _, d := range s.docs {
		if d.ID == id && d.Route == route && d.Scope == scope {
			return d
		}
	}
	return nil
}
