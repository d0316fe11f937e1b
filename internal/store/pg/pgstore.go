package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mockstash.org/internal/docstore"
	"mockstash.org/internal/ids"
)

// Store implements docstore.Service on PostgreSQL. Payloads live in a jsonb
// column; listing orders by creation time so pagination is repeatable.
type Store struct {
	db           *sql.DB
	trialToken   string
	provisionTTL time.Duration
}

var _ docstore.Service = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTrialToken marks the token value subject to the trial creation cap.
func WithTrialToken(value string) Option {
	return func(s *Store) { s.trialToken = value }
}

// WithProvisionTTL overrides the lifetime of first-use provisioned tokens.
// A non-positive ttl provisions tokens already expired, which tests rely on.
func WithProvisionTTL(ttl time.Duration) Option {
	return func(s *Store) { s.provisionTTL = ttl }
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		provisionTTL: docstore.DefaultProvisionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to PostgreSQL with pool defaults tuned for short request
// cycles.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, opts...), nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateDocument(ctx context.Context, scope docstore.Scope, route string, payload map[string]any) (docstore.Document, error) {
	route = docstore.NormalizeRoute(route)
	id := uuid.NewString()

	stored := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		stored[k] = v
	}
	stored["_id"] = id
	body, err := json.Marshal(stored)
	if err != nil {
		return docstore.Document{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docstore.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if scope.Kind == docstore.ScopeToken {
		var (
			value string
			count int
		)
		err := tx.QueryRowContext(ctx,
			`select value, resource_count from access_tokens where id=$1 for update`,
			scope.Value).Scan(&value, &count)
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrInvalidToken
		}
		if err != nil {
			return docstore.Document{}, err
		}
		if s.trialToken != "" && value == s.trialToken && count >= docstore.TrialResourceCap {
			return docstore.Document{}, docstore.ErrQuotaExceeded
		}
		if _, err := tx.ExecContext(ctx,
			`update access_tokens set resource_count = resource_count + 1 where id=$1`,
			scope.Value); err != nil {
			return docstore.Document{}, err
		}
	}

	var created time.Time
	if err := tx.QueryRowContext(ctx,
		`insert into documents(id, scope_kind, scope_value, route, payload)
		 values($1,$2,$3,$4,$5) returning created_at`,
		id, string(scope.Kind), scope.Value, route, body).Scan(&created); err != nil {
		return docstore.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return docstore.Document{}, err
	}

	return docstore.Document{
		ID:        id,
		Scope:     scope,
		Route:     route,
		Payload:   stored,
		CreatedAt: created,
	}, nil
}

func (s *Store) ListDocuments(ctx context.Context, scope docstore.Scope, route string, page, pageSize int) ([]map[string]any, int, error) {
	route = docstore.NormalizeRoute(route)
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset < 0 {
		// Multiplication overflow; any such page is past the end.
		offset = math.MaxInt32
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from documents where route=$1 and scope_kind=$2 and scope_value=$3`,
		route, string(scope.Kind), scope.Value).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select payload from documents
		 where route=$1 and scope_kind=$2 and scope_value=$3
		 order by created_at asc, id asc
		 offset $4 limit $5`,
		route, string(scope.Kind), scope.Value, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]map[string]any, 0, min(pageSize, 64))
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, err
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, 0, err
		}
		items = append(items, payload)
	}
	return items, total, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, scope docstore.Scope, route, id string) (map[string]any, error) {
	route = docstore.NormalizeRoute(route)

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`select payload from documents
		 where id=$1 and route=$2 and scope_kind=$3 and scope_value=$4`,
		id, route, string(scope.Kind), scope.Value).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Store) UpdateDocument(ctx context.Context, scope docstore.Scope, route, id string, fields map[string]any) error {
	route = docstore.NormalizeRoute(route)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`select payload from documents
		 where id=$1 and route=$2 and scope_kind=$3 and scope_value=$4 for update`,
		id, route, string(scope.Kind), scope.Value).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return err
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	for k, v := range fields {
		payload[k] = v
	}
	// Identity is immutable even if the merge touched it.
	payload["_id"] = id

	merged, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`update documents set payload=$2 where id=$1`, id, merged); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteDocument(ctx context.Context, scope docstore.Scope, route, id string) error {
	route = docstore.NormalizeRoute(route)

	res, err := s.db.ExecContext(ctx,
		`delete from documents
		 where id=$1 and route=$2 and scope_kind=$3 and scope_value=$4`,
		id, route, string(scope.Kind), scope.Value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) IssueToken(ctx context.Context, ownerUserID, issuerIP string) (docstore.AccessToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docstore.AccessToken{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`select exists(select 1 from access_tokens where owner_user_id=$1 and expires_at is null)`,
		ownerUserID).Scan(&exists); err != nil {
		return docstore.AccessToken{}, err
	}
	if exists {
		return docstore.AccessToken{}, docstore.ErrTokenExists
	}

	tok := docstore.AccessToken{
		ID:          ids.New(),
		Value:       uuid.NewString(),
		OwnerUserID: ownerUserID,
		IssuerIP:    issuerIP,
	}
	if err := tx.QueryRowContext(ctx,
		`insert into access_tokens(id, value, owner_user_id, issuer_ip)
		 values($1,$2,$3,$4) returning created_at`,
		tok.ID, tok.Value, tok.OwnerUserID, tok.IssuerIP).Scan(&tok.CreatedAt); err != nil {
		return docstore.AccessToken{}, err
	}
	if err := tx.Commit(); err != nil {
		return docstore.AccessToken{}, err
	}
	return tok, nil
}

func (s *Store) FindToken(ctx context.Context, value string) (docstore.AccessToken, error) {
	return s.scanToken(s.db.QueryRowContext(ctx,
		`select id, value, coalesce(owner_user_id,''), issuer_ip, created_at, expires_at, resource_count
		 from access_tokens where value=$1`, value))
}

func (s *Store) FindUserToken(ctx context.Context, ownerUserID string) (docstore.AccessToken, error) {
	return s.scanToken(s.db.QueryRowContext(ctx,
		`select id, value, coalesce(owner_user_id,''), issuer_ip, created_at, expires_at, resource_count
		 from access_tokens where owner_user_id=$1 and expires_at is null`, ownerUserID))
}

func (s *Store) ProvisionToken(ctx context.Context, value, issuerIP string) (docstore.AccessToken, error) {
	expires := time.Now().UTC().Add(s.provisionTTL)
	// The no-op conflict update makes the insert return the existing row when
	// two first writes race on the same value.
	return s.scanToken(s.db.QueryRowContext(ctx,
		`insert into access_tokens(id, value, issuer_ip, expires_at)
		 values($1,$2,$3,$4)
		 on conflict (value) do update set value = excluded.value
		 returning id, value, coalesce(owner_user_id,''), issuer_ip, created_at, expires_at, resource_count`,
		ids.New(), value, issuerIP, expires))
}

func (s *Store) scanToken(row *sql.Row) (docstore.AccessToken, error) {
	var (
		tok     docstore.AccessToken
		expires sql.NullTime
	)
	err := row.Scan(&tok.ID, &tok.Value, &tok.OwnerUserID, &tok.IssuerIP,
		&tok.CreatedAt, &expires, &tok.ResourceCount)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.AccessToken{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.AccessToken{}, err
	}
	if expires.Valid {
		t := expires.Time
		tok.ExpiresAt = &t
	}
	return tok, nil
}
