package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const migrationsTable = "schema_migrations"

type migration struct {
	Name string
	SQL  string
}

// Embedded schema, applied in order. Statements are idempotent per
// migration but each name is still recorded so the list only grows.
var migrations = []migration{
	{
		Name: "0001_users",
		SQL: `
			create table if not exists users (
				id text primary key,
				email text not null unique,
				password_hash text not null,
				first_name text not null default '',
				last_name text not null default '',
				join_date timestamptz not null default now(),
				profile_image_url text not null default '',
				last_login timestamptz,
				enabled boolean not null default true
			);`,
	},
	{
		Name: "0002_access_tokens",
		SQL: `
			create table if not exists access_tokens (
				id text primary key,
				value text not null unique,
				owner_user_id text,
				issuer_ip text not null default '',
				created_at timestamptz not null default now(),
				expires_at timestamptz,
				resource_count integer not null default 0
			);
			create unique index if not exists access_tokens_owner_durable
				on access_tokens(owner_user_id) where expires_at is null and owner_user_id is not null;`,
	},
	{
		Name: "0003_documents",
		SQL: `
			create table if not exists documents (
				id text primary key,
				scope_kind text not null,
				scope_value text not null,
				route text not null,
				payload jsonb not null,
				created_at timestamptz not null default now()
			);
			create index if not exists documents_scope_route
				on documents(route, scope_kind, scope_value, created_at);`,
	},
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	if err := ensureTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedSet(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// Status returns applied migration names in order.
func Status(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`select name from schema_migrations order by applied_at asc, name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		);`, migrationsTable))
	return err
}

func appliedSet(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, migrationsTable),
		m.Name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
