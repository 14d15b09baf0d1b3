package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository on PostgreSQL via database/sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed audit repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Schema is the DDL for the audit trail table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id         TEXT PRIMARY KEY,
    username   TEXT NOT NULL,
    en_name    TEXT NOT NULL DEFAULT '',
    ar_name    TEXT NOT NULL DEFAULT '',
    action     TEXT NOT NULL,
    resource   TEXT NOT NULL,
    details    TEXT NOT NULL DEFAULT '',
    method     TEXT NOT NULL DEFAULT '',
    url        TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_logs_created_at_idx ON audit_logs (created_at DESC);
`

// Insert appends one entry.
func (r *PostgresRepository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, username, en_name, ar_name, action, resource, details, method, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.User, e.EnName, e.ArName, e.Action, e.Resource, e.Details, e.Method, e.URL, e.CreatedAt)
	return err
}

// List returns all entries, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, en_name, ar_name, action, resource, details, method, url, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.User, &e.EnName, &e.ArName, &e.Action,
			&e.Resource, &e.Details, &e.Method, &e.URL, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
