package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository on PostgreSQL. Business fields
// live in a JSONB column; the serial identifier is mirrored into its own
// column so the type-scoped unique index can reject duplicate serials
// from racing inserts.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed record repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Schema is the DDL for the records table. The partial unique index is
// the storage backstop for the identifier generator's read-then-write
// race.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    fields     JSONB NOT NULL DEFAULT '{}',
    serial     TEXT NOT NULL DEFAULT '',
    file_url   TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS records_type_idx ON records (type, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS records_type_serial_idx ON records (type, serial) WHERE serial <> '';
`

func isSerialViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var fields []byte
	if err := row.Scan(&rec.ID, &rec.Type, &fields, &rec.FileURL, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	return &rec, nil
}

const recordColumns = `id, type, fields, file_url, created_by, created_at, updated_at`

// Insert stores a new record, assigning an ID when empty.
func (r *PostgresRepository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode record fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (id, type, fields, serial, file_url, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Type, fields, rec.Serial(), rec.FileURL, rec.CreatedBy)
	if isSerialViolation(err) {
		return ErrDuplicateSerial
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Update replaces the stored record's fields and file URL.
func (r *PostgresRepository) Update(ctx context.Context, rec *Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode record fields: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE records
		SET fields = $3, serial = $4, file_url = $5, updated_at = now()
		WHERE type = $1 AND id = $2`,
		rec.Type, rec.ID, fields, rec.Serial(), rec.FileURL)
	if isSerialViolation(err) {
		return ErrDuplicateSerial
	}
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (r *PostgresRepository) Delete(ctx context.Context, typeName, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE type = $1 AND id = $2`, typeName, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves one record.
func (r *PostgresRepository) GetByID(ctx context.Context, typeName, id string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE type = $1 AND id = $2`, typeName, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns all records of a type ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context, typeName string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE type = $1 ORDER BY created_at, id`, typeName)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// MaxSerial returns the greatest serial with the given prefix, or "".
func (r *PostgresRepository) MaxSerial(ctx context.Context, typeName, prefix string) (string, error) {
	// Length before lexicographic order: once the numeric suffix
	// outgrows its pad width, "100" must beat "99".
	var max string
	err := r.db.QueryRowContext(ctx, `
		SELECT serial FROM records
		WHERE type = $1 AND serial LIKE $2 || '%'
		ORDER BY length(serial) DESC, serial DESC
		LIMIT 1`,
		typeName, prefix).Scan(&max)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("max serial: %w", err)
	}
	return max, nil
}
