package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-intake/pkg/intake"
)

// Schema creates the table that holds records of every collection
const Schema = `
CREATE TABLE IF NOT EXISTS intake_records (
	id          UUID PRIMARY KEY,
	collection  TEXT NOT NULL,
	fields      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS intake_records_collection_idx
	ON intake_records (collection, created_at DESC);
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Backend implements intake.Store using PostgreSQL
type Backend struct {
	db  DBTX
	now func() time.Time
}

// New creates a new PostgreSQL content backend
func New(db DBTX) *Backend {
	return &Backend{db: db, now: time.Now}
}

// NewWithPool creates a new PostgreSQL content backend with connection pool
func NewWithPool(pool *pgxpool.Pool) *Backend {
	return New(pool)
}

// Connect opens a pool for the given URL and verifies it answers
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the records table if it does not exist
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("", "migrate", err)
	}
	return nil
}

// Ping checks the database connection
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, "SELECT 1"); err != nil {
		return handlePostgresError("", "ping", err)
	}
	return nil
}

// Error handling helper
func handlePostgresError(collection, operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &intake.BackendError{Collection: collection, Op: operation, Err: intake.ErrRecordNotFound}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			err = fmt.Errorf("duplicate entry: %s", pgErr.ConstraintName)
		case "23502": // not_null_violation
			err = fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			err = fmt.Errorf("table does not exist - database migration required")
		default:
			err = fmt.Errorf("database error: %s (code: %s)", pgErr.Message, pgErr.Code)
		}
	}

	return &intake.BackendError{Collection: collection, Op: operation, Err: err}
}

func (b *Backend) Create(ctx context.Context, collection string, record intake.Record) (string, error) {
	id := uuid.New()

	fields := make(intake.Record, len(record))
	for k, v := range record {
		if k == intake.FieldID {
			continue
		}
		fields[k] = v
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", &intake.BackendError{Collection: collection, Op: "create", Err: err}
	}

	query := `INSERT INTO intake_records (id, collection, fields, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := b.db.Exec(ctx, query, id, collection, data, b.now().UTC()); err != nil {
		return "", handlePostgresError(collection, "create", err)
	}

	return id.String(), nil
}

func (b *Backend) List(ctx context.Context, collection string, q intake.ListQuery) ([]intake.Record, error) {
	query := `SELECT id, fields FROM intake_records WHERE collection = $1`
	args := []interface{}{collection}

	if q.NullField != "" {
		args = append(args, q.NullField)
		query += fmt.Sprintf(" AND fields->>$%d IS NULL", len(args))
	}
	if q.Newest {
		query += " ORDER BY fields->>'" + intake.FieldDatetime + "' DESC, created_at DESC"
	} else {
		query += " ORDER BY created_at ASC"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(collection, "list", err)
	}
	defer rows.Close()

	var records []intake.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, handlePostgresError(collection, "list", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError(collection, "list", err)
	}

	return records, nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) (intake.Record, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, &intake.BackendError{Collection: collection, Op: "get", Err: intake.ErrRecordNotFound}
	}

	query := `SELECT id, fields FROM intake_records WHERE collection = $1 AND id = $2`
	record, err := scanRecord(b.db.QueryRow(ctx, query, collection, uid))
	if err != nil {
		return nil, handlePostgresError(collection, "get", err)
	}
	return record, nil
}

func (b *Backend) Update(ctx context.Context, collection, id string, patch intake.Record) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return &intake.BackendError{Collection: collection, Op: "update", Err: intake.ErrRecordNotFound}
	}

	fields := make(intake.Record, len(patch))
	for k, v := range patch {
		if k != intake.FieldID {
			fields[k] = v
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return &intake.BackendError{Collection: collection, Op: "update", Err: err}
	}

	query := `UPDATE intake_records SET fields = fields || $3::jsonb WHERE collection = $1 AND id = $2`
	tag, err := b.db.Exec(ctx, query, collection, uid, data)
	if err != nil {
		return handlePostgresError(collection, "update", err)
	}
	if tag.RowsAffected() == 0 {
		return &intake.BackendError{Collection: collection, Op: "update", Err: intake.ErrRecordNotFound}
	}
	return nil
}

func scanRecord(row pgx.Row) (intake.Record, error) {
	var (
		id   uuid.UUID
		data []byte
	)
	if err := row.Scan(&id, &data); err != nil {
		return nil, err
	}

	record := intake.Record{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record fields: %w", err)
	}
	record[intake.FieldID] = id.String()
	return record, nil
}
