package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite" with database/sql

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// SQLiteStore is a durable Store backed by a single SQLite file, for a CLI
// invocation that wants "run --resume" to survive a process restart without
// standing up an external database. Grounded on the teacher's cockroach.go
// (row shape, JSON-encoded history column) and migrate.go (schema-on-open),
// with the distributed-lease/Postgres-dialect machinery dropped: a single
// SQLite file has exactly one writer, so there is nothing to lease.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a session store at path and
// ensures its schema exists. Use ":memory:" for a process-local store with
// SQL semantics but no file, mainly useful in tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoid SQLITE_BUSY races
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			messages TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sessions: create schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS sessions_updated_at_idx ON sessions (updated_at)`)
	if err != nil {
		return fmt.Errorf("sessions: create index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errNilRecord
	}
	clone := cloneRecord(rec)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt

	messagesJSON, err := json.Marshal(clone.Messages)
	if err != nil {
		return fmt.Errorf("sessions: marshal messages: %w", err)
	}
	metadataJSON, err := json.Marshal(clone.Metadata)
	if err != nil {
		return fmt.Errorf("sessions: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, run_id, messages, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, clone.ID, clone.RunID, string(messagesJSON), string(metadataJSON), clone.CreatedAt, clone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sessions: insert: %w", err)
	}

	rec.ID = clone.ID
	rec.CreatedAt = clone.CreatedAt
	rec.UpdatedAt = clone.UpdatedAt
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, messages, metadata, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	return scanRecord(row)
}

func (s *SQLiteStore) AppendMessages(ctx context.Context, id string, msgs []message.Message) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Messages = append(rec.Messages, msgs...)
	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("sessions: marshal messages: %w", err)
	}
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET messages = ?, updated_at = ? WHERE id = ?
	`, string(messagesJSON), now, id)
	if err != nil {
		return fmt.Errorf("sessions: update messages: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, id string, kv map[string]string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	for k, v := range kv {
		rec.Metadata[k] = v
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("sessions: marshal metadata: %w", err)
	}
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET metadata = ?, updated_at = ? WHERE id = ?
	`, string(metadataJSON), now, id)
	if err != nil {
		return fmt.Errorf("sessions: update metadata: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	query := `SELECT id, run_id, messages, metadata, created_at, updated_at FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec, err := scanRecordRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanRecordRow(row rowScanner) (*Record, error) {
	var (
		rec          Record
		messagesJSON string
		metadataJSON string
	)
	if err := row.Scan(&rec.ID, &rec.RunID, &messagesJSON, &metadataJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("sessions: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("sessions: unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("sessions: unmarshal metadata: %w", err)
	}
	return &rec, nil
}

func checkRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessions: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
