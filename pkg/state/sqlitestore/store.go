// Package sqlitestore persists state snapshots in a SQLite database, one row
// per Ref identifier, with the snapshot stored as JSON.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-inputmethod/pkg/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    ref          TEXT PRIMARY KEY,
    snapshot     TEXT NOT NULL,
    snapshot_id  TEXT NOT NULL DEFAULT '',
    etag         TEXT NOT NULL,
    updated_ns   INTEGER NOT NULL,
    extra        TEXT
);
`

// DB owns the connection. Stores for different snapshot types share one DB.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Store is a state.Store backed by a DB.
//
// Save compares meta.ETag with the stored row inside one transaction, so a
// Resolver.Mutate racing another process fails with state.ErrETagMismatch
// instead of overwriting it.
type Store[T any] struct {
	db *DB
}

// New binds a typed Store to db.
func New[T any](db *DB) *Store[T] {
	return &Store[T]{db: db}
}

func (s *Store[T]) Load(ctx context.Context, ref state.Ref) (T, state.Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, state.Meta{}, false, err
	}

	var (
		payload string
		extra   sql.NullString
		nanos   int64
		meta    state.Meta
	)
	row := s.db.db.QueryRowContext(ctx,
		`SELECT snapshot, snapshot_id, etag, updated_ns, extra FROM snapshots WHERE ref = ?`, key)
	if err := row.Scan(&payload, &meta.SnapshotID, &meta.ETag, &nanos, &extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, state.Meta{}, false, nil
		}
		return zero, state.Meta{}, false, fmt.Errorf("sqlitestore: load %s: %w", key, err)
	}

	var snapshot T
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return zero, state.Meta{}, false, fmt.Errorf("sqlitestore: decode %s: %w", key, err)
	}
	meta.UpdatedAt = time.Unix(0, nanos).UTC()
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &meta.Extra); err != nil {
			return zero, state.Meta{}, false, fmt.Errorf("sqlitestore: decode meta %s: %w", key, err)
		}
	}
	return snapshot, meta, true, nil
}

func (s *Store[T]) Save(ctx context.Context, ref state.Ref, snapshot T, meta state.Meta) (state.Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return state.Meta{}, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlitestore: encode %s: %w", key, err)
	}
	var extra sql.NullString
	if len(meta.Extra) > 0 {
		raw, err := json.Marshal(meta.Extra)
		if err != nil {
			return state.Meta{}, fmt.Errorf("sqlitestore: encode meta %s: %w", key, err)
		}
		extra = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	var stored string
	switch err := tx.QueryRowContext(ctx, `SELECT etag FROM snapshots WHERE ref = ?`, key).Scan(&stored); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return state.Meta{}, fmt.Errorf("sqlitestore: read etag %s: %w", key, err)
	case meta.ETag != "" && meta.ETag != stored:
		return state.Meta{}, fmt.Errorf("%w: expected %q, got %q", state.ErrETagMismatch, meta.ETag, stored)
	}

	out := meta
	out.ETag = uuid.NewString()
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now()
	}
	out.UpdatedAt = out.UpdatedAt.UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (ref, snapshot, snapshot_id, etag, updated_ns, extra)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			snapshot = excluded.snapshot,
			snapshot_id = excluded.snapshot_id,
			etag = excluded.etag,
			updated_ns = excluded.updated_ns,
			extra = excluded.extra`,
		key, string(payload), out.SnapshotID, out.ETag, out.UpdatedAt.UnixNano(), extra,
	); err != nil {
		return state.Meta{}, fmt.Errorf("sqlitestore: save %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return state.Meta{}, fmt.Errorf("sqlitestore: commit %s: %w", key, err)
	}
	if meta.Extra != nil {
		out.Extra = make(map[string]string, len(meta.Extra))
		for k, v := range meta.Extra {
			out.Extra[k] = v
		}
	}
	return out, nil
}
