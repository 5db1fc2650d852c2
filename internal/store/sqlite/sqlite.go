// Package sqlite is a Store backed by an SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	doc_id     TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	tree       TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	PRIMARY KEY (doc_id, version)
);
`

// Store keeps every snapshot version as a JSON row.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: pragmas are per connection and saves are serialized.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) LoadSnapshot(ctx context.Context, docID string) (*doctree.Tree, int64, error) {
	var (
		raw     string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tree, version FROM snapshots WHERE doc_id = ? ORDER BY version DESC LIMIT 1`,
		docID,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, store.NotFound(docID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load snapshot: %w", err)
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, 0, err
	}
	return tree, version, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, docID string, tree *doctree.Tree, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return 0, fmt.Errorf("marshal tree: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM snapshots WHERE doc_id = ?`, docID,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	if current != expectedVersion {
		return 0, &domain.ConflictError{DocumentID: docID, Expected: expectedVersion, Actual: current}
	}

	next := current + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (doc_id, version, tree, created_at) VALUES (?, ?, ?, ?)`,
		docID, next, string(data), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &domain.ConflictError{DocumentID: docID, Expected: expectedVersion, Actual: next}
		}
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *Store) LoadVersion(ctx context.Context, docID string, version int64) (*doctree.Tree, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT tree FROM snapshots WHERE doc_id = ? AND version = ?`, docID, version,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NoVersion(docID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	return decodeTree(raw)
}

func (s *Store) List(ctx context.Context) ([]store.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, version, created_at FROM snapshots s
		WHERE version = (SELECT MAX(version) FROM snapshots WHERE doc_id = s.doc_id)
		ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []store.Summary
	for rows.Next() {
		var (
			sum     store.Summary
			created string
		)
		if err := rows.Scan(&sum.DocumentID, &sum.Version, &created); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func decodeTree(raw string) (*doctree.Tree, error) {
	var tree doctree.Tree
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &tree, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
