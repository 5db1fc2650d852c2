// Package postgres is a Store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/store"
)

// Store keeps snapshot versions in a single table. The table name may be
// prefixed per environment (dev_, test_).
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Connect creates a pool, verifies it and ensures the schema exists.
func Connect(ctx context.Context, databaseURL, tablePrefix string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.MaxConns = 10

	// PgBouncer transaction pooling cannot hold prepared statements.
	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool, table: tablePrefix + "snapshots"}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			doc_id     TEXT        NOT NULL,
			version    BIGINT      NOT NULL,
			tree       JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (doc_id, version)
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, docID string) (*doctree.Tree, int64, error) {
	query := fmt.Sprintf(`
		SELECT tree, version FROM %s
		WHERE doc_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, s.table)

	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, query, docID).Scan(&raw, &version)
	if err != nil {
		if isNoRows(err) {
			return nil, 0, store.NotFound(docID)
		}
		return nil, 0, fmt.Errorf("load snapshot: %w", err)
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, 0, err
	}
	return tree, version, nil
}

// SaveSnapshot relies on the primary key: two writers racing from the same
// expected version both try to insert expectedVersion+1 and one fails with
// a unique violation.
func (s *Store) SaveSnapshot(ctx context.Context, docID string, tree *doctree.Tree, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return 0, fmt.Errorf("marshal tree: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var current int64
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM %s WHERE doc_id = $1`, s.table),
		docID,
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	if current != expectedVersion {
		return 0, &domain.ConflictError{DocumentID: docID, Expected: expectedVersion, Actual: current}
	}

	next := current + 1
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (doc_id, version, tree) VALUES ($1, $2, $3)`, s.table),
		docID, next, data,
	)
	if err != nil {
		if isDuplicate(err) {
			return 0, &domain.ConflictError{DocumentID: docID, Expected: expectedVersion, Actual: next}
		}
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (s *Store) LoadVersion(ctx context.Context, docID string, version int64) (*doctree.Tree, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT tree FROM %s WHERE doc_id = $1 AND version = $2`, s.table),
		docID, version,
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return nil, store.NoVersion(docID, version)
		}
		return nil, fmt.Errorf("load version: %w", err)
	}
	return decodeTree(raw)
}

func (s *Store) List(ctx context.Context) ([]store.Summary, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT DISTINCT ON (doc_id) doc_id, version, created_at
		FROM %s
		ORDER BY doc_id, version DESC
	`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []store.Summary
	for rows.Next() {
		var sum store.Summary
		if err := rows.Scan(&sum.DocumentID, &sum.Version, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DropTable removes the snapshot table. Tests use it to clean up.
func (s *Store) DropTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table))
	return err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func decodeTree(raw []byte) (*doctree.Tree, error) {
	var tree doctree.Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &tree, nil
}

// 23505 = unique_violation
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
