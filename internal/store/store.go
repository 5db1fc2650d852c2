// Package store persists versioned document snapshots.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
)

// Store is the persistence collaborator. Versions start at 1; a document
// that was never saved is at version 0.
type Store interface {
	// LoadSnapshot returns the latest tree and its version, or a
	// *domain.NotFoundError when the document has never been saved.
	LoadSnapshot(ctx context.Context, docID string) (*doctree.Tree, int64, error)
	// SaveSnapshot stores tree as expectedVersion+1. If the document is not
	// at expectedVersion it returns a *domain.ConflictError.
	SaveSnapshot(ctx context.Context, docID string, tree *doctree.Tree, expectedVersion int64) (int64, error)
	// LoadVersion returns a specific stored version.
	LoadVersion(ctx context.Context, docID string, version int64) (*doctree.Tree, error)
	// List summarizes every stored document.
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// Summary describes a stored document.
type Summary struct {
	DocumentID string    `json:"document_id"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NotFound builds the error returned for a missing document.
func NotFound(docID string) error {
	return &domain.NotFoundError{Message: "document " + docID + " not found"}
}

// NoVersion builds the error returned for a missing version.
func NoVersion(docID string, version int64) error {
	return &domain.NotFoundError{Message: fmt.Sprintf("document %s has no version %d", docID, version)}
}

// Memory is an in-process Store that keeps every version.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]doctree.Snapshot
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]doctree.Snapshot), now: time.Now}
}

func (m *Memory) LoadSnapshot(ctx context.Context, docID string) (*doctree.Tree, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.docs[docID]
	if len(versions) == 0 {
		return nil, 0, NotFound(docID)
	}
	last := versions[len(versions)-1]
	return last.Tree.Clone(), last.Version, nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, docID string, tree *doctree.Tree, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := int64(len(m.docs[docID]))
	if current != expectedVersion {
		return 0, &domain.ConflictError{DocumentID: docID, Expected: expectedVersion, Actual: current}
	}
	snap := doctree.Snapshot{
		DocumentID: docID,
		Version:    current + 1,
		Tree:       tree.Clone(),
		CreatedAt:  m.now(),
	}
	m.docs[docID] = append(m.docs[docID], snap)
	return snap.Version, nil
}

func (m *Memory) LoadVersion(ctx context.Context, docID string, version int64) (*doctree.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.docs[docID]
	if version < 1 || version > int64(len(versions)) {
		return nil, NoVersion(docID, version)
	}
	return versions[version-1].Tree.Clone(), nil
}

func (m *Memory) List(ctx context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.docs))
	for id, versions := range m.docs {
		last := versions[len(versions)-1]
		out = append(out, Summary{DocumentID: id, Version: last.Version, UpdatedAt: last.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
