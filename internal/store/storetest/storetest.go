// Package storetest holds the behavior every store.Store must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/store"
)

func tree(title string) *doctree.Tree {
	return &doctree.Tree{Sections: []*doctree.Section{
		{ID: "s1", Title: title, Body: []string{"Roof leak [IMAGE:1:Roof]"}, Images: []doctree.ImageRef{{Number: 1, Group: "Roof"}}},
	}}
}

// Run exercises s against the Store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		_, v, err := s.LoadSnapshot(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, int64(0), v)
	})

	t.Run("versions increase", func(t *testing.T) {
		v1, err := s.SaveSnapshot(ctx, "doc-a", tree("one"), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v1)

		v2, err := s.SaveSnapshot(ctx, "doc-a", tree("two"), v1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v2)

		got, v, err := s.LoadSnapshot(ctx, "doc-a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
		assert.Equal(t, tree("two"), got)

		old, err := s.LoadVersion(ctx, "doc-a", 1)
		require.NoError(t, err)
		assert.Equal(t, tree("one"), old)

		_, err = s.LoadVersion(ctx, "doc-a", 9)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := s.SaveSnapshot(ctx, "doc-b", tree("one"), 0)
		require.NoError(t, err)

		_, err = s.SaveSnapshot(ctx, "doc-b", tree("late"), 0)
		var ce *domain.ConflictError
		require.True(t, errors.As(err, &ce), "expected ConflictError, got %v", err)
		assert.Equal(t, int64(0), ce.Expected)
		assert.Equal(t, int64(1), ce.Actual)

		got, v, err := s.LoadSnapshot(ctx, "doc-b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		assert.Equal(t, "one", got.Sections[0].Title)
	})

	t.Run("concurrent saves from the same version", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.SaveSnapshot(ctx, "doc-c", tree("racer"), 0)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, domain.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, ok)
		assert.Equal(t, 7, conflicts)
	})

	t.Run("list", func(t *testing.T) {
		list, err := s.List(ctx)
		require.NoError(t, err)
		byID := make(map[string]int64)
		for _, sum := range list {
			byID[sum.DocumentID] = sum.Version
		}
		assert.Equal(t, int64(2), byID["doc-a"])
		assert.Equal(t, int64(1), byID["doc-b"])
	})
}
