// Package assets lists the image assets attached to a document. Providers
// only fetch; matching anchors to assets is imagebind's job.
package assets

import (
	"context"
	"sync"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

// Provider returns the images uploaded for a document.
type Provider interface {
	ListImages(ctx context.Context, docID string) ([]doctree.ImageAsset, error)
}

// Static serves assets held in memory. Assets registered under the empty
// document id are returned for every document.
type Static struct {
	mu     sync.RWMutex
	assets map[string][]doctree.ImageAsset
}

func NewStatic() *Static {
	return &Static{assets: make(map[string][]doctree.ImageAsset)}
}

// Set replaces the assets of docID.
func (s *Static) Set(docID string, assets []doctree.ImageAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[docID] = append([]doctree.ImageAsset(nil), assets...)
}

// Add appends assets to docID.
func (s *Static) Add(docID string, assets ...doctree.ImageAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[docID] = append(s.assets[docID], assets...)
}

func (s *Static) ListImages(ctx context.Context, docID string) ([]doctree.ImageAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]doctree.ImageAsset(nil), s.assets[docID]...)
	if docID != "" {
		out = append(out, s.assets[""]...)
	}
	return out, nil
}

// None is a Provider with no assets.
type None struct{}

func (None) ListImages(context.Context, string) ([]doctree.ImageAsset, error) { return nil, nil }
