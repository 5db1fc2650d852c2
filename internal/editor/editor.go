// Package editor serializes edits per document: every change is validated,
// renumbered and saved as a new version under the document's lock, with
// undo/redo history kept alongside.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/history"
	"github.com/dgallion1/inspectdoc/internal/numbering"
	"github.com/dgallion1/inspectdoc/internal/ops"
	"github.com/dgallion1/inspectdoc/internal/store"
	"github.com/dgallion1/inspectdoc/internal/templates"
	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

// Config tunes an Editor.
type Config struct {
	HistoryDepth int
	SessionTTL   time.Duration
	Numbering    numbering.Strategy
	Templates    *templates.Registry
}

// State is a committed document as clients see it.
type State struct {
	DocumentID string         `json:"document_id"`
	Version    int64          `json:"version"`
	Tree       *doctree.Tree  `json:"tree"`
	Templates  []string       `json:"templates"`
	History    history.Status `json:"history"`
}

// Result is returned by edits.
type Result struct {
	State
	// Inverse undoes an operation batch; empty for other changes.
	Inverse ops.Batch `json:"inverse,omitempty"`
	// Ambiguities lists lines of submitted text kept as plain content.
	Ambiguities []*domain.ParseAmbiguityError `json:"ambiguities,omitempty"`
}

// Editor owns the open documents.
type Editor struct {
	store     store.Store
	sessions  *sessionStore
	engine    *ops.Engine
	codec     *textcodec.Codec
	templates *templates.Registry
	strategy  numbering.Strategy
	notifier  Notifier
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, st store.Store, notifier Notifier, log *slog.Logger) *Editor {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	if cfg.Templates == nil {
		cfg.Templates = templates.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.Numbering.Separator == "" {
		cfg.Numbering = numbering.Default()
	}
	return &Editor{
		store:     st,
		sessions:  newSessionStore(cfg.SessionTTL, cfg.HistoryDepth),
		engine:    ops.NewEngine(cfg.Templates),
		codec:     textcodec.New(cfg.Templates),
		templates: cfg.Templates,
		strategy:  cfg.Numbering,
		notifier:  notifier,
		log:       log,
	}
}

// Start launches idle-session eviction.
func (e *Editor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	interval := e.sessions.ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := e.sessions.cleanup(); n > 0 {
					e.log.Debug("evicted idle sessions", "count", n)
				}
			}
		}
	}()
}

// Stop ends background work.
func (e *Editor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Codec returns the text codec bound to the editor's templates.
func (e *Editor) Codec() *textcodec.Codec { return e.codec }

// Templates returns the template registry.
func (e *Editor) Templates() *templates.Registry { return e.templates }

// Sessions returns the number of open sessions.
func (e *Editor) Sessions() int { return e.sessions.len() }

// withSession runs fn holding the document lock, loading the document on
// first use.
func (e *Editor) withSession(ctx context.Context, docID string, fn func(s *session) error) error {
	if docID == "" {
		return domain.NewValidationError(domain.InvariantShape, "document id is required")
	}
	s := e.sessions.get(docID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = e.sessions.now()

	if !s.loaded {
		if err := e.load(ctx, s); err != nil {
			return err
		}
	}
	return fn(s)
}

func (e *Editor) load(ctx context.Context, s *session) error {
	tree, version, err := e.store.LoadSnapshot(ctx, s.docID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		tree, version = &doctree.Tree{}, 0
	case err != nil:
		return fmt.Errorf("load %s: %w", s.docID, err)
	}
	numbering.Apply(tree, e.strategy)
	s.tree = tree
	s.version = version
	s.loaded = true
	if cur, ok := s.history.Current(); !ok || cur.Version != version {
		s.history.Push(doctree.Snapshot{DocumentID: s.docID, Version: version, Tree: tree, CreatedAt: e.sessions.now()})
	}
	return nil
}

func (e *Editor) state(s *session) State {
	return State{
		DocumentID: s.docID,
		Version:    s.version,
		Tree:       s.tree.Clone(),
		Templates:  e.templates.Enabled(s.tree),
		History:    s.history.Status(),
	}
}

// checkBase fails fast on a stale base version. A base of 0 or less
// accepts whatever version is current.
func checkBase(s *session, base int64) error {
	if base > 0 && base != s.version {
		return &domain.ConflictError{DocumentID: s.docID, Expected: base, Actual: s.version}
	}
	return nil
}

// commit saves next as the following version. Cancellation is checked
// last, so a cancelled request leaves the document at its last commit.
func (e *Editor) commit(ctx context.Context, s *session, next *doctree.Tree, change Change, nops int) error {
	e.templates.Canonicalize(next)
	numbering.Apply(next, e.strategy)

	if err := ctx.Err(); err != nil {
		return err
	}
	version, err := e.store.SaveSnapshot(ctx, s.docID, next, s.version)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Someone else wrote the document; reload before the next edit.
			s.loaded = false
		}
		return err
	}
	s.tree = next
	s.version = version
	s.history.Push(doctree.Snapshot{DocumentID: s.docID, Version: version, Tree: next, CreatedAt: e.sessions.now()})

	e.notifier.Committed(ctx, Event{DocumentID: s.docID, Version: version, Change: change, Operations: nops})
	return nil
}

// Open returns the current state of a document. A document that was never
// saved is empty at version 0.
func (e *Editor) Open(ctx context.Context, docID string) (*State, error) {
	var st State
	err := e.withSession(ctx, docID, func(s *session) error {
		st = e.state(s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Apply commits an operation batch atomically. Either every operation
// applies and one new version is saved, or the document is unchanged.
func (e *Editor) Apply(ctx context.Context, docID string, base int64, batch ops.Batch) (*Result, error) {
	var res Result
	err := e.withSession(ctx, docID, func(s *session) error {
		if err := checkBase(s, base); err != nil {
			return err
		}
		next, inverse, err := e.engine.Apply(s.tree, batch)
		if err != nil {
			return err
		}
		if err := e.commit(ctx, s, next, ChangeOperations, len(batch)); err != nil {
			return err
		}
		res = Result{State: e.state(s), Inverse: inverse}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("operations applied", "doc_id", docID, "version", res.Version, "count", len(batch))
	return &res, nil
}

// Replace commits a whole new tree.
func (e *Editor) Replace(ctx context.Context, docID string, base int64, tree *doctree.Tree) (*Result, error) {
	next, err := e.prepareTree(tree)
	if err != nil {
		return nil, err
	}
	var res Result
	err = e.withSession(ctx, docID, func(s *session) error {
		if err := checkBase(s, base); err != nil {
			return err
		}
		if err := e.commit(ctx, s, next, ChangeReplace, 0); err != nil {
			return err
		}
		res = Result{State: e.state(s)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ReplaceText decodes flat text against the current tree, keeping the ids
// of recognizable sections, and commits the result.
func (e *Editor) ReplaceText(ctx context.Context, docID string, base int64, text string) (*Result, error) {
	var res Result
	err := e.withSession(ctx, docID, func(s *session) error {
		if err := checkBase(s, base); err != nil {
			return err
		}
		dec := e.codec.Decode(text, s.tree)
		if err := e.commit(ctx, s, dec.Tree, ChangeText, 0); err != nil {
			return err
		}
		res = Result{State: e.state(s), Ambiguities: dec.Ambiguities}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, a := range res.Ambiguities {
		e.log.Warn("ambiguous line kept as text", "doc_id", docID, "line", a.Line, "reason", a.Reason)
	}
	return &res, nil
}

// SetTemplates rebuilds the template sections from the enabled markers.
func (e *Editor) SetTemplates(ctx context.Context, docID string, base int64, enabled []string) (*Result, error) {
	var res Result
	err := e.withSession(ctx, docID, func(s *session) error {
		if err := checkBase(s, base); err != nil {
			return err
		}
		next := s.tree.Clone()
		if err := e.templates.Apply(next, enabled); err != nil {
			return domain.NewValidationError(domain.InvariantTemplate, "%s", err.Error())
		}
		if err := e.commit(ctx, s, next, ChangeTemplates, 0); err != nil {
			return err
		}
		res = Result{State: e.state(s)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Undo restores the previous snapshot and saves it as a new version. With
// nothing to undo it returns the current state and false.
func (e *Editor) Undo(ctx context.Context, docID string, base int64) (*State, bool, error) {
	return e.travel(ctx, docID, base, ChangeUndo)
}

// Redo re-applies the next snapshot. With nothing to redo it returns the
// current state and false.
func (e *Editor) Redo(ctx context.Context, docID string, base int64) (*State, bool, error) {
	return e.travel(ctx, docID, base, ChangeRedo)
}

func (e *Editor) travel(ctx context.Context, docID string, base int64, change Change) (*State, bool, error) {
	var (
		st    State
		moved bool
	)
	err := e.withSession(ctx, docID, func(s *session) error {
		if err := checkBase(s, base); err != nil {
			return err
		}
		step, back := s.history.Undo, s.history.Redo
		if change == ChangeRedo {
			step, back = s.history.Redo, s.history.Undo
		}
		snap, ok := step()
		if !ok {
			st = e.state(s)
			return nil
		}
		if err := ctx.Err(); err != nil {
			back()
			return err
		}
		version, err := e.store.SaveSnapshot(ctx, s.docID, snap.Tree, s.version)
		if err != nil {
			back()
			if errors.Is(err, domain.ErrConflict) {
				s.loaded = false
			}
			return err
		}
		s.history.Retag(version)
		s.tree = snap.Tree
		s.version = version
		moved = true
		st = e.state(s)
		e.notifier.Committed(ctx, Event{DocumentID: s.docID, Version: version, Change: change})
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &st, moved, nil
}

// Text renders the current document as flat text.
func (e *Editor) Text(ctx context.Context, docID string, opts textcodec.EncodeOptions) (string, int64, error) {
	var (
		text    string
		version int64
	)
	err := e.withSession(ctx, docID, func(s *session) error {
		text = e.codec.Encode(s.tree, opts)
		version = s.version
		return nil
	})
	return text, version, err
}

// Version loads a stored version of a document.
func (e *Editor) Version(ctx context.Context, docID string, version int64) (*doctree.Tree, error) {
	tree, err := e.store.LoadVersion(ctx, docID, version)
	if err != nil {
		return nil, err
	}
	numbering.Apply(tree, e.strategy)
	return tree, nil
}

// List summarizes stored documents.
func (e *Editor) List(ctx context.Context) ([]store.Summary, error) {
	return e.store.List(ctx)
}

// prepareTree checks a client-supplied tree: ids are assigned where
// missing and must be unique, and template sections must be known,
// unique and at the root. Template content is refreshed from the registry.
func (e *Editor) prepareTree(tree *doctree.Tree) (*doctree.Tree, error) {
	t := tree.Clone()
	t.AssignIDs()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var err error
	t.Walk(func(s *doctree.Section, ancestors []*doctree.Section) bool {
		if !s.IsTemplate() {
			return true
		}
		switch {
		case len(ancestors) > 0:
			err = domain.NewValidationError(domain.InvariantTemplate, "template section %s must be at the document root", s.Marker)
		case !e.templates.Known(s.Marker):
			err = domain.NewValidationError(domain.InvariantTemplate, "unknown template marker %q", s.Marker)
		case seen[s.Marker]:
			err = domain.NewValidationError(domain.InvariantTemplate, "template %s appears more than once", s.Marker)
		}
		seen[s.Marker] = true
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	_ = e.templates.Apply(t, e.templates.Enabled(t))
	t.Normalize()
	return t, nil
}
