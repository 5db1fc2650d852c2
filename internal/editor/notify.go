package editor

import (
	"context"
	"log/slog"
)

// Change names what produced a commit.
type Change string

const (
	ChangeOperations Change = "operations"
	ChangeReplace    Change = "replace"
	ChangeText       Change = "text"
	ChangeTemplates  Change = "templates"
	ChangeUndo       Change = "undo"
	ChangeRedo       Change = "redo"
)

// Event describes a committed snapshot.
type Event struct {
	DocumentID string `json:"document_id"`
	Version    int64  `json:"version"`
	Change     Change `json:"change"`
	Operations int    `json:"operations,omitempty"`
}

// Notifier is told about every commit so it can push or record it. It is
// called with the document lock held and must not block.
type Notifier interface {
	Committed(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Committed(ctx context.Context, ev Event) { f(ctx, ev) }

// LogNotifier logs commits.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Committed(ctx context.Context, ev Event) {
	n.Log.Info("document committed",
		"doc_id", ev.DocumentID,
		"version", ev.Version,
		"change", ev.Change,
		"operations", ev.Operations,
	)
}
