package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an error that knows which HTTP status it maps to.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinels for errors.Is matching.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("version conflict")
	ErrValidation      = errors.New("validation failed")
	ErrUnresolvedImage = errors.New("image not found")
	ErrParseAmbiguity  = errors.New("ambiguous line")
)

// Invariant names carried by ValidationError.
const (
	InvariantUnknownID    = "unknown_id"
	InvariantCycle        = "cycle"
	InvariantInvalidIndex = "invalid_index"
	InvariantDuplicateID  = "duplicate_id"
	InvariantShape        = "invalid_shape"
	InvariantTemplate     = "template"
)

// ValidationError rejects an operation (or tree) before any mutation.
// OpIndex is the position of the offending operation in its batch, or -1.
type ValidationError struct {
	Invariant string
	OpIndex   int
	Message   string
}

func NewValidationError(invariant, format string, args ...any) *ValidationError {
	return &ValidationError{Invariant: invariant, OpIndex: -1, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.OpIndex >= 0 {
		return fmt.Sprintf("operation %d: %s: %s", e.OpIndex, e.Invariant, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Invariant, e.Message)
}

func (e *ValidationError) StatusCode() int      { return http.StatusUnprocessableEntity }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a stale base version. Callers reload and retry.
type ConflictError struct {
	DocumentID string
	Expected   int64
	Actual     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("document %s: expected version %d, current version is %d", e.DocumentID, e.Expected, e.Actual)
}

func (e *ConflictError) StatusCode() int      { return http.StatusConflict }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError indicates a missing resource.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string        { return e.Message }
func (e *NotFoundError) StatusCode() int      { return http.StatusNotFound }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnresolvedImageError is not fatal: the anchor is rendered as a visible
// placeholder and the error is logged.
type UnresolvedImageError struct {
	Number int
	Group  string
}

func (e *UnresolvedImageError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("image %d (group %q) not found", e.Number, e.Group)
	}
	return fmt.Sprintf("image %d not found", e.Number)
}

func (e *UnresolvedImageError) Is(target error) bool { return target == ErrUnresolvedImage }

// ParseAmbiguityError describes a line the text codec could not classify.
// The line is kept as plain text.
type ParseAmbiguityError struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (e *ParseAmbiguityError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

func (e *ParseAmbiguityError) Is(target error) bool { return target == ErrParseAmbiguity }

// StatusCode returns the HTTP status for err, defaulting to 500.
func StatusCode(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
