// Package ops defines the invertible edit operations on a section tree and
// applies them in all-or-nothing batches.
package ops

import (
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
)

// Kind names an operation variant on the wire.
type Kind string

const (
	KindSetTitle      Kind = "set_title"
	KindSetBody       Kind = "set_body"
	KindInsertSection Kind = "insert_section"
	KindRemoveSection Kind = "remove_section"
	KindMoveSection   Kind = "move_section"
)

const (
	MaxTitleLength = 500
	MaxParagraphs  = 1000
)

var singleLine = regexp.MustCompile(`^[^\r\n]*$`)

// Operation is one atomic mutation request.
type Operation interface {
	Kind() Kind
	// Validate checks the operation's shape without looking at a tree.
	Validate() error
	apply(a *applier) (Operation, error)
}

// SetTitle replaces a section's title.
type SetTitle struct {
	SectionID string `json:"section_id"`
	Value     string `json:"value"`
}

func (SetTitle) Kind() Kind { return KindSetTitle }

func (o SetTitle) Validate() error {
	return shapeError(validation.ValidateStruct(&o,
		validation.Field(&o.SectionID, validation.Required),
		validation.Field(&o.Value,
			validation.Length(0, MaxTitleLength),
			validation.Match(singleLine).Error("title must be a single line"),
		),
	))
}

// SetBody replaces a section's body paragraphs.
type SetBody struct {
	SectionID string   `json:"section_id"`
	Value     []string `json:"value"`
}

func (SetBody) Kind() Kind { return KindSetBody }

func (o SetBody) Validate() error {
	return shapeError(validation.ValidateStruct(&o,
		validation.Field(&o.SectionID, validation.Required),
		validation.Field(&o.Value, validation.Length(0, MaxParagraphs)),
	))
}

// InsertSection inserts a subtree under ParentID (doctree.RootID for the
// root list) at Index. Sections without an id are given one.
type InsertSection struct {
	ParentID string           `json:"parent_id"`
	Index    int              `json:"index"`
	Section  *doctree.Section `json:"section"`
}

func (InsertSection) Kind() Kind { return KindInsertSection }

func (o InsertSection) Validate() error {
	return shapeError(validation.ValidateStruct(&o,
		validation.Field(&o.ParentID, validation.Required),
		validation.Field(&o.Index, validation.Min(0)),
		validation.Field(&o.Section, validation.NotNil),
	))
}

// RemoveSection removes a section and its subtree.
type RemoveSection struct {
	SectionID string `json:"section_id"`
}

func (RemoveSection) Kind() Kind { return KindRemoveSection }

func (o RemoveSection) Validate() error {
	return shapeError(validation.ValidateStruct(&o,
		validation.Field(&o.SectionID, validation.Required),
	))
}

// MoveSection moves a section under NewParentID at NewIndex. NewIndex is
// interpreted after the section has been detached from its old position.
type MoveSection struct {
	SectionID   string `json:"section_id"`
	NewParentID string `json:"new_parent_id"`
	NewIndex    int    `json:"new_index"`
}

func (MoveSection) Kind() Kind { return KindMoveSection }

func (o MoveSection) Validate() error {
	return shapeError(validation.ValidateStruct(&o,
		validation.Field(&o.SectionID, validation.Required),
		validation.Field(&o.NewParentID, validation.Required),
		validation.Field(&o.NewIndex, validation.Min(0)),
	))
}

func shapeError(err error) error {
	if err == nil {
		return nil
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return domain.NewValidationError(domain.InvariantShape, "%s", err.Error())
}

// Describe renders op for logs.
func Describe(op Operation) string {
	switch o := op.(type) {
	case SetTitle:
		return fmt.Sprintf("%s(%s)", o.Kind(), o.SectionID)
	case SetBody:
		return fmt.Sprintf("%s(%s, %d paragraphs)", o.Kind(), o.SectionID, len(o.Value))
	case InsertSection:
		id := ""
		if o.Section != nil {
			id = o.Section.ID
		}
		return fmt.Sprintf("%s(%s under %s at %d)", o.Kind(), id, o.ParentID, o.Index)
	case RemoveSection:
		return fmt.Sprintf("%s(%s)", o.Kind(), o.SectionID)
	case MoveSection:
		return fmt.Sprintf("%s(%s to %s at %d)", o.Kind(), o.SectionID, o.NewParentID, o.NewIndex)
	}
	return string(op.Kind())
}
