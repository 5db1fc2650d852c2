package ops

import (
	"encoding/json"
	"errors"

	"github.com/dgallion1/inspectdoc/internal/domain"
)

// Operations travel as flat JSON objects tagged with "op":
//
//	{"op":"set_title","section_id":"...","value":"Roof"}

type envelope struct {
	Op Kind `json:"op"`
}

func (o SetTitle) MarshalJSON() ([]byte, error) {
	type plain SetTitle
	return json.Marshal(struct {
		Op Kind `json:"op"`
		plain
	}{KindSetTitle, plain(o)})
}

func (o SetBody) MarshalJSON() ([]byte, error) {
	type plain SetBody
	return json.Marshal(struct {
		Op Kind `json:"op"`
		plain
	}{KindSetBody, plain(o)})
}

func (o InsertSection) MarshalJSON() ([]byte, error) {
	type plain InsertSection
	return json.Marshal(struct {
		Op Kind `json:"op"`
		plain
	}{KindInsertSection, plain(o)})
}

func (o RemoveSection) MarshalJSON() ([]byte, error) {
	type plain RemoveSection
	return json.Marshal(struct {
		Op Kind `json:"op"`
		plain
	}{KindRemoveSection, plain(o)})
}

func (o MoveSection) MarshalJSON() ([]byte, error) {
	type plain MoveSection
	return json.Marshal(struct {
		Op Kind `json:"op"`
		plain
	}{KindMoveSection, plain(o)})
}

// Unmarshal decodes a single tagged operation.
func Unmarshal(data []byte) (Operation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.NewValidationError(domain.InvariantShape, "decode operation: %v", err)
	}
	var (
		op  Operation
		err error
	)
	switch env.Op {
	case KindSetTitle:
		var o SetTitle
		err = json.Unmarshal(data, &o)
		op = o
	case KindSetBody:
		var o SetBody
		err = json.Unmarshal(data, &o)
		op = o
	case KindInsertSection:
		var o InsertSection
		err = json.Unmarshal(data, &o)
		op = o
	case KindRemoveSection:
		var o RemoveSection
		err = json.Unmarshal(data, &o)
		op = o
	case KindMoveSection:
		var o MoveSection
		err = json.Unmarshal(data, &o)
		op = o
	case "":
		return nil, domain.NewValidationError(domain.InvariantShape, "operation is missing \"op\"")
	default:
		return nil, domain.NewValidationError(domain.InvariantShape, "unknown operation %q", env.Op)
	}
	if err != nil {
		return nil, domain.NewValidationError(domain.InvariantShape, "decode %s: %v", env.Op, err)
	}
	return op, nil
}

// Batch is an ordered list of operations applied together.
type Batch []Operation

func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.NewValidationError(domain.InvariantShape, "operations must be a JSON array: %v", err)
	}
	out := make(Batch, 0, len(raw))
	for i, r := range raw {
		op, err := Unmarshal(r)
		if err != nil {
			return withIndex(err, i)
		}
		out = append(out, op)
	}
	*b = out
	return nil
}

// Validate checks the shape of every operation in the batch.
func (b Batch) Validate() error {
	if len(b) == 0 {
		return domain.NewValidationError(domain.InvariantShape, "batch is empty")
	}
	for i, op := range b {
		if op == nil {
			return withIndex(domain.NewValidationError(domain.InvariantShape, "nil operation"), i)
		}
		if err := op.Validate(); err != nil {
			return withIndex(err, i)
		}
	}
	return nil
}

func withIndex(err error, i int) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		cp := *ve
		cp.OpIndex = i
		return &cp
	}
	return err
}
