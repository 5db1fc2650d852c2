package agent

import (
	"regexp"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/ops"
)

// MaxProposalOperations caps the size of one proposed batch.
const MaxProposalOperations = 200

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)\s+instructions|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// ValidateProposal checks a model-proposed batch before it is offered for
// commit. Whole proposals are rejected; nothing is filtered out.
func ValidateProposal(batch ops.Batch) error {
	if len(batch) > MaxProposalOperations {
		return domain.NewValidationError(domain.InvariantShape,
			"proposal has %d operations, limit is %d", len(batch), MaxProposalOperations)
	}
	if err := batch.Validate(); err != nil {
		return err
	}
	for i, op := range batch {
		for _, s := range proposedText(op) {
			if injectionPattern.MatchString(s) {
				return &domain.ValidationError{
					Invariant: domain.InvariantShape,
					OpIndex:   i,
					Message:   "proposed text contains instruction-like content",
				}
			}
		}
	}
	return nil
}

func proposedText(op ops.Operation) []string {
	switch o := op.(type) {
	case ops.SetTitle:
		return []string{o.Value}
	case ops.SetBody:
		return o.Value
	case ops.InsertSection:
		var out []string
		var walk func(s *doctree.Section)
		walk = func(s *doctree.Section) {
			out = append(out, s.Title)
			out = append(out, s.Body...)
			for _, c := range s.Children {
				walk(c)
			}
		}
		if o.Section != nil {
			walk(o.Section)
		}
		return out
	}
	return nil
}
