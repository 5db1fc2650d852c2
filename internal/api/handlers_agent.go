package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dgallion1/inspectdoc/internal/agent"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/editor"
	"github.com/dgallion1/inspectdoc/internal/ops"
	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

type agentRequest struct {
	BaseVersion int64  `json:"base_version"`
	Instruction string `json:"instruction"`
	// DryRun returns the proposal without committing it.
	DryRun bool `json:"dry_run"`
}

func (req agentRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.BaseVersion, validation.Min(int64(0))),
		validation.Field(&req.Instruction, validation.Required, validation.Length(1, 4000)),
	)
}

type agentResponse struct {
	Proposal ops.Batch      `json:"proposal"`
	Result   *editor.Result `json:"result,omitempty"`
}

// handleAgent asks the model for one operation batch against the version
// read here and commits it in a single step. If the document moved on
// while the model was working, the commit fails with a conflict.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		jsonError(w, "agent not configured", http.StatusServiceUnavailable)
		return
	}
	var req agentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	docID := chi.URLParam(r, "docID")

	st, err := s.editor.Open(ctx, docID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.BaseVersion > 0 && req.BaseVersion != st.Version {
		s.writeError(w, r, &domain.ConflictError{DocumentID: docID, Expected: req.BaseVersion, Actual: st.Version})
		return
	}

	batch, err := s.agent.ProposeEdits(ctx, agent.Request{
		DocumentID:  docID,
		Version:     st.Version,
		Instruction: req.Instruction,
		Tree:        st.Tree,
		Text:        s.editor.Codec().Encode(st.Tree, textcodec.EncodeOptions{ExpandTemplates: true}),
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.writeError(w, r, err)
			return
		}
		s.log.Warn("agent failed", "doc_id", docID, "error", err)
		jsonError(w, "agent failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp := agentResponse{Proposal: batch}
	if req.DryRun || len(batch) == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	res, err := s.editor.Apply(ctx, docID, st.Version, batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.Result = res
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.agent.Model(),
		"stats": s.agent.Stats().Snapshot(),
	})
}
