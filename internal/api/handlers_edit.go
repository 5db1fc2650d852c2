package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/editor"
	"github.com/dgallion1/inspectdoc/internal/ops"
)

// MaxTextBytes bounds a flat-text replacement.
const MaxTextBytes = 5 << 20

// A base_version of 0 accepts whatever version is current.
type operationsRequest struct {
	BaseVersion int64     `json:"base_version"`
	Operations  ops.Batch `json:"operations"`
}

func (req operationsRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.BaseVersion, validation.Min(int64(0))),
	)
}

type treeRequest struct {
	BaseVersion int64         `json:"base_version"`
	Tree        *doctree.Tree `json:"tree"`
}

func (req treeRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.BaseVersion, validation.Min(int64(0))),
		validation.Field(&req.Tree, validation.NotNil),
	)
}

type textRequest struct {
	BaseVersion int64  `json:"base_version"`
	Text        string `json:"text"`
}

func (req textRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.BaseVersion, validation.Min(int64(0))),
		validation.Field(&req.Text, validation.Length(0, MaxTextBytes)),
	)
}

type templatesRequest struct {
	BaseVersion int64    `json:"base_version"`
	Enabled     []string `json:"enabled"`
}

func (req templatesRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.BaseVersion, validation.Min(int64(0))),
		validation.Field(&req.Enabled, validation.Each(validation.Required)),
	)
}

type historyRequest struct {
	BaseVersion int64 `json:"base_version"`
}

func (s *Server) handleApplyOperations(w http.ResponseWriter, r *http.Request) {
	var req operationsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.editor.Apply(r.Context(), chi.URLParam(r, "docID"), req.BaseVersion, req.Operations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReplaceTree(w http.ResponseWriter, r *http.Request) {
	var req treeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.editor.Replace(r.Context(), chi.URLParam(r, "docID"), req.BaseVersion, req.Tree)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReplaceText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.editor.ReplaceText(r.Context(), chi.URLParam(r, "docID"), req.BaseVersion, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSetTemplates(w http.ResponseWriter, r *http.Request) {
	var req templatesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.editor.SetTemplates(r.Context(), chi.URLParam(r, "docID"), req.BaseVersion, req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	reg := s.editor.Templates()
	var out []map[string]any
	for _, m := range reg.Markers() {
		tpl, _ := reg.Lookup(m)
		out = append(out, map[string]any{
			"marker": tpl.Marker,
			"title":  tpl.Title,
			"body":   tpl.Body,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.travel(w, r, s.editor.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.travel(w, r, s.editor.Redo)
}

// travel runs undo or redo. The body is optional; without one any version
// is accepted.
func (s *Server) travel(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, int64) (*editor.State, bool, error)) {
	var req historyRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	st, moved, err := fn(r.Context(), chi.URLParam(r, "docID"), req.BaseVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": st,
		"moved": moved,
	})
}
