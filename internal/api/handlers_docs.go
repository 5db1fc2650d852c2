package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/inspectdoc/internal/imagebind"
	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

// handleListDocuments lists stored documents with their latest version.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.editor.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleGetDocument returns the current state, or a stored version when
// ?version= is given.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if v := r.URL.Query().Get("version"); v != "" {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil || version <= 0 {
			jsonError(w, "version must be a positive integer", http.StatusBadRequest)
			return
		}
		tree, err := s.editor.Version(r.Context(), docID, version)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"document_id": docID,
			"version":     version,
			"tree":        tree,
		})
		return
	}

	st, err := s.editor.Open(r.Context(), docID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleGetText renders the flat text. ?expand=true renders template
// sections in full instead of marker tokens.
func (s *Server) handleGetText(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	expand, _ := strconv.ParseBool(r.URL.Query().Get("expand"))
	text, version, err := s.editor.Text(r.Context(), docID, textcodec.EncodeOptions{ExpandTemplates: expand})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"version":     version,
		"text":        text,
	})
}

// handleRender returns display text with every anchor resolved against the
// document's image assets. Unresolved anchors become visible placeholders.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	ctx := r.Context()

	st, err := s.editor.Open(ctx, docID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := s.assets.ListImages(ctx, docID)
	if err != nil {
		s.log.Error("list images failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to list images: "+err.Error(), http.StatusBadGateway)
		return
	}

	text := s.editor.Codec().Encode(st.Tree, textcodec.EncodeOptions{ExpandTemplates: true})
	rendered, _ := s.quiet.BindText(text, images)
	bindings := s.binder.BindTree(st.Tree, images)

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"version":     st.Version,
		"text":        rendered,
		"bindings":    bindings,
		"unresolved":  len(imagebind.Unresolved(bindings)),
	})
}
