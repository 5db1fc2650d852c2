package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/inspectdoc/internal/parser"
)

// handleImport replaces a document with an uploaded report file. Form
// fields: file (required), base_version (optional).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var base int64
	if v := r.FormValue("base_version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			jsonError(w, "base_version must be a non-negative integer", http.StatusBadRequest)
			return
		}
		base = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	imported, err := parser.ParseFile(strings.NewReader(string(data)), filename, s.parse)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	docID := chi.URLParam(r, "docID")
	res, err := s.editor.Replace(r.Context(), docID, base, imported.Tree)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res.Ambiguities = append(res.Ambiguities, imported.Ambiguities...)
	s.log.Info("document imported",
		"doc_id", docID,
		"filename", filename,
		"version", res.Version,
		"ambiguities", len(imported.Ambiguities),
	)
	writeJSON(w, http.StatusOK, res)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "." || name == "" {
		return "upload"
	}
	return name
}
