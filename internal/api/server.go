// Package api exposes the editor over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/cors"

	"github.com/dgallion1/inspectdoc/internal/agent"
	"github.com/dgallion1/inspectdoc/internal/assets"
	"github.com/dgallion1/inspectdoc/internal/config"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/editor"
	"github.com/dgallion1/inspectdoc/internal/imagebind"
	"github.com/dgallion1/inspectdoc/internal/parser"
)

// Server is the HTTP API server for inspectdoc.
type Server struct {
	router chi.Router
	editor *editor.Editor
	assets assets.Provider
	binder *imagebind.Binder
	quiet  *imagebind.Binder // placeholders only; binder does the logging
	agent  *agent.Client
	mcp    http.Handler
	parse  parser.Options
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server. ai and mcp may be nil
// to disable the agent endpoint and the MCP surface.
func NewServer(ed *editor.Editor, provider assets.Provider, ai *agent.Client, mcp http.Handler, log *slog.Logger, cfg config.Config) *Server {
	if provider == nil {
		provider = assets.None{}
	}
	s := &Server{
		editor: ed,
		assets: provider,
		binder: imagebind.NewBinder(log),
		quiet:  imagebind.NewBinder(slog.New(slog.DiscardHandler)),
		agent:  ai,
		mcp:    mcp,
		parse: parser.Options{
			Codec:                ed.Codec(),
			PDFFallbackPdftotext: cfg.PDFFallbackPdftotext,
		},
		log: log,
		cfg: cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler wraps the server with CORS for browser clients.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"Mcp-Session-Id"},
		AllowCredentials: true,
	}).Handler(s)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/stats/llm", s.handleLLMStats)
		r.Get("/api/templates", s.handleListTemplates)

		r.Route("/api/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Route("/{docID}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Get("/text", s.handleGetText)
				r.Get("/render", s.handleRender)

				r.Post("/operations", s.handleApplyOperations)
				r.Put("/tree", s.handleReplaceTree)
				r.Put("/text", s.handleReplaceText)
				r.Put("/templates", s.handleSetTemplates)
				r.Post("/undo", s.handleUndo)
				r.Post("/redo", s.handleRedo)
				r.Post("/import", s.handleImport)
				r.Post("/agent", s.handleAgent)
			})
		})

		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
			r.Handle("/mcp/*", s.mcp)
		}
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps core errors to status codes. Validation errors carry the
// violated invariant and operation index; conflicts carry the current
// version so the client can reload.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve   *domain.ValidationError
		ce   *domain.ConflictError
		verr validation.Errors
	)
	body := map[string]any{"error": err.Error()}
	code := domain.StatusCode(err)
	switch {
	case errors.As(err, &ve):
		body["invariant"] = ve.Invariant
		if ve.OpIndex >= 0 {
			body["op_index"] = ve.OpIndex
		}
	case errors.As(err, &ce):
		body["current_version"] = ce.Actual
	case errors.As(err, &verr):
		code = http.StatusBadRequest
	}
	if code >= 500 {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, body)
}

// decodeJSON reads a bounded JSON body into v and validates it when v
// implements validation.Validatable.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			s.writeError(w, r, err)
			return false
		}
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			s.writeError(w, r, err)
			return false
		}
	}
	return true
}
