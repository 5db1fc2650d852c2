// Package mcpserver exposes the editor as MCP tools so AI agents can read
// a report and submit operation batches against it.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dgallion1/inspectdoc/internal/agent"
	"github.com/dgallion1/inspectdoc/internal/assets"
	"github.com/dgallion1/inspectdoc/internal/editor"
	"github.com/dgallion1/inspectdoc/internal/imagebind"
	"github.com/dgallion1/inspectdoc/internal/ops"
	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

var Implementation = &mcp.Implementation{Name: "inspectdoc", Version: "0.1.0"}

// Tools registers the editor tools.
type Tools struct {
	editor *editor.Editor
	assets assets.Provider
	binder *imagebind.Binder
	log    *slog.Logger
}

func NewTools(ed *editor.Editor, provider assets.Provider, log *slog.Logger) *Tools {
	if provider == nil {
		provider = assets.None{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tools{editor: ed, assets: provider, binder: imagebind.NewBinder(log), log: log}
}

// NewServer returns an MCP server with every tool registered.
func NewServer(t *Tools) *mcp.Server {
	srv := mcp.NewServer(Implementation, nil)
	t.Register(srv)
	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func (t *Tools) Register(srv *mcp.Server) {
	t.registerGetText(srv)
	t.registerGetTree(srv)
	t.registerApply(srv)
	t.registerReplaceText(srv)
	t.registerTemplates(srv)
	t.registerImages(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var (
	docIDProp   = map[string]any{"type": "string", "description": "Document id"}
	versionProp = map[string]any{"type": "integer", "description": "Version the edit is based on; 0 accepts any"}
)

// addTool decodes arguments into a fresh Req and reports handler errors as
// tool errors so the calling model can see and correct them.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, fn func(ctx context.Context, req *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req Req
		if len(call.Params.Arguments) > 0 {
			if err := json.Unmarshal(call.Params.Arguments, &req); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}
		resp, err := fn(ctx, &req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func requireDoc(id string) error {
	if id == "" {
		return errors.New("document_id is required")
	}
	return nil
}

// --- get_text ---

type getTextReq struct {
	DocumentID string `json:"document_id"`
	Expand     bool   `json:"expand"`
}

func (t *Tools) registerGetText(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "inspectdoc_get_text",
		Description: "Read a report as flat text plus an outline of section ids, numbers and titles.",
		InputSchema: inputSchema(map[string]any{
			"document_id": docIDProp,
			"expand":      map[string]any{"type": "boolean", "description": "Render template sections in full"},
		}, []string{"document_id"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *getTextReq) (any, error) {
		if err := requireDoc(req.DocumentID); err != nil {
			return nil, err
		}
		st, err := t.editor.Open(ctx, req.DocumentID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"document_id": st.DocumentID,
			"version":     st.Version,
			"text":        t.editor.Codec().Encode(st.Tree, textcodec.EncodeOptions{ExpandTemplates: req.Expand}),
			"outline":     agent.Outline(st.Tree),
		}, nil
	})
}

// --- get_tree ---

type docReq struct {
	DocumentID string `json:"document_id"`
}

func (t *Tools) registerGetTree(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "inspectdoc_get_tree",
		Description: "Read a report's section tree, version and undo/redo status.",
		InputSchema: inputSchema(map[string]any{"document_id": docIDProp}, []string{"document_id"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *docReq) (any, error) {
		if err := requireDoc(req.DocumentID); err != nil {
			return nil, err
		}
		return t.editor.Open(ctx, req.DocumentID)
	})
}

// --- apply_operations ---

type applyReq struct {
	DocumentID  string    `json:"document_id"`
	BaseVersion int64     `json:"base_version"`
	Operations  ops.Batch `json:"operations"`
}

func (t *Tools) registerApply(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "inspectdoc_apply_operations",
		Description: "Apply a batch of operations atomically. Each operation is an object with \"op\" " +
			"(set_title, set_body, insert_section, remove_section, move_section) and its fields. " +
			"Either every operation applies or none does.",
		InputSchema: inputSchema(map[string]any{
			"document_id":  docIDProp,
			"base_version": versionProp,
			"operations": map[string]any{
				"type":        "array",
				"description": "Operations applied in order",
				"items":       map[string]any{"type": "object"},
			},
		}, []string{"document_id", "operations"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *applyReq) (any, error) {
		if err := requireDoc(req.DocumentID); err != nil {
			return nil, err
		}
		res, err := t.editor.Apply(ctx, req.DocumentID, req.BaseVersion, req.Operations)
		if err != nil {
			return nil, err
		}
		t.log.Info("mcp operations applied", "doc_id", req.DocumentID, "version", res.Version, "operations", len(req.Operations))
		return res, nil
	})
}

// --- replace_text ---

type replaceTextReq struct {
	DocumentID  string `json:"document_id"`
	BaseVersion int64  `json:"base_version"`
	Text        string `json:"text"`
}

func (t *Tools) registerReplaceText(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "inspectdoc_replace_text",
		Description: "Replace a report from flat text. Sections that keep their titles keep their ids.",
		InputSchema: inputSchema(map[string]any{
			"document_id":  docIDProp,
			"base_version": versionProp,
			"text":         map[string]any{"type": "string", "description": "Full flat text of the report"},
		}, []string{"document_id", "text"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *replaceTextReq) (any, error) {
		if err := requireDoc(req.DocumentID); err != nil {
			return nil, err
		}
		return t.editor.ReplaceText(ctx, req.DocumentID, req.BaseVersion, req.Text)
	})
}

// --- list_templates ---

func (t *Tools) registerTemplates(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "inspectdoc_list_templates",
		Description: "List the fixed template sections and their marker tokens.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(_ context.Context, _ *struct{}) (any, error) {
		reg := t.editor.Templates()
		var out []map[string]any
		for _, m := range reg.Markers() {
			tpl, _ := reg.Lookup(m)
			out = append(out, map[string]any{"marker": tpl.Marker, "title": tpl.Title})
		}
		return map[string]any{"templates": out}, nil
	})
}

// --- resolve_images ---

func (t *Tools) registerImages(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "inspectdoc_resolve_images",
		Description: "Resolve every image anchor in a report against its image assets.",
		InputSchema: inputSchema(map[string]any{"document_id": docIDProp}, []string{"document_id"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *docReq) (any, error) {
		if err := requireDoc(req.DocumentID); err != nil {
			return nil, err
		}
		st, err := t.editor.Open(ctx, req.DocumentID)
		if err != nil {
			return nil, err
		}
		images, err := t.assets.ListImages(ctx, req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("list images: %w", err)
		}
		bindings := t.binder.BindTree(st.Tree, images)
		return map[string]any{
			"version":    st.Version,
			"bindings":   bindings,
			"unresolved": len(imagebind.Unresolved(bindings)),
		}, nil
	})
}
