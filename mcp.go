package dommark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/dommark/internal/annotation"
	"github.com/hazyhaar/dommark/internal/kit"
)

// RegisterMCP registers dommark tools on an MCP server.
func (m *Marker) RegisterMCP(srv *mcp.Server) {
	m.registerStartEditingTool(srv)
	m.registerStopEditingTool(srv)
	m.registerGetStateTool(srv)
	m.registerSelectTool(srv)
	m.registerUpdateTool(srv)
	m.registerFocusTool(srv)
	m.registerClearTool(srv)
	m.registerExportTool(srv)
	m.registerCheckTool(srv)
	m.registerListPagesTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
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

// session resolves the live session for a URL or fails the tool call.
func (m *Marker) session(pageURL string) (*Session, error) {
	sess := m.Session(pageURL)
	if sess == nil {
		return nil, fmt.Errorf("no active editing session for %s; call dommark_start_editing first", pageURL)
	}
	return sess, nil
}

// --- start_editing ---

type startEditingRequest struct {
	URL string `json:"url"`
}

func (m *Marker) registerStartEditingTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_start_editing",
		Description: "Open a page and enter annotation edit mode. Restores any persisted annotations for the URL.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL to annotate"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*startEditingRequest)
		sess, err := m.StartEditing(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return sess.State(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[startEditingRequest])
}

// --- stop_editing ---

type stopEditingRequest struct {
	URL string `json:"url"`
}

func (m *Marker) registerStopEditingTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_stop_editing",
		Description: "Leave edit mode for a page. Overlays are removed; the annotation snapshot stays persisted.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*stopEditingRequest)
		return map[string]bool{"stopped": m.StopEditing(r.URL)}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[stopEditingRequest])
}

// --- get_state ---

type getStateRequest struct {
	URL string `json:"url"`
}

func (m *Marker) registerGetStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_get_state",
		Description: "Return the annotation state for a URL: live when a session is active, otherwise the persisted snapshot.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getStateRequest)
		return m.State(ctx, r.URL)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[getStateRequest])
}

// --- select ---

type selectRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
}

func (m *Marker) registerSelectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_select",
		Description: "Annotate the element a CSS selector resolves to, as if it had been clicked.",
		InputSchema: inputSchema(map[string]any{
			"url":      map[string]any{"type": "string", "description": "Page URL with an active session"},
			"selector": map[string]any{"type": "string", "description": "CSS selector of the element to annotate"},
		}, []string{"url", "selector"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*selectRequest)
		sess, err := m.session(r.URL)
		if err != nil {
			return nil, err
		}
		return sess.SelectBySelector(ctx, r.Selector)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[selectRequest])
}

// --- update ---

type updateRequest struct {
	URL     string   `json:"url"`
	ID      string   `json:"id"`
	Label   *string  `json:"label,omitempty"`
	Color   *string  `json:"color,omitempty"`
	Padding *float64 `json:"padding,omitempty"`
	Remove  bool     `json:"remove,omitempty"`
}

func (m *Marker) registerUpdateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_update",
		Description: "Edit an annotation's label, color, or padding, or remove it. Removing a parent removes its children.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL with an active session"},
			"id":      map[string]any{"type": "string", "description": "Annotation id"},
			"label":   map[string]any{"type": "string", "description": "New badge label"},
			"color":   map[string]any{"type": "string", "enum": []any{"red", "blue", "green", "orange", "purple"}, "description": "Palette color name"},
			"padding": map[string]any{"type": "number", "description": "Frame padding in pixels (>= 0)"},
			"remove":  map[string]any{"type": "boolean", "description": "Remove the annotation instead of editing it"},
		}, []string{"url", "id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateRequest)
		sess, err := m.session(r.URL)
		if err != nil {
			return nil, err
		}
		if r.Remove {
			if err := sess.Deselect(ctx, r.ID); err != nil {
				return nil, err
			}
			return map[string]bool{"removed": true}, nil
		}
		if err := sess.Update(ctx, r.ID, Update{Label: r.Label, Color: r.Color, Padding: r.Padding}); err != nil {
			return nil, err
		}
		return sess.State(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[updateRequest])
}

// --- focus ---

type focusRequest struct {
	URL string `json:"url"`
	ID  string `json:"id,omitempty"`
}

func (m *Marker) registerFocusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_focus",
		Description: "Enter focus mode on a top-level annotation to label its sub-elements; omit id to exit focus mode.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL with an active session"},
			"id":  map[string]any{"type": "string", "description": "Top-level annotation id; empty exits focus"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*focusRequest)
		sess, err := m.session(r.URL)
		if err != nil {
			return nil, err
		}
		if err := sess.Focus(ctx, r.ID); err != nil {
			return nil, err
		}
		return sess.State(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[focusRequest])
}

// --- clear ---

type clearRequest struct {
	URL   string `json:"url"`
	Scope string `json:"scope,omitempty"`
}

func (m *Marker) registerClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_clear",
		Description: "Remove annotations: scope 'all' (default) or 'focused-children' for the focused group only.",
		InputSchema: inputSchema(map[string]any{
			"url":   map[string]any{"type": "string", "description": "Page URL with an active session"},
			"scope": map[string]any{"type": "string", "enum": []any{"all", "focused-children"}, "description": "Clear scope (default: all)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clearRequest)
		sess, err := m.session(r.URL)
		if err != nil {
			return nil, err
		}
		scope := annotation.ClearScope(r.Scope)
		if scope == "" {
			scope = annotation.ClearAll
		}
		if err := sess.Clear(ctx, scope); err != nil {
			return nil, err
		}
		return sess.State(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[clearRequest])
}

// --- export ---

type exportRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

func (m *Marker) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_export",
		Description: "Capture the annotated page as PNG: full page, or cropped to the focused element. Mode 'file' (default) or 'clipboard'.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Page URL with an active session"},
			"mode": map[string]any{"type": "string", "enum": []any{"file", "clipboard"}, "description": "Capture destination (default: file)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportRequest)
		mode := ExportMode(r.Mode)
		if mode == "" {
			mode = ExportFile
		}
		path, err := m.Export(ctx, r.URL, mode)
		if err != nil {
			return nil, err
		}
		return map[string]string{"mode": string(mode), "path": path}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[exportRequest])
}

// --- check ---

type checkRequest struct {
	URL string `json:"url"`
}

func (m *Marker) registerCheckTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_check",
		Description: "Verify, without a browser, which persisted selectors for a URL still resolve against the current page HTML.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL with a persisted snapshot"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*checkRequest)
		return m.CheckSnapshot(ctx, r.URL)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[checkRequest])
}

// --- list_pages ---

type listPagesRequest struct{}

func (m *Marker) registerListPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dommark_list_pages",
		Description: "List every URL with a persisted annotation snapshot, most recently updated first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		urls, err := m.Pages(ctx)
		if err != nil {
			return nil, err
		}
		if urls == nil {
			urls = []string{}
		}
		return map[string]any{"pages": urls}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[listPagesRequest])
}

// decodeInto unmarshals MCP tool arguments into a typed request.
func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}
