package dommark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hazyhaar/dommark/internal/annotation"
	"github.com/hazyhaar/dommark/internal/export"
	"github.com/hazyhaar/dommark/internal/overlay"
	"github.com/hazyhaar/dommark/internal/selector"
	"github.com/hazyhaar/dommark/internal/storage"
)

// bindingName is the page-global function the actuator calls into.
const bindingName = "__dommark_binding"

// legendExcerptMax bounds element HTML pulled per annotation for the legend.
const legendExcerptMax = 4096

// ErrAlreadyAnnotated rejects selecting an element that is already bound or,
// in focus mode, outside the focused subtree.
var ErrAlreadyAnnotated = errors.New("dommark: element already annotated or outside focus")

// pageView is the slice of the overlay renderer a session drives. Tests
// substitute a fake; the production implementation is *overlay.Renderer.
type pageView interface {
	Inject() error
	Apply(id, label string, el overlay.Rect, padding float64, color overlay.Color) error
	Remove(id string) error
	Mark(id string) error
	Resolve(sel, id string) (*overlay.ResolveResult, error)
	Describe(sel string) (*overlay.DescribeResult, error)
	Measure(id string) (overlay.Rect, bool, error)
	Excerpt(id string, max int) (string, error)
	RenderPanel(html string) error
	Toast(msg string) error
	Alert(msg string) error
	Teardown() error
}

// exporter is the capture pipeline surface a session uses.
type exporter interface {
	SaveFile(ctx context.Context, req export.Request) (string, error)
	CopyClipboard(ctx context.Context, req export.Request) error
}

// ExportMode selects the capture destination.
type ExportMode string

const (
	ExportFile      ExportMode = "file"
	ExportClipboard ExportMode = "clipboard"
)

// StateInfo is the externally visible session state.
type StateInfo struct {
	PageURL   string                   `json:"pageUrl"`
	IsEditing bool                     `json:"isEditing"`
	FocusedID string                   `json:"focusedElementId,omitempty"`
	Elements  []*annotation.Annotation `json:"elements"`
}

// sessionConfig wires a Session. All fields are required except OnStop.
type sessionConfig struct {
	PageURL string
	View    pageView
	Export  exporter
	DB      *storage.Store
	Events  *storage.EventLogger
	Logger  *slog.Logger
	// OnStop is invoked (on its own goroutine) when the user leaves edit
	// mode from inside the page, via Escape.
	OnStop func()
}

// Session is the per-page interaction controller. It owns the annotation
// store and serialises every mutation behind its mutex; each mutation is
// followed synchronously by a persistence write and a panel re-render.
type Session struct {
	pageURL string
	view    pageView
	exp     exporter
	db      *storage.Store
	events  *storage.EventLogger
	logger  *slog.Logger
	onStop  func()

	mu      sync.Mutex
	store   *annotation.Store
	stopped bool
}

func newSession(cfg sessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnStop == nil {
		cfg.OnStop = func() {}
	}
	return &Session{
		pageURL: cfg.PageURL,
		view:    cfg.View,
		exp:     cfg.Export,
		db:      cfg.DB,
		events:  cfg.Events,
		logger:  cfg.Logger,
		onStop:  cfg.OnStop,
		store:   annotation.NewStore(nil),
	}
}

// start injects the actuator, restores the persisted snapshot, and renders
// the panel. The binding listener is wired by the caller before start so no
// click is lost.
func (s *Session) start(ctx context.Context) error {
	if err := s.view.Inject(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored, skipped := s.restoreLocked(ctx)
	if restored > 0 || skipped > 0 {
		s.logger.Info("dommark: snapshot restored",
			"url", s.pageURL, "restored", restored, "skipped", skipped)
	}
	s.refreshPanelLocked()
	return nil
}

// restoreLocked re-binds a persisted snapshot to the live page. Entries whose
// selector no longer resolves, resolves to an element bound to a different
// id, or whose id is already taken are skipped with a warning; the rest come
// back with their label, color, and padding intact.
func (s *Session) restoreLocked(ctx context.Context) (restored, skipped int) {
	payload, err := s.db.LoadSnapshot(ctx, s.pageURL)
	if err != nil {
		s.logger.Warn("dommark: load snapshot failed", "url", s.pageURL, "error", err)
		return 0, 0
	}
	if payload == nil {
		return 0, 0
	}

	st, err := annotation.DecodeState(payload)
	if err != nil {
		s.logger.Warn("dommark: snapshot corrupt, starting empty", "url", s.pageURL, "error", err)
		return 0, 0
	}

	for _, el := range st.Elements {
		res, err := s.view.Resolve(el.Selector, el.ID)
		if err != nil {
			s.logger.Warn("dommark: restore resolve failed",
				"url", s.pageURL, "label", el.Label, "error", err)
			skipped++
			continue
		}
		if res.Status != "bound" {
			s.logger.Warn("dommark: restore skipped annotation",
				"url", s.pageURL, "label", el.Label, "selector", el.Selector, "status", res.Status)
			skipped++
			continue
		}

		cp := *el
		cp.Rect = res.Rect
		if !s.store.Restore(&cp) {
			// Duplicate id or a parent that did not itself restore; release
			// the element binding Resolve just made.
			s.logger.Warn("dommark: restore rejected annotation",
				"url", s.pageURL, "id", el.ID, "label", el.Label, "parent", el.ParentID)
			if err := s.view.Remove(el.ID); err != nil {
				s.logger.Warn("dommark: unbind skipped annotation failed", "id", el.ID, "error", err)
			}
			skipped++
			continue
		}
		s.applyLocked(s.store.Get(cp.ID))
		restored++
	}

	s.store.SetCounters(st)
	s.events.Log(ctx, storage.Event{
		Type:    "restore",
		PageURL: s.pageURL,
		Details: fmt.Sprintf(`{"restored":%d,"skipped":%d}`, restored, skipped),
		Success: true,
	})
	return restored, skipped
}

// Stop tears down listeners, overlay DOM, and element bindings. The durable
// snapshot is untouched. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if err := s.view.Teardown(); err != nil {
		s.logger.Warn("dommark: teardown failed", "url", s.pageURL, "error", err)
	}
}

// State returns the current annotation set.
func (s *Session) State() StateInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateInfo{
		PageURL:   s.pageURL,
		IsEditing: !s.stopped,
		FocusedID: s.store.FocusedID(),
		Elements:  s.store.Elements(),
	}
}

// bindingMsg is the envelope the actuator sends over the runtime binding.
type bindingMsg struct {
	Event string `json:"event"`

	// click
	Chain       []selector.Step `json:"chain"`
	Rect        overlay.Rect    `json:"rect"`
	Tag         string          `json:"tag"`
	BoundID     string          `json:"bound_id"`
	AncestorIDs []string        `json:"ancestor_ids"`

	// panel
	Action string `json:"action"`
	ID     string `json:"id"`
	Value  string `json:"value"`
}

// handleBinding dispatches one actuator message. Malformed payloads are
// logged and dropped; a hostile page can call the binding directly.
func (s *Session) handleBinding(ctx context.Context, payload string) {
	var msg bindingMsg
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.logger.Warn("dommark: bad binding payload", "url", s.pageURL, "error", err)
		return
	}

	switch msg.Event {
	case "click":
		s.handleClick(ctx, msg)
	case "escape":
		go s.onStop()
	case "panel":
		s.handlePanel(ctx, msg.Action, msg.ID, msg.Value)
	default:
		s.logger.Debug("dommark: unknown binding event", "event", msg.Event)
	}
}

func (s *Session) handleClick(ctx context.Context, msg bindingMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	a := s.store.Select(annotation.SelectTarget{
		Selector:    selector.Build(msg.Chain),
		TagName:     msg.Tag,
		Rect:        msg.Rect,
		BoundID:     msg.BoundID,
		AncestorIDs: msg.AncestorIDs,
	})
	if a == nil {
		// Already annotated, or outside the focused subtree.
		return
	}

	if err := s.view.Mark(a.ID); err != nil {
		s.logger.Warn("dommark: mark failed", "id", a.ID, "error", err)
	}
	s.applyLocked(a)
	s.persistLocked(ctx)
	s.refreshPanelLocked()
	s.events.Log(ctx, storage.Event{
		Type: "select", PageURL: s.pageURL, AnnotationID: a.ID,
		Details: fmt.Sprintf(`{"label":%q,"selector":%q}`, a.Label, a.Selector),
		Success: true,
	})
}

func (s *Session) handlePanel(ctx context.Context, action, id, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	switch action {
	case "label":
		if s.store.UpdateLabel(id, value) {
			s.applyLocked(s.store.Get(id))
			s.commitLocked(ctx, "update_label", id)
		}

	case "color":
		if s.store.UpdateColor(id, value) {
			s.applyLocked(s.store.Get(id))
			s.commitLocked(ctx, "update_color", id)
		}

	case "padding":
		px, err := strconv.ParseFloat(value, 64)
		if err != nil {
			s.logger.Debug("dommark: bad padding input", "value", value)
			return
		}
		if s.store.UpdatePadding(id, px) {
			s.applyLocked(s.store.Get(id))
			s.commitLocked(ctx, "update_padding", id)
		}

	case "deselect":
		removed := s.store.Deselect(id)
		for _, rid := range removed {
			if err := s.view.Remove(rid); err != nil {
				s.logger.Warn("dommark: remove overlay failed", "id", rid, "error", err)
			}
		}
		if len(removed) > 0 {
			s.commitLocked(ctx, "deselect", id)
		}

	case "focus":
		if s.store.EnterFocus(id) {
			s.commitLocked(ctx, "focus", id)
		}

	case "unfocus":
		s.store.ExitFocus()
		s.commitLocked(ctx, "unfocus", "")

	case "clear":
		scope := annotation.ClearAll
		if s.store.FocusedID() != "" {
			scope = annotation.ClearFocusedChildren
		}
		removed := s.store.Clear(scope)
		for _, rid := range removed {
			if err := s.view.Remove(rid); err != nil {
				s.logger.Warn("dommark: remove overlay failed", "id", rid, "error", err)
			}
		}
		s.commitLocked(ctx, "clear", "")

	case "export", "export_copy":
		mode := ExportFile
		if action == "export_copy" {
			mode = ExportClipboard
		}
		// Captures take a while (settle delay, rasterization); never block
		// the binding event loop on them.
		go func() {
			if _, err := s.Export(context.Background(), mode); err != nil {
				s.logger.Warn("dommark: panel export failed", "mode", mode, "error", err)
			}
		}()

	default:
		s.logger.Debug("dommark: unknown panel action", "action", action)
	}
}

// SelectBySelector annotates the element a CSS selector resolves to. Used by
// the MCP surface; shares the click path via the actuator's describe.
func (s *Session) SelectBySelector(ctx context.Context, sel string) (*annotation.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("dommark: session stopped")
	}

	desc, err := s.view.Describe(sel)
	if err != nil {
		return nil, err
	}
	if !desc.Found {
		return nil, fmt.Errorf("dommark: selector %q matches nothing", sel)
	}

	var chain []selector.Step
	if len(desc.Chain) > 0 {
		if err := json.Unmarshal(desc.Chain, &chain); err != nil {
			return nil, fmt.Errorf("dommark: decode chain: %w", err)
		}
	}

	a := s.store.Select(annotation.SelectTarget{
		Selector:    selector.Build(chain),
		TagName:     desc.Tag,
		Rect:        desc.Rect,
		BoundID:     desc.BoundID,
		AncestorIDs: desc.AncestorIDs,
	})
	if a == nil {
		return nil, ErrAlreadyAnnotated
	}

	if err := s.view.Mark(a.ID); err != nil {
		s.logger.Warn("dommark: mark failed", "id", a.ID, "error", err)
	}
	s.applyLocked(a)
	s.persistLocked(ctx)
	s.refreshPanelLocked()
	s.events.Log(ctx, storage.Event{
		Type: "select", PageURL: s.pageURL, AnnotationID: a.ID, Success: true,
	})
	return a, nil
}

// Update describes a partial annotation edit; nil fields are untouched.
type Update struct {
	Label   *string
	Color   *string
	Padding *float64
}

// Update applies a partial edit to one annotation.
func (s *Session) Update(ctx context.Context, id string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.Get(id) == nil {
		return fmt.Errorf("dommark: unknown annotation %q", id)
	}
	if upd.Label != nil && !s.store.UpdateLabel(id, *upd.Label) {
		return fmt.Errorf("dommark: update label %q", id)
	}
	if upd.Color != nil && !s.store.UpdateColor(id, *upd.Color) {
		return fmt.Errorf("dommark: invalid color %q", *upd.Color)
	}
	if upd.Padding != nil && !s.store.UpdatePadding(id, *upd.Padding) {
		return fmt.Errorf("dommark: invalid padding %v", *upd.Padding)
	}

	s.applyLocked(s.store.Get(id))
	s.commitLocked(ctx, "update", id)
	return nil
}

// Deselect removes an annotation (and, for a parent, its children).
func (s *Session) Deselect(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.store.Deselect(id)
	if len(removed) == 0 {
		return fmt.Errorf("dommark: unknown annotation %q", id)
	}
	for _, rid := range removed {
		if err := s.view.Remove(rid); err != nil {
			s.logger.Warn("dommark: remove overlay failed", "id", rid, "error", err)
		}
	}
	s.commitLocked(ctx, "deselect", id)
	return nil
}

// Focus enters focus mode on a top-level annotation; an empty id exits it.
func (s *Session) Focus(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.store.ExitFocus()
		s.commitLocked(ctx, "unfocus", "")
		return nil
	}
	if !s.store.EnterFocus(id) {
		return fmt.Errorf("dommark: cannot focus %q: unknown or not top-level", id)
	}
	s.commitLocked(ctx, "focus", id)
	return nil
}

// Clear removes annotations per scope.
func (s *Session) Clear(ctx context.Context, scope annotation.ClearScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.store.Clear(scope)
	for _, rid := range removed {
		if err := s.view.Remove(rid); err != nil {
			s.logger.Warn("dommark: remove overlay failed", "id", rid, "error", err)
		}
	}
	s.commitLocked(ctx, "clear", "")
	return nil
}

// Export captures the page (full, or cropped to the focused element) to a
// file or the clipboard. Failures are surfaced in-page via a blocking alert
// in addition to the returned error.
func (s *Session) Export(ctx context.Context, mode ExportMode) (string, error) {
	req := s.exportRequest()

	var path string
	var err error
	switch mode {
	case ExportClipboard:
		err = s.exp.CopyClipboard(ctx, req)
	default:
		path, err = s.exp.SaveFile(ctx, req)
	}

	if err != nil {
		if aerr := s.view.Alert("Export failed: " + err.Error()); aerr != nil {
			s.logger.Warn("dommark: export alert failed", "error", aerr)
		}
		s.events.Log(ctx, storage.Event{
			Type: "export", PageURL: s.pageURL,
			Details: fmt.Sprintf(`{"mode":%q,"error":%q}`, mode, err.Error()),
		})
		return "", err
	}

	if mode == ExportFile {
		if terr := s.view.Toast("Saved " + path); terr != nil {
			s.logger.Warn("dommark: export toast failed", "error", terr)
		}
	}
	s.events.Log(ctx, storage.Event{
		Type: "export", PageURL: s.pageURL,
		Details: fmt.Sprintf(`{"mode":%q}`, mode),
		Success: true,
	})
	return path, nil
}

// exportRequest snapshots the capture parameters and legend under the lock.
// The capture itself runs outside it so panel interactions stay live.
func (s *Session) exportRequest() export.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := export.Request{PageURL: s.pageURL}

	scope := s.store.Elements()
	if fid := s.store.FocusedID(); fid != "" {
		if f := s.store.Get(fid); f != nil {
			req.FocusID = f.ID
			req.FocusLabel = f.Label
			scope = append([]*annotation.Annotation{f}, s.store.Children(fid)...)
		}
	}

	for _, a := range scope {
		item := export.LegendItem{
			Label:    a.Label,
			Tag:      a.TagName,
			Selector: a.Selector,
			Color:    a.Color,
			Padding:  a.Padding,
		}
		if p := s.store.Get(a.ParentID); p != nil {
			item.Parent = p.Label
		}
		if html, err := s.view.Excerpt(a.ID, legendExcerptMax); err == nil {
			item.ExcerptHTML = html
		}
		req.Legend = append(req.Legend, item)
	}
	return req
}

// applyLocked redraws one annotation's overlays from a fresh measurement,
// falling back to the last known rect when the element cannot be measured.
func (s *Session) applyLocked(a *annotation.Annotation) {
	if a == nil {
		return
	}
	if rect, ok, err := s.view.Measure(a.ID); err == nil && ok {
		s.store.UpdateRect(a.ID, rect)
	}
	if err := s.view.Apply(a.ID, a.Label, a.Rect, a.Padding, overlay.ColorByName(a.Color)); err != nil {
		s.logger.Warn("dommark: apply overlay failed", "id", a.ID, "error", err)
	}
}

// commitLocked is the mutation epilogue: persist, re-render, log.
func (s *Session) commitLocked(ctx context.Context, eventType, annotationID string) {
	s.persistLocked(ctx)
	s.refreshPanelLocked()
	s.events.Log(ctx, storage.Event{
		Type: eventType, PageURL: s.pageURL, AnnotationID: annotationID, Success: true,
	})
}

// persistLocked writes the current state under the page URL. An empty,
// unfocused state deletes the row instead of storing an empty payload.
func (s *Session) persistLocked(ctx context.Context) {
	if s.store.Len() == 0 && s.store.FocusedID() == "" {
		if err := s.db.DeleteSnapshot(ctx, s.pageURL); err != nil {
			s.logger.Warn("dommark: delete snapshot failed", "url", s.pageURL, "error", err)
		}
		return
	}

	payload, err := annotation.EncodeState(s.store.State())
	if err != nil {
		s.logger.Warn("dommark: encode state failed", "url", s.pageURL, "error", err)
		return
	}
	if err := s.db.SaveSnapshot(ctx, s.pageURL, payload); err != nil {
		s.logger.Warn("dommark: save snapshot failed", "url", s.pageURL, "error", err)
	}
}

// refreshPanelLocked re-renders the panel from the store. In focus mode the
// panel shows the focused parent and its children; otherwise top-level
// annotations only.
func (s *Session) refreshPanelLocked() {
	data := overlay.PanelData{}

	if f := s.store.Get(s.store.FocusedID()); f != nil {
		data.Focused = true
		data.FocusLabel = f.Label
		data.Items = append(data.Items, panelItem(f, true, false))
		for _, c := range s.store.Children(f.ID) {
			data.Items = append(data.Items, panelItem(c, false, true))
		}
	} else {
		for _, a := range s.store.Elements() {
			if a.TopLevel() {
				data.Items = append(data.Items, panelItem(a, false, false))
			}
		}
	}

	html, err := overlay.RenderPanelHTML(data)
	if err != nil {
		s.logger.Warn("dommark: render panel failed", "error", err)
		return
	}
	if err := s.view.RenderPanel(html); err != nil {
		s.logger.Warn("dommark: push panel failed", "error", err)
	}
}

func panelItem(a *annotation.Annotation, focused, child bool) overlay.PanelItem {
	return overlay.PanelItem{
		ID:      a.ID,
		Label:   a.Label,
		Tag:     a.TagName,
		Color:   a.Color,
		Padding: a.Padding,
		Focused: focused,
		Child:   child,
	}
}
