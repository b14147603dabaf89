package dommark

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/dommark/internal/export"
	"github.com/hazyhaar/dommark/internal/overlay"
	"github.com/hazyhaar/dommark/internal/selector"
	"github.com/hazyhaar/dommark/internal/storage"
)

const testURL = "https://app.test/pricing"

// fakeView records actuator calls without a browser.
type fakeView struct {
	mu       sync.Mutex
	applied  map[string]string // id -> label
	marked   []string
	removed  []string
	panels   []string
	toasts   []string
	alerts   []string
	resolve  map[string]overlay.ResolveResult  // selector -> result
	describe map[string]overlay.DescribeResult // selector -> result
	measure  map[string]overlay.Rect           // id -> live rect
}

func newFakeView() *fakeView {
	return &fakeView{
		applied:  make(map[string]string),
		resolve:  make(map[string]overlay.ResolveResult),
		describe: make(map[string]overlay.DescribeResult),
		measure:  make(map[string]overlay.Rect),
	}
}

func (v *fakeView) Inject() error { return nil }

func (v *fakeView) Apply(id, label string, el overlay.Rect, padding float64, color overlay.Color) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.applied[id] = label
	return nil
}

func (v *fakeView) Remove(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.applied, id)
	v.removed = append(v.removed, id)
	return nil
}

func (v *fakeView) Mark(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.marked = append(v.marked, id)
	return nil
}

func (v *fakeView) Resolve(sel, id string) (*overlay.ResolveResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if res, ok := v.resolve[sel]; ok {
		return &res, nil
	}
	return &overlay.ResolveResult{Status: "missing"}, nil
}

func (v *fakeView) Describe(sel string) (*overlay.DescribeResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if res, ok := v.describe[sel]; ok {
		return &res, nil
	}
	return &overlay.DescribeResult{}, nil
}

func (v *fakeView) Measure(id string) (overlay.Rect, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rect, ok := v.measure[id]
	return rect, ok, nil
}

func (v *fakeView) Excerpt(id string, max int) (string, error) {
	return "<div>excerpt</div>", nil
}

func (v *fakeView) RenderPanel(html string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panels = append(v.panels, html)
	return nil
}

func (v *fakeView) Toast(msg string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.toasts = append(v.toasts, msg)
	return nil
}

func (v *fakeView) Alert(msg string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, msg)
	return nil
}

func (v *fakeView) Teardown() error { return nil }

// fakeExporter records capture requests.
type fakeExporter struct {
	mu   sync.Mutex
	reqs []export.Request
	err  error
}

func (e *fakeExporter) SaveFile(ctx context.Context, req export.Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	if e.err != nil {
		return "", e.err
	}
	return "/tmp/design-spec.png", nil
}

func (e *fakeExporter) CopyClipboard(ctx context.Context, req export.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return e.err
}

func testSession(t *testing.T) (*Session, *fakeView, *fakeExporter, *storage.Store) {
	t.Helper()
	db := storage.OpenMemory(t)
	v := newFakeView()
	e := &fakeExporter{}
	s := newSession(sessionConfig{
		PageURL: testURL,
		View:    v,
		Export:  e,
		DB:      db,
		Events:  storage.NewEventLogger(db, nil),
		Logger:  slog.New(slog.DiscardHandler),
	})
	return s, v, e, db
}

// clickPayload builds the actuator click message for a simple element.
func clickPayload(t *testing.T, tag string, chain []selector.Step, boundID string, ancestors []string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"event":        "click",
		"chain":        chain,
		"rect":         overlay.Rect{Top: 100, Left: 50, Width: 200, Height: 80},
		"tag":          tag,
		"bound_id":     boundID,
		"ancestor_ids": ancestors,
	})
	if err != nil {
		t.Fatalf("marshal click: %v", err)
	}
	return string(payload)
}

func panelPayload(t *testing.T, action, id, value string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"event": "panel", "action": action, "id": id, "value": value,
	})
	if err != nil {
		t.Fatalf("marshal panel: %v", err)
	}
	return string(payload)
}

func sectionChain() []selector.Step {
	return []selector.Step{
		{Tag: "main", NthOfType: 1, SameTagSiblings: 1, TagClassUnique: true},
		{Tag: "section", Classes: []string{"pricing"}, NthOfType: 1, SameTagSiblings: 2, TagClassUnique: true},
	}
}

func TestSession_ClickSelects(t *testing.T) {
	s, v, _, db := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))

	st := s.State()
	if len(st.Elements) != 1 {
		t.Fatalf("elements: got %d, want 1", len(st.Elements))
	}
	a := st.Elements[0]
	if a.Label != "1" || a.TagName != "section" {
		t.Errorf("annotation: label %q tag %q", a.Label, a.TagName)
	}
	if a.Selector != "main>section.pricing" {
		t.Errorf("selector: got %q", a.Selector)
	}

	if len(v.marked) != 1 || v.marked[0] != a.ID {
		t.Errorf("marked: got %v", v.marked)
	}
	if v.applied[a.ID] != "1" {
		t.Errorf("applied: got %v", v.applied)
	}
	if len(v.panels) == 0 {
		t.Error("panel never rendered")
	}

	payload, err := db.LoadSnapshot(ctx, testURL)
	if err != nil || payload == nil {
		t.Fatalf("snapshot not persisted: %v %v", payload, err)
	}
}

func TestSession_ClickOnBoundElementIgnored(t *testing.T) {
	s, _, _, _ := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))
	id := s.State().Elements[0].ID
	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), id, []string{id}))

	if got := len(s.State().Elements); got != 1 {
		t.Fatalf("elements after re-click: got %d, want 1", got)
	}
}

func TestSession_EscapeStops(t *testing.T) {
	db := storage.OpenMemory(t)
	stopped := make(chan struct{})
	s := newSession(sessionConfig{
		PageURL: testURL,
		View:    newFakeView(),
		Export:  &fakeExporter{},
		DB:      db,
		Events:  storage.NewEventLogger(db, nil),
		Logger:  slog.New(slog.DiscardHandler),
		OnStop:  func() { close(stopped) },
	})

	s.handleBinding(context.Background(), `{"event":"escape"}`)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("escape did not trigger stop")
	}
}

func TestSession_PanelEdits(t *testing.T) {
	s, v, _, _ := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))
	id := s.State().Elements[0].ID

	s.handleBinding(ctx, panelPayload(t, "label", id, "hero"))
	s.handleBinding(ctx, panelPayload(t, "color", id, "green"))
	s.handleBinding(ctx, panelPayload(t, "padding", id, "12"))

	a := s.State().Elements[0]
	if a.Label != "hero" || a.Color != "green" || a.Padding != 12 {
		t.Errorf("after edits: label %q color %q padding %v", a.Label, a.Color, a.Padding)
	}
	if v.applied[id] != "hero" {
		t.Errorf("overlay not redrawn: %v", v.applied)
	}

	// Invalid inputs leave state untouched.
	s.handleBinding(ctx, panelPayload(t, "padding", id, "not-a-number"))
	s.handleBinding(ctx, panelPayload(t, "color", id, "magenta"))
	a = s.State().Elements[0]
	if a.Color != "green" || a.Padding != 12 {
		t.Errorf("invalid edits applied: color %q padding %v", a.Color, a.Padding)
	}
}

func TestSession_DeselectEmptiesSnapshot(t *testing.T) {
	s, v, _, db := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))
	id := s.State().Elements[0].ID
	s.handleBinding(ctx, panelPayload(t, "deselect", id, ""))

	if got := len(s.State().Elements); got != 0 {
		t.Fatalf("elements after deselect: got %d", got)
	}
	if len(v.removed) != 1 || v.removed[0] != id {
		t.Errorf("overlay removals: got %v", v.removed)
	}

	payload, err := db.LoadSnapshot(ctx, testURL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if payload != nil {
		t.Errorf("empty state kept snapshot row: %s", payload)
	}
}

func TestSession_FocusContainment(t *testing.T) {
	s, _, _, _ := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))
	parent := s.State().Elements[0]
	s.handleBinding(ctx, panelPayload(t, "focus", parent.ID, ""))

	h2 := []selector.Step{
		{Tag: "main", NthOfType: 1, SameTagSiblings: 1, TagClassUnique: true},
		{Tag: "section", Classes: []string{"pricing"}, NthOfType: 1, SameTagSiblings: 2, TagClassUnique: true},
		{Tag: "h2", NthOfType: 1, SameTagSiblings: 1, TagClassUnique: true},
	}
	// Inside the focused subtree.
	s.handleBinding(ctx, clickPayload(t, "H2", h2, "", []string{parent.ID}))
	// Outside it.
	other := []selector.Step{{Tag: "footer", NthOfType: 1, SameTagSiblings: 1, TagClassUnique: true}}
	s.handleBinding(ctx, clickPayload(t, "FOOTER", other, "", nil))

	st := s.State()
	if len(st.Elements) != 2 {
		t.Fatalf("elements: got %d, want 2", len(st.Elements))
	}
	child := st.Elements[1]
	if child.ParentID != parent.ID || child.Label != "1-1" {
		t.Errorf("child: parent %q label %q", child.ParentID, child.Label)
	}

	s.handleBinding(ctx, panelPayload(t, "unfocus", "", ""))
	if s.State().FocusedID != "" {
		t.Error("unfocus did not clear focus")
	}
}

func TestSession_ClearScopes(t *testing.T) {
	s, _, _, _ := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))
	parent := s.State().Elements[0]
	s.handleBinding(ctx, panelPayload(t, "focus", parent.ID, ""))

	h2 := append(sectionChain(), selector.Step{Tag: "h2", NthOfType: 1, SameTagSiblings: 1, TagClassUnique: true})
	s.handleBinding(ctx, clickPayload(t, "H2", h2, "", []string{parent.ID}))

	// Focused clear removes only the children.
	s.handleBinding(ctx, panelPayload(t, "clear", "", ""))
	st := s.State()
	if len(st.Elements) != 1 || st.Elements[0].ID != parent.ID {
		t.Fatalf("after focused clear: %d elements", len(st.Elements))
	}

	s.handleBinding(ctx, panelPayload(t, "unfocus", "", ""))
	s.handleBinding(ctx, panelPayload(t, "clear", "", ""))
	if got := len(s.State().Elements); got != 0 {
		t.Fatalf("after clear all: %d elements", got)
	}
}

func TestSession_Restore(t *testing.T) {
	s, v, _, db := testSession(t)
	ctx := context.Background()

	snapshot := `{
		"elements": [
			{"id":"ann_1","label":"hero","selector":"main>section.pricing","tagName":"section","color":"red","padding":4},
			{"id":"ann_2","label":"2","selector":"#gone","tagName":"div","color":"blue"}
		],
		"nextNumber": 3,
		"focusedElementId": null,
		"focusedSubNumber": 1
	}`
	if err := db.SaveSnapshot(ctx, testURL, []byte(snapshot)); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	v.resolve["main>section.pricing"] = overlay.ResolveResult{
		Status: "bound",
		Rect:   overlay.Rect{Top: 10, Left: 20, Width: 300, Height: 120},
		Tag:    "section",
	}

	if err := s.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	st := s.State()
	if len(st.Elements) != 1 {
		t.Fatalf("restored: got %d elements, want 1", len(st.Elements))
	}
	a := st.Elements[0]
	if a.ID != "ann_1" || a.Label != "hero" || a.Rect.Width != 300 {
		t.Errorf("restored annotation: %+v", a)
	}
	if v.applied["ann_1"] != "hero" {
		t.Errorf("restored overlay not drawn: %v", v.applied)
	}

	// Counters resumed: the next top-level selection is number 3.
	s.handleBinding(ctx, clickPayload(t, "FOOTER",
		[]selector.Step{{Tag: "footer", NthOfType: 1, SameTagSiblings: 1, TagClassUnique: true}}, "", nil))
	st = s.State()
	if got := st.Elements[len(st.Elements)-1].Label; got != "3" {
		t.Errorf("next label after restore: got %q, want 3", got)
	}
}

func TestSession_RestoreSkipsChildOfUnresolvedParent(t *testing.T) {
	s, v, _, db := testSession(t)
	ctx := context.Background()

	// The parent's selector no longer resolves; the child's still does.
	snapshot := `{
		"elements": [
			{"id":"ann_p","label":"1","selector":"#gone","tagName":"section","color":"red"},
			{"id":"ann_c","label":"1-1","parentId":"ann_p","selector":"main>h2","tagName":"h2","color":"red"}
		],
		"nextNumber": 2,
		"focusedSubNumber": 2
	}`
	if err := db.SaveSnapshot(ctx, testURL, []byte(snapshot)); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	v.resolve["main>h2"] = overlay.ResolveResult{
		Status: "bound",
		Rect:   overlay.Rect{Top: 10, Left: 20, Width: 300, Height: 40},
		Tag:    "h2",
	}

	if err := s.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	st := s.State()
	if len(st.Elements) != 0 {
		t.Fatalf("restored %d elements, want 0: %+v", len(st.Elements), st.Elements)
	}
	for _, a := range st.Elements {
		if a.ParentID != "" {
			t.Errorf("annotation %s has parentId %q referencing nothing", a.ID, a.ParentID)
		}
	}
	if _, ok := v.applied["ann_c"]; ok {
		t.Error("overlay drawn for skipped annotation")
	}
	if len(v.removed) != 1 || v.removed[0] != "ann_c" {
		t.Errorf("skipped annotation not unbound: %v", v.removed)
	}
}

func TestSession_SelectBySelector(t *testing.T) {
	s, v, _, _ := testSession(t)
	ctx := context.Background()

	chain, _ := json.Marshal(sectionChain())
	v.describe["main>section.pricing"] = overlay.DescribeResult{
		Found: true,
		Chain: chain,
		Rect:  overlay.Rect{Top: 5, Left: 5, Width: 100, Height: 40},
		Tag:   "section",
	}

	a, err := s.SelectBySelector(ctx, "main>section.pricing")
	if err != nil {
		t.Fatalf("SelectBySelector: %v", err)
	}
	if a.Label != "1" || a.Selector != "main>section.pricing" {
		t.Errorf("annotation: %+v", a)
	}

	if _, err := s.SelectBySelector(ctx, "#nothing"); err == nil {
		t.Error("expected error for unmatched selector")
	}

	v.describe["main>section.pricing"] = overlay.DescribeResult{
		Found: true, Chain: chain, Tag: "section", BoundID: a.ID, AncestorIDs: []string{a.ID},
	}
	if _, err := s.SelectBySelector(ctx, "main>section.pricing"); !errors.Is(err, ErrAlreadyAnnotated) {
		t.Errorf("re-select: got %v, want ErrAlreadyAnnotated", err)
	}
}

func TestSession_ExportBuildsLegend(t *testing.T) {
	s, _, e, _ := testSession(t)
	ctx := context.Background()

	s.handleBinding(ctx, clickPayload(t, "SECTION", sectionChain(), "", nil))
	parent := s.State().Elements[0]
	s.handleBinding(ctx, panelPayload(t, "focus", parent.ID, ""))

	if _, err := s.Export(ctx, ExportFile); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if len(e.reqs) != 1 {
		t.Fatalf("exporter calls: got %d", len(e.reqs))
	}
	req := e.reqs[0]
	if req.FocusID != parent.ID || req.FocusLabel != parent.Label {
		t.Errorf("focus request: %+v", req)
	}
	if len(req.Legend) != 1 || req.Legend[0].ExcerptHTML == "" {
		t.Errorf("legend: %+v", req.Legend)
	}
}

func TestSession_ExportFailureAlerts(t *testing.T) {
	s, v, e, _ := testSession(t)
	ctx := context.Background()
	e.err = errors.New("rasterizer down")

	if _, err := s.Export(ctx, ExportClipboard); err == nil {
		t.Fatal("expected export error")
	}
	if len(v.alerts) != 1 {
		t.Fatalf("alerts: got %v", v.alerts)
	}
}
