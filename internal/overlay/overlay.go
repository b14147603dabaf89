package overlay

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
)

//go:embed overlay.js
var actuatorJS string

// Renderer drives the injected page actuator for one page. All DOM writes
// go through here; the JS side holds no state worth persisting.
type Renderer struct {
	page *rod.Page
}

// NewRenderer wraps a page. Call Inject before any other method.
func NewRenderer(page *rod.Page) *Renderer {
	return &Renderer{page: page}
}

// Inject installs the actuator into the page. Idempotent: the script bails
// out if a previous injection is still live.
func (r *Renderer) Inject() error {
	css, _ := json.Marshal(HighlightTemplate())
	if _, err := r.page.Eval(fmt.Sprintf("() => { window.__dommark_highlight_css = %s; }", css)); err != nil {
		return fmt.Errorf("overlay: set highlight template: %w", err)
	}
	if _, err := r.page.Eval(actuatorJS); err != nil {
		return fmt.Errorf("overlay: inject actuator: %w", err)
	}
	return nil
}

// Apply creates or updates the frame and badge overlays for an annotation.
func (r *Renderer) Apply(id, label string, el Rect, padding float64, color Color) error {
	frame := FrameBox(el, padding)
	badge := BadgeBox(frame, label)
	_, err := r.page.Eval(
		`(id, frameCSS, badgeCSS, label) => window.__dommark.apply(id, frameCSS, badgeCSS, label)`,
		id, FrameStyle(frame, color.Hex), BadgeStyle(badge, color.Hex), label,
	)
	if err != nil {
		return fmt.Errorf("overlay: apply %s: %w", id, err)
	}
	return nil
}

// Remove deletes an annotation's overlays and unbinds its page element.
func (r *Renderer) Remove(id string) error {
	if _, err := r.page.Eval(`(id) => window.__dommark.remove(id)`, id); err != nil {
		return fmt.Errorf("overlay: remove %s: %w", id, err)
	}
	return nil
}

// Mark binds the most recently clicked element to an annotation id.
func (r *Renderer) Mark(id string) error {
	if _, err := r.page.Eval(`(id) => window.__dommark.mark(id)`, id); err != nil {
		return fmt.Errorf("overlay: mark %s: %w", id, err)
	}
	return nil
}

// ResolveResult reports a selector re-binding attempt during restore.
type ResolveResult struct {
	Status  string `json:"status"` // bound | missing | conflict
	BoundID string `json:"bound_id,omitempty"`
	Rect    Rect   `json:"rect"`
	Tag     string `json:"tag,omitempty"`
}

// Resolve re-binds a persisted selector to its live element and marks it.
func (r *Renderer) Resolve(sel, id string) (*ResolveResult, error) {
	res, err := r.page.Eval(`(sel, id) => JSON.stringify(window.__dommark.resolve(sel, id))`, sel, id)
	if err != nil {
		return nil, fmt.Errorf("overlay: resolve %q: %w", sel, err)
	}
	var out ResolveResult
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, fmt.Errorf("overlay: resolve %q: decode: %w", sel, err)
	}
	return &out, nil
}

// DescribeResult reports a live element looked up by CSS selector. Chain is
// the raw ancestor step chain; the caller decodes it with its own step type.
type DescribeResult struct {
	Found       bool            `json:"found"`
	Chain       json.RawMessage `json:"chain,omitempty"`
	Rect        Rect            `json:"rect"`
	Tag         string          `json:"tag,omitempty"`
	BoundID     string          `json:"bound_id,omitempty"`
	AncestorIDs []string        `json:"ancestor_ids,omitempty"`
}

// Describe looks up an element by selector and reports it exactly the way a
// click would, so selector-driven selection shares the click path. The
// element becomes the pending Mark target.
func (r *Renderer) Describe(sel string) (*DescribeResult, error) {
	res, err := r.page.Eval(`(sel) => JSON.stringify(window.__dommark.describe(sel))`, sel)
	if err != nil {
		return nil, fmt.Errorf("overlay: describe %q: %w", sel, err)
	}
	var out DescribeResult
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, fmt.Errorf("overlay: describe %q: decode: %w", sel, err)
	}
	return &out, nil
}

// Measure returns the live page-relative box of a bound element, or false
// when the element is no longer in the document.
func (r *Renderer) Measure(id string) (Rect, bool, error) {
	res, err := r.page.Eval(`(id) => JSON.stringify(window.__dommark.measure(id))`, id)
	if err != nil {
		return Rect{}, false, fmt.Errorf("overlay: measure %s: %w", id, err)
	}
	raw := res.Value.Str()
	if raw == "" || raw == "null" {
		return Rect{}, false, nil
	}
	var rect Rect
	if err := json.Unmarshal([]byte(raw), &rect); err != nil {
		return Rect{}, false, fmt.Errorf("overlay: measure %s: decode: %w", id, err)
	}
	return rect, true, nil
}

// Excerpt returns up to max bytes of a bound element's outer HTML. The
// caller is responsible for sanitising it.
func (r *Renderer) Excerpt(id string, max int) (string, error) {
	res, err := r.page.Eval(`(id, max) => window.__dommark.excerpt(id, max)`, id, max)
	if err != nil {
		return "", fmt.Errorf("overlay: excerpt %s: %w", id, err)
	}
	return res.Value.Str(), nil
}

// RenderPanel replaces the panel contents.
func (r *Renderer) RenderPanel(html string) error {
	if _, err := r.page.Eval(`(html, css) => window.__dommark.renderPanel(html, css)`, html, PanelStyle()); err != nil {
		return fmt.Errorf("overlay: render panel: %w", err)
	}
	return nil
}

// HideUI hides the panel, highlight, and any toast ahead of a capture.
func (r *Renderer) HideUI() error {
	if _, err := r.page.Eval(`() => window.__dommark.hideUI()`); err != nil {
		return fmt.Errorf("overlay: hide UI: %w", err)
	}
	return nil
}

// ShowUI restores panel visibility after a capture.
func (r *Renderer) ShowUI() error {
	if _, err := r.page.Eval(`() => window.__dommark.showUI()`); err != nil {
		return fmt.Errorf("overlay: show UI: %w", err)
	}
	return nil
}

// Alert raises a native blocking alert. Scheduled via setTimeout so the
// eval returns before the dialog opens; a synchronous alert would park the
// call until the user dismisses it.
func (r *Renderer) Alert(msg string) error {
	if _, err := r.page.Eval(`(msg) => { setTimeout(() => alert(msg), 0); }`, msg); err != nil {
		return fmt.Errorf("overlay: alert: %w", err)
	}
	return nil
}

// Toast shows a transient confirmation message.
func (r *Renderer) Toast(msg string) error {
	if _, err := r.page.Eval(`(msg, css) => window.__dommark.toast(msg, css)`, msg, ToastStyle()); err != nil {
		return fmt.Errorf("overlay: toast: %w", err)
	}
	return nil
}

// Scroll returns the current page scroll offset.
func (r *Renderer) Scroll() (x, y float64, err error) {
	res, err := r.page.Eval(`() => JSON.stringify(window.__dommark.scroll())`)
	if err != nil {
		return 0, 0, fmt.Errorf("overlay: scroll: %w", err)
	}
	var s struct{ X, Y float64 }
	if err := json.Unmarshal([]byte(res.Value.Str()), &s); err != nil {
		return 0, 0, fmt.Errorf("overlay: scroll: decode: %w", err)
	}
	return s.X, s.Y, nil
}

// ScrollTo sets the page scroll offset.
func (r *Renderer) ScrollTo(x, y float64) error {
	if _, err := r.page.Eval(`(x, y) => window.__dommark.scrollTo(x, y)`, x, y); err != nil {
		return fmt.Errorf("overlay: scroll to: %w", err)
	}
	return nil
}

// Teardown removes listeners, overlays, panel, and element bindings.
// Persisted data is untouched.
func (r *Renderer) Teardown() error {
	if _, err := r.page.Eval(`() => { if (window.__dommark) window.__dommark.teardown(); }`); err != nil {
		return fmt.Errorf("overlay: teardown: %w", err)
	}
	return nil
}
