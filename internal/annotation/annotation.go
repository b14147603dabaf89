// Package annotation holds the in-memory annotation collection and the
// editor counters that drive labelling.
//
// The store is the single source of truth for annotation records; the live
// DOM is only consulted for geometry. It is not safe for concurrent use;
// the owning session serialises access.
package annotation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/dommark/internal/idgen"
	"github.com/hazyhaar/dommark/internal/overlay"
)

// Annotation binds a label, color, and padding to one page element.
type Annotation struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	ParentID string       `json:"parentId,omitempty"` // empty = top-level
	Selector string       `json:"selector"`
	TagName  string       `json:"tagName"`
	Color    string       `json:"color"`
	Padding  float64      `json:"padding"`
	Rect     overlay.Rect `json:"rect"`
}

// TopLevel reports whether the annotation has no parent.
func (a *Annotation) TopLevel() bool { return a.ParentID == "" }

// Store is the ordered annotation collection plus labelling state. Order is
// selection order; it matters for restore and renumbering fallbacks, not for
// display grouping.
type Store struct {
	elements []*Annotation
	byID     map[string]*Annotation

	nextNumber       int
	focusedID        string
	focusedSubNumber int

	newID idgen.Generator
}

// NewStore creates an empty store. A nil generator falls back to prefixed
// UUIDv7 ids.
func NewStore(gen idgen.Generator) *Store {
	if gen == nil {
		gen = idgen.Prefixed("ann_", idgen.Default)
	}
	return &Store{
		byID:             make(map[string]*Annotation),
		nextNumber:       1,
		focusedSubNumber: 1,
		newID:            gen,
	}
}

// SelectTarget describes a click target as observed in the live DOM.
type SelectTarget struct {
	Selector string
	TagName  string
	Rect     overlay.Rect
	// BoundID is the annotation id already bound to the element, if any.
	BoundID string
	// AncestorIDs are annotation ids bound to the element or its ancestors,
	// element first. Used for focus containment.
	AncestorIDs []string
}

// Select creates an annotation for a target. It is a silent no-op (nil)
// when the element is already annotated or, in focus mode, when the target
// is not a descendant of the focused element.
func (s *Store) Select(t SelectTarget) *Annotation {
	if t.BoundID != "" {
		return nil
	}
	if s.focusedID != "" && !contains(t.AncestorIDs, s.focusedID) {
		return nil
	}

	a := &Annotation{
		ID:       s.newID(),
		Selector: t.Selector,
		TagName:  strings.ToLower(t.TagName),
		Color:    overlay.DefaultColor().Name,
		Rect:     t.Rect,
	}

	if s.focusedID != "" {
		parent := s.byID[s.focusedID]
		if parent == nil {
			return nil
		}
		a.ParentID = parent.ID
		a.Label = fmt.Sprintf("%s-%d", parent.Label, s.focusedSubNumber)
		s.focusedSubNumber++
	} else {
		a.Label = strconv.Itoa(s.nextNumber)
		s.nextNumber++
	}

	s.elements = append(s.elements, a)
	s.byID[a.ID] = a
	return a
}

// Restore re-inserts a persisted annotation verbatim. It refuses duplicate
// ids and dangling parent references so a partial or corrupt snapshot cannot
// violate store invariants. Callers restore in selection order, so a parent
// always precedes its children.
func (s *Store) Restore(a *Annotation) bool {
	if a == nil || a.ID == "" || s.byID[a.ID] != nil {
		return false
	}
	if a.ParentID != "" {
		p := s.byID[a.ParentID]
		if p == nil || !p.TopLevel() {
			return false
		}
	}
	cp := *a
	if !overlay.ValidColor(cp.Color) {
		cp.Color = overlay.DefaultColor().Name
	}
	if cp.Padding < 0 {
		cp.Padding = 0
	}
	s.elements = append(s.elements, &cp)
	s.byID[cp.ID] = &cp
	return true
}

// Deselect removes an annotation. Removing a parent cascade-deletes its
// children so no orphaned parent references survive. Returns the removed
// ids (empty when the id is unknown).
func (s *Store) Deselect(id string) []string {
	if s.byID[id] == nil {
		return nil
	}

	doomed := map[string]bool{id: true}
	for _, a := range s.elements {
		if a.ParentID == id {
			doomed[a.ID] = true
		}
	}

	removed := make([]string, 0, len(doomed))
	kept := s.elements[:0]
	for _, a := range s.elements {
		if doomed[a.ID] {
			removed = append(removed, a.ID)
			delete(s.byID, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	s.elements = kept

	if doomed[s.focusedID] {
		s.ExitFocus()
	}
	return removed
}

// UpdateLabel sets an annotation's display label.
func (s *Store) UpdateLabel(id, label string) bool {
	a := s.byID[id]
	if a == nil {
		return false
	}
	a.Label = label
	return true
}

// UpdateColor sets an annotation's palette color by name.
func (s *Store) UpdateColor(id, color string) bool {
	a := s.byID[id]
	if a == nil || !overlay.ValidColor(color) {
		return false
	}
	a.Color = color
	return true
}

// UpdatePadding sets an annotation's frame padding in pixels.
func (s *Store) UpdatePadding(id string, px float64) bool {
	a := s.byID[id]
	if a == nil || px < 0 {
		return false
	}
	a.Padding = px
	return true
}

// UpdateRect refreshes the last-observed bounding box.
func (s *Store) UpdateRect(id string, rect overlay.Rect) bool {
	a := s.byID[id]
	if a == nil {
		return false
	}
	a.Rect = rect
	return true
}

// EnterFocus switches labelling to sub-elements of a top-level annotation.
// The sub-counter resumes one past the highest existing "-<n>" suffix among
// the children; labels without a numeric suffix contribute 0.
func (s *Store) EnterFocus(id string) bool {
	a := s.byID[id]
	if a == nil || !a.TopLevel() {
		return false
	}

	maxSub := 0
	for _, c := range s.elements {
		if c.ParentID != id {
			continue
		}
		if n := trailingNumber(c.Label); n > maxSub {
			maxSub = n
		}
	}

	s.focusedID = id
	s.focusedSubNumber = maxSub + 1
	return true
}

// ExitFocus returns to top-level labelling.
func (s *Store) ExitFocus() {
	s.focusedID = ""
	s.focusedSubNumber = 1
}

// ClearScope selects what Clear removes.
type ClearScope string

const (
	// ClearAll removes every annotation and resets all counters.
	ClearAll ClearScope = "all"
	// ClearFocusedChildren removes only the focused group's children.
	ClearFocusedChildren ClearScope = "focused-children"
)

// Clear removes annotations per scope and returns the removed ids.
func (s *Store) Clear(scope ClearScope) []string {
	switch scope {
	case ClearFocusedChildren:
		if s.focusedID == "" {
			return nil
		}
		var removed []string
		kept := s.elements[:0]
		for _, a := range s.elements {
			if a.ParentID == s.focusedID {
				removed = append(removed, a.ID)
				delete(s.byID, a.ID)
				continue
			}
			kept = append(kept, a)
		}
		s.elements = kept
		s.focusedSubNumber = 1
		return removed

	case ClearAll:
		removed := make([]string, 0, len(s.elements))
		for _, a := range s.elements {
			removed = append(removed, a.ID)
		}
		s.elements = nil
		s.byID = make(map[string]*Annotation)
		s.nextNumber = 1
		s.ExitFocus()
		return removed

	default:
		return nil
	}
}

// Get returns an annotation by id, or nil.
func (s *Store) Get(id string) *Annotation { return s.byID[id] }

// Elements returns the annotations in selection order. The slice is a copy;
// the records are live.
func (s *Store) Elements() []*Annotation {
	out := make([]*Annotation, len(s.elements))
	copy(out, s.elements)
	return out
}

// Children returns the sub-annotations of a parent in selection order.
func (s *Store) Children(parentID string) []*Annotation {
	var out []*Annotation
	for _, a := range s.elements {
		if a.ParentID == parentID {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of annotations.
func (s *Store) Len() int { return len(s.elements) }

// FocusedID returns the focused annotation id, or "".
func (s *Store) FocusedID() string { return s.focusedID }

// trailingNumber parses the "-<n>" suffix of a sub-label.
func trailingNumber(label string) int {
	i := strings.LastIndexByte(label, '-')
	if i < 0 || i == len(label)-1 {
		return 0
	}
	n, err := strconv.Atoi(label[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
