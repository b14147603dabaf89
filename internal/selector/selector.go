// Package selector derives CSS-like paths that can re-locate a DOM element
// after a page reload, and resolves those paths against parsed HTML.
//
// Generated selectors favour stability over precision: an element id wins
// outright, otherwise ancestor segments carry at most two class names plus a
// sibling position, and only the last few segments are kept. Resolution
// against a changed DOM may miss or mis-bind; callers must treat "not found"
// as a skip, not an error.
package selector

import (
	"fmt"
	"strings"
)

// maxSegments bounds selector length to the segments closest to the element.
const maxSegments = 4

// maxClasses is the number of class names carried per segment.
const maxClasses = 2

// Step describes one element on the path from an ancestor down to the
// selected element, as observed in the live DOM.
type Step struct {
	Tag string `json:"tag"`
	ID  string `json:"id,omitempty"`
	// Classes are the element's class names in attribute order.
	Classes []string `json:"classes,omitempty"`
	// NthOfType is the 1-based position among same-tag siblings.
	NthOfType int `json:"nth_of_type"`
	// SameTagSiblings counts siblings sharing the tag, the element included.
	SameTagSiblings int `json:"same_tag_siblings"`
	// TagClassUnique is true when no sibling shares both the tag and the
	// class set emitted for this segment.
	TagClassUnique bool `json:"tag_class_unique"`
}

// Build produces a selector from a step chain ordered outermost ancestor
// first, selected element last. The chain must not include body or anything
// above it. An empty chain (the element was body itself) yields "".
func Build(chain []Step) string {
	if len(chain) == 0 {
		return ""
	}

	last := chain[len(chain)-1]
	if last.ID != "" {
		return "#" + Escape(last.ID)
	}

	segments := make([]string, 0, len(chain))
	for _, step := range chain {
		segments = append(segments, segment(step))
	}

	if len(segments) > maxSegments {
		segments = segments[len(segments)-maxSegments:]
	}
	return strings.Join(segments, ">")
}

func segment(step Step) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(step.Tag))

	classes := usableClasses(step.Classes)
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}

	// Position disambiguation only when siblings share the tag and the
	// tag+class pair does not already pin the element down.
	if step.SameTagSiblings > 1 && !step.TagClassUnique {
		fmt.Fprintf(&b, ":nth-of-type(%d)", step.NthOfType)
	}
	return b.String()
}

// usableClasses filters out dommark's own marker classes and truncates to
// maxClasses.
func usableClasses(classes []string) []string {
	out := make([]string, 0, maxClasses)
	for _, c := range classes {
		if c == "" || strings.HasPrefix(c, "dommark-") || strings.HasPrefix(c, "__dommark") {
			continue
		}
		out = append(out, c)
		if len(out) == maxClasses {
			break
		}
	}
	return out
}

// Escape makes an identifier safe for use in a CSS selector. It follows the
// CSS.escape algorithm closely enough for ids and class names found in the
// wild: ASCII letters, digits, hyphen and underscore pass through, a leading
// digit becomes a code point escape, everything else is backslash-escaped.
func Escape(ident string) string {
	var b strings.Builder
	for i, r := range ident {
		switch {
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, "\\%x ", r)
			} else {
				b.WriteRune(r)
			}
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_', r > 0x7f:
			b.WriteRune(r)
		case r == 0:
			b.WriteRune('�')
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
