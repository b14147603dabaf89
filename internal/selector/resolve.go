package selector

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Resolve matches a generated selector against a parsed HTML document and
// returns the first matching element in document order, or nil. Only the
// grammar produced by Build is supported: "#id", and ">"-joined segments of
// the form tag[.class...][:nth-of-type(n)]. The first segment matches at any
// depth; later segments are direct children.
func Resolve(doc *html.Node, sel string) *html.Node {
	matches := ResolveAll(doc, sel)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// ResolveAll returns every element matching the selector in document order.
func ResolveAll(doc *html.Node, sel string) []*html.Node {
	sel = strings.TrimSpace(sel)
	if sel == "" || doc == nil {
		return nil
	}

	if strings.HasPrefix(sel, "#") {
		id, err := unescape(sel[1:])
		if err != nil {
			return nil
		}
		if n := findByID(doc, id); n != nil {
			return []*html.Node{n}
		}
		return nil
	}

	segs, err := parseSegments(sel)
	if err != nil {
		return nil
	}

	// Seed with all nodes matching the first segment at any depth, then
	// narrow through child combinators.
	matches := collectMatches(doc, segs[0])
	for _, seg := range segs[1:] {
		var next []*html.Node
		for _, parent := range matches {
			for c := parent.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && seg.matches(c) {
					next = append(next, c)
				}
			}
		}
		matches = next
		if len(matches) == 0 {
			return nil
		}
	}
	return matches
}

type parsedSegment struct {
	tag     string
	classes []string
	nth     int // 0 = no :nth-of-type
}

func parseSegments(sel string) ([]parsedSegment, error) {
	parts := strings.Split(sel, ">")
	segs := make([]parsedSegment, 0, len(parts))
	for _, p := range parts {
		seg, err := parseSegment(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func parseSegment(s string) (parsedSegment, error) {
	var seg parsedSegment

	if i := strings.Index(s, ":nth-of-type("); i >= 0 {
		rest := s[i+len(":nth-of-type("):]
		j := strings.IndexByte(rest, ')')
		if j < 0 {
			return seg, fmt.Errorf("selector: unterminated nth-of-type in %q", s)
		}
		n, err := strconv.Atoi(rest[:j])
		if err != nil || n < 1 {
			return seg, fmt.Errorf("selector: bad nth-of-type in %q", s)
		}
		seg.nth = n
		s = s[:i]
	}

	fields := splitEscaped(s, '.')
	if len(fields) == 0 || fields[0] == "" {
		return seg, fmt.Errorf("selector: missing tag in segment")
	}
	seg.tag = strings.ToLower(fields[0])
	for _, f := range fields[1:] {
		c, err := unescape(f)
		if err != nil {
			return seg, err
		}
		seg.classes = append(seg.classes, c)
	}
	return seg, nil
}

func (seg parsedSegment) matches(n *html.Node) bool {
	if n.Type != html.ElementNode || !strings.EqualFold(n.Data, seg.tag) {
		return false
	}
	if len(seg.classes) > 0 {
		have := classSet(n)
		for _, want := range seg.classes {
			if !have[want] {
				return false
			}
		}
	}
	if seg.nth > 0 && nthOfType(n) != seg.nth {
		return false
	}
	return true
}

func collectMatches(n *html.Node, seg parsedSegment) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && seg.matches(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func classSet(n *html.Node) map[string]bool {
	set := make(map[string]bool)
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				set[c] = true
			}
		}
	}
	return set
}

func nthOfType(n *html.Node) int {
	pos := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && strings.EqualFold(s.Data, n.Data) {
			pos++
		}
	}
	return pos
}

// splitEscaped splits on sep, honouring backslash escapes so escaped class
// names survive intact.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			cur.WriteByte(s[i])
			cur.WriteByte(s[i+1])
			i++
		case s[i] == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	parts = append(parts, cur.String())
	return parts
}

// unescape reverses Escape: "\XX " hex escapes and single-character
// backslash escapes.
func unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("selector: dangling escape in %q", s)
		}
		if isHex(s[i+1]) {
			j := i + 1
			for j < len(s) && j-i <= 6 && isHex(s[j]) {
				j++
			}
			code, err := strconv.ParseUint(s[i+1:j], 16, 32)
			if err != nil {
				return "", fmt.Errorf("selector: bad hex escape in %q", s)
			}
			b.WriteRune(rune(code))
			// A single whitespace terminates a hex escape.
			if j < len(s) && s[j] == ' ' {
				j++
			}
			i = j - 1
			continue
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String(), nil
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
