// Package check validates persisted snapshots against the current page HTML
// without a browser: a single HTTP GET plus offline selector resolution.
// Useful to see which annotations would survive a restore after a site
// redesign.
package check

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/dommark/internal/annotation"
	"github.com/hazyhaar/dommark/internal/selector"
)

// maxBody bounds how much HTML is read from the page.
const maxBody = 8 << 20

// ElementResult is the outcome for one persisted annotation.
type ElementResult struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selector string `json:"selector"`
	Resolved bool   `json:"resolved"`
	// Matches counts elements the selector hits; >1 means the binding is
	// ambiguous and a live restore may pick a different element.
	Matches int `json:"matches"`
}

// Report summarises a snapshot check.
type Report struct {
	PageURL  string          `json:"page_url"`
	Total    int             `json:"total"`
	Resolved int             `json:"resolved"`
	Elements []ElementResult `json:"elements"`
}

// Checker fetches pages and resolves selectors offline.
type Checker struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(ch *Checker) { ch.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(ch *Checker) { ch.logger = l }
}

// New creates a Checker with sensible defaults.
func New(opts ...Option) *Checker {
	ch := &Checker{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; dommark/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(ch)
	}
	return ch
}

// Check fetches pageURL and resolves every element of the snapshot state
// against the parsed document.
func (ch *Checker) Check(ctx context.Context, pageURL string, st annotation.State) (*Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("check: new request: %w", err)
	}
	req.Header.Set("User-Agent", ch.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := ch.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("check: read body: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("check: parse html: %w", err)
	}

	return ch.CheckDocument(pageURL, doc, st), nil
}

// CheckDocument resolves a snapshot against an already-parsed document.
func (ch *Checker) CheckDocument(pageURL string, doc *html.Node, st annotation.State) *Report {
	rep := &Report{PageURL: pageURL, Total: len(st.Elements)}
	for _, el := range st.Elements {
		matches := selector.ResolveAll(doc, el.Selector)
		res := ElementResult{
			ID:       el.ID,
			Label:    el.Label,
			Selector: el.Selector,
			Resolved: len(matches) > 0,
			Matches:  len(matches),
		}
		if res.Resolved {
			rep.Resolved++
		} else {
			ch.logger.Warn("check: selector no longer resolves",
				"url", pageURL, "label", el.Label, "selector", el.Selector)
		}
		rep.Elements = append(rep.Elements, res)
	}
	return rep
}
