package export

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// LegendItem is one annotation row in the exported legend.
type LegendItem struct {
	Label    string
	Tag      string
	Selector string
	Color    string
	Padding  float64
	Parent   string // parent label for sub-elements, "" at top level
	// ExcerptHTML is raw element HTML from the page; it is sanitised before
	// rendering.
	ExcerptHTML string
}

// Legend renders annotation metadata to a Markdown document written next to
// PNG exports. Page HTML is untrusted: bluemonday strips it down before the
// markdown conversion.
type Legend struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewLegend creates a legend renderer.
func NewLegend() *Legend {
	return &Legend{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Render produces the legend markdown for a page's annotation set.
func (l *Legend) Render(pageURL string, items []LegendItem) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Design spec annotations\n\n%s\n", pageURL)

	for _, it := range items {
		fmt.Fprintf(&b, "\n## %s", it.Label)
		if it.Parent != "" {
			fmt.Fprintf(&b, " (in %s)", it.Parent)
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "- element: `<%s>`\n", it.Tag)
		fmt.Fprintf(&b, "- selector: `%s`\n", it.Selector)
		fmt.Fprintf(&b, "- color: %s\n", it.Color)
		if it.Padding > 0 {
			fmt.Fprintf(&b, "- padding: %gpx\n", it.Padding)
		}

		if it.ExcerptHTML == "" {
			continue
		}
		clean := l.policy.Sanitize(it.ExcerptHTML)
		md, err := l.md.ConvertString(clean)
		if err != nil {
			// A broken excerpt never fails the export.
			continue
		}
		md = strings.TrimSpace(md)
		if md != "" {
			fmt.Fprintf(&b, "\n> %s\n", strings.ReplaceAll(md, "\n", "\n> "))
		}
	}
	return b.String(), nil
}
