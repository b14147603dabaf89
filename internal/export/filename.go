package export

import (
	"strings"
	"time"
)

// timestamp renders an RFC 3339 instant at second precision with ":" and
// "." replaced so it is safe in filenames on every platform.
func timestamp(now time.Time) string {
	ts := now.UTC().Truncate(time.Second).Format(time.RFC3339)
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// Filename returns the export filename: design-spec-<ts>.png, or
// design-spec-<label>-<ts>.png when a focus label is given.
func Filename(focusLabel string, now time.Time) string {
	if focusLabel == "" {
		return "design-spec-" + timestamp(now) + ".png"
	}
	return "design-spec-" + sanitizeLabel(focusLabel) + "-" + timestamp(now) + ".png"
}

// sanitizeLabel keeps labels filesystem-safe: anything outside a small
// allowlist becomes "-".
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
