package export

import (
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 5, 9, 123456789, time.UTC)

	if got := Filename("", now); got != "design-spec-2026-08-30T14-05-09Z.png" {
		t.Errorf("Filename: got %q", got)
	}
	if got := Filename("3", now); got != "design-spec-3-2026-08-30T14-05-09Z.png" {
		t.Errorf("Filename focus: got %q", got)
	}
	// Labels are user-editable free text; path separators must not survive.
	if got := Filename("hero/../x", now); got != "design-spec-hero----x-2026-08-30T14-05-09Z.png" {
		t.Errorf("Filename sanitised: got %q", got)
	}
}

func TestTimestamp_NonUTCNormalised(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	now := time.Date(2026, 8, 30, 16, 0, 0, 0, loc)
	if got := timestamp(now); got != "2026-08-30T14-00-00Z" {
		t.Errorf("timestamp: got %q", got)
	}
}
