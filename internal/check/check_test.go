package check

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/dommark/internal/annotation"
)

const page = `<html><body>
	<main>
		<section class="pricing"><h2>Plans</h2></section>
		<section class="faq"><h2>FAQ</h2></section>
	</main>
</body></html>`

func testState() annotation.State {
	return annotation.State{
		Elements: []*annotation.Annotation{
			{ID: "ann_1", Label: "1", Selector: "main>section.pricing"},
			{ID: "ann_2", Label: "2", Selector: "main>section:nth-of-type(2)"},
			{ID: "ann_3", Label: "3", Selector: "#gone"},
		},
		NextNumber: 4,
	}
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	ch := New(WithLogger(slog.New(slog.DiscardHandler)))
	rep, err := ch.Check(context.Background(), srv.URL, testState())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if rep.Total != 3 || rep.Resolved != 2 {
		t.Fatalf("report: resolved %d/%d, want 2/3", rep.Resolved, rep.Total)
	}
	if rep.Elements[2].Resolved {
		t.Error("#gone resolved against missing id")
	}
	if rep.Elements[0].Matches != 1 {
		t.Errorf("pricing matches: got %d, want 1", rep.Elements[0].Matches)
	}
}

func TestCheck_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	ch := New(WithLogger(slog.New(slog.DiscardHandler)))
	if _, err := ch.Check(context.Background(), srv.URL, testState()); err == nil {
		t.Fatal("expected status error")
	}
}
