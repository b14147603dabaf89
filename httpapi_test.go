package dommark

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/dommark/internal/export"
)

func TestHTTP_State(t *testing.T) {
	m := testMarker(t)
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	snapshot := `{"elements":[{"id":"ann_1","label":"1","selector":"main","tagName":"main","color":"red"}],"nextNumber":2}`
	if err := m.db.SaveSnapshot(context.Background(), testURL, []byte(snapshot)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/state?url=" + testURL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	var st StateInfo
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.IsEditing || len(st.Elements) != 1 {
		t.Errorf("state: %+v", st)
	}
}

func TestHTTP_StateRequiresURL(t *testing.T) {
	m := testMarker(t)
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHTTP_ExportWithoutSession(t *testing.T) {
	m := testMarker(t)
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/export", "application/json",
		strings.NewReader(`{"url":"`+testURL+`"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHTTP_ExportErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"busy", export.ErrInFlight, http.StatusConflict},
		{"capture failure", errors.New("export: rasterize: boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testMarker(t)
			m.sessions[testURL] = newSession(sessionConfig{
				PageURL: testURL,
				View:    newFakeView(),
				Export:  &fakeExporter{err: tc.err},
				DB:      m.db,
				Events:  m.events,
				Logger:  m.logger,
			})
			m.cleanups[testURL] = func() {}
			srv := httptest.NewServer(m.Router())
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/v1/export", "application/json",
				strings.NewReader(`{"url":"`+testURL+`"}`))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestHTTP_StopAndPages(t *testing.T) {
	m := testMarker(t)
	injectSession(t, m, testURL)
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/stop", "application/json",
		strings.NewReader(`{"url":"`+testURL+`"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var out map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !out["stopped"] {
		t.Error("stop reported false for live session")
	}

	resp, err = http.Get(srv.URL + "/v1/pages")
	if err != nil {
		t.Fatalf("get pages: %v", err)
	}
	defer resp.Body.Close()
	var pages struct {
		Pages []string `json:"pages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pages); err != nil {
		t.Fatalf("decode pages: %v", err)
	}
	if pages.Pages == nil {
		t.Error("pages: want empty list, got null")
	}
}
