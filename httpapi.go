package dommark

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/dommark/internal/export"
)

// Router builds the HTTP control API. It mirrors the MCP surface for
// callers that prefer plain HTTP: start/stop editing, state, export.
func (m *Marker) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/start", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		sess, err := m.StartEditing(req.Context(), body.URL)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess.State())
	})

	r.Post("/v1/stop", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"stopped": m.StopEditing(body.URL)})
	})

	r.Get("/v1/state", func(w http.ResponseWriter, req *http.Request) {
		pageURL := req.URL.Query().Get("url")
		if pageURL == "" {
			writeError(w, http.StatusBadRequest, "url query parameter is required")
			return
		}
		info, err := m.State(req.Context(), pageURL)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	r.Post("/v1/export", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL  string `json:"url"`
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		mode := ExportMode(body.Mode)
		if mode == "" {
			mode = ExportFile
		}
		path, err := m.Export(req.Context(), body.URL, mode)
		switch {
		case errors.Is(err, ErrNoSession):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, export.ErrInFlight):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode), "path": path})
	})

	r.Get("/v1/pages", func(w http.ResponseWriter, req *http.Request) {
		urls, err := m.Pages(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if urls == nil {
			urls = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"pages": urls})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
