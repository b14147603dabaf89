// Package dommark is a page annotation daemon. It drives a Chrome instance,
// lets a human click page elements to annotate them with numbered badges and
// colored frames, persists the annotation set per URL in SQLite, and exports
// PNG captures of the annotated page.
//
// The in-page JavaScript is a thin sensor/actuator; selector generation,
// geometry, labelling, and persistence all live in Go. Control surfaces are
// MCP tools and a small HTTP API.
package dommark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dommark/internal/annotation"
	"github.com/hazyhaar/dommark/internal/browser"
	"github.com/hazyhaar/dommark/internal/check"
	"github.com/hazyhaar/dommark/internal/export"
	"github.com/hazyhaar/dommark/internal/overlay"
	"github.com/hazyhaar/dommark/internal/storage"
)

// Marker is the top-level orchestrator: browser, storage, and one editing
// session per page URL. Create one per dommark instance.
type Marker struct {
	cfg    *Config
	mgr    *browser.Manager
	db     *storage.Store
	events *storage.EventLogger
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session // keyed by page URL
	cleanups map[string]func()   // per-session page/listener teardown
}

// New creates a Marker from configuration and opens its database.
func New(cfg *Config, logger *slog.Logger) (*Marker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("dommark: open storage: %w", err)
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headless:        cfg.Browser.Headless,
		NavigateTimeout: cfg.Browser.navigateTimeout(),
		Logger:          logger,
	})

	return &Marker{
		cfg:      cfg,
		mgr:      mgr,
		db:       db,
		events:   storage.NewEventLogger(db, nil),
		logger:   logger,
		sessions: make(map[string]*Session),
		cleanups: make(map[string]func()),
	}, nil
}

// Start launches (or connects to) Chrome.
func (m *Marker) Start(ctx context.Context) error {
	if _, err := m.mgr.Start(ctx); err != nil {
		return fmt.Errorf("dommark: start browser: %w", err)
	}
	return nil
}

// StartEditing opens the page and enters edit mode. Idempotent: a second
// call for the same URL returns the live session.
func (m *Marker) StartEditing(ctx context.Context, pageURL string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[pageURL]; ok {
		return sess, nil
	}

	page, err := m.mgr.OpenPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	view := overlay.NewRenderer(page)
	pipeline := export.NewPipeline(export.Config{
		UI:         view,
		Rasterizer: export.NewRodRasterizer(page),
		OutDir:     m.cfg.ExportDir,
		Logger:     m.logger,
	})

	sess := newSession(sessionConfig{
		PageURL: pageURL,
		View:    view,
		Export:  pipeline,
		DB:      m.db,
		Events:  m.events,
		Logger:  m.logger,
		OnStop:  func() { m.StopEditing(pageURL) },
	})

	// The binding must exist before the actuator is injected: the first
	// click can arrive as soon as the listeners attach.
	if err := (proto.RuntimeAddBinding{Name: bindingName}.Call(page)); err != nil {
		m.logger.Warn("dommark: add binding failed (may already exist)", "error", err)
	}

	// The session outlives the caller's context (which may be a single HTTP
	// request); only StopEditing ends the listener.
	listenCtx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		page.Context(listenCtx).EachEvent(func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			sess.handleBinding(listenCtx, e.Payload)
		})()
	}()

	if err := sess.start(ctx); err != nil {
		cancel()
		page.Close()
		return nil, fmt.Errorf("dommark: start session %s: %w", pageURL, err)
	}

	m.sessions[pageURL] = sess
	m.cleanups[pageURL] = func() {
		cancel()
		page.Close()
	}
	m.logger.Info("dommark: editing started", "url", pageURL)
	return sess, nil
}

// Session returns the live session for a URL, or nil.
func (m *Marker) Session(pageURL string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[pageURL]
}

// StopEditing leaves edit mode for a URL: overlays and listeners go, the
// snapshot stays. Returns false when no session was active.
func (m *Marker) StopEditing(pageURL string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[pageURL]
	cleanup := m.cleanups[pageURL]
	delete(m.sessions, pageURL)
	delete(m.cleanups, pageURL)
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.Stop()
	if cleanup != nil {
		cleanup()
	}
	m.logger.Info("dommark: editing stopped", "url", pageURL)
	return true
}

// State reports the annotation state for a URL. With no live session the
// persisted snapshot is decoded instead, with IsEditing false.
func (m *Marker) State(ctx context.Context, pageURL string) (StateInfo, error) {
	if sess := m.Session(pageURL); sess != nil {
		return sess.State(), nil
	}

	info := StateInfo{PageURL: pageURL, Elements: []*annotation.Annotation{}}
	payload, err := m.db.LoadSnapshot(ctx, pageURL)
	if err != nil {
		return info, fmt.Errorf("dommark: load snapshot: %w", err)
	}
	if payload == nil {
		return info, nil
	}
	st, err := annotation.DecodeState(payload)
	if err != nil {
		return info, fmt.Errorf("dommark: decode snapshot: %w", err)
	}
	info.Elements = st.Elements
	info.FocusedID = st.FocusedElementID
	return info, nil
}

// ErrNoSession is returned for operations that require a live editing
// session when none is active for the URL.
var ErrNoSession = errors.New("dommark: no active session")

// Export captures the page for a URL with an active session.
func (m *Marker) Export(ctx context.Context, pageURL string, mode ExportMode) (string, error) {
	sess := m.Session(pageURL)
	if sess == nil {
		return "", fmt.Errorf("%w for %s", ErrNoSession, pageURL)
	}
	return sess.Export(ctx, mode)
}

// CheckSnapshot verifies, over plain HTTP, which persisted selectors still
// resolve against the current page HTML.
func (m *Marker) CheckSnapshot(ctx context.Context, pageURL string) (*check.Report, error) {
	payload, err := m.db.LoadSnapshot(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("dommark: load snapshot: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("dommark: no snapshot for %s", pageURL)
	}
	st, err := annotation.DecodeState(payload)
	if err != nil {
		return nil, fmt.Errorf("dommark: decode snapshot: %w", err)
	}
	return check.New(check.WithLogger(m.logger)).Check(ctx, pageURL, st)
}

// Pages lists every URL with a persisted snapshot, most recent first.
func (m *Marker) Pages(ctx context.Context) ([]string, error) {
	return m.db.ListSnapshotURLs(ctx)
}

// Stop tears down all sessions, the browser, and the database.
func (m *Marker) Stop() {
	m.mu.Lock()
	urls := make([]string, 0, len(m.sessions))
	for u := range m.sessions {
		urls = append(urls, u)
	}
	m.mu.Unlock()

	for _, u := range urls {
		m.StopEditing(u)
	}
	if err := m.mgr.Close(); err != nil {
		m.logger.Warn("dommark: browser close failed", "error", err)
	}
	if err := m.db.Close(); err != nil {
		m.logger.Warn("dommark: storage close failed", "error", err)
	}
}
