// Package export produces PNG captures of annotated pages: full page or a
// tight crop around the focused element, written to a file or the system
// clipboard.
//
// Rasterization is an external capability behind the Rasterizer interface;
// any conforming renderer satisfies the pipeline.
package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hazyhaar/dommark/internal/overlay"
)

// settleDelay lets style and layout settle before rasterization.
const settleDelay = 100 * time.Millisecond

// focusMargin is the crop margin around the focused element, in pixels.
const focusMargin = 20.0

var (
	// ErrInFlight rejects a capture while another one is running.
	ErrInFlight = errors.New("export: capture already in progress")
	// ErrFocusLost aborts a focused capture whose element left the DOM.
	ErrFocusLost = errors.New("export: focused element no longer present")
)

// Rasterizer renders the current page to a PNG pixel buffer, optionally
// restricted to a page-coordinate clip.
type Rasterizer interface {
	CapturePNG(ctx context.Context, clip *overlay.Rect) ([]byte, error)
}

// PageUI is the slice of the overlay renderer the pipeline needs: hiding
// chrome, scroll control, live measurement, and the confirmation toast.
type PageUI interface {
	HideUI() error
	ShowUI() error
	Scroll() (x, y float64, err error)
	ScrollTo(x, y float64) error
	Measure(id string) (overlay.Rect, bool, error)
	Toast(msg string) error
}

// Request describes one capture.
type Request struct {
	PageURL string
	// FocusID crops the capture to this annotation's element; empty means
	// full page.
	FocusID    string
	FocusLabel string
	// Legend items are written to a markdown sidecar on file export.
	Legend []LegendItem
}

// Pipeline orchestrates captures. Safe for concurrent callers: a second
// request while one is in flight is rejected with ErrInFlight.
type Pipeline struct {
	ui       PageUI
	raster   Rasterizer
	legend   *Legend
	outDir   string
	logger   *slog.Logger
	copyText func(string) error
	sleep    func(time.Duration)
	now      func() time.Time

	inFlight atomic.Bool
}

// Config configures a Pipeline.
type Config struct {
	UI         PageUI
	Rasterizer Rasterizer
	// OutDir receives exported files. Default: current directory.
	OutDir string
	Logger *slog.Logger
	// CopyText overrides the clipboard writer (tests). Default: system
	// clipboard.
	CopyText func(string) error
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CopyText == nil {
		cfg.CopyText = clipboard.WriteAll
	}
	return &Pipeline{
		ui:       cfg.UI,
		raster:   cfg.Rasterizer,
		legend:   NewLegend(),
		outDir:   cfg.OutDir,
		logger:   cfg.Logger,
		copyText: cfg.CopyText,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// SaveFile captures and writes the PNG plus a markdown legend sidecar.
// Returns the PNG path.
func (p *Pipeline) SaveFile(ctx context.Context, req Request) (string, error) {
	png, err := p.capture(ctx, req)
	if err != nil {
		return "", err
	}

	name := Filename(req.FocusLabel, p.now())
	path := filepath.Join(p.outDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}

	if len(req.Legend) > 0 {
		md, err := p.legend.Render(req.PageURL, req.Legend)
		if err != nil {
			p.logger.Warn("export: legend render failed", "error", err)
		} else {
			sidecar := path[:len(path)-len(".png")] + ".md"
			if err := os.WriteFile(sidecar, []byte(md), 0o644); err != nil {
				p.logger.Warn("export: legend write failed", "path", sidecar, "error", err)
			}
		}
	}

	p.logger.Info("export: saved", "path", path, "bytes", len(png))
	return path, nil
}

// CopyClipboard captures and writes the PNG to the system clipboard as a
// base64 data URL, with a confirmation toast on success.
func (p *Pipeline) CopyClipboard(ctx context.Context, req Request) error {
	png, err := p.capture(ctx, req)
	if err != nil {
		return err
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	if err := p.copyText(dataURL); err != nil {
		return fmt.Errorf("export: clipboard write: %w", err)
	}

	if err := p.ui.Toast("Copied to clipboard"); err != nil {
		p.logger.Warn("export: toast failed", "error", err)
	}
	p.logger.Info("export: copied to clipboard", "bytes", len(png))
	return nil
}

// capture hides UI chrome, pins scroll to the origin, rasterizes, and
// restores everything in a guaranteed cleanup path.
func (p *Pipeline) capture(ctx context.Context, req Request) ([]byte, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer p.inFlight.Store(false)

	if err := p.ui.HideUI(); err != nil {
		return nil, err
	}
	x, y, err := p.ui.Scroll()
	if err != nil {
		x, y = 0, 0
		p.logger.Warn("export: read scroll failed", "error", err)
	}
	defer func() {
		// Cleanup runs regardless of capture outcome.
		if err := p.ui.ScrollTo(x, y); err != nil {
			p.logger.Warn("export: restore scroll failed", "error", err)
		}
		if err := p.ui.ShowUI(); err != nil {
			p.logger.Warn("export: restore panel failed", "error", err)
		}
	}()

	if err := p.ui.ScrollTo(0, 0); err != nil {
		return nil, fmt.Errorf("export: scroll to origin: %w", err)
	}

	var clip *overlay.Rect
	if req.FocusID != "" {
		rect, found, err := p.ui.Measure(req.FocusID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrFocusLost
		}
		clip = focusClip(rect)
	}

	p.sleep(settleDelay)

	png, err := p.raster.CapturePNG(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("export: rasterize: %w", err)
	}
	return png, nil
}

// focusClip expands an element box by the fixed margin, clamped to the
// page origin.
func focusClip(rect overlay.Rect) *overlay.Rect {
	clip := overlay.Rect{
		Top:    rect.Top - focusMargin,
		Left:   rect.Left - focusMargin,
		Width:  rect.Width + 2*focusMargin,
		Height: rect.Height + 2*focusMargin,
	}
	if clip.Top < 0 {
		clip.Height += clip.Top
		clip.Top = 0
	}
	if clip.Left < 0 {
		clip.Width += clip.Left
		clip.Left = 0
	}
	return &clip
}
