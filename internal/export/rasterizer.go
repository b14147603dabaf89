package export

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dommark/internal/overlay"
)

// RodRasterizer renders through the attached Chrome page via CDP.
type RodRasterizer struct {
	page *rod.Page
}

// NewRodRasterizer wraps a page.
func NewRodRasterizer(page *rod.Page) *RodRasterizer {
	return &RodRasterizer{page: page}
}

// CapturePNG implements Rasterizer. A nil clip captures the full page
// beyond the viewport; a clip captures exactly that page-coordinate box.
func (r *RodRasterizer) CapturePNG(ctx context.Context, clip *overlay.Rect) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	}
	if clip == nil {
		return r.page.Context(ctx).Screenshot(true, req)
	}
	req.Clip = &proto.PageViewport{
		X:      clip.Left,
		Y:      clip.Top,
		Width:  clip.Width,
		Height: clip.Height,
		Scale:  1,
	}
	req.CaptureBeyondViewport = true
	return r.page.Context(ctx).Screenshot(false, req)
}
