// Package overlay computes frame and badge geometry for annotations and
// renders them into the live page through an injected JS actuator.
//
// Geometry is pure: positions are page-relative CSS pixels that already
// include scroll offset. Callers apply the results to overlay DOM nodes.
package overlay

// BorderWidth is the frame border in pixels, drawn outside the frame box.
const BorderWidth = 3

// BadgeHeight is the fixed badge pill height in pixels.
const BadgeHeight = 28

// Rect is a page-relative bounding box in CSS pixels, scroll included.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FrameBox returns the overlay frame for an element box inflated by padding.
// Content-box semantics: the box is widened by 2*padding and shifted by
// -(padding+BorderWidth) so the border lands outside the padded area.
func FrameBox(el Rect, padding float64) Rect {
	if padding < 0 {
		padding = 0
	}
	offset := padding + BorderWidth
	return Rect{
		Top:    el.Top - offset,
		Left:   el.Left - offset,
		Width:  el.Width + 2*padding,
		Height: el.Height + 2*padding,
	}
}

// BadgeWidth returns the pill width for a label. Labels up to two characters
// fit the minimum square; longer labels scale linearly.
func BadgeWidth(label string) float64 {
	n := len([]rune(label))
	if n <= 2 {
		return BadgeHeight
	}
	w := float64(n*10 + 12)
	if w < BadgeHeight {
		return BadgeHeight
	}
	return w
}

// BadgeBox returns the badge pill centered on the frame's top-left corner.
func BadgeBox(frame Rect, label string) Rect {
	w := BadgeWidth(label)
	return Rect{
		Top:    frame.Top - BadgeHeight/2,
		Left:   frame.Left - w/2,
		Width:  w,
		Height: BadgeHeight,
	}
}
