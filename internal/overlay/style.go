package overlay

import (
	"fmt"
	"strings"
)

// Overlay nodes live inside arbitrary third-party pages, so every style
// property is forced: a full reset followed by !important overrides. Host
// CSS frameworks must not be able to restyle a frame or badge.

const styleReset = "all:initial !important;box-sizing:content-box !important;" +
	"margin:0 !important;padding:0 !important;pointer-events:none !important;" +
	"z-index:2147483645 !important;"

func px(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + "px"
}

// FrameStyle renders the inline style for a frame overlay box.
func FrameStyle(box Rect, hex string) string {
	var b strings.Builder
	b.WriteString(styleReset)
	b.WriteString("position:absolute !important;")
	fmt.Fprintf(&b, "top:%s !important;", px(box.Top))
	fmt.Fprintf(&b, "left:%s !important;", px(box.Left))
	fmt.Fprintf(&b, "width:%s !important;", px(box.Width))
	fmt.Fprintf(&b, "height:%s !important;", px(box.Height))
	fmt.Fprintf(&b, "border:%dpx solid %s !important;", BorderWidth, hex)
	b.WriteString("border-radius:2px !important;background:transparent !important;")
	return b.String()
}

// BadgeStyle renders the inline style for a badge pill.
func BadgeStyle(box Rect, hex string) string {
	var b strings.Builder
	b.WriteString(styleReset)
	b.WriteString("position:absolute !important;")
	fmt.Fprintf(&b, "top:%s !important;", px(box.Top))
	fmt.Fprintf(&b, "left:%s !important;", px(box.Left))
	fmt.Fprintf(&b, "width:%s !important;", px(box.Width))
	fmt.Fprintf(&b, "height:%dpx !important;", BadgeHeight)
	fmt.Fprintf(&b, "background:%s !important;", hex)
	fmt.Fprintf(&b, "border-radius:%dpx !important;", BadgeHeight/2)
	fmt.Fprintf(&b, "color:#ffffff !important;font:bold 13px/%s -apple-system,sans-serif !important;", px(BadgeHeight))
	b.WriteString("display:flex !important;align-items:center !important;" +
		"justify-content:center !important;text-align:center !important;")
	return b.String()
}

// HighlightTemplate is the hover indicator style with %TOP%/%LEFT%/%WIDTH%/
// %HEIGHT% placeholders, substituted by the page actuator on mouseover so
// hover feedback never round-trips through Go.
func HighlightTemplate() string {
	var b strings.Builder
	b.WriteString(styleReset)
	b.WriteString("position:absolute !important;")
	b.WriteString("top:%TOP% !important;left:%LEFT% !important;")
	b.WriteString("width:%WIDTH% !important;height:%HEIGHT% !important;")
	b.WriteString("outline:2px dashed #3b82f6 !important;background:rgba(59,130,246,0.08) !important;")
	return b.String()
}

// PanelStyle is the inline style for the annotation panel container.
func PanelStyle() string {
	return "all:initial !important;position:fixed !important;top:16px !important;" +
		"right:16px !important;width:280px !important;max-height:80vh !important;" +
		"overflow-y:auto !important;background:#ffffff !important;" +
		"border:1px solid #d4d4d8 !important;border-radius:8px !important;" +
		"box-shadow:0 4px 16px rgba(0,0,0,0.15) !important;" +
		"font:13px -apple-system,sans-serif !important;color:#18181b !important;" +
		"z-index:2147483646 !important;padding:10px !important;display:block !important;"
}

// ToastStyle is the inline style for the transient confirmation toast.
func ToastStyle() string {
	return "all:initial !important;position:fixed !important;bottom:24px !important;" +
		"left:50% !important;transform:translateX(-50%) !important;" +
		"background:#18181b !important;color:#ffffff !important;" +
		"padding:8px 16px !important;border-radius:6px !important;" +
		"font:13px -apple-system,sans-serif !important;z-index:2147483647 !important;"
}
