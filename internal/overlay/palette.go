package overlay

// Color is one palette entry: a display label and its hex value.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// Palette is the fixed annotation palette. The first entry is the default
// for new annotations.
var Palette = []Color{
	{Name: "red", Hex: "#ef4444"},
	{Name: "blue", Hex: "#3b82f6"},
	{Name: "green", Hex: "#22c55e"},
	{Name: "orange", Hex: "#f97316"},
	{Name: "purple", Hex: "#a855f7"},
}

// DefaultColor returns the palette's first entry.
func DefaultColor() Color {
	return Palette[0]
}

// ColorByName looks up a palette entry. Unknown names fall back to the
// default so a corrupt snapshot never breaks rendering.
func ColorByName(name string) Color {
	for _, c := range Palette {
		if c.Name == name {
			return c
		}
	}
	return DefaultColor()
}

// ValidColor reports whether name is a palette entry.
func ValidColor(name string) bool {
	for _, c := range Palette {
		if c.Name == name {
			return true
		}
	}
	return false
}
