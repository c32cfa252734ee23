package domain

// Theme is the board color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme maps a persisted value to a theme. Only "dark" selects the dark
// theme; anything else, including an absent value, is light.
func ParseTheme(s string) Theme {
	if s == string(ThemeDark) {
		return ThemeDark
	}
	return ThemeLight
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Palette holds the colors the map is drawn with.
type Palette struct {
	Accent       string `json:"accent"`
	Muted        string `json:"muted"`
	MarkerStroke string `json:"marker_stroke"`
	RegionFill   string `json:"region_fill"`
	RegionHover  string `json:"region_hover"`
	RegionStroke string `json:"region_stroke"`
	Background   string `json:"background"`
}

var palettes = map[Theme]Palette{
	ThemeLight: {
		Accent:       "#d9480f",
		Muted:        "#9e9e9e",
		MarkerStroke: "#ffffff",
		RegionFill:   "#e9ecef",
		RegionHover:  "#ced4da",
		RegionStroke: "#ffffff",
		Background:   "#ffffff",
	},
	ThemeDark: {
		Accent:       "#ff922b",
		Muted:        "#6c6c6c",
		MarkerStroke: "#1e1e1e",
		RegionFill:   "#343a40",
		RegionHover:  "#495057",
		RegionStroke: "#1e1e1e",
		Background:   "#1e1e1e",
	},
}

// PaletteFor returns the colors for a theme.
func PaletteFor(t Theme) Palette {
	return palettes[ParseTheme(string(t))]
}

// NarrowViewport is the width in pixels below which markers are drawn smaller.
const NarrowViewport = 768

// MarkerStyle is the per-marker drawing style handed to the map widget.
type MarkerStyle struct {
	Radius      float64 `json:"radius"`
	StrokeWidth float64 `json:"stroke_width"`
	Stroke      string  `json:"stroke"`
}

// MarkerStyleFor derives the marker style from the theme and viewport width.
func MarkerStyleFor(t Theme, viewportWidth int) MarkerStyle {
	style := MarkerStyle{Radius: 8, StrokeWidth: 2, Stroke: PaletteFor(t).MarkerStroke}
	if viewportWidth > 0 && viewportWidth < NarrowViewport {
		style.Radius = 5
		style.StrokeWidth = 1
	}
	return style
}
