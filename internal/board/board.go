// Package board owns the interactive state of one event board: the loaded
// events, derived markers and card list, the selection overlay, the search
// text, the theme and the viewport. It drives rendering through the
// MapRenderer, ListView and DetailView boundaries.
package board

import (
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

// Germany is the initial map focus.
var Germany = domain.Geo{Lat: 51.1657, Lon: 10.4515}

const (
	// InitialZoom shows the whole country.
	InitialZoom = 1.0
	// MarkerZoom is the zoom level used when focusing a selected marker.
	MarkerZoom = 6.0
	// MapErrorMessage replaces the map when it cannot be constructed.
	MapErrorMessage = "Die Karte konnte nicht geladen werden."
)

// MapConfig is everything the map widget needs to draw the board.
type MapConfig struct {
	Focus          domain.Geo         `json:"focus"`
	Zoom           float64            `json:"zoom"`
	Theme          domain.Theme       `json:"theme"`
	Palette        domain.Palette     `json:"palette"`
	MarkerStyle    domain.MarkerStyle `json:"marker_style"`
	Markers        []domain.Marker    `json:"markers"`
	SelectedRegion string             `json:"selected_region,omitempty"`
}

// MapCallbacks are the widget events the board reacts to. Renderers must not
// invoke them synchronously from within Render.
type MapCallbacks struct {
	MarkerClick   func(marker int)
	RegionClick   func(code string)
	BackdropClick func()
}

// MapHandle is a constructed map widget instance.
type MapHandle interface {
	// Focus re-centers and zooms the map.
	Focus(at domain.Geo, zoom float64)
	// Destroy releases the widget before a new one is constructed.
	Destroy()
}

// MapRenderer constructs map widgets.
type MapRenderer interface {
	Render(cfg MapConfig, cb MapCallbacks) (MapHandle, error)
	// RenderError replaces the map with a static error message.
	RenderError(message string)
}

// ListView renders the card list.
type ListView interface {
	RenderList(list domain.CardList)
}

// DetailView shows and hides the selection overlay.
type DetailView interface {
	ShowDetail(d domain.Detail)
	HideDetail()
}

// ThemeStore persists the theme choice on the client.
type ThemeStore interface {
	// LoadTheme returns the stored theme, or false if none was stored.
	LoadTheme() (domain.Theme, bool)
	SaveTheme(t domain.Theme)
}

// Overlay is the selection overlay state: hidden, or shown for one event.
type Overlay struct {
	Visible bool `json:"visible"`
	Index   int  `json:"index"`
}

// State is a point-in-time copy of the board's selection state.
type State struct {
	Overlay          Overlay      `json:"overlay"`
	Search           string       `json:"search"`
	SeparatorVisible bool         `json:"separator_visible"`
	NoResults        bool         `json:"no_results"`
	Theme            domain.Theme `json:"theme"`
	ViewportWidth    int          `json:"viewport_width"`
	Markers          int          `json:"markers"`
	Events           int          `json:"events"`
	MapFailed        bool         `json:"map_failed"`
}
