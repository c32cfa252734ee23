package board

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/stammtisch-map-service/internal/debounce"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

// DefaultDebounce is the quiet period for search input and resize events.
const DefaultDebounce = 150 * time.Millisecond

// Options configures a Controller.
type Options struct {
	Clock     clockwork.Clock
	Location  *time.Location
	LogoRules []domain.LogoRule
	Debounce  time.Duration
	// SystemTheme is used when the ThemeStore has no stored choice.
	SystemTheme   domain.Theme
	ViewportWidth int
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// Controller is the application state of one board. All exported methods are
// safe for concurrent use; debounced handlers run on clock timers and take the
// same lock.
type Controller struct {
	clock   clockwork.Clock
	loc     *time.Location
	rules   []domain.LogoRule
	logger  *slog.Logger
	metrics *observability.Metrics

	renderer MapRenderer
	list     ListView
	detail   DetailView
	themes   ThemeStore

	mu        sync.Mutex
	events    []domain.Termin // sorted by date
	markers   []domain.Marker
	cards     domain.CardList
	theme     domain.Theme
	width     int
	handle    MapHandle
	mapFailed bool
	overlay   Overlay
	search    string

	pendingSearch string
	pendingWidth  int
	searchTimer   *debounce.Timer
	resizeTimer   *debounce.Timer
}

// New creates a board with no events. The theme comes from the store, falling
// back to the system preference.
func New(renderer MapRenderer, list ListView, detail DetailView, themes ThemeStore, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LogoRules == nil {
		opts.LogoRules = domain.DefaultLogoRules
	}

	theme := domain.ParseTheme(string(opts.SystemTheme))
	if stored, ok := themes.LoadTheme(); ok {
		theme = stored
	}

	c := &Controller{
		clock:    opts.Clock,
		loc:      opts.Location,
		rules:    opts.LogoRules,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		renderer: renderer,
		list:     list,
		detail:   detail,
		themes:   themes,
		theme:    theme,
		width:    opts.ViewportWidth,
		cards:    domain.CardList{SeparatorBefore: -1, NoResults: true},
	}
	c.searchTimer = debounce.New(c.clock, opts.Debounce, c.flushSearch)
	c.resizeTimer = debounce.New(c.clock, opts.Debounce, c.flushResize)
	return c
}

func (c *Controller) today() string {
	return c.clock.Now().In(c.loc).Format(time.DateOnly)
}

// Load replaces the event list and re-renders the list and the map. The
// current search is re-applied; an overlay showing an event that no longer
// exists is hidden.
func (c *Controller) Load(events []domain.Termin) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = domain.SortByDate(events)
	today := c.today()
	c.markers = domain.DeriveMarkers(c.events, today, domain.PaletteFor(c.theme))
	c.cards = domain.BuildCardList(c.events, today).Filter(c.search)
	c.list.RenderList(c.cards)

	if c.overlay.Visible {
		if e, err := domain.FindByIndex(c.events, c.overlay.Index); err == nil {
			c.detail.ShowDetail(domain.BuildDetail(e, today, c.rules, c.loc))
		} else {
			c.hideLocked()
		}
	}
	c.renderMapLocked()
}

// SearchInput records typed search text; the filter runs after the debounce period.
func (c *Controller) SearchInput(text string) {
	c.mu.Lock()
	c.pendingSearch = text
	c.mu.Unlock()
	c.searchTimer.Trigger()
}

// flushSearch applies the latest pending text; a region selection made before
// the lock is taken has already replaced it.
func (c *Controller) flushSearch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applySearchLocked(c.pendingSearch)
}

// ApplySearch filters the card list immediately.
func (c *Controller) ApplySearch(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applySearchLocked(text)
}

func (c *Controller) applySearchLocked(text string) {
	c.pendingSearch = text
	c.search = text
	c.cards = c.cards.Filter(text)
	c.list.RenderList(c.cards)
}

// SelectRegion sets the search text to a region code, as clicking a state on the map does.
func (c *Controller) SelectRegion(code string) {
	c.searchTimer.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applySearchLocked(code)
}

// ClearRegion clears the search text, as clicking the map backdrop does.
func (c *Controller) ClearRegion() {
	c.SelectRegion("")
}

// SelectCard shows the overlay for the event with the given original index.
func (c *Controller) SelectCard(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := domain.FindByIndex(c.events, index)
	if err != nil {
		return err
	}
	c.showLocked(e)
	return nil
}

// SelectMarker shows the overlay for the marker's representative event and
// focuses the map on the marker.
func (c *Controller) SelectMarker(marker int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if marker < 0 || marker >= len(c.markers) {
		return fmt.Errorf("marker %d: %w", marker, domain.ErrNotFound)
	}
	m := c.markers[marker]
	e, err := domain.ResolveMarkerEvent(c.events, m, c.today())
	if err != nil {
		return err
	}
	c.showLocked(e)
	if c.handle != nil {
		c.handle.Focus(domain.Geo{Lat: m.Lat, Lon: m.Lon}, MarkerZoom)
	}
	return nil
}

func (c *Controller) showLocked(e domain.Termin) {
	c.overlay = Overlay{Visible: true, Index: e.OriginalIndex}
	c.detail.ShowDetail(domain.BuildDetail(e, c.today(), c.rules, c.loc))
}

// Escape dismisses the overlay.
func (c *Controller) Escape() { c.Close() }

// OutsideClick dismisses the overlay after a click outside overlay, markers and cards.
func (c *Controller) OutsideClick() { c.Close() }

// Close dismisses the overlay. It is a no-op when the overlay is hidden.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hideLocked()
}

func (c *Controller) hideLocked() {
	if !c.overlay.Visible {
		return
	}
	c.overlay = Overlay{}
	c.detail.HideDetail()
}

// ToggleTheme switches between light and dark, persists the choice and
// rebuilds the map with the new colors.
func (c *Controller) ToggleTheme() domain.Theme {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.theme = c.theme.Toggle()
	c.themes.SaveTheme(c.theme)
	c.markers = domain.DeriveMarkers(c.events, c.today(), domain.PaletteFor(c.theme))
	c.renderMapLocked()
	return c.theme
}

// Resize records a new viewport width; the map is re-rendered after the debounce period.
func (c *Controller) Resize(width int) {
	c.mu.Lock()
	c.pendingWidth = width
	c.mu.Unlock()
	c.resizeTimer.Trigger()
}

func (c *Controller) flushResize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = c.pendingWidth
	c.renderMapLocked()
}

// renderMapLocked destroys the current widget and builds a new one from the
// existing markers. Construction failures, including panics, leave a static
// error message in place of the map.
func (c *Controller) renderMapLocked() {
	if c.handle != nil {
		c.handle.Destroy()
		c.handle = nil
	}

	cfg := MapConfig{
		Focus:       Germany,
		Zoom:        InitialZoom,
		Theme:       c.theme,
		Palette:     domain.PaletteFor(c.theme),
		MarkerStyle: domain.MarkerStyleFor(c.theme, c.width),
		Markers:     c.markers,
	}
	if domain.IsRegionCode(c.search) {
		cfg.SelectedRegion = c.search
	}

	handle, err := c.constructMap(cfg)
	if err != nil {
		c.mapFailed = true
		c.logger.Error("map construction failed", "error", err)
		if c.metrics != nil {
			c.metrics.MapRenderErrors.Inc()
		}
		c.renderer.RenderError(MapErrorMessage)
		return
	}
	c.mapFailed = false
	c.handle = handle
}

func (c *Controller) constructMap(cfg MapConfig) (handle MapHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("map renderer panic: %v", r)
		}
	}()

	cb := MapCallbacks{
		MarkerClick: func(i int) {
			if err := c.SelectMarker(i); err != nil {
				c.logger.Warn("marker click ignored", "marker", i, "error", err)
			}
		},
		RegionClick:   c.SelectRegion,
		BackdropClick: c.ClearRegion,
	}
	handle, err = c.renderer.Render(cfg, cb)
	if err == nil && handle == nil {
		err = errors.New("map renderer returned no handle")
	}
	return handle, err
}

// Snapshot returns a copy of the current selection state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Overlay:          c.overlay,
		Search:           c.search,
		SeparatorVisible: c.cards.SeparatorVisible,
		NoResults:        c.cards.NoResults,
		Theme:            c.theme,
		ViewportWidth:    c.width,
		Markers:          len(c.markers),
		Events:           len(c.events),
		MapFailed:        c.mapFailed,
	}
}

// Markers returns the markers of the current render cycle.
func (c *Controller) Markers() []domain.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Marker(nil), c.markers...)
}

// Dispose cancels pending debounced work and destroys the map widget.
func (c *Controller) Dispose() {
	c.searchTimer.Cancel()
	c.resizeTimer.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		c.handle.Destroy()
		c.handle = nil
	}
}
