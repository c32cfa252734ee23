package http

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/couchcryptid/stammtisch-map-service/internal/board"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

// View is the full client state of one session.
type View struct {
	Session  string           `json:"session"`
	State    board.State      `json:"state"`
	Map      *board.MapConfig `json:"map,omitempty"`
	MapError string           `json:"map_error,omitempty"`
	List     domain.CardList  `json:"list"`
	Detail   *domain.Detail   `json:"detail,omitempty"`
	Focus    *Focus           `json:"focus,omitempty"`
}

// Focus is the last map focus requested by a marker selection.
type Focus struct {
	At   domain.Geo `json:"at"`
	Zoom float64    `json:"zoom"`
}

// sseEvent is one view update pushed to the client.
type sseEvent struct {
	Name string
	Data []byte
}

const subscriberBuffer = 32

// Session is one browser's board. It is the board's map renderer, list and
// detail view and theme store; every update is recorded in the view and
// pushed to event stream subscribers.
type Session struct {
	id         string
	controller *board.Controller

	// loadMu orders snapshot loads; version is the store version last loaded.
	loadMu  sync.Mutex
	version uint64
	loaded  bool

	mu          sync.Mutex
	lastSeen    time.Time
	theme       *domain.Theme
	mapCfg      *board.MapConfig
	callbacks   *board.MapCallbacks
	mapError    string
	list        domain.CardList
	detail      *domain.Detail
	focus       *Focus
	generation  uint64
	subscribers map[chan sseEvent]struct{}
}

func newSession(id string, theme *domain.Theme, now time.Time) *Session {
	return &Session{
		id:          id,
		lastSeen:    now,
		theme:       theme,
		list:        domain.CardList{SeparatorBefore: -1, NoResults: true},
		subscribers: make(map[chan sseEvent]struct{}),
	}
}

// ID returns the session identifier stored in the sid cookie.
func (s *Session) ID() string { return s.id }

// Controller returns the board driven by this session.
func (s *Session) Controller() *board.Controller { return s.controller }

// View returns the current client state.
func (s *Session) View() View {
	state := s.controller.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Session:  s.id,
		State:    state,
		Map:      s.mapCfg,
		MapError: s.mapError,
		List:     s.list,
		Detail:   s.detail,
		Focus:    s.focus,
	}
}

// load hands a store snapshot to the board unless a newer one was already loaded.
func (s *Session) load(events []domain.Termin, version uint64) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded && version <= s.version {
		return
	}
	s.loaded = true
	s.version = version
	s.controller.Load(events)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// idleSince reports the last activity time and whether an event stream is open.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen, len(s.subscribers) > 0
}

func (s *Session) mapCallbacks() (board.MapCallbacks, []domain.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callbacks == nil || s.mapCfg == nil {
		return board.MapCallbacks{}, nil, false
	}
	return *s.callbacks, s.mapCfg.Markers, true
}

func (s *Session) subscribe() (<-chan sseEvent, func()) {
	ch := make(chan sseEvent, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}
}

// publishLocked sends an update to every subscriber. Slow subscribers miss
// updates; they can refetch the full view.
func (s *Session) publishLocked(name string, v any) {
	if len(s.subscribers) == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	for ch := range s.subscribers {
		select {
		case ch <- sseEvent{Name: name, Data: data}:
		default:
		}
	}
}

// --- board.MapRenderer ---

func (s *Session) Render(cfg board.MapConfig, cb board.MapCallbacks) (board.MapHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.mapCfg = &cfg
	s.callbacks = &cb
	s.mapError = ""
	s.focus = nil
	s.publishLocked("map", cfg)
	return &mapHandle{session: s, generation: s.generation}, nil
}

func (s *Session) RenderError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mapCfg = nil
	s.callbacks = nil
	s.mapError = message
	s.publishLocked("map_error", map[string]string{"message": message})
}

// mapHandle is the client-side map of one render cycle. Calls on a handle
// from an earlier cycle are ignored.
type mapHandle struct {
	session    *Session
	generation uint64
}

func (h *mapHandle) Focus(at domain.Geo, zoom float64) {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != h.generation {
		return
	}
	s.focus = &Focus{At: at, Zoom: zoom}
	s.publishLocked("focus", s.focus)
}

func (h *mapHandle) Destroy() {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != h.generation {
		return
	}
	s.mapCfg = nil
	s.callbacks = nil
	s.focus = nil
}

// --- board.ListView ---

func (s *Session) RenderList(list domain.CardList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = list
	s.publishLocked("list", list)
}

// --- board.DetailView ---

func (s *Session) ShowDetail(d domain.Detail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = &d
	s.publishLocked("detail", d)
}

func (s *Session) HideDetail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = nil
	s.publishLocked("detail_hidden", struct{}{})
}

// --- board.ThemeStore ---

func (s *Session) LoadTheme() (domain.Theme, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.theme == nil {
		return "", false
	}
	return *s.theme, true
}

func (s *Session) SaveTheme(t domain.Theme) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = &t
}
