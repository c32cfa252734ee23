package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/stammtisch-map-service/internal/board"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

const (
	calendarName      = "Freiheitliche Stammtische"
	calendarProductID = "-//freiheitliche-stammtische.de//Event Board//DE"
	calendarUIDDomain = "freiheitliche-stammtische.de"
)

func (s *Server) today() string {
	return domain.Today(s.deps.Location)
}

func (s *Server) handleTermine(w http.ResponseWriter, _ *http.Request) {
	events := s.deps.Store.Events()
	if events == nil {
		events = []domain.Termin{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, events)
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	theme := domain.ParseTheme(r.URL.Query().Get("theme"))
	width, err := queryInt(r, "width")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	palette := domain.PaletteFor(theme)
	events := domain.SortByDate(s.deps.Store.Events())
	markers := domain.DeriveMarkers(events, s.today(), palette)
	if markers == nil {
		markers = []domain.Marker{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, board.MapConfig{
		Focus:       board.Germany,
		Zoom:        board.InitialZoom,
		Theme:       theme,
		Palette:     palette,
		MarkerStyle: domain.MarkerStyleFor(theme, width),
		Markers:     markers,
	})
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	list := domain.BuildCardList(s.deps.Store.Events(), s.today()).Filter(r.URL.Query().Get("q"))
	sharedobs.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventFromPath(w, r)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, domain.BuildDetail(e, s.today(), s.deps.LogoRules, s.deps.Location))
}

func (s *Server) handleEventICS(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventFromPath(w, r)
	if !ok {
		return
	}
	if _, ok := domain.StartTime(e, s.deps.Location); !ok {
		writeError(w, http.StatusUnprocessableEntity, "event has no date")
		return
	}
	s.writeICS(w, []domain.Termin{e}, false, fmt.Sprintf("termin-%d.ics", e.OriginalIndex))
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	today := s.today()
	var upcoming []domain.Termin
	for _, e := range domain.SortByDate(s.deps.Store.Events()) {
		if e.Date != "" && e.Upcoming(today) {
			upcoming = append(upcoming, e)
		}
	}
	s.writeICS(w, upcoming, true, "")
}

func (s *Server) writeICS(w http.ResponseWriter, events []domain.Termin, publish bool, filename string) {
	var buf bytes.Buffer
	err := domain.WriteICS(&buf, events, domain.ICSOptions{
		Name:      calendarName,
		ProductID: calendarProductID,
		UIDDomain: calendarUIDDomain,
		Publish:   publish,
		Location:  s.deps.Location,
		Now:       domain.Now(),
	})
	if err != nil {
		s.logger.Error("render calendar failed", "error", err)
		writeError(w, http.StatusInternalServerError, "calendar unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Reloader == nil {
		writeError(w, http.StatusServiceUnavailable, "reload not available")
		return
	}
	s.deps.Reloader.Trigger()
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reload scheduled"})
}

func (s *Server) eventFromPath(w http.ResponseWriter, r *http.Request) (domain.Termin, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event index")
		return domain.Termin{}, false
	}
	e, err := s.deps.Store.Event(index)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return domain.Termin{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return domain.Termin{}, false
	}
	return e, true
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
