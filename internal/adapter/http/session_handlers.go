package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

const (
	sessionCookie     = "sid"
	themeCookie       = "theme"
	themeCookieMaxAge = 365 * 24 * 60 * 60
	colorSchemeHint   = "Sec-CH-Prefers-Color-Scheme"
	keepAliveInterval = 25 * time.Second
)

var errMapUnavailable = errors.New("map unavailable")

// Action is one UI event posted by the client.
type Action struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Marker *int   `json:"marker,omitempty"`
	Code   string `json:"code,omitempty"`
	Width  *int   `json:"width,omitempty"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	width, err := queryInt(r, "width")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var stored *domain.Theme
	if c, err := r.Cookie(themeCookie); err == nil {
		t := domain.ParseTheme(c.Value)
		stored = &t
	}
	system := domain.ParseTheme(strings.Trim(r.Header.Get(colorSchemeHint), `"`))

	sess := s.deps.Sessions.Create(stored, system, width)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Accept-CH", colorSchemeHint)
	sharedobs.WriteJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleSessionView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.deps.Sessions.Remove(sess.ID())
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var a Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid action")
		return
	}

	status, err := s.apply(w, sess, a)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionActions.WithLabelValues(a.Type).Inc()
	}
	sharedobs.WriteJSON(w, http.StatusOK, sess.View())
}

// apply dispatches an action to the session board. Map interactions go
// through the callbacks of the current map render, as a map widget would.
func (s *Server) apply(w http.ResponseWriter, sess *Session, a Action) (int, error) {
	c := sess.Controller()
	switch a.Type {
	case "search":
		c.SearchInput(a.Text)
	case "apply_search":
		c.ApplySearch(a.Text)
	case "select_card":
		if a.Index == nil {
			return http.StatusBadRequest, errors.New("select_card requires index")
		}
		if err := c.SelectCard(*a.Index); err != nil {
			return notFoundOr(err)
		}
	case "select_marker":
		if a.Marker == nil {
			return http.StatusBadRequest, errors.New("select_marker requires marker")
		}
		cb, markers, ok := sess.mapCallbacks()
		if !ok {
			return http.StatusConflict, errMapUnavailable
		}
		if *a.Marker < 0 || *a.Marker >= len(markers) {
			return http.StatusNotFound, fmt.Errorf("marker %d: %w", *a.Marker, domain.ErrNotFound)
		}
		cb.MarkerClick(*a.Marker)
	case "select_region":
		if !domain.IsRegionCode(a.Code) {
			return http.StatusBadRequest, fmt.Errorf("invalid region code %q", a.Code)
		}
		cb, _, ok := sess.mapCallbacks()
		if !ok {
			return http.StatusConflict, errMapUnavailable
		}
		cb.RegionClick(a.Code)
	case "clear_region":
		cb, _, ok := sess.mapCallbacks()
		if !ok {
			return http.StatusConflict, errMapUnavailable
		}
		cb.BackdropClick()
	case "escape":
		c.Escape()
	case "outside_click":
		c.OutsideClick()
	case "close":
		c.Close()
	case "toggle_theme":
		setThemeCookie(w, c.ToggleTheme())
	case "resize":
		if a.Width == nil || *a.Width < 0 {
			return http.StatusBadRequest, errors.New("resize requires width")
		}
		c.Resize(*a.Width)
	default:
		return http.StatusBadRequest, fmt.Errorf("unknown action %q", a.Type)
	}
	return http.StatusOK, nil
}

func notFoundOr(err error) (int, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound, err
	}
	return http.StatusInternalServerError, err
}

// setThemeCookie stores the explicit choice so the system preference only
// applies when the user never toggled.
func setThemeCookie(w http.ResponseWriter, t domain.Theme) {
	http.SetCookie(w, &http.Cookie{
		Name:     themeCookie,
		Value:    string(t),
		Path:     "/",
		MaxAge:   themeCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := sess.subscribe()
	defer unsubscribe()

	view, _ := json.Marshal(sess.View())
	fmt.Fprintf(w, "event: view\ndata: %s\n\n", view)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream unsupported", "error", err)
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
		case ev := <-events:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if s.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions not available")
		return nil, false
	}
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no session")
		return nil, false
	}
	sess, ok := s.deps.Sessions.Get(c.Value)
	if !ok {
		writeError(w, http.StatusNotFound, "session expired")
		return nil, false
	}
	return sess, true
}
