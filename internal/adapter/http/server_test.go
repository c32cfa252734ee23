package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/stammtisch-map-service/internal/adapter/http"
	"github.com/couchcryptid/stammtisch-map-service/internal/board"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

const fixture = `[
  {"name":"Stammtisch Rosenheim","plz":"83022","state":"DE-BY","city":"Rosenheim","coords":[47.8561,12.1289],"date":"2025-03-14","time":"19:30","orga":"Freiheitliche Stammtische","kontakt":"Max","e-mail":"rosenheim@example.org"},
  {"name":"Stammtisch Rosenheim","plz":"83022","state":"DE-BY","city":"Rosenheim","coords":[47.8561,12.1289],"date":"2025-07-04","time":"ab 18 Uhr","orga":"Freiheitliche Stammtische","link":"https://t.me/stammtisch_rosenheim"},
  {"name":"Stammtisch Köln","plz":"50667","state":"DE-NW","city":"Köln","coords":[50.9384,6.9599],"date":"2025-06-20","time":"20:00","orga":"Liberale Runde Rheinland"},
  {"name":"Stammtisch Leipzig","plz":"04109","state":"DE-SN","city":"Leipzig","date":"2025-08-01"}
]`

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockReloader struct {
	calls atomic.Int32
}

func (m *mockReloader) Trigger() { m.calls.Add(1) }

type testEnv struct {
	srv      *httpadapter.Server
	store    *board.Store
	sessions *httpadapter.Sessions
	reloader *mockReloader
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, readyErr error) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	events, err := domain.ParseTermine([]byte(fixture))
	require.NoError(t, err)

	store := board.NewStore()
	require.NoError(t, store.Load(context.Background(), events))

	metrics := observability.NewMetricsForTesting()
	sessions := httpadapter.NewSessions(store, httpadapter.SessionOptions{
		TTL:   30 * time.Minute,
		Clock: clock,
	}, metrics, discardLogger())
	t.Cleanup(sessions.Close)

	reloader := &mockReloader{}
	srv := httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, httpadapter.Deps{
		Store:    store,
		Sessions: sessions,
		Reloader: reloader,
		Location: time.UTC,
		Metrics:  metrics,
	}, discardLogger())

	return &testEnv{srv: srv, store: store, sessions: sessions, reloader: reloader, clock: clock, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	env := newTestEnv(t, fmt.Errorf("no events loaded yet"))
	rec := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no events loaded yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- stateless reads ---

func TestTermineJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/termine.json", "")

	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]domain.Termin](t, rec)
	require.Len(t, events, 4)
	assert.Equal(t, 2, events[2].OriginalIndex)
	assert.Equal(t, "Fr.", events[0].DayOfWeek, "weekday derived from the date")
}

func TestMarkers(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/markers?theme=dark&width=500", "")

	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[board.MapConfig](t, rec)
	assert.Equal(t, domain.ThemeDark, cfg.Theme)
	assert.Equal(t, board.Germany, cfg.Focus)
	assert.Equal(t, 5.0, cfg.MarkerStyle.Radius, "narrow viewport")
	require.Len(t, cfg.Markers, 2, "Leipzig has no coordinates")
	assert.Equal(t, []int{0, 1}, cfg.Markers[0].Indices)
	assert.Equal(t, 1, cfg.Markers[0].Representative)
}

func TestMarkers_InvalidWidth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/markers?width=wide", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCards_Filter(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/cards?q=DE-NW", "")

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[domain.CardList](t, rec)
	require.Len(t, list.Cards, 4)
	assert.Equal(t, 1, list.SeparatorBefore)
	assert.Equal(t, []int{2}, list.VisibleIndices())
	assert.True(t, list.SeparatorVisible)
	assert.False(t, list.NoResults)
}

func TestEventDetail(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/events/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[domain.Detail](t, rec)
	assert.Equal(t, "Stammtisch Köln", d.Title)
	assert.Equal(t, "in 5 Tagen", d.Relative)
	assert.Equal(t, "Nordrhein-Westfalen", d.StateName)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/events/42", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/events/abc", "").Code)
}

func TestEventICS(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/events/2/event.ics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "termin-2.ics")
	body := rec.Body.String()
	assert.Contains(t, body, "SUMMARY:Stammtisch Köln\r\n")
	assert.Contains(t, body, "DTSTART:20250620T200000Z\r\n")
	assert.NotContains(t, body, "METHOD:PUBLISH")
}

func TestCalendarFeed_UpcomingOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/calendar.ics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "METHOD:PUBLISH\r\n")
	assert.Contains(t, body, "X-PUBLISHED-TTL:PT1H\r\n")
	assert.Equal(t, 3, strings.Count(body, "BEGIN:VEVENT"), "the March event is past")
}

func TestReloadTriggersPipeline(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/reload", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), env.reloader.calls.Load())
}

// --- sessions ---

func createSession(t *testing.T, env *testEnv, path string, header http.Header, cookies ...*http.Cookie) (*http.Cookie, httpadapter.View) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	sid := cookie(rec, "sid")
	require.NotNil(t, sid)
	return sid, decode[httpadapter.View](t, rec)
}

func act(t *testing.T, env *testEnv, sid *http.Cookie, action string) (*httptest.ResponseRecorder, httpadapter.View) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/session/actions", action, sid)
	var v httpadapter.View
	if rec.Code == http.StatusOK {
		v = decode[httpadapter.View](t, rec)
	}
	return rec, v
}

func TestSession_CreateRendersBoard(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, view := createSession(t, env, "/api/session?width=1024", nil)

	assert.Equal(t, sid.Value, view.Session)
	assert.Equal(t, 4, view.State.Events)
	assert.False(t, view.State.Overlay.Visible)
	assert.Equal(t, domain.ThemeLight, view.State.Theme)
	require.NotNil(t, view.Map)
	assert.Len(t, view.Map.Markers, 2)
	assert.Equal(t, 8.0, view.Map.MarkerStyle.Radius)
	assert.Len(t, view.List.Cards, 4)
	assert.Equal(t, 1, env.sessions.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.SessionsActive), 0)
}

func TestSession_ThemeFromCookieAndHint(t *testing.T) {
	env := newTestEnv(t, nil)

	hint := http.Header{"Sec-Ch-Prefers-Color-Scheme": {`"dark"`}}
	_, view := createSession(t, env, "/api/session", hint)
	assert.Equal(t, domain.ThemeDark, view.State.Theme, "system preference on first visit")

	_, view = createSession(t, env, "/api/session", hint, &http.Cookie{Name: "theme", Value: "light"})
	assert.Equal(t, domain.ThemeLight, view.State.Theme, "stored choice wins")
}

func TestSession_SelectCardAndDismiss(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	rec, view := act(t, env, sid, `{"type":"select_card","index":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, board.Overlay{Visible: true, Index: 2}, view.State.Overlay)
	require.NotNil(t, view.Detail)
	assert.Equal(t, "Stammtisch Köln", view.Detail.Title)

	_, view = act(t, env, sid, `{"type":"select_card","index":0}`)
	assert.Equal(t, 0, view.State.Overlay.Index, "reselection replaces the overlay")

	_, view = act(t, env, sid, `{"type":"escape"}`)
	assert.False(t, view.State.Overlay.Visible)
	assert.Nil(t, view.Detail)

	rec, _ = act(t, env, sid, `{"type":"select_card","index":9}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.InDelta(t, 2, testutil.ToFloat64(env.metrics.SessionActions.WithLabelValues("select_card")), 0)
}

func TestSession_SelectMarkerFocusesMap(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	rec, view := act(t, env, sid, `{"type":"select_marker","marker":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, view.State.Overlay.Index, "first upcoming event of the group")
	require.NotNil(t, view.Focus)
	assert.Equal(t, board.MarkerZoom, view.Focus.Zoom)
	assert.Equal(t, domain.Geo{Lat: 47.8561, Lon: 12.1289}, view.Focus.At)

	rec, _ = act(t, env, sid, `{"type":"select_marker","marker":7}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_RegionClickSetsSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	_, view := act(t, env, sid, `{"type":"select_region","code":"DE-SN"}`)
	assert.Equal(t, "DE-SN", view.State.Search)
	assert.Equal(t, []int{3}, view.List.VisibleIndices())

	_, view = act(t, env, sid, `{"type":"clear_region"}`)
	assert.Empty(t, view.State.Search)
	assert.Len(t, view.List.VisibleIndices(), 4)

	rec, _ := act(t, env, sid, `{"type":"select_region","code":"Bayern"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_SearchIsDebounced(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	_, view := act(t, env, sid, `{"type":"search","text":"köln"}`)
	assert.Empty(t, view.State.Search, "not applied before the quiet period")

	env.clock.Advance(board.DefaultDebounce)
	assert.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/session", "", sid)
		return decode[httpadapter.View](t, rec).State.Search == "köln"
	}, time.Second, 5*time.Millisecond)
}

func TestSession_ToggleThemeSetsCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	rec, view := act(t, env, sid, `{"type":"toggle_theme"}`)
	assert.Equal(t, domain.ThemeDark, view.State.Theme)
	assert.Equal(t, domain.PaletteFor(domain.ThemeDark), view.Map.Palette)
	c := cookie(rec, "theme")
	require.NotNil(t, c)
	assert.Equal(t, "dark", c.Value)

	rec, view = act(t, env, sid, `{"type":"toggle_theme"}`)
	assert.Equal(t, domain.ThemeLight, view.State.Theme)
	c = cookie(rec, "theme")
	require.NotNil(t, c)
	assert.Equal(t, "light", c.Value)
	assert.Positive(t, c.MaxAge)

	// A stored light choice outlives a dark system preference.
	hint := http.Header{"Sec-Ch-Prefers-Color-Scheme": {`"dark"`}}
	_, view = createSession(t, env, "/api/session", hint, c)
	assert.Equal(t, domain.ThemeLight, view.State.Theme)
}

func TestSession_InvalidActions(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	for _, body := range []string{`{"type":"fly"}`, `not json`, `{"type":"resize"}`, `{"type":"select_card"}`} {
		rec, _ := act(t, env, sid, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestSession_RequiresCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/session", "").Code)
	rec := env.do(t, http.MethodGet, "/api/session", "", &http.Cookie{Name: "sid", Value: "gone"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_Delete(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	rec := env.do(t, http.MethodDelete, "/api/session", "", sid)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, env.sessions.Len())
	assert.InDelta(t, 0, testutil.ToFloat64(env.metrics.SessionsActive), 0)
}

func TestSessions_ReloadOnNewSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	_, view := act(t, env, sid, `{"type":"select_card","index":3}`)
	require.True(t, view.State.Overlay.Visible)

	events, err := domain.ParseTermine([]byte(`[{"name":"Neu","date":"2025-09-01","coords":[52.52,13.40]}]`))
	require.NoError(t, err)
	require.NoError(t, env.store.Load(context.Background(), events))

	rec := env.do(t, http.MethodGet, "/api/session", "", sid)
	view = decode[httpadapter.View](t, rec)
	assert.Equal(t, 1, view.State.Events)
	assert.False(t, view.State.Overlay.Visible, "overlay of a vanished event is hidden")
	assert.Len(t, view.Map.Markers, 1)
}

func TestSessions_SweepIdle(t *testing.T) {
	env := newTestEnv(t, nil)
	createSession(t, env, "/api/session", nil)
	sid, _ := createSession(t, env, "/api/session", nil)

	env.clock.Advance(20 * time.Minute)
	env.do(t, http.MethodGet, "/api/session", "", sid)
	env.clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, env.sessions.Sweep())
	assert.Equal(t, 1, env.sessions.Len())
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/session", "", sid).Code)
}

func TestSession_EventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/session", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	var sid *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			sid = c
		}
	}
	require.NotNil(t, sid)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/session/events", nil)
	require.NoError(t, err)
	req.AddCookie(sid)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := bufio.NewScanner(stream.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 1<<20)
	next := func(name string) string {
		for lines.Scan() {
			if lines.Text() != "event: "+name {
				continue
			}
			require.True(t, lines.Scan())
			return strings.TrimPrefix(lines.Text(), "data: ")
		}
		t.Fatalf("stream ended before %s event", name)
		return ""
	}

	var view httpadapter.View
	require.NoError(t, json.Unmarshal([]byte(next("view")), &view))
	assert.Equal(t, sid.Value, view.Session)

	actReq, err := http.NewRequest(http.MethodPost, ts.URL+"/api/session/actions", strings.NewReader(`{"type":"select_card","index":2}`))
	require.NoError(t, err)
	actReq.AddCookie(sid)
	actResp, err := http.DefaultClient.Do(actReq)
	require.NoError(t, err)
	actResp.Body.Close()

	var detail domain.Detail
	require.NoError(t, json.Unmarshal([]byte(next("detail")), &detail))
	assert.Equal(t, 2, detail.Index)
}
