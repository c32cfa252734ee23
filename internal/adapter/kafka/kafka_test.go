package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

type fakeWriter struct {
	mu     sync.Mutex
	writes [][]kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, msgs)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func termin(name, date, plz string) domain.Termin {
	return domain.Termin{Name: name, Date: date, PostalCode: plz, City: "Rosenheim"}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	e := termin("Stammtisch Rosenheim", "2025-07-04", "83022")
	e.OriginalIndex = 3

	msg, err := serializeToMessage(e, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("Stammtisch Rosenheim|2025-07-04|83022"), msg.Key)
	assert.Contains(t, string(msg.Value), `"name":"Stammtisch Rosenheim"`)
	assert.Contains(t, string(msg.Value), `"index":3`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_date", msg.Headers[0].Key)
	assert.Equal(t, []byte("2025-07-04"), msg.Headers[0].Value)
	assert.Equal(t, "announced_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestAnnouncer_FirstLoadIsBaseline(t *testing.T) {
	w := &fakeWriter{}
	a := newAnnouncer(w, observability.NewMetricsForTesting(), discardLogger())

	require.NoError(t, a.Load(context.Background(), []domain.Termin{termin("A", "2025-07-01", "1")}))
	assert.Empty(t, w.writes)
}

func TestAnnouncer_PublishesOnlyNewEvents(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	w := &fakeWriter{}
	metrics := observability.NewMetricsForTesting()
	a := newAnnouncer(w, metrics, discardLogger())
	ctx := context.Background()

	base := []domain.Termin{termin("A", "2025-07-01", "1"), termin("B", "2025-07-02", "2")}
	require.NoError(t, a.Load(ctx, base))

	next := append(base, termin("C", "2025-07-03", "3"), termin("C", "2025-07-03", "3"))
	require.NoError(t, a.Load(ctx, next))

	require.Len(t, w.writes, 1)
	require.Len(t, w.writes[0], 1, "duplicate keys are announced once")

	var got Announcement
	require.NoError(t, json.Unmarshal(w.writes[0][0].Value, &got))
	assert.Equal(t, "C", got.Name)
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), got.AnnouncedAt)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.AnnouncementsPublished), 0)

	// Reloading the same snapshot publishes nothing.
	require.NoError(t, a.Load(ctx, next))
	assert.Len(t, w.writes, 1)
}

func TestAnnouncer_FailedPublishIsRetried(t *testing.T) {
	w := &fakeWriter{}
	a := newAnnouncer(w, observability.NewMetricsForTesting(), discardLogger())
	ctx := context.Background()

	require.NoError(t, a.Load(ctx, nil))

	w.err = errors.New("leader not available")
	events := []domain.Termin{termin("A", "2025-07-01", "1")}
	require.Error(t, a.Load(ctx, events))

	w.err = nil
	require.NoError(t, a.Load(ctx, events))
	require.Len(t, w.writes, 1)
	assert.Equal(t, []byte("A|2025-07-01|1"), w.writes[0][0].Key)
}

func TestAnnouncer_Close(t *testing.T) {
	w := &fakeWriter{}
	a := newAnnouncer(w, observability.NewMetricsForTesting(), discardLogger())
	require.NoError(t, a.Close())
	assert.True(t, w.closed)
}
