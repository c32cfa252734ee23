package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/stammtisch-map-service/internal/config"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

// messageWriter is the subset of *kafkago.Writer the announcer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Announcement is the message value published for a newly listed event.
type Announcement struct {
	Key         string    `json:"key"`
	Index       int       `json:"index"`
	Name        string    `json:"name"`
	Date        string    `json:"date"`
	DayOfWeek   string    `json:"dow"`
	Time        string    `json:"time"`
	City        string    `json:"city"`
	PostalCode  string    `json:"plz"`
	State       string    `json:"state"`
	Organizer   string    `json:"orga"`
	Link        string    `json:"link,omitempty"`
	AnnouncedAt time.Time `json:"announced_at"`
}

// Announcer publishes events that were not part of the previous load.
// It implements pipeline.Loader. The first load only records a baseline.
type Announcer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewAnnouncer creates a Kafka producer for the configured announcement topic.
func NewAnnouncer(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Announcer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaAnnounceTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newAnnouncer(w, metrics, logger)
}

func newAnnouncer(w messageWriter, metrics *observability.Metrics, logger *slog.Logger) *Announcer {
	return &Announcer{writer: w, metrics: metrics, logger: logger}
}

// Load publishes every event whose key was not seen in the previous load. The
// snapshot only advances after a successful write, so a failed publish is
// retried on the next reload.
func (a *Announcer) Load(ctx context.Context, events []domain.Termin) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := make(map[string]struct{}, len(events))
	for _, e := range events {
		current[e.Key()] = struct{}{}
	}

	if a.seen == nil {
		a.seen = current
		a.logger.Info("announcement baseline recorded", "events", len(current))
		return nil
	}

	now := domain.Now().UTC()
	var msgs []kafkago.Message
	published := make(map[string]struct{})
	for _, e := range events {
		key := e.Key()
		if _, ok := a.seen[key]; ok {
			continue
		}
		if _, ok := published[key]; ok {
			continue
		}
		published[key] = struct{}{}
		msg, err := serializeToMessage(e, now)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if len(msgs) > 0 {
		if err := a.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %d announcements: %w", len(msgs), err)
		}
		a.metrics.AnnouncementsPublished.Add(float64(len(msgs)))
		a.logger.Info("new events announced", "count", len(msgs))
	}
	a.seen = current
	return nil
}

func (a *Announcer) Close() error {
	return a.writer.Close()
}

// serializeToMessage marshals an event announcement into a Kafka message keyed
// by the event key.
func serializeToMessage(e domain.Termin, announcedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(Announcement{
		Key:         e.Key(),
		Index:       e.OriginalIndex,
		Name:        e.Name,
		Date:        e.Date,
		DayOfWeek:   e.DayOfWeek,
		Time:        e.Time,
		City:        e.City,
		PostalCode:  e.PostalCode,
		State:       e.State,
		Organizer:   e.Organizer,
		Link:        e.Link,
		AnnouncedAt: announcedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize announcement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_date", Value: []byte(e.Date)},
			{Key: "announced_at", Value: []byte(announcedAt.Format(time.RFC3339))},
		},
	}, nil
}
