package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Feed is one fetch of the raw event document.
type Feed struct {
	Data   []byte
	Digest string // content digest, used to skip unchanged reloads
	Source string
}

// Extractor fetches the raw event document.
type Extractor interface {
	Extract(ctx context.Context) (Feed, error)
}

// Transformer converts a raw document into event records.
type Transformer interface {
	Transform(ctx context.Context, feed Feed) ([]domain.Termin, error)
}

// Loader receives every new event snapshot. Loaders passed to New must succeed
// for a snapshot to count as loaded; sinks added with WithSinks are best effort.
type Loader interface {
	Load(ctx context.Context, events []domain.Termin) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithSinks adds loaders whose failures do not fail the reload. A sink that
// fails is retried with the current snapshot on the next tick or trigger.
func WithSinks(sinks ...Loader) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// Pipeline orchestrates the reload loop: extract, transform, and load into
// every loader, on start, on every interval tick and on Trigger.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loaders     []Loader
	sinks       []Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	interval    time.Duration
	trigger     chan struct{}
	ready       atomic.Bool
	lastDigest  string
	lastEvents  []domain.Termin
	failedSinks []Loader
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loaders:     loaders,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		interval:    interval,
		trigger:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the first snapshot has been loaded,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no event snapshot loaded yet")
	}
	return nil
}

// Trigger requests a reload without waiting for the next interval. Requests
// arriving while one is pending are coalesced.
func (p *Pipeline) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run executes the reload loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		if err := p.reload(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("reload failed", "error", err, "retry_in", backoff)
			p.metrics.Reloads.WithLabelValues("error").Inc()
			if !p.sleep(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if !p.waitForNext(ctx) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// reload runs one extract-transform-load cycle.
func (p *Pipeline) reload(ctx context.Context) error {
	start := p.clock.Now()

	feed, err := p.extractor.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if p.ready.Load() && feed.Digest != "" && feed.Digest == p.lastDigest {
		p.logger.Debug("event feed unchanged", "source", feed.Source)
		p.metrics.Reloads.WithLabelValues("unchanged").Inc()
		p.failedSinks = p.deliver(ctx, p.failedSinks, p.lastEvents)
		return nil
	}

	events, err := p.transformer.Transform(ctx, feed)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	for _, l := range p.loaders {
		if err := l.Load(ctx, events); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}

	p.lastDigest = feed.Digest
	p.lastEvents = events
	p.ready.Store(true)
	p.metrics.EventsLoaded.Set(float64(len(events)))
	p.metrics.Reloads.WithLabelValues("loaded").Inc()
	p.metrics.ReloadDuration.Observe(p.clock.Since(start).Seconds())
	p.logger.Info("event snapshot loaded", "source", feed.Source, "events", len(events))

	p.failedSinks = p.deliver(ctx, p.sinks, events)
	return nil
}

// deliver hands events to each sink and returns the sinks that failed.
func (p *Pipeline) deliver(ctx context.Context, sinks []Loader, events []domain.Termin) []Loader {
	var failed []Loader
	for _, s := range sinks {
		if err := s.Load(ctx, events); err != nil {
			p.logger.Warn("sink load failed, retrying on next reload", "error", err)
			p.metrics.Reloads.WithLabelValues("sink_error").Inc()
			failed = append(failed, s)
		}
	}
	return failed
}

// waitForNext blocks until the reload interval passes or a reload is
// triggered. Returns false if the context is cancelled.
func (p *Pipeline) waitForNext(ctx context.Context) bool {
	timer := p.clock.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	case <-p.trigger:
		return true
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
