package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

// TermineTransformer implements Transformer by parsing termine.json and
// filling location gaps through an optional geocoder.
type TermineTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a TermineTransformer. Pass a nil geocoder to disable
// geocoding fallback.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *TermineTransformer {
	return &TermineTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *TermineTransformer) Transform(ctx context.Context, feed Feed) ([]domain.Termin, error) {
	events, err := domain.ParseTermine(feed.Data)
	if err != nil {
		return nil, err
	}

	for i := range events {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		events[i] = domain.EnrichWithGeocoding(ctx, events[i], t.geocoder, t.logger)
	}
	return events, nil
}
