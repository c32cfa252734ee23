package mapbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

// RemoteCache is a shared second cache tier consulted after the in-memory LRU.
type RemoteCache interface {
	Get(ctx context.Context, key string) (domain.GeocodingResult, bool, error)
	Set(ctx context.Context, key string, result domain.GeocodingResult) error
}

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache and an optional
// remote tier shared between instances.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache
	remote  RemoteCache
	metrics *observability.Metrics
	logger  *slog.Logger
}

// CacheOption configures a CachedGeocoder.
type CacheOption func(*CachedGeocoder)

// WithRemoteCache adds a remote tier behind the LRU.
func WithRemoteCache(r RemoteCache, logger *slog.Logger) CacheOption {
	return func(c *CachedGeocoder) {
		c.remote = r
		c.logger = logger
	}
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics, opts ...CacheOption) *CachedGeocoder {
	c := &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, postalCode, country string) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("fwd:%s|%s", postalCode, country)
	return c.lookup(ctx, key, func() (domain.GeocodingResult, error) {
		return c.inner.ForwardGeocode(ctx, postalCode, country)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	return c.lookup(ctx, key, func() (domain.GeocodingResult, error) {
		return c.inner.ReverseGeocode(ctx, lat, lon)
	})
}

func (c *CachedGeocoder) lookup(ctx context.Context, key string, fetch func() (domain.GeocodingResult, error)) (domain.GeocodingResult, error) {
	if result, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("memory", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("memory", "miss").Inc()

	if c.remote != nil {
		result, ok, err := c.remote.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("geocode cache read failed", "key", key, "error", err)
		case ok:
			c.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			c.cache.put(key, result)
			return result, nil
		default:
			c.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()
		}
	}

	result, err := fetch()
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress == "" {
		return result, nil
	}
	c.cache.put(key, result)
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, result); err != nil {
			c.logger.Warn("geocode cache write failed", "key", key, "error", err)
		}
	}
	return result, nil
}

// lruCache is a simple thread-safe LRU cache for GeocodingResults.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.GeocodingResult
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
