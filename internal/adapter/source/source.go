// Package source fetches the termine.json document from a local file or an
// HTTP endpoint.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/stammtisch-map-service/internal/pipeline"
)

// maxDocumentSize bounds the size of a fetched feed.
const maxDocumentSize = 8 << 20

// New returns an extractor for location: an http(s) URL or a file path.
func New(location string, timeout time.Duration, logger *slog.Logger) pipeline.Extractor {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, &http.Client{Timeout: timeout}, logger)
	}
	return NewFileSource(location)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileSource reads the feed from disk on every extract.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Extract(_ context.Context) (pipeline.Feed, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return pipeline.Feed{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return pipeline.Feed{Data: data, Digest: digest(data), Source: s.path}, nil
}

// HTTPSource fetches the feed with conditional requests. A 304 response
// returns the previously fetched document unchanged.
type HTTPSource struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu   sync.Mutex
	etag string
	last pipeline.Feed
}

func NewHTTPSource(url string, client *http.Client, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{url: url, client: client, logger: logger}
}

func (s *HTTPSource) Extract(ctx context.Context) (pipeline.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return pipeline.Feed{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.etag != "" && s.last.Data != nil {
		req.Header.Set("If-None-Match", s.etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Feed{}, fmt.Errorf("fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		s.logger.Debug("feed not modified", "url", s.url)
		return s.last, nil
	case http.StatusOK:
	default:
		return pipeline.Feed{}, fmt.Errorf("fetch %s: status %d", s.url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return pipeline.Feed{}, fmt.Errorf("read %s: %w", s.url, err)
	}
	if len(data) > maxDocumentSize {
		return pipeline.Feed{}, fmt.Errorf("fetch %s: document exceeds %d bytes", s.url, maxDocumentSize)
	}

	s.etag = resp.Header.Get("ETag")
	s.last = pipeline.Feed{Data: data, Digest: digest(data), Source: s.url}
	return s.last, nil
}
