package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/lensshot/internal/metrics"
	"github.com/shehryarbajwa/lensshot/internal/storage"
)

const defaultExt = ".png"

var (
	// ErrInvalidURL is returned for anything that is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid image url")
	// ErrDownloadFailed wraps every network, status and write failure
	ErrDownloadFailed = errors.New("download failed")
)

// ValidateURL parses raw and requires an explicit http or https scheme and a host
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}

	if u.Hostname() == "" || u.Opaque != "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if strings.ContainsAny(u.Hostname(), " \t") {
		return nil, fmt.Errorf("%w: malformed host", ErrInvalidURL)
	}

	return u, nil
}

// Extension returns the file extension of the URL path, or .png when absent
func Extension(u *url.URL) string {
	ext := path.Ext(u.Path)
	if ext == "" || ext == "." || len(ext) > 10 {
		return defaultExt
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return defaultExt
		}
	}
	return strings.ToLower(ext)
}

// Fetcher downloads images into an artifact directory
type Fetcher struct {
	client  *http.Client
	dir     *storage.Dir
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMetrics records download size and duration
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Fetcher) { f.metrics = c }
}

// New creates a Fetcher writing into dir. timeout bounds a whole download; zero means none.
func New(dir *storage.Dir, timeout time.Duration, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		client: &http.Client{Timeout: timeout},
		dir:    dir,
		logger: logger.With(zap.String("component", "fetcher")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch streams rawURL to a new file and returns its local path.
// A partially written file is left in place when the copy fails.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return "", err
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %s", ErrDownloadFailed, resp.Status)
	}

	file, err := f.dir.Create(Extension(u))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	localPath := file.Name()

	f.logger.Debug("downloading image", zap.String("url", u.String()), zap.String("path", localPath))

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	elapsed := time.Since(start)
	f.metrics.RecordDownload(n, elapsed)
	f.logger.Info("image downloaded",
		zap.String("path", localPath),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", elapsed))

	return localPath, nil
}
