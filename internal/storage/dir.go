package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/shehryarbajwa/lensshot/pkg/models"
)

// Dir is an append-only artifact directory exposed under a public route
type Dir struct {
	root   string
	route  string
	prefix string

	now  func() time.Time
	mu   sync.Mutex
	last int64
}

// NewDir creates the directory if needed.
// route is the URL prefix the directory is served under, e.g. "/screenshots".
func NewDir(root, route, prefix string) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", root, err)
	}

	return &Dir{
		root:   root,
		route:  route,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Root returns the filesystem path of the directory
func (d *Dir) Root() string {
	return d.root
}

// Route returns the URL prefix the directory is served under
func (d *Dir) Route() string {
	return d.route
}

// NextName returns prefix_<unix-ms><ext>. Names from one Dir are strictly
// increasing, so two calls in the same millisecond still differ.
func (d *Dir) NextName(ext string) string {
	d.mu.Lock()
	ms := d.now().UnixMilli()
	if ms <= d.last {
		ms = d.last + 1
	}
	d.last = ms
	d.mu.Unlock()

	return fmt.Sprintf("%s_%d%s", d.prefix, ms, ext)
}

// Create opens a new uniquely named file for writing
func (d *Dir) Create(ext string) (*os.File, error) {
	if err := os.MkdirAll(d.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", d.root, err)
	}

	name := d.NextName(ext)
	f, err := os.OpenFile(filepath.Join(d.root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}

// Write persists data under a new name and returns the resulting artifact
func (d *Dir) Write(ext string, data []byte) (*models.ScreenshotArtifact, error) {
	f, err := d.Create(ext)
	if err != nil {
		return nil, err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", f.Name(), err)
	}

	name := filepath.Base(f.Name())
	return &models.ScreenshotArtifact{
		Filename:  name,
		Path:      f.Name(),
		URL:       d.PublicPath(name),
		CreatedAt: d.now(),
	}, nil
}

// PublicPath returns the server-relative URL for a file in this directory
func (d *Dir) PublicPath(name string) string {
	return path.Join(d.route, name)
}
