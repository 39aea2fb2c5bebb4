package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewDir_CreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	d, err := NewDir(root, "/screenshots", "shot")
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, root, d.Root())
	assert.Equal(t, "/screenshots", d.Route())
}

func TestNextName_MonotonicWithinSameMillisecond(t *testing.T) {
	d, err := NewDir(t.TempDir(), "/images", "image")
	require.NoError(t, err)
	d.now = fixedClock(time.UnixMilli(1700000000000))

	assert.Equal(t, "image_1700000000000.png", d.NextName(".png"))
	assert.Equal(t, "image_1700000000001.jpg", d.NextName(".jpg"))
	assert.Equal(t, "image_1700000000002.png", d.NextName(".png"))
}

func TestNextName_ConcurrentUnique(t *testing.T) {
	d, err := NewDir(t.TempDir(), "/images", "image")
	require.NoError(t, err)

	const n = 200
	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			names <- d.NextName(".png")
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
}

func TestWrite_SequentialArtifactsAreDistinct(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root, "/screenshots", "lens_screenshot")
	require.NoError(t, err)

	first, err := d.Write(".png", []byte("first"))
	require.NoError(t, err)
	second, err := d.Write(".png", []byte("second"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Filename, second.Filename)
	assert.Equal(t, "/screenshots/"+first.Filename, first.URL)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, err = os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWrite_RecreatesMissingDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "shots")
	d, err := NewDir(root, "/screenshots", "lens_screenshot")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	art, err := d.Write(".png", []byte("x"))
	require.NoError(t, err)
	assert.FileExists(t, art.Path)
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root, "/images", "image")
	require.NoError(t, err)

	oldFile := filepath.Join(root, "old.png")
	newFile := filepath.Join(root, "new.png")
	require.NoError(t, os.WriteFile(oldFile, []byte("o"), 0644))
	require.NoError(t, os.WriteFile(newFile, []byte("n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "nested"), 0755))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	removed, err := d.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, newFile)
	assert.DirExists(t, filepath.Join(root, "nested"))
}

func TestJanitor(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root, "/images", "image")
	require.NoError(t, err)

	stale := filepath.Join(root, "stale.png")
	require.NoError(t, os.WriteFile(stale, []byte("s"), 0644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	j, err := NewJanitor("@every 1h", time.Hour, zap.NewNop(), d)
	require.NoError(t, err)
	assert.True(t, j.Enabled())
	assert.Equal(t, 1, j.RunOnce())
	assert.NoFileExists(t, stale)

	j.Start()
	j.Stop()
}

func TestJanitor_Disabled(t *testing.T) {
	j, err := NewJanitor("not a schedule", 0, nil)
	require.NoError(t, err)
	assert.False(t, j.Enabled())
	j.Start()
	j.Stop()
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	_, err := NewJanitor("every so often", time.Hour, nil)
	assert.Error(t, err)
}
