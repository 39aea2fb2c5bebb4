package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/lensshot/internal/storage"
	"github.com/shehryarbajwa/lensshot/pkg/models"
)

const archiveExt = ".tar.gz"

// ErrNoSnapshot is returned when the backup directory holds no archives
var ErrNoSnapshot = errors.New("no profile snapshot found")

// Archiver keeps rotating tar.gz snapshots of the browser profile so a
// logged-in session survives a lost data directory.
type Archiver struct {
	store  *storage.Dir
	keep   int
	logger *zap.Logger
}

// NewArchiver stores snapshots in dir and retains the newest keep of them
func NewArchiver(dir string, keep int, logger *zap.Logger) (*Archiver, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewDir(dir, "", "profile")
	if err != nil {
		return nil, err
	}

	return &Archiver{
		store:  store,
		keep:   keep,
		logger: logger.With(zap.String("component", "profile")),
	}, nil
}

// Snapshot compresses userDataDir into a new archive and prunes old ones.
// Chrome must not be running, or the archive may hold torn files.
func (a *Archiver) Snapshot(userDataDir string) (*models.ProfileSnapshot, error) {
	f, err := a.store.Create(archiveExt)
	if err != nil {
		return nil, err
	}
	archivePath := f.Name()

	if err := compressDirectory(userDataDir, f); err != nil {
		f.Close()
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to compress profile: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, err
	}

	snap := &models.ProfileSnapshot{
		ID:        uuid.New().String(),
		Path:      archivePath,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}
	a.logger.Info("profile snapshot written",
		zap.String("snapshot_id", snap.ID),
		zap.String("path", archivePath),
		zap.Int64("bytes", snap.Size),
	)

	if err := a.prune(); err != nil {
		a.logger.Warn("failed to prune profile snapshots", zap.Error(err))
	}
	return snap, nil
}

// Latest returns the path of the newest archive
func (a *Archiver) Latest() (string, error) {
	archives, err := a.list()
	if err != nil {
		return "", err
	}
	if len(archives) == 0 {
		return "", ErrNoSnapshot
	}
	return archives[len(archives)-1], nil
}

// RestoreIfEmpty extracts the newest archive into userDataDir when that
// directory is missing or empty. It reports whether a restore happened.
func (a *Archiver) RestoreIfEmpty(userDataDir string) (bool, error) {
	entries, err := os.ReadDir(userDataDir)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read profile directory: %w", err)
	}
	if len(entries) > 0 {
		return false, nil
	}

	latest, err := a.Latest()
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create profile directory: %w", err)
	}
	if err := extractDirectory(latest, userDataDir); err != nil {
		return false, fmt.Errorf("failed to extract %s: %w", latest, err)
	}

	a.logger.Info("profile restored from snapshot", zap.String("path", latest))
	return true, nil
}

// list returns archive paths oldest first
func (a *Archiver) list() ([]string, error) {
	entries, err := os.ReadDir(a.store.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), archiveExt) {
			names = append(names, e.Name())
		}
	}
	// prefix_<ms> names sort chronologically once lengths match
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(a.store.Root(), n)
	}
	return paths, nil
}

func (a *Archiver) prune() error {
	archives, err := a.list()
	if err != nil {
		return err
	}

	var errs []error
	for len(archives) > a.keep {
		if err := os.Remove(archives[0]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
		archives = archives[1:]
	}
	return errors.Join(errs...)
}

// skipEntry filters Chrome's per-process lock files and sockets
func skipEntry(info os.FileInfo) bool {
	if strings.HasPrefix(info.Name(), "Singleton") {
		return true
	}
	return !info.IsDir() && !info.Mode().IsRegular()
}

// compressDirectory writes a tar.gz archive of source to w
func compressDirectory(source string, w io.Writer) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	err := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == source || skipEntry(info) {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tarWriter, file)
		return err
	})
	if err != nil {
		return err
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// extractDirectory unpacks a tar.gz archive into target
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	root := filepath.Clean(target) + string(os.PathSeparator)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath, root) {
			return fmt.Errorf("archive entry escapes target: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}

			outFile, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			if err := outFile.Close(); err != nil {
				return err
			}
			os.Chtimes(targetPath, time.Now(), header.ModTime)
		}
	}
}
