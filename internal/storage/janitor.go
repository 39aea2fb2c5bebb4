package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweep removes regular files older than maxAge and returns how many were deleted
func (d *Dir) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", d.root, err)
	}

	cutoff := d.now().Add(-maxAge)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// Janitor periodically sweeps artifact directories
type Janitor struct {
	dirs     []*Dir
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewJanitor validates the schedule. A zero maxAge yields a janitor that never runs.
func NewJanitor(schedule string, maxAge time.Duration, logger *zap.Logger, dirs ...*Dir) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Janitor{
		dirs:     dirs,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With(zap.String("component", "janitor")),
	}

	if maxAge <= 0 {
		return j, nil
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce() }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Enabled reports whether retention is active
func (j *Janitor) Enabled() bool {
	return j.maxAge > 0
}

// Start begins the schedule in the background
func (j *Janitor) Start() {
	if !j.Enabled() {
		j.logger.Info("retention disabled")
		return
	}
	j.cron.Start()
	j.logger.Info("retention enabled",
		zap.String("schedule", j.schedule),
		zap.Duration("max_age", j.maxAge))
}

// Stop halts the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce sweeps every directory and returns the total number of files removed
func (j *Janitor) RunOnce() int {
	total := 0
	for _, d := range j.dirs {
		n, err := d.Sweep(j.maxAge)
		if err != nil {
			j.logger.Warn("sweep failed", zap.String("dir", d.Root()), zap.Error(err))
		}
		if n > 0 {
			j.logger.Info("removed expired files", zap.String("dir", d.Root()), zap.Int("count", n))
		}
		total += n
	}
	return total
}
