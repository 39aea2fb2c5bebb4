// Package lens drives the visual-search page: it uploads an image through a
// synthesized drag gesture and captures the rendered results.
package lens

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/lensshot/internal/metrics"
	"github.com/shehryarbajwa/lensshot/internal/session"
	"github.com/shehryarbajwa/lensshot/internal/storage"
	"github.com/shehryarbajwa/lensshot/pkg/models"
)

const pollInterval = 250 * time.Millisecond

// ErrNoBody is returned when the page has no body element to drop onto
var ErrNoBody = errors.New("page has no body element")

// errPollTimeout means a readiness condition was not met within its timeout
var errPollTimeout = errors.New("readiness poll timed out")

// pollFunc blocks until expr is truthy, returning errPollTimeout when
// timeout elapses first
type pollFunc func(ctx context.Context, expr string, timeout time.Duration) error

// Options configures the upload sequence
type Options struct {
	URL            string
	ResultSelector string

	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	ResultTimeout     time.Duration
	SettleDelay       time.Duration
	UploadTimeout     time.Duration

	DragOffset int
	DragSteps  int
}

// PageOpener hands out fresh tabs of the shared browser session
type PageOpener interface {
	NewPage() (*session.Page, error)
}

// Driver performs uploads one at a time against the shared browser
type Driver struct {
	opts    Options
	pages   PageOpener
	out     *storage.Dir
	slot    *semaphore.Weighted
	poll    pollFunc
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewDriver creates a driver writing screenshots into out
func NewDriver(pages PageOpener, out *storage.Dir, opts Options, collector *metrics.Collector, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		opts:    opts,
		pages:   pages,
		out:     out,
		slot:    semaphore.NewWeighted(1),
		poll:    evaluatePoll,
		metrics: collector,
		logger:  logger.With(zap.String("component", "lens_driver")),
	}
}

// Upload waits for the browser, opens a tab, runs the upload sequence and
// closes the tab. Only one upload drives the browser at a time.
func (d *Driver) Upload(ctx context.Context, imagePath string) (*models.ScreenshotArtifact, error) {
	task := models.UploadTask{ImagePath: imagePath}

	waitStart := time.Now()
	if err := d.slot.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for browser: %w", err)
	}
	defer d.slot.Release(1)
	d.metrics.RecordQueueWait(time.Since(waitStart))

	d.metrics.UploadStarted()
	defer d.metrics.UploadFinished()

	start := time.Now()
	artifact, err := d.upload(task)
	d.metrics.RecordUpload(time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func (d *Driver) upload(task models.UploadTask) (*models.ScreenshotArtifact, error) {
	p, err := d.pages.NewPage()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.Close(); err != nil {
			d.logger.Warn("failed to close tab", zap.String("target_id", p.ID()), zap.Error(err))
		}
	}()

	return d.Run(p, task)
}

// Run executes the upload sequence on an already opened page. The caller owns the page.
func (d *Driver) Run(p *session.Page, task models.UploadTask) (*models.ScreenshotArtifact, error) {
	ctx := p.Context()
	if d.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.UploadTimeout)
		defer cancel()
	}

	logger := d.logger.With(zap.String("target_id", p.ID()), zap.String("image", task.ImagePath))

	if err := d.navigate(ctx); err != nil {
		return nil, err
	}
	logger.Debug("navigated", zap.String("url", d.opts.URL))

	if err := d.waitFor(ctx, pageReadyJS, d.opts.ReadyTimeout, "page ready"); err != nil {
		return nil, err
	}

	var startURL string
	if err := chromedp.Run(ctx, chromedp.Location(&startURL)); err != nil {
		return nil, fmt.Errorf("failed to read page location: %w", err)
	}

	if err := d.dropImage(ctx, task.ImagePath); err != nil {
		return nil, err
	}
	logger.Debug("image dropped")

	if err := d.waitFor(ctx, resultsReadyScript(startURL, d.opts.ResultSelector), d.opts.ResultTimeout, "results"); err != nil {
		return nil, err
	}

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	artifact, err := d.out.Write(".png", buf)
	if err != nil {
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}

	logger.Info("screenshot saved", zap.String("file", artifact.Filename), zap.Int("bytes", len(buf)))
	return artifact, nil
}

// navigate loads the upload page and waits for the network to settle
func (d *Driver) navigate(ctx context.Context) error {
	navCtx := ctx
	if d.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d.opts.NavigationTimeout)
		defer cancel()
	}

	idle := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(navCtx)
	defer stopListening()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkAlmostIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(navCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		return fmt.Errorf("failed to enable lifecycle events: %w", err)
	}

	// Drop anything emitted for the blank tab before navigating.
	select {
	case <-idle:
	default:
	}

	if err := chromedp.Run(navCtx, chromedp.Navigate(d.opts.URL)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", d.opts.URL, err)
	}

	return awaitIdle(navCtx, idle, d.opts.URL)
}

// awaitIdle waits for the first network-idle signal or the end of ctx
func awaitIdle(ctx context.Context, idle <-chan struct{}, url string) error {
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("navigation to %s did not reach network idle: %w", url, ctx.Err())
	}
}

// waitFor polls expr until truthy. When the poll times out it sleeps
// SettleDelay and lets the sequence continue.
func (d *Driver) waitFor(ctx context.Context, expr string, timeout time.Duration, what string) error {
	if timeout > 0 {
		err := d.poll(ctx, expr, timeout)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
		}
		if !errors.Is(err, errPollTimeout) {
			return fmt.Errorf("waiting for %s: %w", what, err)
		}
		d.logger.Warn("readiness poll timed out, falling back to settle delay",
			zap.String("condition", what),
			zap.Duration("timeout", timeout),
			zap.Duration("settle_delay", d.opts.SettleDelay))
	}

	return sleep(ctx, d.opts.SettleDelay)
}

// evaluatePoll re-evaluates expr every pollInterval. Evaluation errors are
// retried: a navigation destroys the execution context the expression ran in,
// and the next evaluation lands in the new document.
func evaluatePoll(ctx context.Context, expr string, timeout time.Duration) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var ok bool
		if err := chromedp.Run(pollCtx, chromedp.Evaluate(expr, &ok)); err == nil && ok {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errPollTimeout
		case <-ticker.C:
		}
	}
}

// dropImage injects the image into the DOM and drags across the body
func (d *Driver) dropImage(ctx context.Context, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	var box *Box
	if err := chromedp.Run(ctx, chromedp.Evaluate(bodyBoxJS, &box)); err != nil {
		return fmt.Errorf("failed to locate drop zone: %w", err)
	}
	if box == nil {
		return ErrNoBody
	}

	var handle *runtime.RemoteObject
	if err := chromedp.Run(ctx, chromedp.Evaluate(injectScript(data), &handle)); err != nil {
		return fmt.Errorf("failed to inject image: %w", err)
	}
	if handle == nil || handle.Subtype == runtime.SubtypeNull {
		return ErrNoBody
	}
	defer func() {
		if handle.ObjectID == "" {
			return
		}
		if err := chromedp.Run(ctx, runtime.ReleaseObject(handle.ObjectID)); err != nil {
			d.logger.Debug("failed to release image handle", zap.Error(err))
		}
	}()

	start, moves := DragPath(*box, float64(d.opts.DragOffset), d.opts.DragSteps)
	if err := chromedp.Run(ctx, dragActions(start, moves)...); err != nil {
		return fmt.Errorf("failed to perform drag: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
