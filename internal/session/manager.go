package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/lensshot/internal/browser"
	"github.com/shehryarbajwa/lensshot/pkg/models"
)

var (
	ErrNotStarted     = errors.New("browser session not started")
	ErrAlreadyStarted = errors.New("browser session already started")
	ErrClosed         = errors.New("browser session closed")
)

// Options controls how the browser process is launched
type Options struct {
	Mode           models.BrowserMode
	UserDataDir    string
	ChromePath     string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	DevToolsPort   int
}

// Launcher starts and stops a containerized browser
type Launcher interface {
	EnsureImage(ctx context.Context) error
	Launch(ctx context.Context, sessionID, userDataDir string) (*browser.Instance, error)
	Stop(ctx context.Context, containerID string) error
	Close() error
}

// Manager owns the single browser session of the process
type Manager struct {
	opts     Options
	launcher Launcher
	logger   *zap.Logger

	mu            sync.RWMutex
	info          *models.SessionInfo
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// NewManager creates a manager. launcher is only used in docker mode and may be nil otherwise.
func NewManager(opts Options, launcher Launcher, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		opts:     opts,
		launcher: launcher,
		logger:   logger.With(zap.String("component", "session")),
	}
}

// Start launches the browser and prepares the initial page.
// It must succeed before any page is requested.
func (m *Manager) Start(ctx context.Context) (*models.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browserCtx != nil {
		return nil, ErrAlreadyStarted
	}

	info := &models.SessionInfo{
		ID:          uuid.New().String(),
		Mode:        m.opts.Mode,
		Status:      models.StatusStarting,
		UserDataDir: m.opts.UserDataDir,
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	switch m.opts.Mode {
	case models.ModeLocal, "":
		if err := os.MkdirAll(m.opts.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), m.execOptions()...)
		info.Mode = models.ModeLocal

	case models.ModeDocker:
		if m.launcher == nil {
			return nil, fmt.Errorf("docker mode requires a container launcher")
		}
		if err := m.launcher.EnsureImage(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure browser image: %w", err)
		}
		inst, err := m.launcher.Launch(ctx, info.ID, m.opts.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser container: %w", err)
		}
		info.ConnectURL = inst.ConnectURL
		info.ContainerID = inst.ContainerID
		info.UserDataDir = inst.UserDataDir
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), inst.ConnectURL, chromedp.NoModifyURL)

	default:
		return nil, fmt.Errorf("unsupported browser mode %q", m.opts.Mode)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			m.logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			m.logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run launches the browser and binds it to browserCtx, so ctx
	// can only bound it from outside.
	if err := runUntil(ctx, func() error { return chromedp.Run(browserCtx, m.viewport()) }); err != nil {
		browserCancel()
		allocCancel()
		m.stopContainer(info)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	info.Status = models.StatusRunning
	info.StartedAt = time.Now()

	m.info = info
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel

	m.logger.Info("browser session started",
		zap.String("session_id", info.ID),
		zap.String("mode", string(info.Mode)),
		zap.Bool("headless", m.opts.Headless),
		zap.String("user_data_dir", info.UserDataDir),
		zap.Int("viewport_w", m.opts.ViewportWidth),
		zap.Int("viewport_h", m.opts.ViewportHeight))

	snapshot := *info
	return &snapshot, nil
}

// NewPage opens a new tab sharing the session's profile
func (m *Manager) NewPage() (*Page, error) {
	m.mu.RLock()
	parent, closed := m.browserCtx, m.closed
	m.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if parent == nil {
		return nil, ErrNotStarted
	}

	tabCtx, cancel := chromedp.NewContext(parent)
	if err := chromedp.Run(tabCtx, m.viewport()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	p := &Page{ctx: tabCtx, cancel: cancel}
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		p.id = string(c.Target.TargetID)
	}

	m.logger.Debug("tab opened", zap.String("target_id", p.id))
	return p, nil
}

// Shutdown closes the browser. Calling it again, or before Start, is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.browserCtx == nil {
		m.closed = true
		return nil
	}
	m.closed = true

	var errs []error
	if err := chromedp.Cancel(m.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	m.browserCancel()
	m.allocCancel()

	if m.info.ContainerID != "" {
		if err := m.launcher.Stop(ctx, m.info.ContainerID); err != nil {
			errs = append(errs, err)
		}
	}
	if m.launcher != nil {
		if err := m.launcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.info.Status = models.StatusClosed
	if len(errs) > 0 {
		m.info.Status = models.StatusError
	}

	m.logger.Info("browser session closed", zap.String("session_id", m.info.ID))
	return errors.Join(errs...)
}

// Info returns a copy of the session description, or false before Start
func (m *Manager) Info() (models.SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.info == nil {
		return models.SessionInfo{}, false
	}
	return *m.info, true
}

// Running reports whether the browser is started and its initial page is still alive
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.browserCtx != nil && !m.closed && m.browserCtx.Err() == nil
}

// DebuggerURL returns the browser-level DevTools websocket URL
func (m *Manager) DebuggerURL(ctx context.Context) (string, error) {
	info, ok := m.Info()
	if !ok || !m.Running() {
		return "", ErrNotStarted
	}

	if info.ConnectURL != "" {
		return info.ConnectURL, nil
	}
	if m.opts.DevToolsPort == 0 {
		return "", fmt.Errorf("devtools port not configured")
	}

	v, err := browser.FetchVersion(ctx, "http://127.0.0.1:"+strconv.Itoa(m.opts.DevToolsPort))
	if err != nil {
		return "", fmt.Errorf("failed to query devtools: %w", err)
	}
	return v.WebSocketDebuggerURL, nil
}

// runUntil returns fn's result, or ctx's error if ctx ends first. The caller
// must cancel whatever fn is blocked on.
func runUntil(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) execOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.opts.Headless),
		chromedp.UserDataDir(m.opts.UserDataDir),
		chromedp.WindowSize(m.opts.ViewportWidth, m.opts.ViewportHeight),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("start-maximized", true),
	)

	if m.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(m.opts.ChromePath))
	}
	if m.opts.DevToolsPort > 0 {
		opts = append(opts, chromedp.Flag("remote-debugging-port", strconv.Itoa(m.opts.DevToolsPort)))
	}

	return opts
}

func (m *Manager) viewport() chromedp.Action {
	return chromedp.EmulateViewport(int64(m.opts.ViewportWidth), int64(m.opts.ViewportHeight))
}

func (m *Manager) stopContainer(info *models.SessionInfo) {
	if info.ContainerID == "" || m.launcher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.launcher.Stop(ctx, info.ContainerID); err != nil {
		m.logger.Warn("failed to stop browser container", zap.String("container_id", info.ContainerID), zap.Error(err))
	}
}
