package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/lensshot/internal/api"
	"github.com/shehryarbajwa/lensshot/internal/browser"
	"github.com/shehryarbajwa/lensshot/internal/config"
	"github.com/shehryarbajwa/lensshot/internal/fetcher"
	"github.com/shehryarbajwa/lensshot/internal/lens"
	"github.com/shehryarbajwa/lensshot/internal/logging"
	"github.com/shehryarbajwa/lensshot/internal/metrics"
	"github.com/shehryarbajwa/lensshot/internal/profile"
	"github.com/shehryarbajwa/lensshot/internal/proxy"
	"github.com/shehryarbajwa/lensshot/internal/session"
	"github.com/shehryarbajwa/lensshot/internal/storage"
	"github.com/shehryarbajwa/lensshot/pkg/models"
)

// shutdowner is satisfied by *http.Server and *session.Manager
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, foundEnv, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if !foundEnv {
		logger.Info("No .env file found, using system environment variables")
	}
	logger.Info("Starting lensshot...")

	images, err := storage.NewDir(cfg.ImagesDir, "/images", "image")
	if err != nil {
		logger.Error("Failed to prepare images directory", zap.Error(err))
		return 1
	}
	screenshots, err := storage.NewDir(cfg.ScreenshotsDir, "/screenshots", "lens_screenshot")
	if err != nil {
		logger.Error("Failed to prepare screenshots directory", zap.Error(err))
		return 1
	}

	janitor, err := storage.NewJanitor(cfg.RetentionSchedule, cfg.RetentionMaxAge, logger, images, screenshots)
	if err != nil {
		logger.Error("Failed to configure retention", zap.Error(err))
		return 1
	}

	collector := metrics.NewCollector("lensshot")

	var archiver *profile.Archiver
	if cfg.ProfileBackupDir != "" {
		archiver, err = profile.NewArchiver(cfg.ProfileBackupDir, cfg.ProfileBackupKeep, logger)
		if err != nil {
			logger.Error("Failed to prepare profile backups", zap.Error(err))
			return 1
		}
		if _, err := archiver.RestoreIfEmpty(cfg.UserDataDir); err != nil {
			logger.Error("Failed to restore browser profile", zap.Error(err))
			return 1
		}
	}

	var launcher session.Launcher
	if cfg.BrowserMode == models.ModeDocker {
		cl, err := browser.NewContainerLauncher()
		if err != nil {
			logger.Error("Failed to initialize docker", zap.Error(err))
			return 1
		}
		launcher = cl
	}

	sessionMgr := session.NewManager(session.Options{
		Mode:           cfg.BrowserMode,
		UserDataDir:    cfg.UserDataDir,
		ChromePath:     cfg.ChromePath,
		Headless:       cfg.Headless,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		DevToolsPort:   cfg.DevToolsPort,
	}, launcher, logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Minute)
	info, err := sessionMgr.Start(startCtx)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize browser", zap.Error(err))
		return 1
	}
	logger.Info("Browser initialized. Logged-in session retained.", zap.String("session_id", info.ID))

	imageFetcher := fetcher.New(images, cfg.DownloadTimeout, logger, fetcher.WithMetrics(collector))

	driver := lens.NewDriver(sessionMgr, screenshots, lens.Options{
		URL:               cfg.LensURL,
		ResultSelector:    cfg.ResultSelector,
		NavigationTimeout: cfg.NavigationTimeout,
		ReadyTimeout:      cfg.ReadyTimeout,
		ResultTimeout:     cfg.ResultTimeout,
		SettleDelay:       cfg.SettleDelay,
		UploadTimeout:     cfg.UploadTimeout,
		DragOffset:        cfg.DragOffset,
		DragSteps:         cfg.DragSteps,
	}, collector, logger)

	var devtools *proxy.Server
	if cfg.DevToolsProxy {
		devtools = proxy.NewServer(sessionMgr, logger)
		logger.Warn("DevTools proxy enabled", zap.String("path", "/debug/devtools"))
	}

	handler := api.NewHandler(imageFetcher, driver, sessionMgr, collector, logger)
	router := handler.SetupRoutes(api.Routes{
		Images:      images,
		Screenshots: screenshots,
		PublicDir:   cfg.PublicDir,
		Metrics:     collector.Handler(),
		DevTools:    devtools,
	})

	// No WriteTimeout: requests wait in the upload queue.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	janitor.Start()
	defer janitor.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server is running", zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Port)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("Shutting down gracefully...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if code := gracefulShutdown(ctx, logger, srv, sessionMgr); code != 0 {
		return code
	}

	if archiver != nil {
		if _, err := archiver.Snapshot(cfg.UserDataDir); err != nil {
			logger.Warn("Failed to snapshot browser profile", zap.Error(err))
		}
	}
	return exitCode
}

// gracefulShutdown stops accepting requests, then closes the browser.
// It returns the process exit code.
func gracefulShutdown(ctx context.Context, logger *zap.Logger, srv, browserSession shutdowner) int {
	code := 0

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		code = 1
	}

	if err := browserSession.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return 1
	}

	if code == 0 {
		logger.Info("Server stopped cleanly")
	}
	return code
}
