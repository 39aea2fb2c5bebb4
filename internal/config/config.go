package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/lensshot/pkg/models"
)

// Config holds all process configuration
type Config struct {
	Port        int
	UserDataDir string

	ImagesDir      string
	ScreenshotsDir string
	PublicDir      string

	LensURL        string
	ResultSelector string

	BrowserMode    models.BrowserMode
	ChromePath     string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	DevToolsPort   int
	DevToolsProxy  bool

	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	ResultTimeout     time.Duration
	SettleDelay       time.Duration
	UploadTimeout     time.Duration
	DownloadTimeout   time.Duration

	DragOffset int
	DragSteps  int

	RetentionMaxAge   time.Duration
	RetentionSchedule string

	ProfileBackupDir  string
	ProfileBackupKeep int

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no environment overrides are set
func Default() Config {
	return Config{
		Port:              3000,
		UserDataDir:       "./browser_data",
		ImagesDir:         "./images",
		ScreenshotsDir:    "./screenshots",
		PublicDir:         "./public",
		LensURL:           "https://lens.google.com/search?p",
		BrowserMode:       models.ModeLocal,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		ReadyTimeout:      10 * time.Second,
		ResultTimeout:     15 * time.Second,
		SettleDelay:       5 * time.Second,
		UploadTimeout:     2 * time.Minute,
		DownloadTimeout:   60 * time.Second,
		DragOffset:        100,
		DragSteps:         20,
		RetentionMaxAge:   72 * time.Hour,
		RetentionSchedule: "@every 1h",
		ProfileBackupKeep: 3,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads an optional .env file and then the process environment.
// The returned bool reports whether a .env file was found.
func Load(files ...string) (Config, bool, error) {
	found := godotenv.Load(files...) == nil
	cfg, err := FromEnv(os.LookupEnv)
	return cfg, found, err
}

// FromEnv builds a Config from a lookup function, falling back to Default
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.integer("PORT", &cfg.Port)
	p.str("USER_DATA_DIR", &cfg.UserDataDir)
	p.str("IMAGES_DIR", &cfg.ImagesDir)
	p.str("SCREENSHOTS_DIR", &cfg.ScreenshotsDir)
	p.str("PUBLIC_DIR", &cfg.PublicDir)
	p.str("LENS_URL", &cfg.LensURL)
	p.str("RESULT_SELECTOR", &cfg.ResultSelector)
	p.str("CHROME_PATH", &cfg.ChromePath)
	p.boolean("HEADLESS", &cfg.Headless)
	p.integer("VIEWPORT_WIDTH", &cfg.ViewportWidth)
	p.integer("VIEWPORT_HEIGHT", &cfg.ViewportHeight)
	p.integer("DEVTOOLS_PORT", &cfg.DevToolsPort)
	p.boolean("DEVTOOLS_PROXY", &cfg.DevToolsProxy)
	p.duration("NAVIGATION_TIMEOUT", &cfg.NavigationTimeout)
	p.duration("READY_TIMEOUT", &cfg.ReadyTimeout)
	p.duration("RESULT_TIMEOUT", &cfg.ResultTimeout)
	p.duration("SETTLE_DELAY", &cfg.SettleDelay)
	p.duration("UPLOAD_TIMEOUT", &cfg.UploadTimeout)
	p.duration("DOWNLOAD_TIMEOUT", &cfg.DownloadTimeout)
	p.integer("DRAG_OFFSET", &cfg.DragOffset)
	p.integer("DRAG_STEPS", &cfg.DragSteps)
	p.duration("RETENTION_MAX_AGE", &cfg.RetentionMaxAge)
	p.str("RETENTION_SCHEDULE", &cfg.RetentionSchedule)
	p.str("PROFILE_BACKUP_DIR", &cfg.ProfileBackupDir)
	p.integer("PROFILE_BACKUP_KEEP", &cfg.ProfileBackupKeep)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)

	var mode string
	p.str("BROWSER_MODE", &mode)
	if mode != "" {
		cfg.BrowserMode = models.BrowserMode(mode)
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that the parser cannot
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.BrowserMode {
	case models.ModeLocal, models.ModeDocker:
	default:
		return fmt.Errorf("BROWSER_MODE must be %q or %q, got %q", models.ModeLocal, models.ModeDocker, c.BrowserMode)
	}
	if c.UserDataDir == "" {
		return fmt.Errorf("USER_DATA_DIR is required")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.DragSteps < 1 {
		return fmt.Errorf("DRAG_STEPS must be at least 1, got %d", c.DragSteps)
	}
	if c.ProfileBackupKeep < 1 {
		return fmt.Errorf("PROFILE_BACKUP_KEEP must be at least 1, got %d", c.ProfileBackupKeep)
	}
	if c.DevToolsPort < 0 || c.DevToolsPort > 65535 {
		return fmt.Errorf("DEVTOOLS_PORT out of range: %d", c.DevToolsPort)
	}
	if c.DevToolsProxy && c.BrowserMode == models.ModeLocal && c.DevToolsPort == 0 {
		return fmt.Errorf("DEVTOOLS_PROXY in local mode requires DEVTOOLS_PORT")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// parser records the first error so callers can chain lookups
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.get(key)
	if !ok || p.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = n
}

func (p *parser) boolean(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok || p.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = b
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok || p.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = d
}
