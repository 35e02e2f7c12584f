package blogcore

import (
	"time"

	"go.uber.org/zap"
)

// SiteConfig holds all configuration for a blogcore site.
type SiteConfig struct {
	SiteName    string // Site name (default "Blog")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags
	Author      string // Default author name for JSON-LD

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/blog.db")
	UploadsPath  string // Directory for processed image variants (default "public/uploads")
	PublicPath   string // Directory for static assets (default "public")

	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	LogLevel string // debug|info|error (default "info")
	LogPath  string // Rotating log file (default "logs/app.log")

	AnalyticsEnabled bool // Record page views and unique visitors

	PageSize         int           // Posts per public page (default 6)
	CategoryCacheTTL time.Duration // Sidebar category cache TTL (default 5min)

	// When the users table is empty at startup and both values are set,
	// an admin account is created so the site is reachable on first boot.
	BootstrapAdminUser     string
	BootstrapAdminPassword string
}

func (c *SiteConfig) setDefaults() {
	if c.SiteName == "" {
		c.SiteName = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/blog.db"
	}
	if c.PublicPath == "" {
		c.PublicPath = "public"
	}
	if c.UploadsPath == "" {
		c.UploadsPath = c.PublicPath + "/uploads"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/app.log"
	}
	if c.PageSize == 0 {
		c.PageSize = 6
	}
	if c.CategoryCacheTTL == 0 {
		c.CategoryCacheTTL = 5 * time.Minute
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir overrides the directory for user-owned static assets.
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.Config.PublicPath = dir
	}
}

// WithLogger supplies a pre-built zap logger instead of the config-driven one.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) {
		a.Log = log
	}
}
