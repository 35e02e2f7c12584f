// Package blogcore is the shared engine behind our server-rendered blog
// sites. It provides post and category CRUD with multi-resolution image
// processing, session-based admin auth, page view analytics, RSS, and a
// sitemap on top of a single SQLite database.
//
// Sites provide their own templ templates via the ViewFuncs struct and own
// their static assets; blogcore handles routing, middleware, persistence,
// and image handling.
package blogcore

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/oakmead/blogcore/analytics"
	"github.com/oakmead/blogcore/views"
)

// ViewFuncs holds site-provided templ components that the engine calls when
// rendering pages. This is the inversion-of-control mechanism that lets each
// site own and customize all templates while sharing the handler logic.
type ViewFuncs struct {
	Home     func(posts []Post, pg views.Pagination, categories []Category) templ.Component
	Post     func(post Post, categories []Category) templ.Component
	Category func(category Category, posts []Post, pg views.Pagination, categories []Category) templ.Component
	Search   func(query string, posts []Post, categories []Category) templ.Component

	AdminLogin      func(showError bool, csrfToken string) templ.Component
	AdminDashboard  func(posts []Post, categories []Category, flashes Flashes, csrfToken string) templ.Component
	AdminPostForm   func(post *Post, categories []Category, flashes Flashes, csrfToken string) templ.Component
	AdminCategories func(categories []Category, flashes Flashes, csrfToken string) templ.Component
	AdminUsers      func(users []User, flashes Flashes, csrfToken string) templ.Component

	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// App is the central blogcore application. It wires together the store,
// image pipeline, publisher, middleware, and site-provided templates.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Store     *Store
	Publisher *Publisher
	Images    *Pipeline
	Views     ViewFuncs
	Log       *zap.Logger

	categories     *categoryCache
	loginLimiter   *LoginLimiter
	analyticsStore *analytics.Store
	customRoutes   []func(*App)
	startedAt      time.Time
}

// New creates a blogcore App with the given configuration and view functions.
func New(cfg SiteConfig, v ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  v,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Start initializes the database, image pipeline, middleware, and routes,
// then blocks serving HTTP until the server is shut down.
func (a *App) Start() error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("blogcore: SessionSecret is required")
	}

	if a.Log == nil {
		logger, err := newLogger(a.Config.LogLevel, a.Config.LogPath)
		if err != nil {
			return fmt.Errorf("blogcore: init logger: %w", err)
		}
		a.Log = logger
	}

	if err := os.MkdirAll(filepath.Dir(a.Config.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("blogcore: create data dir: %w", err)
	}
	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("blogcore: init store: %w", err)
	}
	a.Store = store

	a.Images = NewPipeline(a.Config.UploadsPath, a.Log)
	a.Publisher = NewPublisher(a.Store, a.Images, a.Log)
	a.categories = newCategoryCache(a.Store, a.Config.CategoryCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	if err := a.bootstrapAdmin(); err != nil {
		return fmt.Errorf("blogcore: bootstrap admin: %w", err)
	}

	a.setupMiddleware()

	if a.Config.AnalyticsEnabled {
		analyticsStore, err := analytics.NewStore(a.Store.DB())
		if err != nil {
			return fmt.Errorf("blogcore: init analytics: %w", err)
		}
		a.analyticsStore = analyticsStore
		stopCleanup := analyticsStore.StartCleanupScheduler(365, 24*time.Hour)
		defer stopCleanup()

		rec := analytics.NewRecorder(analyticsStore, a.Log)
		a.Echo.Use(rec.Middleware())
	}

	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}

	a.startedAt = time.Now()
	a.Log.Info("server starting",
		zap.String("addr", a.Config.Addr),
		zap.String("site", a.Config.SiteName))

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// bootstrapAdmin creates the initial admin account when the users table is
// empty, so a freshly deployed site can be logged into.
func (a *App) bootstrapAdmin() error {
	if a.Config.BootstrapAdminUser == "" || a.Config.BootstrapAdminPassword == "" {
		return nil
	}
	n, err := a.Store.CountUsers()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := a.Store.CreateUser(a.Config.BootstrapAdminUser, a.Config.BootstrapAdminPassword, "admin", ""); err != nil {
		return err
	}
	a.Log.Info("created bootstrap admin user", zap.String("username", a.Config.BootstrapAdminUser))
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.Config.PublicPath)
	e.Static("/uploads", a.Config.UploadsPath)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/health", a.handleHealth)

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/", a.handleHome)
	e.GET("/posts/:slug/", a.handlePost)
	e.GET("/category/:slug/", a.handleCategory)
	e.GET("/search/", a.handleSearch)

	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	e.GET("/admin/posts/new/", a.handleAdminPostNew)
	e.POST("/admin/posts/", a.handleAdminPostCreate)
	e.GET("/admin/posts/:id/edit/", a.handleAdminPostEdit)
	e.POST("/admin/posts/:id/", a.handleAdminPostUpdate)
	e.POST("/admin/posts/:id/delete/", a.handleAdminPostDelete)

	e.GET("/admin/categories/", a.handleAdminCategories)
	e.POST("/admin/categories/", a.handleAdminCategoryCreate)
	e.POST("/admin/categories/:id/", a.handleAdminCategoryUpdate)
	e.POST("/admin/categories/:id/delete/", a.handleAdminCategoryDelete)

	e.GET("/admin/users/", a.handleAdminUsers)
	e.POST("/admin/users/", a.handleAdminUserCreate)
	e.POST("/admin/users/:id/password/", a.handleAdminUserPassword)
	e.POST("/admin/users/:id/delete/", a.handleAdminUserDelete)

	e.GET("/admin/analytics/", a.handleAdminAnalytics)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Log != nil {
		a.Log.Sync()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("blogcore: required environment variable %s is not set", key)
	}
	return v
}
