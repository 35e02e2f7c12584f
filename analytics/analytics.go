// Package analytics records page views and unique visitors for a blogcore
// site. Recording is fire-and-forget: a failed write is logged and never
// surfaces to the request that triggered it.
package analytics

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// visitorCookie identifies a browser across requests for unique visitor
// counting. It carries a random UUID, not anything derived from the user.
const visitorCookie = "blog_visitor"

const visitorCookieMaxAge = 365 * 24 * 60 * 60

// skipPrefixes lists paths that never count as content views.
var skipPrefixes = []string{
	"/public",
	"/uploads",
	"/admin",
	"/favicon",
	"/health",
	"/robots.txt",
	"/sitemap.xml",
	"/feed.xml",
}

// Recorder turns requests into analytics rows.
type Recorder struct {
	store *Store
	log   *zap.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func skippable(path string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware returns an echo middleware that records page views for GET
// requests to content pages. The handler chain is never delayed or failed
// by recording; writes happen in a background goroutine.
func (r *Recorder) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet || skippable(c.Path()) || skippable(c.Request().URL.Path) {
				return next(c)
			}

			sessionID := r.ensureVisitorCookie(c)
			view := PageView{
				Path:      c.Request().URL.Path,
				UserAgent: c.Request().UserAgent(),
				IPAddress: c.RealIP(),
				Referrer:  c.Request().Referer(),
				Timestamp: time.Now().UTC(),
			}

			go r.record(view, sessionID)

			return next(c)
		}
	}
}

// record writes one view plus its visitor upsert, swallowing any failure.
func (r *Recorder) record(view PageView, sessionID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("analytics record panic", zap.Any("panic", rec))
		}
	}()

	if err := r.store.RecordPageView(view); err != nil {
		r.log.Warn("record page view", zap.String("path", view.Path), zap.Error(err))
	}
	if sessionID == "" {
		return
	}
	if err := r.store.RecordVisitor(sessionID); err != nil {
		r.log.Warn("record visitor", zap.Error(err))
	}
}

// ensureVisitorCookie returns the visitor id for this browser, setting the
// cookie when absent.
func (r *Recorder) ensureVisitorCookie(c echo.Context) string {
	if cookie, err := c.Cookie(visitorCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
