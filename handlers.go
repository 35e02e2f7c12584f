package blogcore

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/oakmead/blogcore/views"
)

func (a *App) handleHome(c echo.Context) error {
	page := pageParam(c)
	posts, err := a.Store.ListPosts(a.Config.PageSize, (page-1)*a.Config.PageSize)
	if err != nil {
		return err
	}
	total, err := a.Store.CountPosts()
	if err != nil {
		return err
	}
	cats, err := a.categories.List()
	if err != nil {
		return err
	}
	pg := views.Paginate(page, total, a.Config.PageSize)
	return Render(c, a.Views.Home(posts, pg, cats))
}

func (a *App) handlePost(c echo.Context) error {
	slug := c.Param("slug")
	post, err := a.Store.GetPostBySlug(slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	post.Categories, err = a.Store.CategoriesForPost(post.ID)
	if err != nil {
		return err
	}
	cats, err := a.categories.List()
	if err != nil {
		return err
	}
	return Render(c, a.Views.Post(post, cats))
}

func (a *App) handleCategory(c echo.Context) error {
	cat, err := a.Store.GetCategoryBySlug(c.Param("slug"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	page := pageParam(c)
	posts, err := a.Store.ListPostsByCategory(cat.ID, a.Config.PageSize, (page-1)*a.Config.PageSize)
	if err != nil {
		return err
	}
	total, err := a.Store.CountPostsByCategory(cat.ID)
	if err != nil {
		return err
	}
	cats, err := a.categories.List()
	if err != nil {
		return err
	}
	pg := views.Paginate(page, total, a.Config.PageSize)
	return Render(c, a.Views.Category(cat, posts, pg, cats))
}

func (a *App) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	cats, err := a.categories.List()
	if err != nil {
		return err
	}
	var posts []Post
	if query != "" {
		page := pageParam(c)
		posts, err = a.Store.SearchPosts(query, a.Config.PageSize, (page-1)*a.Config.PageSize)
		if err != nil {
			return err
		}
	}
	return Render(c, a.Views.Search(query, posts, cats))
}

// handleHealth reports process status for container orchestration probes.
func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"uptime_sec": int(time.Since(a.startedAt).Seconds()),
		"service":    a.Config.SiteName,
	})
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\nDisallow: /admin/\n\nSitemap: " + a.Config.URL + "/sitemap.xml\n"
	return c.String(http.StatusOK, body)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.Config.PublicPath + "/favicon.svg")
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Log.Error("server error",
			zap.Error(err),
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.String("ip", c.RealIP()),
		)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}

func pageParam(c echo.Context) int {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
