package blogcore

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	maxUploadFiles = 25
	maxUploadSize  = 10 << 20 // 10MB per file
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c)
}

func (a *App) renderAdminDashboard(c echo.Context) error {
	posts, err := a.Store.ListPosts(100, 0)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].Categories, err = a.Store.CategoriesForPost(posts[i].ID)
		if err != nil {
			return err
		}
	}
	cats, err := a.Store.ListCategories()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(posts, cats, TakeFlashes(c), CsrfToken(c)))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if !a.loginLimiter.Allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	user, err := a.Store.ValidateCredentials(username, password)
	if err != nil {
		return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
	}
	if !user.IsAdmin() {
		return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
	}
	if err := setUserSession(c, user); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func handleAdminLogout(c echo.Context) error {
	if err := clearUserSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) handleAdminPostNew(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	cats, err := a.Store.ListCategories()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminPostForm(nil, cats, TakeFlashes(c), CsrfToken(c)))
}

func (a *App) handleAdminPostEdit(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	post, err := a.Store.GetPost(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			Flash(c, "error", "Post not found")
			return c.Redirect(http.StatusSeeOther, "/admin/")
		}
		return err
	}
	post.Categories, err = a.Store.CategoriesForPost(post.ID)
	if err != nil {
		return err
	}
	cats, err := a.Store.ListCategories()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminPostForm(&post, cats, TakeFlashes(c), CsrfToken(c)))
}

func (a *App) handleAdminPostCreate(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	in, err := a.postInputFromForm(c)
	if err != nil {
		Flash(c, "error", err.Error())
		return c.Redirect(http.StatusSeeOther, "/admin/posts/new/")
	}
	userID := CurrentUserID(c)
	in.AuthorID = &userID

	post, err := a.Publisher.Create(in)
	if err != nil {
		if msg, ok := recoverableMessage(err); ok {
			Flash(c, "error", msg)
			return c.Redirect(http.StatusSeeOther, "/admin/posts/new/")
		}
		return err
	}
	Flash(c, "success", "Post created successfully")
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/admin/posts/%d/edit/", post.ID))
}

func (a *App) handleAdminPostUpdate(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	in, err := a.postInputFromForm(c)
	if err != nil {
		Flash(c, "error", err.Error())
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/admin/posts/%d/edit/", id))
	}

	if _, err := a.Publisher.Update(id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			Flash(c, "error", "Post not found")
			return c.Redirect(http.StatusSeeOther, "/admin/")
		}
		if msg, ok := recoverableMessage(err); ok {
			Flash(c, "error", msg)
			return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/admin/posts/%d/edit/", id))
		}
		return err
	}
	Flash(c, "success", "Post updated successfully")
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) handleAdminPostDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	if err := a.Publisher.Delete(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			Flash(c, "error", "Post not found")
			return c.Redirect(http.StatusSeeOther, "/admin/")
		}
		return err
	}
	Flash(c, "success", "Post deleted successfully")
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

// postInputFromForm parses the multipart submission shared by the create
// and update paths: text fields, up to 25 image files under the "images"
// field, the parallel "captions" field, category ids, and the optional
// explicit date.
func (a *App) postInputFromForm(c echo.Context) (PostInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return PostInput{}, fmt.Errorf("invalid form submission")
	}

	in := PostInput{
		Title:       strings.TrimSpace(c.FormValue("title")),
		Body:        c.FormValue("content"),
		Description: c.FormValue("description"),
		Excerpt:     c.FormValue("excerpt"),
		Overwrite:   c.FormValue("overwrite") != "",
	}

	captions := form.Value["captions"]
	if len(captions) == 0 {
		captions = form.Value["captions[]"]
	}
	in.Captions = captions
	in.ImageRefs = FilterEmpty(form.Value["existing_images"])

	for _, raw := range form.Value["categories"] {
		cid, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			in.CategoryIDs = append(in.CategoryIDs, cid)
		}
	}

	if date := strings.TrimSpace(c.FormValue("created_at")); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return PostInput{}, fmt.Errorf("invalid date format, use YYYY-MM-DD")
		}
		in.CreatedAt = &t
	}

	files := form.File["images"]
	if len(files) > maxUploadFiles {
		return PostInput{}, fmt.Errorf("too many files: at most %d images per post", maxUploadFiles)
	}
	for _, fh := range files {
		if fh.Size == 0 {
			continue
		}
		if fh.Size > maxUploadSize {
			return PostInput{}, fmt.Errorf("%q is too large, max size is 10MB", fh.Filename)
		}
		saved, err := a.saveTempUpload(fh)
		if err != nil {
			return PostInput{}, fmt.Errorf("could not store upload %q", fh.Filename)
		}
		in.Files = append(in.Files, saved)
	}
	return in, nil
}

// saveTempUpload copies a multipart file into the uploads temp dir under a
// timestamp-suffixed name, which also pre-uniques the variant filenames the
// pipeline derives from it.
func (a *App) saveTempUpload(fh *multipart.FileHeader) (UploadedFile, error) {
	tmpDir := filepath.Join(a.Config.UploadsPath, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return UploadedFile{}, err
	}

	ext := filepath.Ext(fh.Filename)
	base := strings.TrimSuffix(filepath.Base(fh.Filename), ext)
	name := fmt.Sprintf("%s-%d%s", base, time.Now().UnixMilli(), ext)
	path := filepath.Join(tmpDir, name)

	src, err := fh.Open()
	if err != nil {
		return UploadedFile{}, err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return UploadedFile{}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return UploadedFile{}, err
	}
	if err := dst.Close(); err != nil {
		return UploadedFile{}, err
	}
	return UploadedFile{Path: path, OriginalName: name}, nil
}

// recoverableMessage maps the typed failure taxonomy to a user-facing flash
// message. Unclassified errors are not recoverable and bubble to the 500
// handler.
func recoverableMessage(err error) (string, bool) {
	var dup *DuplicateTitleError
	if errors.As(err, &dup) {
		return fmt.Sprintf("A post titled %q already exists (id %d). Rename it or enable overwrite.", dup.Title, dup.ID), true
	}
	var imgErr *ImageProcessingError
	if errors.As(err, &imgErr) {
		return "Error processing image: " + imgErr.Error(), true
	}
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return err.Error(), true
	case errors.Is(err, ErrValidation):
		return "Title and content are required", true
	}
	return "", false
}

func (a *App) handleAdminCategories(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	cats, err := a.Store.ListCategories()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminCategories(cats, TakeFlashes(c), CsrfToken(c)))
}

func (a *App) handleAdminCategoryCreate(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		Flash(c, "error", "Category name is required")
		return c.Redirect(http.StatusSeeOther, "/admin/categories/")
	}
	if _, err := a.Store.CreateCategory(name); err != nil {
		return err
	}
	a.categories.Invalidate()
	Flash(c, "success", "Category created successfully")
	return c.Redirect(http.StatusSeeOther, "/admin/categories/")
}

func (a *App) handleAdminCategoryUpdate(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		Flash(c, "error", "Category name is required")
		return c.Redirect(http.StatusSeeOther, "/admin/categories/")
	}
	if err := a.Store.UpdateCategory(id, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			Flash(c, "error", "Category not found")
			return c.Redirect(http.StatusSeeOther, "/admin/categories/")
		}
		return err
	}
	a.categories.Invalidate()
	Flash(c, "success", "Category updated successfully")
	return c.Redirect(http.StatusSeeOther, "/admin/categories/")
}

func (a *App) handleAdminCategoryDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	if err := a.Store.DeleteCategory(id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	a.categories.Invalidate()
	Flash(c, "success", "Category deleted successfully")
	return c.Redirect(http.StatusSeeOther, "/admin/categories/")
}

func (a *App) handleAdminUsers(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	users, err := a.Store.ListUsers()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminUsers(users, TakeFlashes(c), CsrfToken(c)))
}

func (a *App) handleAdminUserCreate(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	role := c.FormValue("role")
	if role != "admin" {
		role = "user"
	}
	if username == "" || password == "" {
		Flash(c, "error", "Username and password are required")
		return c.Redirect(http.StatusSeeOther, "/admin/users/")
	}
	if _, err := a.Store.CreateUser(username, password, role, c.FormValue("email")); err != nil {
		a.Log.Warn("create user", zap.String("username", username), zap.Error(err))
		Flash(c, "error", "Failed to create user, the username may be taken")
		return c.Redirect(http.StatusSeeOther, "/admin/users/")
	}
	Flash(c, "success", "User created successfully")
	return c.Redirect(http.StatusSeeOther, "/admin/users/")
}

func (a *App) handleAdminUserPassword(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	password := c.FormValue("password")
	if password == "" {
		Flash(c, "error", "Password is required")
		return c.Redirect(http.StatusSeeOther, "/admin/users/")
	}
	if err := a.Store.UpdateUserPassword(id, password); err != nil {
		if errors.Is(err, ErrNotFound) {
			Flash(c, "error", "User not found")
			return c.Redirect(http.StatusSeeOther, "/admin/users/")
		}
		return err
	}
	Flash(c, "success", "Password updated")
	return c.Redirect(http.StatusSeeOther, "/admin/users/")
}

func (a *App) handleAdminUserDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	if id == CurrentUserID(c) {
		Flash(c, "error", "You cannot delete your own account")
		return c.Redirect(http.StatusSeeOther, "/admin/users/")
	}
	if err := a.Store.DeleteUser(id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	Flash(c, "success", "User deleted")
	return c.Redirect(http.StatusSeeOther, "/admin/users/")
}

// handleAdminAnalytics returns aggregated traffic stats as JSON for the
// dashboard to consume.
func (a *App) handleAdminAnalytics(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if a.analyticsStore == nil {
		return c.JSON(http.StatusOK, map[string]any{"enabled": false})
	}
	totals, err := a.analyticsStore.TotalStats()
	if err != nil {
		return err
	}
	pages, err := a.analyticsStore.PageViewStats(30)
	if err != nil {
		return err
	}
	recent, err := a.analyticsStore.RecentActivity(20)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"enabled": true,
		"totals":  totals,
		"pages":   pages,
		"recent":  recent,
	})
}
