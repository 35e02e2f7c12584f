package blogcore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_blog.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		s.Close()
	}

	return s, cleanup
}

func insertTestPost(t *testing.T, s *Store, title, slug string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := s.InTx(func(q querier) error {
		var err error
		id, err = insertPost(q, Post{
			Title:     title,
			Slug:      slug,
			Content:   "<p>body</p>",
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return id
}

func TestNewStore(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if s == nil {
		t.Fatal("store should not be nil")
	}
	if s.db == nil {
		t.Fatal("db should not be nil")
	}
}

func TestGetPost(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	id := insertTestPost(t, s, "First Post", "first-post")

	got, err := s.GetPost(id)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if got.Title != "First Post" {
		t.Errorf("Title = %q, want %q", got.Title, "First Post")
	}
	if got.Slug != "first-post" {
		t.Errorf("Slug = %q, want %q", got.Slug, "first-post")
	}

	bySlug, err := s.GetPostBySlug("first-post")
	if err != nil {
		t.Fatalf("GetPostBySlug failed: %v", err)
	}
	if bySlug.ID != id {
		t.Errorf("ID = %d, want %d", bySlug.ID, id)
	}
}

func TestGetPostNotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := s.GetPost(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPost error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetPostBySlug("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPostBySlug error = %v, want ErrNotFound", err)
	}
}

func TestListPostsPagination(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		slug := string(rune('a' + i))
		insertTestPost(t, s, "Post "+slug, "post-"+slug)
	}

	total, err := s.CountPosts()
	if err != nil {
		t.Fatalf("CountPosts failed: %v", err)
	}
	if total != 5 {
		t.Errorf("CountPosts = %d, want 5", total)
	}

	first, err := s.ListPosts(2, 0)
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(first page) = %d, want 2", len(first))
	}

	second, err := s.ListPosts(2, 2)
	if err != nil {
		t.Fatalf("ListPosts offset failed: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("len(second page) = %d, want 2", len(second))
	}
	if first[0].ID == second[0].ID {
		t.Error("pages should not overlap")
	}
}

func TestSearchPosts(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	insertTestPost(t, s, "Sourdough Starter Guide", "sourdough-starter-guide")
	insertTestPost(t, s, "Garden Notes", "garden-notes")

	results, err := s.SearchPosts("sourdough", 10, 0)
	if err != nil {
		t.Fatalf("SearchPosts failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Slug != "sourdough-starter-guide" {
		t.Errorf("Slug = %q, want %q", results[0].Slug, "sourdough-starter-guide")
	}

	none, err := s.SearchPosts("nonexistent", 10, 0)
	if err != nil {
		t.Fatalf("SearchPosts failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("len(results) = %d, want 0", len(none))
	}
}

func TestDeletePost(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	id := insertTestPost(t, s, "Doomed", "doomed")

	if err := s.DeletePost(id); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, err := s.GetPost(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPost after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeletePost(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePost = %v, want ErrNotFound", err)
	}
}

func TestCategories(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	cat, err := s.CreateCategory("Bread Baking")
	if err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	if cat.Slug != "bread-baking" {
		t.Errorf("Slug = %q, want %q", cat.Slug, "bread-baking")
	}

	got, err := s.GetCategoryBySlug("bread-baking")
	if err != nil {
		t.Fatalf("GetCategoryBySlug failed: %v", err)
	}
	if got.ID != cat.ID {
		t.Errorf("ID = %d, want %d", got.ID, cat.ID)
	}

	if err := s.UpdateCategory(cat.ID, "Baking"); err != nil {
		t.Fatalf("UpdateCategory failed: %v", err)
	}
	got, err = s.GetCategory(cat.ID)
	if err != nil {
		t.Fatalf("GetCategory failed: %v", err)
	}
	if got.Name != "Baking" || got.Slug != "baking" {
		t.Errorf("got %q/%q, want Baking/baking", got.Name, got.Slug)
	}

	if err := s.DeleteCategory(cat.ID); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}
	if _, err := s.GetCategory(cat.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCategory after delete = %v, want ErrNotFound", err)
	}
}

func TestCategorySlugCollision(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	first, err := s.CreateCategory("Travel")
	if err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	second, err := s.CreateCategory("travel!")
	if err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	if first.Slug != "travel" {
		t.Errorf("first slug = %q, want %q", first.Slug, "travel")
	}
	if second.Slug != "travel-1" {
		t.Errorf("second slug = %q, want %q", second.Slug, "travel-1")
	}
}

func TestPostCategoryAssignment(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	id := insertTestPost(t, s, "Tagged", "tagged")
	cat1, _ := s.CreateCategory("One")
	cat2, _ := s.CreateCategory("Two")

	err := s.InTx(func(q querier) error {
		return replacePostCategories(q, id, []int64{cat1.ID, cat2.ID})
	})
	if err != nil {
		t.Fatalf("assign categories: %v", err)
	}

	cats, err := s.CategoriesForPost(id)
	if err != nil {
		t.Fatalf("CategoriesForPost failed: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("len(cats) = %d, want 2", len(cats))
	}

	// Reassignment replaces, not appends.
	err = s.InTx(func(q querier) error {
		return replacePostCategories(q, id, []int64{cat2.ID})
	})
	if err != nil {
		t.Fatalf("reassign categories: %v", err)
	}
	cats, _ = s.CategoriesForPost(id)
	if len(cats) != 1 || cats[0].ID != cat2.ID {
		t.Errorf("cats = %v, want only %d", cats, cat2.ID)
	}

	byCat, err := s.ListPostsByCategory(cat2.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListPostsByCategory failed: %v", err)
	}
	if len(byCat) != 1 || byCat[0].ID != id {
		t.Errorf("byCat = %v, want post %d", byCat, id)
	}
}

func TestDeletePostCascadesJoinRows(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	id := insertTestPost(t, s, "Cascade", "cascade")
	cat, _ := s.CreateCategory("Stays")
	s.InTx(func(q querier) error {
		return replacePostCategories(q, id, []int64{cat.ID})
	})

	if err := s.DeletePost(id); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM post_categories WHERE post_id = ?`, id).Scan(&n); err != nil {
		t.Fatalf("count join rows: %v", err)
	}
	if n != 0 {
		t.Errorf("join rows after delete = %d, want 0", n)
	}
	if _, err := s.GetCategory(cat.ID); err != nil {
		t.Errorf("category should survive post delete: %v", err)
	}
}

func TestUsers(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	u, err := s.CreateUser("alice", "s3cret", "admin", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if !u.IsAdmin() {
		t.Error("expected admin role")
	}
	if u.PasswordHash == "s3cret" {
		t.Error("password must not be stored in plain text")
	}

	got, err := s.ValidateCredentials("alice", "s3cret")
	if err != nil {
		t.Fatalf("ValidateCredentials failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %d, want %d", got.ID, u.ID)
	}

	if _, err := s.ValidateCredentials("alice", "wrong"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong password error = %v, want ErrNotFound", err)
	}
	if _, err := s.ValidateCredentials("nobody", "s3cret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}

	if err := s.UpdateUserPassword(u.ID, "newpass"); err != nil {
		t.Fatalf("UpdateUserPassword failed: %v", err)
	}
	if _, err := s.ValidateCredentials("alice", "s3cret"); !errors.Is(err, ErrNotFound) {
		t.Error("old password should no longer validate")
	}
	if _, err := s.ValidateCredentials("alice", "newpass"); err != nil {
		t.Errorf("new password should validate: %v", err)
	}

	n, err := s.CountUsers()
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountUsers = %d, want 1", n)
	}

	if err := s.DeleteUser(u.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := s.GetUser(u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser after delete = %v, want ErrNotFound", err)
	}
}

func TestImagesRoundTrip(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	now := time.Now().UTC()
	post := Post{
		Title:   "Pictures",
		Slug:    "pictures",
		Content: "<p>ok</p>",
		Images: []ImageVariantSet{
			{Thumbnail: "/uploads/a-thumbnail.jpg", Medium: "/uploads/a-medium.jpg", Large: "/uploads/a-large.jpg", OriginalWidth: 1000, OriginalHeight: 500, AspectRatio: 2},
		},
		Captions:  []string{"the caption"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	var id int64
	err := s.InTx(func(q querier) error {
		var err error
		id, err = insertPost(q, post)
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetPost(id)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if len(got.Images) != 1 || len(got.Captions) != 1 {
		t.Fatalf("images/captions = %d/%d, want 1/1", len(got.Images), len(got.Captions))
	}
	if got.Images[0].Medium != "/uploads/a-medium.jpg" {
		t.Errorf("Medium = %q", got.Images[0].Medium)
	}
	if got.Captions[0] != "the caption" {
		t.Errorf("Caption = %q", got.Captions[0])
	}
	if got.Images[0].AspectRatio != 2 {
		t.Errorf("AspectRatio = %v, want 2", got.Images[0].AspectRatio)
	}
}

func TestEncodeImagesLengthMismatch(t *testing.T) {
	_, _, err := encodeImages([]ImageVariantSet{{}}, []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for mismatched captions")
	}
}
