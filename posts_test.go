package blogcore

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func setupTestPublisher(t *testing.T) (*Publisher, *Store, string, func()) {
	t.Helper()
	s, cleanup := setupTestStore(t)
	uploads := t.TempDir()
	pub := NewPublisher(s, NewPipeline(uploads, nil), nil)
	return pub, s, uploads, cleanup
}

// writeTestJPEG produces a real JPEG at dir/name with the given dimensions
// and returns the UploadedFile the admin layer would hand the publisher.
func writeTestJPEG(t *testing.T, dir, name string, w, h int) UploadedFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	f.Close()
	return UploadedFile{Path: path, OriginalName: name}
}

func TestCreatePost(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	post, err := pub.Create(PostInput{Title: "Hello, World!", Body: "<p>first</p>"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if post.Slug != "hello-world" {
		t.Errorf("Slug = %q, want %q", post.Slug, "hello-world")
	}
	if post.ID == 0 {
		t.Error("expected assigned id")
	}
}

func TestCreateSanitizesBody(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	post, err := pub.Create(PostInput{
		Title: "Scripted",
		Body:  `<p>fine</p><script>alert(1)</script><h2>kept</h2>`,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got := post.Content; got != "<p>fine</p><h2>kept</h2>" {
		t.Errorf("Content = %q, script should be stripped and h2 kept", got)
	}
}

func TestCreateValidation(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	if _, err := pub.Create(PostInput{Title: "", Body: "x"}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty title error = %v, want ErrValidation", err)
	}
	if _, err := pub.Create(PostInput{Title: "x", Body: "  "}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty body error = %v, want ErrValidation", err)
	}
}

func TestSlugCollisionProbing(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	first, err := pub.Create(PostInput{Title: "Hello World", Body: "a"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Different title, same slug base.
	second, err := pub.Create(PostInput{Title: "Hello, World!", Body: "b"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	third, err := pub.Create(PostInput{Title: "Hello World?", Body: "c"})
	if err != nil {
		t.Fatalf("third create: %v", err)
	}

	if first.Slug != "hello-world" {
		t.Errorf("first slug = %q", first.Slug)
	}
	if second.Slug != "hello-world-1" {
		t.Errorf("second slug = %q, want hello-world-1", second.Slug)
	}
	if third.Slug != "hello-world-2" {
		t.Errorf("third slug = %q, want hello-world-2", third.Slug)
	}
}

func TestSlugFallbackUntitled(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	post, err := pub.Create(PostInput{Title: "???", Body: "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if post.Slug != "untitled" {
		t.Errorf("Slug = %q, want %q", post.Slug, "untitled")
	}

	again, err := pub.Create(PostInput{Title: "!!!", Body: "y"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if again.Slug != "untitled-1" {
		t.Errorf("Slug = %q, want %q", again.Slug, "untitled-1")
	}
}

func TestDuplicateTitle(t *testing.T) {
	pub, s, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	first, err := pub.Create(PostInput{Title: "Unique Title", Body: "original"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err = pub.Create(PostInput{Title: "Unique Title", Body: "other"})
	var dup *DuplicateTitleError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateTitleError", err)
	}
	if dup.ID != first.ID {
		t.Errorf("conflicting id = %d, want %d", dup.ID, first.ID)
	}

	// The existing post is untouched.
	got, err := s.GetPost(first.ID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if got.Content != "original" {
		t.Errorf("existing content changed: %q", got.Content)
	}
	n, _ := s.CountPosts()
	if n != 1 {
		t.Errorf("CountPosts = %d, want 1", n)
	}
}

func TestDuplicateTitleOverwrite(t *testing.T) {
	pub, s, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	first, err := pub.Create(PostInput{Title: "Keep Me", Body: "version one"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	updated, err := pub.Create(PostInput{Title: "Keep Me", Body: "version two", Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite create: %v", err)
	}
	if updated.ID != first.ID {
		t.Errorf("overwrite created new row: id %d, want %d", updated.ID, first.ID)
	}
	if updated.Slug != first.Slug {
		t.Errorf("slug changed on overwrite: %q vs %q", updated.Slug, first.Slug)
	}

	n, _ := s.CountPosts()
	if n != 1 {
		t.Errorf("CountPosts = %d, want 1", n)
	}
}

func TestCaptionPairing(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()
	tmp := t.TempDir()

	files := []UploadedFile{
		writeTestJPEG(t, tmp, "one.jpg", 100, 80),
		writeTestJPEG(t, tmp, "two.jpg", 100, 80),
	}

	// Fewer captions than images: padded with empty strings.
	post, err := pub.Create(PostInput{
		Title:    "Padded",
		Body:     "x",
		Files:    files,
		Captions: []string{"only one"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(post.Captions) != len(post.Images) {
		t.Fatalf("captions/images = %d/%d, want equal", len(post.Captions), len(post.Images))
	}
	if post.Captions[0] != "only one" || post.Captions[1] != "" {
		t.Errorf("Captions = %v", post.Captions)
	}

	// More captions than images: surplus dropped.
	files2 := []UploadedFile{writeTestJPEG(t, tmp, "three.jpg", 100, 80)}
	post2, err := pub.Create(PostInput{
		Title:    "Truncated",
		Body:     "x",
		Files:    files2,
		Captions: []string{"kept", "dropped"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(post2.Captions) != 1 || post2.Captions[0] != "kept" {
		t.Errorf("Captions = %v, want [kept]", post2.Captions)
	}
}

func TestUpdateSlugStability(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	post, err := pub.Create(PostInput{Title: "Stable Title", Body: "v1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Body-only edit keeps the permalink.
	same, err := pub.Update(post.ID, PostInput{Title: "Stable Title", Body: "v2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if same.Slug != post.Slug {
		t.Errorf("slug changed on body edit: %q vs %q", same.Slug, post.Slug)
	}

	// Title edit re-derives the slug.
	moved, err := pub.Update(post.ID, PostInput{Title: "Renamed Title", Body: "v2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if moved.Slug != "renamed-title" {
		t.Errorf("slug = %q, want renamed-title", moved.Slug)
	}
}

func TestUpdateNotFound(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	if _, err := pub.Update(42, PostInput{Title: "x", Body: "y"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateReplacesImages(t *testing.T) {
	pub, _, uploads, cleanup := setupTestPublisher(t)
	defer cleanup()
	tmp := t.TempDir()

	post, err := pub.Create(PostInput{
		Title: "Gallery",
		Body:  "x",
		Files: []UploadedFile{writeTestJPEG(t, tmp, "old.jpg", 100, 80)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldThumb := filepath.Join(uploads, filepath.Base(post.Images[0].Thumbnail))
	if _, err := os.Stat(oldThumb); err != nil {
		t.Fatalf("old thumbnail missing before update: %v", err)
	}

	updated, err := pub.Update(post.ID, PostInput{
		Title: "Gallery",
		Body:  "x",
		Files: []UploadedFile{writeTestJPEG(t, tmp, "new.jpg", 100, 80)},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Images) != 1 || filepath.Base(updated.Images[0].Thumbnail) != "new-thumbnail.jpg" {
		t.Errorf("Images = %+v, want the new upload", updated.Images)
	}
	if _, err := os.Stat(oldThumb); !os.IsNotExist(err) {
		t.Errorf("old thumbnail should be removed after update, stat err = %v", err)
	}
}

func TestUpdateKeepsImagesViaRefs(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()
	tmp := t.TempDir()

	post, err := pub.Create(PostInput{
		Title: "Refs",
		Body:  "x",
		Files: []UploadedFile{
			writeTestJPEG(t, tmp, "keep.jpg", 100, 80),
			writeTestJPEG(t, tmp, "drop.jpg", 100, 80),
		},
		Captions: []string{"first", "second"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The form re-submits only the first image's reference.
	updated, err := pub.Update(post.ID, PostInput{
		Title:     "Refs",
		Body:      "x",
		ImageRefs: []string{post.Images[0].Large},
		Captions:  []string{"first"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(updated.Images))
	}
	if updated.Images[0].Thumbnail != post.Images[0].Thumbnail {
		t.Errorf("kept image = %+v, want original first set", updated.Images[0])
	}
	if updated.Images[0].OriginalWidth != 100 {
		t.Errorf("reconciled set lost metadata: %+v", updated.Images[0])
	}
}

func TestUpdateUnknownRefDegrades(t *testing.T) {
	pub, _, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	post, err := pub.Create(PostInput{Title: "Degraded", Body: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := pub.Update(post.ID, PostInput{
		Title:     "Degraded",
		Body:      "x",
		ImageRefs: []string{"/uploads/vanished.jpg"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(updated.Images))
	}
	set := updated.Images[0]
	if set.Thumbnail != "/uploads/vanished.jpg" || set.Medium != set.Thumbnail || set.Large != set.Thumbnail {
		t.Errorf("degraded set = %+v, want ref for all sizes", set)
	}
}

func TestDeletePostRemovesFiles(t *testing.T) {
	pub, s, uploads, cleanup := setupTestPublisher(t)
	defer cleanup()
	tmp := t.TempDir()

	post, err := pub.Create(PostInput{
		Title: "Goner",
		Body:  "x",
		Files: []UploadedFile{writeTestJPEG(t, tmp, "pic.jpg", 100, 80)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	thumb := filepath.Join(uploads, "pic-thumbnail.jpg")

	if err := pub.Delete(post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPost(post.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("post should be gone, got %v", err)
	}
	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Errorf("variant file should be removed, stat err = %v", err)
	}
}

func TestDeleteWithMissingFiles(t *testing.T) {
	pub, _, uploads, cleanup := setupTestPublisher(t)
	defer cleanup()
	tmp := t.TempDir()

	post, err := pub.Create(PostInput{
		Title: "Half Gone",
		Body:  "x",
		Files: []UploadedFile{writeTestJPEG(t, tmp, "frag.jpg", 100, 80)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Someone already removed a variant out of band.
	os.Remove(filepath.Join(uploads, "frag-medium.jpg"))

	if err := pub.Delete(post.ID); err != nil {
		t.Fatalf("delete with missing file: %v", err)
	}
}

func TestPairCaptions(t *testing.T) {
	got := pairCaptions([]string{"a", "b", "c"}, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("pairCaptions truncate = %v", got)
	}
	got = pairCaptions([]string{"a"}, 3)
	if len(got) != 3 || got[0] != "a" || got[1] != "" || got[2] != "" {
		t.Errorf("pairCaptions pad = %v", got)
	}
	got = pairCaptions(nil, 0)
	if len(got) != 0 {
		t.Errorf("pairCaptions empty = %v", got)
	}
}
