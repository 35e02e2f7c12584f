package blogcore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// PostInput carries everything an admin submission provides for creating or
// updating a post. Files and Captions are index-aligned at the upload
// boundary; the Publisher pads or truncates captions to the image count.
type PostInput struct {
	Title       string
	Body        string
	Description string
	Excerpt     string
	Files       []UploadedFile
	Captions    []string
	// ImageRefs is the flat list of image reference strings a form
	// re-submits when no new files are uploaded (update path only).
	ImageRefs   []string
	CategoryIDs []int64
	AuthorID    *int64
	CreatedAt   *time.Time
	// Overwrite redirects a duplicate-title create to the update path
	// against the existing post instead of failing.
	Overwrite bool
}

// Publisher assembles posts: duplicate-title policy, slug resolution, image
// ingestion, caption pairing and atomic persistence. One Publisher serves
// the whole process; it holds its dependencies explicitly.
type Publisher struct {
	store     *Store
	images    *Pipeline
	sanitizer *bluemonday.Policy
	log       *zap.Logger
}

// NewPublisher wires a Publisher. The sanitizer is the UGC policy extended
// with the image and heading attributes the post editor emits.
func NewPublisher(store *Store, images *Pipeline, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("src", "alt", "title", "width", "height", "style").OnElements("img")
	policy.AllowElements("h2", "h3", "u")
	return &Publisher{store: store, images: images, sanitizer: policy, log: log}
}

// Create assembles and persists a new post. Returns DuplicateTitleError
// when the exact title already exists and Overwrite is false; with
// Overwrite set, the operation becomes an update of the existing post.
func (p *Publisher) Create(in PostInput) (Post, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" {
		return Post{}, fmt.Errorf("title and content are required: %w", ErrValidation)
	}

	existingID, err := findPostIDByTitle(p.store.db, in.Title, 0)
	if err != nil {
		return Post{}, err
	}
	if existingID != 0 {
		if !in.Overwrite {
			return Post{}, &DuplicateTitleError{ID: existingID, Title: in.Title}
		}
		return p.Update(existingID, in)
	}

	images, err := p.images.Ingest(in.Files)
	if err != nil {
		return Post{}, err
	}
	captions := pairCaptions(in.Captions, len(images))

	now := time.Now().UTC()
	createdAt := now
	if in.CreatedAt != nil {
		createdAt = in.CreatedAt.UTC()
	}
	post := Post{
		Title:       in.Title,
		Content:     p.sanitizer.Sanitize(in.Body),
		Description: in.Description,
		Excerpt:     in.Excerpt,
		Images:      images,
		Captions:    captions,
		AuthorID:    in.AuthorID,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}

	var postID int64
	err = p.store.InTx(func(q querier) error {
		// The duplicate check reruns inside the transaction so two
		// concurrent creates with the same title cannot both pass.
		id, err := findPostIDByTitle(q, in.Title, 0)
		if err != nil {
			return err
		}
		if id != 0 {
			return &DuplicateTitleError{ID: id, Title: in.Title}
		}
		post.Slug, err = resolveSlug(q, in.Title, 0)
		if err != nil {
			return err
		}
		postID, err = insertPost(q, post)
		if err != nil {
			return err
		}
		return replacePostCategories(q, postID, in.CategoryIDs)
	})
	if err != nil {
		return Post{}, err
	}
	return p.store.GetPost(postID)
}

// Update applies an admin edit to an existing post. Permalink stability:
// the slug only changes when the title does. New uploads fully replace the
// stored image set; the superseded files are removed only after the new row
// commits, so a persistence failure never loses the old images.
func (p *Publisher) Update(id int64, in PostInput) (Post, error) {
	cur, err := p.store.GetPost(id)
	if err != nil {
		return Post{}, err
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" {
		return Post{}, fmt.Errorf("title and content are required: %w", ErrValidation)
	}

	images := cur.Images
	var superseded []ImageVariantSet
	if len(in.Files) > 0 {
		images, err = p.images.Ingest(in.Files)
		if err != nil {
			return Post{}, err
		}
		superseded = cur.Images
	} else if len(in.ImageRefs) > 0 {
		images = reconcileImageRefs(in.ImageRefs, cur.Images)
	}
	captions := pairCaptions(in.Captions, len(images))

	now := time.Now().UTC()
	createdAt := cur.CreatedAt
	if in.CreatedAt != nil {
		createdAt = in.CreatedAt.UTC()
	}
	authorID := cur.AuthorID
	if in.AuthorID != nil {
		authorID = in.AuthorID
	}
	post := Post{
		ID:          id,
		Title:       in.Title,
		Slug:        cur.Slug,
		Content:     p.sanitizer.Sanitize(in.Body),
		Description: in.Description,
		Excerpt:     in.Excerpt,
		Images:      images,
		Captions:    captions,
		AuthorID:    authorID,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}

	err = p.store.InTx(func(q querier) error {
		if in.Title != cur.Title {
			slug, err := resolveSlug(q, in.Title, id)
			if err != nil {
				return err
			}
			post.Slug = slug
		}
		if err := updatePost(q, post); err != nil {
			return err
		}
		return replacePostCategories(q, id, in.CategoryIDs)
	})
	if err != nil {
		return Post{}, err
	}

	if len(superseded) > 0 {
		p.images.RemoveVariants(superseded)
	}
	return p.store.GetPost(id)
}

// Delete removes a post, its join rows (via cascade) and every stored image
// variant file. Missing files on disk are not an error.
func (p *Publisher) Delete(id int64) error {
	post, err := p.store.GetPost(id)
	if err != nil {
		return err
	}
	if err := p.store.DeletePost(id); err != nil {
		return err
	}
	p.images.RemoveVariants(post.Images)
	return nil
}

// resolveSlug derives the unique slug for a title, probing the store and
// appending -1, -2, … until no other post (excluding excludeID) uses it.
// A title with no slug-safe characters degrades to the base "untitled".
func resolveSlug(q querier, title string, excludeID int64) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "untitled"
	}
	slug := base
	for i := 1; ; i++ {
		taken, err := slugExists(q, slug, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// pairCaptions aligns the caption list to the image count: missing captions
// become empty strings, surplus captions are dropped. Pairing is positional.
func pairCaptions(captions []string, n int) []string {
	out := make([]string, n)
	copy(out, captions)
	return out
}

// reconcileImageRefs recovers full variant sets from the flat reference
// strings a form re-submits. Each ref is matched by filename against the
// stored sets' variant paths; an unmatched ref synthesizes a degraded set
// using the reference for all three sizes.
func reconcileImageRefs(refs []string, stored []ImageVariantSet) []ImageVariantSet {
	out := make([]ImageVariantSet, 0, len(refs))
	for _, ref := range refs {
		name := filepath.Base(ref)
		matched := false
		for _, set := range stored {
			if filepath.Base(set.Thumbnail) == name ||
				filepath.Base(set.Medium) == name ||
				filepath.Base(set.Large) == name {
				out = append(out, set)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, ImageVariantSet{Thumbnail: ref, Medium: ref, Large: ref})
		}
	}
	return out
}
