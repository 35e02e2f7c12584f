package blogcore

import "time"

// Post is the core content type stored in SQLite and rendered by templates.
// Images and Captions are index-aligned: captions[i] belongs to images[i],
// and the store guarantees both slices always have the same length.
type Post struct {
	ID          int64
	Title       string
	Slug        string
	Content     string
	Description string
	Excerpt     string
	Images      []ImageVariantSet
	Captions    []string
	AuthorID    *int64
	Author      string // joined username, empty when the author was deleted
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Categories  []Category
}

// ImageVariantSet is one logical uploaded image materialized as three
// resized derivatives. Paths are URL paths under the uploads route
// (e.g. "/uploads/sunset-1700000000000-large.jpg"). Variant sets are owned
// by exactly one Post and their files are removed when superseded or when
// the post is deleted.
type ImageVariantSet struct {
	Thumbnail      string  `json:"thumbnail"`
	Medium         string  `json:"medium"`
	Large          string  `json:"large"`
	OriginalWidth  int     `json:"originalWidth,omitempty"`
	OriginalHeight int     `json:"originalHeight,omitempty"`
	AspectRatio    float64 `json:"originalAspectRatio,omitempty"`
}

// Category groups posts many-to-many via the post_categories join table.
type Category struct {
	ID   int64
	Name string
	Slug string
}

// User is an authenticated account. Role is "admin" or "user"; only admins
// reach the management surface.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Email        string
	CreatedAt    time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == "admin"
}

// UploadedFile is a raw upload handed to the image ingestion pipeline:
// a temp file on disk plus the browser-supplied filename.
type UploadedFile struct {
	Path         string
	OriginalName string
}
