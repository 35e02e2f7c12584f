package blogcore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the statement helpers
// below can run standalone or inside a transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite database and provides CRUD operations for posts,
// categories and users. It is constructed once at startup and passed to
// every component that needs it.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL for concurrent read/write access, busy_timeout so writers wait
	// instead of returning SQLITE_BUSY, foreign_keys for the join-table
	// cascades and the author SET NULL rule.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
		PRAGMA cache_size=-8000;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so sibling packages (analytics) can
// create their tables in the same relational file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx runs fn inside a single transaction. Every multi-step mutation
// (slug check-then-insert, update plus category replacement) goes through
// here so concurrent admin requests cannot interleave between steps.
func (s *Store) InTx(fn func(q querier) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    email TEXT,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    excerpt TEXT NOT NULL DEFAULT '',
    images TEXT NOT NULL DEFAULT '[]',
    captions TEXT NOT NULL DEFAULT '[]',
    author_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS post_categories (
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, category_id)
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
`)
	return err
}

const timeFormat = time.RFC3339

const postColumns = `posts.id, posts.title, posts.slug, posts.content, posts.description,
	posts.excerpt, posts.images, posts.captions, posts.author_id,
	posts.created_at, posts.updated_at, COALESCE(users.username, '')`

const postSelect = `SELECT ` + postColumns + ` FROM posts LEFT JOIN users ON posts.author_id = users.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var images, captions, createdAt, updatedAt string
	var authorID sql.NullInt64
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Description,
		&p.Excerpt, &images, &captions, &authorID, &createdAt, &updatedAt, &p.Author)
	if err != nil {
		return Post{}, err
	}
	if authorID.Valid {
		id := authorID.Int64
		p.AuthorID = &id
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return Post{}, fmt.Errorf("decode images for post %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(captions), &p.Captions); err != nil {
		return Post{}, fmt.Errorf("decode captions for post %d: %w", p.ID, err)
	}
	if p.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Post{}, fmt.Errorf("parse created_at for post %d: %w", p.ID, err)
	}
	if p.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return Post{}, fmt.Errorf("parse updated_at for post %d: %w", p.ID, err)
	}
	return p, nil
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost returns a single post by id.
func (s *Store) GetPost(id int64) (Post, error) {
	return scanPost(s.db.QueryRow(postSelect+` WHERE posts.id = ?`, id))
}

// GetPostBySlug returns a single post by slug.
func (s *Store) GetPostBySlug(slug string) (Post, error) {
	return scanPost(s.db.QueryRow(postSelect+` WHERE posts.slug = ?`, slug))
}

// ListPosts returns posts ordered newest-first with limit/offset pagination.
func (s *Store) ListPosts(limit, offset int) ([]Post, error) {
	rows, err := s.db.Query(postSelect+` ORDER BY posts.created_at DESC, posts.id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

// CountPosts returns the total number of posts.
func (s *Store) CountPosts() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

// SearchPosts returns posts whose title, content or description contains
// query as a substring, newest-first.
func (s *Store) SearchPosts(query string, limit, offset int) ([]Post, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(postSelect+`
		WHERE posts.title LIKE ? OR posts.content LIKE ? OR posts.description LIKE ?
		ORDER BY posts.created_at DESC, posts.id DESC LIMIT ? OFFSET ?`,
		pattern, pattern, pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

// ListPostsByCategory returns posts linked to the category, newest-first.
func (s *Store) ListPostsByCategory(categoryID int64, limit, offset int) ([]Post, error) {
	rows, err := s.db.Query(postSelect+`
		JOIN post_categories pc ON posts.id = pc.post_id
		WHERE pc.category_id = ?
		ORDER BY posts.created_at DESC, posts.id DESC LIMIT ? OFFSET ?`,
		categoryID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

// CountPostsByCategory returns the number of posts linked to the category.
func (s *Store) CountPostsByCategory(categoryID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM post_categories WHERE category_id = ?`, categoryID).Scan(&n)
	return n, err
}

// DeletePost removes a post row. Join rows cascade via foreign keys; the
// caller is responsible for removing image files first.
func (s *Store) DeletePost(id int64) error {
	res, err := s.db.Exec(`DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// findPostIDByTitle looks for an existing post with the same exact title,
// optionally excluding one post id. Returns (0, nil) when no match exists.
func findPostIDByTitle(q querier, title string, excludeID int64) (int64, error) {
	var id int64
	var err error
	if excludeID > 0 {
		err = q.QueryRow(`SELECT id FROM posts WHERE title = ? AND id != ?`, title, excludeID).Scan(&id)
	} else {
		err = q.QueryRow(`SELECT id FROM posts WHERE title = ?`, title).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// slugExists reports whether a post other than excludeID already uses slug.
func slugExists(q querier, slug string, excludeID int64) (bool, error) {
	var id int64
	var err error
	if excludeID > 0 {
		err = q.QueryRow(`SELECT id FROM posts WHERE slug = ? AND id != ?`, slug, excludeID).Scan(&id)
	} else {
		err = q.QueryRow(`SELECT id FROM posts WHERE slug = ?`, slug).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func encodeImages(images []ImageVariantSet, captions []string) (string, string, error) {
	if images == nil {
		images = []ImageVariantSet{}
	}
	if captions == nil {
		captions = []string{}
	}
	if len(images) != len(captions) {
		return "", "", fmt.Errorf("images/captions length mismatch: %d != %d", len(images), len(captions))
	}
	imgJSON, err := json.Marshal(images)
	if err != nil {
		return "", "", err
	}
	capJSON, err := json.Marshal(captions)
	if err != nil {
		return "", "", err
	}
	return string(imgJSON), string(capJSON), nil
}

func insertPost(q querier, p Post) (int64, error) {
	images, captions, err := encodeImages(p.Images, p.Captions)
	if err != nil {
		return 0, err
	}
	res, err := q.Exec(`
		INSERT INTO posts (title, slug, content, description, excerpt, images, captions, author_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Slug, p.Content, p.Description, p.Excerpt, images, captions,
		nullableID(p.AuthorID), p.CreatedAt.Format(timeFormat), p.UpdatedAt.Format(timeFormat))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func updatePost(q querier, p Post) error {
	images, captions, err := encodeImages(p.Images, p.Captions)
	if err != nil {
		return err
	}
	_, err = q.Exec(`
		UPDATE posts SET title = ?, slug = ?, content = ?, description = ?, excerpt = ?,
			images = ?, captions = ?, author_id = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Slug, p.Content, p.Description, p.Excerpt, images, captions,
		nullableID(p.AuthorID), p.CreatedAt.Format(timeFormat), p.UpdatedAt.Format(timeFormat), p.ID)
	return err
}

// replacePostCategories removes every existing link for the post and inserts
// links for the supplied category ids (full replace, not diff).
func replacePostCategories(q querier, postID int64, categoryIDs []int64) error {
	if _, err := q.Exec(`DELETE FROM post_categories WHERE post_id = ?`, postID); err != nil {
		return err
	}
	for _, cid := range categoryIDs {
		if _, err := q.Exec(`INSERT OR IGNORE INTO post_categories (post_id, category_id) VALUES (?, ?)`, postID, cid); err != nil {
			return err
		}
	}
	return nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// CategoriesForPost returns the categories linked to a post, ordered by name.
func (s *Store) CategoriesForPost(postID int64) ([]Category, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.name, c.slug FROM categories c
		JOIN post_categories pc ON c.id = pc.category_id
		WHERE pc.post_id = ? ORDER BY c.name`, postID)
	if err != nil {
		return nil, err
	}
	return scanCategories(rows)
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories() ([]Category, error) {
	rows, err := s.db.Query(`SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanCategories(rows)
}

func scanCategories(rows *sql.Rows) ([]Category, error) {
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// GetCategory returns a category by id.
func (s *Store) GetCategory(id int64) (Category, error) {
	var c Category
	err := s.db.QueryRow(`SELECT id, name, slug FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &c.Slug)
	return c, err
}

// GetCategoryBySlug returns a category by slug.
func (s *Store) GetCategoryBySlug(slug string) (Category, error) {
	var c Category
	err := s.db.QueryRow(`SELECT id, name, slug FROM categories WHERE slug = ?`, slug).Scan(&c.ID, &c.Name, &c.Slug)
	return c, err
}

// CreateCategory inserts a category, deriving a unique slug from the name.
func (s *Store) CreateCategory(name string) (Category, error) {
	var c Category
	err := s.InTx(func(q querier) error {
		slug, err := resolveCategorySlug(q, name, 0)
		if err != nil {
			return err
		}
		res, err := q.Exec(`INSERT INTO categories (name, slug) VALUES (?, ?)`, name, slug)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c = Category{ID: id, Name: name, Slug: slug}
		return nil
	})
	return c, err
}

// UpdateCategory renames a category, re-deriving its slug.
func (s *Store) UpdateCategory(id int64, name string) error {
	return s.InTx(func(q querier) error {
		slug, err := resolveCategorySlug(q, name, id)
		if err != nil {
			return err
		}
		res, err := q.Exec(`UPDATE categories SET name = ?, slug = ? WHERE id = ?`, name, slug, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteCategory removes a category; join rows cascade.
func (s *Store) DeleteCategory(id int64) error {
	res, err := s.db.Exec(`DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func resolveCategorySlug(q querier, name string, excludeID int64) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "untitled"
	}
	slug := base
	for i := 1; ; i++ {
		var id int64
		var err error
		if excludeID > 0 {
			err = q.QueryRow(`SELECT id FROM categories WHERE slug = ? AND id != ?`, slug, excludeID).Scan(&id)
		} else {
			err = q.QueryRow(`SELECT id FROM categories WHERE slug = ?`, slug).Scan(&id)
		}
		if err == sql.ErrNoRows {
			return slug, nil
		}
		if err != nil {
			return "", err
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// CreateUser inserts a user with a bcrypt password hash.
func (s *Store) CreateUser(username, password, role, email string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO users (username, password_hash, role, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, string(hash), role, email, now.Format(timeFormat))
	if err != nil {
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Username: username, PasswordHash: string(hash), Role: role, Email: email, CreatedAt: now}, nil
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var email sql.NullString
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &email, &createdAt); err != nil {
		return User{}, err
	}
	u.Email = email.String
	u.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return u, nil
}

const userSelect = `SELECT id, username, password_hash, role, email, created_at FROM users`

// GetUser returns a user by id.
func (s *Store) GetUser(id int64) (User, error) {
	return scanUser(s.db.QueryRow(userSelect+` WHERE id = ?`, id))
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(username string) (User, error) {
	return scanUser(s.db.QueryRow(userSelect+` WHERE username = ?`, username))
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(userSelect + ` ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of users.
func (s *Store) CountUsers() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// ValidateCredentials returns the user when username and password match.
// The error is ErrNotFound for an unknown user or a wrong password, so
// callers cannot distinguish the two.
func (s *Store) ValidateCredentials(username, password string) (User, error) {
	u, err := s.GetUserByUsername(username)
	if err != nil {
		return User{}, ErrNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(id int64, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. Posts keep their rows with author_id set NULL.
func (s *Store) DeleteUser(id int64) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
