package analytics

import (
	"database/sql"
	"fmt"
	"time"
)

// timeFormat matches the storage format used by the rest of the database.
const timeFormat = time.RFC3339

// PageView represents a single recorded page view.
type PageView struct {
	ID        int64     `json:"-"`
	Path      string    `json:"path"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"-"`
	Referrer  string    `json:"referrer"`
	Timestamp time.Time `json:"timestamp"`
}

// Totals holds site-wide aggregate counters.
type Totals struct {
	TotalViews     int `json:"total_views"`
	UniqueVisitors int `json:"unique_visitors"`
}

// PageStat is the view count for a single path over a reporting window.
type PageStat struct {
	Path  string `json:"path"`
	Views int    `json:"views"`
}

// Store provides database operations for traffic analytics. It shares the
// site's SQLite handle rather than opening a database of its own, so page
// views live in the same relational file as the content they describe.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing database handle and creates the analytics
// tables if they don't exist.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure analytics schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS page_views (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			page_path TEXT NOT NULL,
			user_agent TEXT,
			ip_address TEXT,
			referrer TEXT,
			timestamp TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS unique_visitors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			first_visit TEXT NOT NULL,
			last_visit TEXT NOT NULL,
			visit_count INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_page_views_timestamp ON page_views(timestamp);
		CREATE INDEX IF NOT EXISTS idx_page_views_path ON page_views(page_path);
	`)
	return err
}

// RecordPageView appends one page view row.
func (s *Store) RecordPageView(v PageView) error {
	ts := v.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO page_views (page_path, user_agent, ip_address, referrer, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		v.Path, v.UserAgent, v.IPAddress, v.Referrer, ts.UTC().Format(timeFormat))
	return err
}

// RecordVisitor upserts the visitor row for sessionID: a first visit inserts
// it, a repeat visit bumps visit_count and last_visit.
func (s *Store) RecordVisitor(sessionID string) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.Exec(
		`INSERT INTO unique_visitors (session_id, first_visit, last_visit, visit_count)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT(session_id) DO UPDATE SET
			last_visit = excluded.last_visit,
			visit_count = visit_count + 1`,
		sessionID, now, now)
	return err
}

// TotalStats returns the site-wide view and visitor counts.
func (s *Store) TotalStats() (Totals, error) {
	var t Totals
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM page_views`).Scan(&t.TotalViews); err != nil {
		return Totals{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM unique_visitors`).Scan(&t.UniqueVisitors); err != nil {
		return Totals{}, err
	}
	return t, nil
}

// PageViewStats returns per-path view counts over the last N days, most
// viewed first.
func (s *Store) PageViewStats(days int) ([]PageStat, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeFormat)
	rows, err := s.db.Query(
		`SELECT page_path, COUNT(*) AS views FROM page_views
		 WHERE timestamp >= ?
		 GROUP BY page_path
		 ORDER BY views DESC
		 LIMIT 50`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []PageStat
	for rows.Next() {
		var ps PageStat
		if err := rows.Scan(&ps.Path, &ps.Views); err != nil {
			return nil, err
		}
		stats = append(stats, ps)
	}
	return stats, rows.Err()
}

// RecentActivity returns the most recent page views, newest first.
func (s *Store) RecentActivity(limit int) ([]PageView, error) {
	rows, err := s.db.Query(
		`SELECT id, page_path, COALESCE(user_agent, ''), COALESCE(referrer, ''), timestamp
		 FROM page_views ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PageView
	for rows.Next() {
		var v PageView
		var ts string
		if err := rows.Scan(&v.ID, &v.Path, &v.UserAgent, &v.Referrer, &ts); err != nil {
			return nil, err
		}
		v.Timestamp, _ = time.Parse(timeFormat, ts)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CleanupOldViews deletes page views older than retentionDays.
func (s *Store) CleanupOldViews(retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(timeFormat)
	_, err := s.db.Exec(`DELETE FROM page_views WHERE timestamp < ?`, cutoff)
	return err
}

// StartCleanupScheduler runs periodic cleanup of old data. Returns a stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.CleanupOldViews(retentionDays); err != nil {
					fmt.Printf("analytics cleanup error: %v\n", err)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
