// Package views holds the small presentation helpers shared between the
// engine's handlers and the templ templates each site provides: pagination
// math and date/text formatting. It deliberately has no dependency on the
// engine itself so templates can import it freely.
package views

import (
	"strings"
	"time"
	"unicode"
)

// Pagination describes one page of a listing for template rendering.
type Pagination struct {
	Page       int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	PrevPage   int
	NextPage   int
	Pages      []int
}

// Paginate computes pagination state for a listing of total items shown
// pageSize at a time. Page numbers are 1-based; out-of-range pages clamp.
func Paginate(page, total, pageSize int) Pagination {
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	pg := Pagination{
		Page:       page,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
		PrevPage:   page - 1,
		NextPage:   page + 1,
	}
	for i := 1; i <= totalPages; i++ {
		pg.Pages = append(pg.Pages, i)
	}
	return pg
}

// FormatDate renders a timestamp the way post bylines display it.
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// FormatDateInput renders a timestamp for an <input type="date"> value.
func FormatDateInput(t time.Time) string {
	return t.Format("2006-01-02")
}

// Excerpt returns the first maxLen runes of plain text derived from s, with
// HTML tags stripped, ending on a word boundary with an ellipsis.
func Excerpt(s string, maxLen int) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	text := strings.Join(strings.Fields(b.String()), " ")

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = maxLen
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
