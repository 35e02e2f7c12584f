package views

import (
	"testing"
	"time"
)

func TestPaginate(t *testing.T) {
	pg := Paginate(2, 25, 6)
	if pg.TotalPages != 5 {
		t.Errorf("TotalPages = %d, want 5", pg.TotalPages)
	}
	if !pg.HasPrev || !pg.HasNext {
		t.Errorf("HasPrev/HasNext = %v/%v, want true/true", pg.HasPrev, pg.HasNext)
	}
	if pg.PrevPage != 1 || pg.NextPage != 3 {
		t.Errorf("PrevPage/NextPage = %d/%d", pg.PrevPage, pg.NextPage)
	}
	if len(pg.Pages) != 5 {
		t.Errorf("len(Pages) = %d, want 5", len(pg.Pages))
	}
}

func TestPaginateClamps(t *testing.T) {
	pg := Paginate(99, 10, 6)
	if pg.Page != 2 {
		t.Errorf("Page = %d, want 2 (clamped)", pg.Page)
	}
	pg = Paginate(0, 10, 6)
	if pg.Page != 1 {
		t.Errorf("Page = %d, want 1 (clamped)", pg.Page)
	}
}

func TestPaginateEmpty(t *testing.T) {
	pg := Paginate(1, 0, 6)
	if pg.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", pg.TotalPages)
	}
	if pg.HasPrev || pg.HasNext {
		t.Error("empty listing should have no prev/next")
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)
	if got := FormatDate(ts); got != "March 9, 2025" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDateInput(ts); got != "2025-03-09" {
		t.Errorf("FormatDateInput = %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	got := Excerpt("<p>Hello <strong>there</strong> world</p>", 100)
	if got != "Hello there world" {
		t.Errorf("Excerpt = %q, want tags stripped", got)
	}

	long := Excerpt("one two three four five", 10)
	if long != "one two…" {
		t.Errorf("Excerpt = %q, want cut at word boundary with ellipsis", long)
	}

	short := Excerpt("tiny", 10)
	if short != "tiny" {
		t.Errorf("Excerpt = %q, want unchanged", short)
	}
}
