package txlog

import (
	"sort"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filter narrows a history query. Zero values mean "no constraint".
type Filter struct {
	Type      Type
	Status    Status
	StartDate time.Time
	EndDate   time.Time
	Page      int
	Limit     int
}

// Normalize applies paging defaults and closes an open-ended date range at now.
func (f Filter) Normalize(now time.Time) Filter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if !f.StartDate.IsZero() && f.EndDate.IsZero() {
		f.EndDate = now
	}
	return f
}

// Offset is the number of rows skipped before the current page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches reports whether t satisfies the filter.
func (f Filter) Matches(t Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.StartDate.IsZero() && t.CreatedAt.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && t.CreatedAt.After(f.EndDate) {
		return false
	}
	return true
}

// Page is one page of history, newest first.
type Page struct {
	Items      []Transaction `json:"transactions"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

func newPage(items []Transaction, total int, f Filter) Page {
	if items == nil {
		items = []Transaction{}
	}
	return Page{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
}

// Paginate filters, orders and pages an in-memory slice. f must already be
// normalized.
func Paginate(all []Transaction, userID string, f Filter) Page {
	var matched []Transaction
	for _, t := range all {
		if t.UserID == userID && f.Matches(t) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return newPage(matched[start:end], total, f)
}
