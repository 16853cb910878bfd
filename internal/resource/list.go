// Package resource is the CRUD list/form layer over the backend resource
// modules: client-side search and pagination of fully fetched lists, form
// validation before any network call, and platform grouping for display.
package resource

import (
	"strings"
)

// DefaultPageSize is the list page size when the caller asks for none.
const DefaultPageSize = 10

// Item is a backend entity the list layer can search and splice.
type Item interface {
	Key() int64
	SearchText() []string
}

// Query is a list request: a search string and a 1-based page.
type Query struct {
	Search   string
	Page     int
	PageSize int
}

// Page is one page of a searched list.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
}

// Search keeps the items whose search text contains q, ignoring case. An
// empty q keeps everything. The input is not modified.
func Search[T Item](items []T, q string) []T {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if q == "" || matches(item, q) {
			out = append(out, item)
		}
	}
	return out
}

func matches(item Item, q string) bool {
	for _, text := range item.SearchText() {
		if strings.Contains(strings.ToLower(text), q) {
			return true
		}
	}
	return false
}

// Paginate cuts one page out of items. A page before the first is the
// first; a page past the end is empty.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	out := Page[T]{Items: []T{}, TotalCount: len(items), Page: page, PageSize: pageSize}
	pages := len(items) / pageSize
	if len(items)%pageSize != 0 {
		pages++
	}
	if page > pages {
		return out
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))
	out.Items = append(out.Items, items[start:end]...)
	return out
}

// Splice returns items without the entry whose key is id.
func Splice[T Item](items []T, id int64) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item.Key() != id {
			out = append(out, item)
		}
	}
	return out
}

// Apply searches then paginates items.
func Apply[T Item](items []T, q Query) Page[T] {
	return Paginate(Search(items, q.Search), q.Page, q.PageSize)
}
