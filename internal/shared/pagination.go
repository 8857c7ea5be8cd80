package shared

import (
	"math"
	"net/url"
	"strconv"
)

// Pagination carries the page window requested by a listing endpoint.
type Pagination struct {
	Page  int
	Limit int
}

// Offset returns the SQL offset for the page window.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// PageMeta is the metadata block returned next to paginated items.
type PageMeta struct {
	TotalItems   int `json:"totalItems"`
	ItemCount    int `json:"itemCount"`
	ItemsPerPage int `json:"itemsPerPage"`
	TotalPages   int `json:"totalPages"`
	CurrentPage  int `json:"currentPage"`
}

// Page is a generic paginated response body.
type Page[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}

// PaginationFromQuery reads page and limit, falling back to defaultLimit and capping at 100.
func PaginationFromQuery(q url.Values, defaultLimit int) Pagination {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	return Pagination{Page: page, Limit: limit}
}

// NewPage assembles a Page from the current window and total count.
func NewPage[T any](items []T, p Pagination, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	perPage := p.Limit
	if perPage <= 0 {
		perPage = 20
	}
	return Page[T]{
		Items: items,
		Meta: PageMeta{
			TotalItems:   total,
			ItemCount:    len(items),
			ItemsPerPage: perPage,
			TotalPages:   int(math.Ceil(float64(total) / float64(perPage))),
			CurrentPage:  p.Page,
		},
	}
}
