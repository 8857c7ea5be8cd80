package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationFromQuery(t *testing.T) {
	p := PaginationFromQuery(url.Values{}, 20)
	assert.Equal(t, Pagination{Page: 1, Limit: 20}, p)
	assert.Equal(t, 0, p.Offset())

	p = PaginationFromQuery(url.Values{"page": {"3"}, "limit": {"10"}}, 20)
	assert.Equal(t, 20, p.Offset())

	p = PaginationFromQuery(url.Values{"page": {"-2"}, "limit": {"5000"}}, 20)
	assert.Equal(t, Pagination{Page: 1, Limit: 100}, p)
}

func TestNewPageMeta(t *testing.T) {
	page := NewPage([]string{"a", "b"}, Pagination{Page: 2, Limit: 2}, 5)
	assert.Equal(t, PageMeta{TotalItems: 5, ItemCount: 2, ItemsPerPage: 2, TotalPages: 3, CurrentPage: 2}, page.Meta)

	empty := NewPage[string](nil, Pagination{Page: 1, Limit: 10}, 0)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Meta.TotalPages)
}
