package catalog

import (
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Sort is one of the fixed catalog orderings.
type Sort string

const (
	SortPopularity Sort = "popularity"
	SortNewest     Sort = "newest"
	SortPriceAsc   Sort = "price-asc"
	SortPriceDesc  Sort = "price-desc"
)

// DefaultSort is what the URL falls back to when sort is absent or unknown.
const DefaultSort = SortPopularity

// ParseSort recognises a sort name.
func ParseSort(s string) (Sort, bool) {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortPopularity:
		return SortPopularity, true
	case SortNewest:
		return SortNewest, true
	case SortPriceAsc:
		return SortPriceAsc, true
	case SortPriceDesc:
		return SortPriceDesc, true
	}
	return "", false
}

// Valid reports whether s is one of the known orderings.
func (s Sort) Valid() bool {
	_, ok := ParseSort(string(s))
	return ok
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Query is everything the catalog URL can express.
type Query struct {
	Filter Filter `json:"filter"`
	Sort   Sort   `json:"sort"`
	Search string `json:"search,omitempty"`
	Page   int    `json:"page"`
}

// Normalize returns the canonical form of q: normalized filter, trimmed
// search, known sort and a page of at least 1.
func (q Query) Normalize(ceiling decimal.Decimal) Query {
	out := Query{
		Filter: q.Filter.Normalize(ceiling),
		Sort:   q.Sort,
		Search: strings.TrimSpace(q.Search),
		Page:   q.Page,
	}
	if !out.Sort.Valid() {
		out.Sort = DefaultSort
	}
	if out.Page < 1 {
		out.Page = 1
	}
	return out
}

// Equal compares two queries structurally.
func (q Query) Equal(o Query) bool {
	return q.Filter.Equal(o.Filter) && q.Sort == o.Sort && q.Search == o.Search && q.Page == o.Page
}

// Validate checks the parts of q that user input can get wrong.
func (q Query) Validate() error {
	if q.Page < 1 {
		return apperr.Invalid("page must be at least 1")
	}
	return q.Filter.Validate()
}

// ListParams is the data-access form of a query: filter, sort, search plus an
// explicit page window.
type ListParams struct {
	Filter   Filter
	Sort     Sort
	Search   string
	Page     int
	PageSize int
}

// Params turns q into ListParams with the given page size.
func (q Query) Params(pageSize int) ListParams {
	return ListParams{
		Filter:   q.Filter,
		Sort:     q.Sort,
		Search:   q.Search,
		Page:     q.Page,
		PageSize: pageSize,
	}
}

// Validate checks the page window.
func (p ListParams) Validate() error {
	if p.Page < 1 {
		return apperr.Invalid("page must be at least 1")
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return apperr.Invalid("page size must be between 1 and %d", MaxPageSize)
	}
	return p.Filter.Validate()
}

// Offset is the number of rows skipped before this page. Pages are 1-based.
func (p ListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Result is one page of the catalog.
type Result struct {
	Items    []models.Product `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// PageCount is the number of pages needed for Total items.
func (r Result) PageCount() int {
	if r.PageSize < 1 || r.Total == 0 {
		return 0
	}
	return (r.Total + r.PageSize - 1) / r.PageSize
}
