package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultPageSize matches the storefront grid of two rows by three.
	DefaultPageSize = 6
	// MaxPageSize caps a single catalog page.
	MaxPageSize = 100
)

// Filter is a catalog query evaluated by the repository. Zero values mean
// "no constraint" for every field except Limit, which Normalize defaults.
type Filter struct {
	CategoryIDs []int64
	MinPrice    decimal.NullDecimal
	MaxPrice    decimal.NullDecimal
	Search      string
	Offset      int
	Limit       int
}

// Page is one ordered slice of the catalog plus the total match count.
type Page struct {
	Items  []Product
	Total  int
	Offset int
	Limit  int
}

// Normalize clamps paging values and drops empty constraints.
func (f Filter) Normalize(defaultLimit, maxLimit int) Filter {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageSize
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if len(f.CategoryIDs) == 0 {
		f.CategoryIDs = nil
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}
