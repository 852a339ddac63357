// Package catalog holds the catalog query model: facet filters, sort order,
// pagination and the query-string codec that keeps shareable URLs and
// in-memory state in sync.
package catalog

import (
	"sort"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultPriceCeiling is the top of the price slider. A range spanning
// [0, ceiling] filters nothing.
var DefaultPriceCeiling = decimal.NewFromInt(100)

// PriceRange is a closed price interval.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Contains reports whether price lies inside the range.
func (r PriceRange) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(r.Min) && price.LessThanOrEqual(r.Max)
}

// Filter is the set of active facets. A nil facet is unset and imposes no
// constraint; values inside one facet are alternatives, facets combine with AND.
type Filter struct {
	Platforms  []string    `json:"platform,omitempty"`
	Categories []string    `json:"category,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Price      *PriceRange `json:"price,omitempty"`
}

// WithPlatform returns a copy of f with the platform facet replaced.
func (f Filter) WithPlatform(values ...string) Filter {
	f.Platforms = cloneStrings(values)
	return f
}

// WithCategory returns a copy of f with the category facet replaced.
func (f Filter) WithCategory(values ...string) Filter {
	f.Categories = cloneStrings(values)
	return f
}

// WithTags returns a copy of f with the tag facet replaced.
func (f Filter) WithTags(values ...string) Filter {
	f.Tags = cloneStrings(values)
	return f
}

// WithPriceRange returns a copy of f constrained to [min, max].
func (f Filter) WithPriceRange(min, max decimal.Decimal) Filter {
	f.Price = &PriceRange{Min: min, Max: max}
	return f
}

// WithoutPriceRange returns a copy of f with the price facet unset.
func (f Filter) WithoutPriceRange() Filter {
	f.Price = nil
	return f
}

// Normalize returns the canonical form of f. Set values are trimmed, split on
// commas, deduplicated and sorted; empty sets become nil; a price range that
// covers [0, ceiling] becomes nil. Two filters that select the same products
// normalize to Equal values.
func (f Filter) Normalize(ceiling decimal.Decimal) Filter {
	out := Filter{
		Platforms:  normalizeSet(f.Platforms),
		Categories: normalizeSet(f.Categories),
		Tags:       normalizeSet(f.Tags),
	}
	if f.Price != nil {
		r := *f.Price
		if !(r.Min.LessThanOrEqual(decimal.Zero) && r.Max.GreaterThanOrEqual(ceiling)) {
			out.Price = &r
		}
	}
	return out
}

// Validate rejects ranges that cannot match anything sensible. It never
// clamps.
func (f Filter) Validate() error {
	if f.Price == nil {
		return nil
	}
	if f.Price.Min.IsNegative() || f.Price.Max.IsNegative() {
		return apperr.Invalid("price range cannot be negative")
	}
	if f.Price.Min.GreaterThan(f.Price.Max) {
		return apperr.Invalid("minimum price %s is above maximum price %s", f.Price.Min, f.Price.Max)
	}
	return nil
}

// IsZero reports whether no facet is set.
func (f Filter) IsZero() bool {
	return len(f.Platforms) == 0 && len(f.Categories) == 0 && len(f.Tags) == 0 && f.Price == nil
}

// Equal compares two filters structurally. Callers normalize first when they
// want semantic equality.
func (f Filter) Equal(g Filter) bool {
	if !equalStrings(f.Platforms, g.Platforms) ||
		!equalStrings(f.Categories, g.Categories) ||
		!equalStrings(f.Tags, g.Tags) {
		return false
	}
	if (f.Price == nil) != (g.Price == nil) {
		return false
	}
	if f.Price == nil {
		return true
	}
	return f.Price.Min.Equal(g.Price.Min) && f.Price.Max.Equal(g.Price.Max)
}

// Matches reports whether p satisfies every set facet.
func (f Filter) Matches(p models.Product) bool {
	if len(f.Platforms) > 0 && !containsString(f.Platforms, p.Platform) {
		return false
	}
	if len(f.Categories) > 0 && !containsString(f.Categories, p.Category) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, p.Tags) {
		return false
	}
	if f.Price != nil && !f.Price.Contains(p.Price) {
		return false
	}
	return true
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range b {
		if containsString(a, v) {
			return true
		}
	}
	return false
}
