package catalog

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	samplePlatforms  = []string{"WordPress", "XenForo", "Joomla Classic", "a&b"}
	sampleCategories = []string{"Plugins", "Themes", "Extensions", "Templates", "Integrations"}
	sampleTags       = []string{"eCommerce", "SEO", "Security", "Media", "Forms", "Social", "Admin", "Forum", "100%"}
	sampleSearches   = []string{"", "seo", "page builder", "  padded  ", "a+b=c", "naïve"}
	sampleSorts      = []Sort{SortPopularity, SortNewest, SortPriceAsc, SortPriceDesc, "", "bogus"}
)

func pick(r *rand.Rand, from []string) []string {
	n := r.Intn(len(from) + 1)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, from[r.Intn(len(from))])
	}
	return out
}

func randomFilters(n int) []Filter {
	r := rand.New(rand.NewSource(42))
	out := make([]Filter, 0, n)
	for i := 0; i < n; i++ {
		f := Filter{}.
			WithPlatform(pick(r, samplePlatforms)...).
			WithCategory(pick(r, sampleCategories)...).
			WithTags(pick(r, sampleTags)...)
		if r.Intn(3) > 0 {
			lo := decimal.New(int64(r.Intn(5000)), -2)
			hi := lo.Add(decimal.New(int64(r.Intn(15000)), -2))
			f = f.WithPriceRange(lo, hi)
		}
		out = append(out, f)
	}
	return out
}

func randomQueries(n int) []Query {
	r := rand.New(rand.NewSource(7))
	filters := randomFilters(n)
	out := make([]Query, n)
	for i := range out {
		out[i] = Query{
			Filter: filters[i],
			Sort:   sampleSorts[r.Intn(len(sampleSorts))],
			Search: sampleSearches[r.Intn(len(sampleSearches))],
			Page:   r.Intn(4),
		}
	}
	return out
}

func TestRoundTripLaw(t *testing.T) {
	codec := NewCodec(DefaultPriceCeiling)

	for _, q := range randomQueries(300) {
		want := q.Normalize(codec.PriceCeiling)
		encoded := codec.Encode(want)
		got := codec.Decode(encoded)

		assert.True(t, want.Equal(got), "encoded %q\nwant %+v\ngot  %+v", encoded, want, got)
	}
}

func TestEncodeIsCanonical(t *testing.T) {
	codec := NewCodec(DefaultPriceCeiling)

	a := Query{Filter: Filter{}.WithPlatform("XenForo", "WordPress"), Sort: SortNewest}
	b := Query{Filter: Filter{}.WithPlatform("WordPress", "XenForo", "WordPress").WithCategory(), Sort: SortNewest, Page: 1}

	assert.Equal(t, codec.Encode(a), codec.Encode(b))
	assert.Equal(t, "platform=WordPress,XenForo&sort=newest", codec.Encode(a))
}

func TestEncodeOmitsUnsetFacets(t *testing.T) {
	codec := NewCodec(DefaultPriceCeiling)

	assert.Equal(t, "", codec.Encode(Query{}))
	assert.Equal(t, "", codec.Encode(Query{
		Filter: Filter{}.WithTags().WithPriceRange(decimal.Zero, DefaultPriceCeiling),
		Sort:   SortPopularity,
		Page:   1,
	}))

	full := Query{
		Filter: Filter{}.
			WithPlatform("WordPress").
			WithCategory("Themes").
			WithTags("SEO", "Forms").
			WithPriceRange(dec("0"), dec("50")),
		Search: "page builder",
		Sort:   SortPriceAsc,
		Page:   3,
	}
	assert.Equal(t,
		"platform=WordPress&category=Themes&tags=Forms,SEO&price=0-50&search=page+builder&sort=price-asc&page=3",
		codec.Encode(full))
}

func TestDecodeIsTolerant(t *testing.T) {
	codec := NewCodec(DefaultPriceCeiling)

	tests := []struct {
		name string
		raw  string
		want Query
	}{
		{"empty", "", Query{Sort: DefaultSort, Page: 1}},
		{"leading question mark", "?platform=WordPress", Query{Filter: Filter{Platforms: []string{"WordPress"}}, Sort: DefaultSort, Page: 1}},
		{"garbled price", "price=cheap", Query{Sort: DefaultSort, Page: 1}},
		{"inverted price", "price=50-10", Query{Sort: DefaultSort, Page: 1}},
		{"negative price", "price=-5-10", Query{Sort: DefaultSort, Page: 1}},
		{"unknown sort", "sort=random", Query{Sort: DefaultSort, Page: 1}},
		{"bad page", "page=-2", Query{Sort: DefaultSort, Page: 1}},
		{"unknown keys", "utm_source=mail&foo", Query{Sort: DefaultSort, Page: 1}},
		{"bad escape keeps other params", "search=%zz&platform=XenForo", Query{Filter: Filter{Platforms: []string{"XenForo"}}, Sort: DefaultSort, Page: 1}},
		{"repeated keys merge", "platform=XenForo&platform=WordPress", Query{Filter: Filter{Platforms: []string{"WordPress", "XenForo"}}, Sort: DefaultSort, Page: 1}},
		{"sort is case insensitive", "sort=Newest", Query{Sort: SortNewest, Page: 1}},
		{"full price range collapses", "price=0-100", Query{Sort: DefaultSort, Page: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codec.Decode(tt.raw)
			assert.True(t, tt.want.Equal(got), "want %+v got %+v", tt.want, got)
		})
	}
}

func TestDecodePrice(t *testing.T) {
	q := NewCodec(DefaultPriceCeiling).Decode("price=9.99-49.50")

	require.NotNil(t, q.Filter.Price)
	assert.True(t, q.Filter.Price.Min.Equal(dec("9.99")))
	assert.True(t, q.Filter.Price.Max.Equal(dec("49.5")))
}
