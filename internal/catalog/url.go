package catalog

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Query-string parameter names.
const (
	ParamPlatform = "platform"
	ParamCategory = "category"
	ParamTags     = "tags"
	ParamPrice    = "price"
	ParamSearch   = "search"
	ParamSort     = "sort"
	ParamPage     = "page"
)

// Codec converts between Query and its query-string form. Decode(Encode(q))
// equals q for every normalized q.
type Codec struct {
	PriceCeiling decimal.Decimal
}

// NewCodec returns a codec using the given price slider ceiling.
func NewCodec(ceiling decimal.Decimal) Codec {
	return Codec{PriceCeiling: ceiling}
}

// Encode renders q without a leading '?'. Unset facets, blank search, the
// default sort and page 1 are left out, so equal states give equal strings.
func (c Codec) Encode(q Query) string {
	q = q.Normalize(c.PriceCeiling)

	var parts []string
	add := func(key, value string) {
		parts = append(parts, key+"="+value)
	}
	addSet := func(key string, values []string) {
		if len(values) == 0 {
			return
		}
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = url.QueryEscape(v)
		}
		add(key, strings.Join(escaped, ","))
	}

	addSet(ParamPlatform, q.Filter.Platforms)
	addSet(ParamCategory, q.Filter.Categories)
	addSet(ParamTags, q.Filter.Tags)
	if r := q.Filter.Price; r != nil {
		add(ParamPrice, r.Min.String()+"-"+r.Max.String())
	}
	if q.Search != "" {
		add(ParamSearch, url.QueryEscape(q.Search))
	}
	if q.Sort != DefaultSort {
		add(ParamSort, string(q.Sort))
	}
	if q.Page > 1 {
		add(ParamPage, strconv.Itoa(q.Page))
	}
	return strings.Join(parts, "&")
}

// Decode parses a query string. It never fails: unknown keys are ignored and
// garbled values fall back to their unset form.
func (c Codec) Decode(raw string) Query {
	raw = strings.TrimPrefix(raw, "?")
	// ParseQuery keeps every pair it could decode even when it reports an error.
	values, _ := url.ParseQuery(raw)
	return c.DecodeValues(values)
}

// DecodeValues is Decode for already-parsed parameters.
func (c Codec) DecodeValues(values url.Values) Query {
	q := Query{
		Filter: Filter{
			Platforms:  values[ParamPlatform],
			Categories: values[ParamCategory],
			Tags:       values[ParamTags],
			Price:      parsePrice(values.Get(ParamPrice)),
		},
		Search: values.Get(ParamSearch),
		Page:   1,
	}
	if s, ok := ParseSort(values.Get(ParamSort)); ok {
		q.Sort = s
	}
	if n, err := strconv.Atoi(strings.TrimSpace(values.Get(ParamPage))); err == nil && n > 0 {
		q.Page = n
	}
	return q.Normalize(c.PriceCeiling)
}

// parsePrice reads "min-max". Anything else, including negative bounds or an
// inverted range, is treated as no price constraint.
func parsePrice(v string) *PriceRange {
	lo, hi, ok := strings.Cut(strings.TrimSpace(v), "-")
	if !ok {
		return nil
	}
	min, err := decimal.NewFromString(strings.TrimSpace(lo))
	if err != nil {
		return nil
	}
	max, err := decimal.NewFromString(strings.TrimSpace(hi))
	if err != nil {
		return nil
	}
	r := &PriceRange{Min: min, Max: max}
	if r.Min.IsNegative() || r.Min.GreaterThan(r.Max) {
		return nil
	}
	return r
}
