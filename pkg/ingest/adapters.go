// Package ingest turns raw per-source exports into listings.
package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/scoutalgo/clover/pkg/models"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrMissingField  = errors.New("missing required field")
)

// Adapter maps one raw record of a source to a listing. Field fallbacks for a
// source live only in its adapter.
type Adapter interface {
	Source() string
	Adapt(rec Record) (*models.Listing, error)
}

// FieldMap lists, per listing field, the record paths tried in order
type FieldMap struct {
	Name          []string
	Brand         []string
	Category      []string // every present path becomes one level of the category path
	CategorySep   string   // splits a single flattened category value, e.g. " > "
	Price         []string
	OriginalPrice []string
	NativeID      []string
	URL           []string
	QuantityText  []string
	QuantityValue []string
	QuantityUnit  []string
	Available     []string // all present flags must be true
}

// genericFields covers the field names seen across the scraped exports
var genericFields = FieldMap{
	Name:          []string{"title", "name", "product_name", "rawData.name"},
	Brand:         []string{"brand", "rawData.brandName"},
	Category:      []string{"category_full_path", "categoryName", "sub_category", "rawData.catalogName", "rawData.categoryName"},
	CategorySep:   ">",
	Price:         []string{"cost", "price", "priceActual", "rawData.priceActual"},
	OriginalPrice: []string{"prev_cost", "priceOld", "originalPrice", "rawData.pricePrevious"},
	NativeID:      []string{"product_id", "id", "_id.$oid", "matched_uuid"},
	URL:           []string{"url", "productUrl"},
	QuantityText:  []string{"measure", "weight", "volume", "unitInfo", "unit_info"},
	QuantityValue: []string{"weight_value"},
	QuantityUnit:  []string{"weight_unit"},
	Available:     []string{"available", "inStock"},
}

var ryadomFields = FieldMap{
	Name:         []string{"name", "name_origin", "name_short", "name_kk"},
	Brand:        []string{"brand_name", "brand"},
	Category:     []string{"category_1", "category_2", "category_3"},
	Price:        []string{"price", "cost", "price_actual", "priceActual", "price_kzt"},
	NativeID:     []string{"ntin", "slug"},
	URL:          []string{"url", "product_url"},
	QuantityText: []string{"weight"},
}

// FieldAdapter is an Adapter driven by a FieldMap
type FieldAdapter struct {
	source string
	fields FieldMap

	// URLFallback builds a link when the record carries none
	URLFallback func(l *models.Listing) string
}

func NewFieldAdapter(source string, fields FieldMap) *FieldAdapter {
	return &FieldAdapter{source: source, fields: fields}
}

func (a *FieldAdapter) Source() string {
	return a.source
}

func (a *FieldAdapter) Adapt(rec Record) (*models.Listing, error) {
	f := a.fields

	l := &models.Listing{
		Source:         a.source,
		Name:           rec.String(f.Name...),
		Brand:          rec.String(f.Brand...),
		CategoryPath:   a.category(rec),
		SourceNativeID: rec.String(f.NativeID...),
		SourceURL:      rec.String(f.URL...),
		QuantityText:   rec.String(f.QuantityText...),
		QuantityUnit:   strings.ToLower(rec.String(f.QuantityUnit...)),
		Available:      true,
		Status:         models.Pending(),
	}
	if l.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if l.SourceNativeID == "" {
		return nil, fmt.Errorf("%w: source native id", ErrMissingField)
	}

	price, ok := rec.Decimal(f.Price...)
	if !ok {
		return nil, fmt.Errorf("%w: price", ErrMissingField)
	}
	l.Price = price
	if orig, ok := rec.Decimal(f.OriginalPrice...); ok {
		l.OriginalPrice = &orig
	}

	if v, ok := rec.Float(f.QuantityValue...); ok && l.QuantityUnit != "" {
		l.QuantityValue = &v
	}

	for _, p := range f.Available {
		if !rec.Bool(p, true) {
			l.Available = false
		}
	}

	if l.SourceURL == "" && a.URLFallback != nil {
		l.SourceURL = a.URLFallback(l)
	}
	return l, nil
}

func (a *FieldAdapter) category(rec Record) []string {
	values := rec.Strings(a.fields.Category...)
	if len(values) == 0 {
		return nil
	}
	// a single flattened path is split; several fields are levels
	if len(values) == 1 || a.fields.CategorySep != "" {
		raw := values[0]
		if a.fields.CategorySep == "" {
			return []string{raw}
		}
		var out []string
		for _, part := range strings.Split(raw, a.fields.CategorySep) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	var out []string
	for _, v := range values {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

func glovoSearchURL(l *models.Listing) string {
	return "https://glovoapp.com/kz/ru/almaty/search/?query=" + url.QueryEscape(l.Name)
}

// Registry holds adapters keyed by source id
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// DefaultRegistry returns a registry with every known source
func DefaultRegistry() *Registry {
	r := NewRegistry()

	glovo := NewFieldAdapter("glovo", genericFields)
	glovo.URLFallback = glovoSearchURL
	r.Register(glovo)

	for _, source := range []string{"wolt", "arbuz", "yandex_lavka", "magnum", "airba", "generic"} {
		r.Register(NewFieldAdapter(source, genericFields))
	}
	r.Register(NewFieldAdapter("ryadom", ryadomFields))
	return r
}

// Register adds or replaces the adapter for its source
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Source()] = a
}

// Lookup returns the adapter for source
func (r *Registry) Lookup(source string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return a, nil
}

// Sources returns the registered source ids, sorted
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
