package models

import (
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceEntry is the active price one source reports for a canonical product
type PriceEntry struct {
	ListingID      string           `json:"listing_id"`
	Source         string           `json:"source"`
	Price          decimal.Decimal  `json:"price"`
	OriginalPrice  *decimal.Decimal `json:"original_price,omitempty"`
	Available      bool             `json:"available"`
	URL            string           `json:"url,omitempty"`
	SourceNativeID string           `json:"source_native_id"`
	ObservedAt     time.Time        `json:"observed_at"`
}

// CanonicalProduct is the deduplicated product all matched listings resolve to.
// Products are never destroyed; one that loses its last member is tombstoned
// with a forward reference to the product that absorbed it.
type CanonicalProduct struct {
	ID           string                `json:"id" db:"id"`
	Name         string                `json:"name" db:"name"`
	Brand        string                `json:"brand,omitempty" db:"brand"`
	CategoryPath []string              `json:"category_path,omitempty" db:"-"`
	Prices       map[string]PriceEntry `json:"prices" db:"-"`
	Members      []string              `json:"members" db:"-"`
	Tombstoned   bool                  `json:"tombstoned" db:"tombstoned"`
	MergedInto   string                `json:"merged_into,omitempty" db:"-"`
	Version      int                   `json:"version" db:"version"`
	CreatedAt    time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at" db:"updated_at"`
}

// NewProductForListing creates the fresh single-member product a listing gets on first sighting
func NewProductForListing(id string, l *Listing) *CanonicalProduct {
	return &CanonicalProduct{
		ID:           id,
		Name:         l.Name,
		Brand:        l.Brand,
		CategoryPath: slices.Clone(l.CategoryPath),
		Prices:       map[string]PriceEntry{l.Source: l.PriceEntry()},
		Members:      []string{l.ID},
		Version:      1,
		CreatedAt:    l.IngestedAt,
		UpdatedAt:    l.IngestedAt,
	}
}

// Sources returns the distinct sources with an active price entry, sorted
func (p *CanonicalProduct) Sources() []string {
	out := make([]string, 0, len(p.Prices))
	for source := range p.Prices {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// SourceCount is the number of distinct sources aggregated into the product
func (p *CanonicalProduct) SourceCount() int {
	return len(p.Prices)
}

func (p *CanonicalProduct) HasMember(listingID string) bool {
	return slices.Contains(p.Members, listingID)
}

// Clone returns a deep copy so mutations never leak into shared snapshots
func (p *CanonicalProduct) Clone() *CanonicalProduct {
	c := *p
	c.CategoryPath = slices.Clone(p.CategoryPath)
	c.Members = slices.Clone(p.Members)
	c.Prices = make(map[string]PriceEntry, len(p.Prices))
	for k, v := range p.Prices {
		c.Prices[k] = v
	}
	return &c
}
