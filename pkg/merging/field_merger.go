package merging

import (
	"slices"

	"github.com/scoutalgo/clover/pkg/models"
)

// FieldMerger applies a listing's contribution to a canonical product's fields
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// PriceOutcome reports what happened to the target's price entry for a source
type PriceOutcome struct {
	Replaced  bool
	Displaced string
}

// Absorb adds the listing to the product's membership and resolves the
// product's price entry for the listing's source by recency: the incoming
// entry wins unless it was observed strictly before the active one. A
// displaced or ignored listing stays a member.
func (m *FieldMerger) Absorb(p *models.CanonicalProduct, l *models.Listing) PriceOutcome {
	if !p.HasMember(l.ID) {
		p.Members = append(p.Members, l.ID)
	}
	if p.Prices == nil {
		p.Prices = map[string]models.PriceEntry{}
	}

	var out PriceOutcome
	incoming := l.PriceEntry()
	if active, ok := p.Prices[l.Source]; ok {
		if incoming.ObservedAt.Before(active.ObservedAt) {
			return out
		}
		if active.ListingID != l.ID {
			out.Replaced = true
			out.Displaced = active.ListingID
		}
	}
	p.Prices[l.Source] = incoming

	if p.Brand == "" {
		p.Brand = l.Brand
	}
	if len(p.CategoryPath) == 0 {
		p.CategoryPath = slices.Clone(l.CategoryPath)
	}
	return out
}

// Release removes the listing from the product. When the listing held the
// source's price entry, the freshest remaining member from the same source
// takes it over. A product left without members is tombstoned towards target.
func (m *FieldMerger) Release(p *models.CanonicalProduct, l *models.Listing, remaining []*models.Listing, target string) {
	p.Members = slices.DeleteFunc(p.Members, func(id string) bool { return id == l.ID })

	if active, ok := p.Prices[l.Source]; ok && active.ListingID == l.ID {
		delete(p.Prices, l.Source)

		var heir *models.Listing
		for _, r := range remaining {
			if r.ID == l.ID || r.Source != l.Source || !p.HasMember(r.ID) {
				continue
			}
			if heir == nil || heir.IngestedBefore(r) {
				heir = r
			}
		}
		if heir != nil {
			p.Prices[l.Source] = heir.PriceEntry()
		}
	}

	if len(p.Members) == 0 {
		p.Tombstoned = true
		p.MergedInto = target
		p.Prices = map[string]models.PriceEntry{}
	}
}
