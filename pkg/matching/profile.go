package matching

import (
	"fmt"

	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/normalizers"
	"github.com/scoutalgo/clover/pkg/synonyms"
	"github.com/scoutalgo/clover/pkg/weight"
)

// Profile is the precomputed comparison view of one listing. Profiles are
// built once per run and never mutated.
type Profile struct {
	Listing     *models.Listing
	CanonicalID string
	SourceCount int

	Name          string
	LatinName     string
	Keywords      []string // phonetic keys of significant tokens
	BrandKey      string
	BrandLatin    string
	BrandVariants []string
	Quantity      weight.Quantity
	HasQuantity   bool
	Groups        []synonyms.GroupID
	Category      string
}

// Brandless reports whether the listing carries no brand (produce, commodities)
func (p *Profile) Brandless() bool {
	return p.BrandKey == ""
}

// NewProfile precomputes the matching view of a listing. It fails when the
// listing's name normalizes to nothing.
func NewProfile(l *models.Listing, syn *synonyms.Resolver, sourceCount int) (*Profile, error) {
	name, err := normalizers.NormalizeStrict(l.Name)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", l.ID, err)
	}
	if sourceCount < 1 {
		sourceCount = 1
	}

	p := &Profile{
		Listing:     l,
		CanonicalID: l.CanonicalID,
		SourceCount: sourceCount,
		Name:        name,
		LatinName:   normalizers.ToLatin(name),
		Keywords:    normalizers.TitleKeys(name),
		BrandKey:    normalizers.BrandKey(l.Brand),
	}
	if p.BrandKey != "" {
		p.BrandLatin = normalizers.PhoneticKey(p.BrandKey)
		p.BrandVariants = normalizers.BrandVariants(l.Brand)
	}
	p.Quantity, p.HasQuantity = weight.ForListing(l)
	if syn != nil {
		p.Groups = syn.GroupsOf(l.Name)
	}
	if n := len(l.CategoryPath); n > 0 {
		p.Category = normalizers.Normalize(l.CategoryPath[n-1])
	}
	return p, nil
}
