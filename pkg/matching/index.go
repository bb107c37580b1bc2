package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/synonyms"
	"github.com/scoutalgo/clover/pkg/tracing"
	"github.com/scoutalgo/clover/pkg/weight"
)

// IndexStats reports how a build went
type IndexStats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Brands  int `json:"brands"`
}

type brandRef struct {
	latin string
	key   string
}

// CandidateIndex is the per-run lookup structure over the corpus snapshot.
// It is built once and then only read, so concurrent queries are safe.
type CandidateIndex struct {
	config   Config
	synonyms *synonyms.Resolver

	profiles   []*Profile
	byID       map[string]int
	byBrand    map[string][]int
	byKeyword  map[string][]int
	byBucket   map[string][]int
	byGroup    map[synonyms.GroupID][]int
	byCategory map[string][]int
	brands     []brandRef

	stats IndexStats
}

// BuildIndex indexes every listing of the snapshot. Listings whose name cannot
// be normalized are skipped and counted.
func BuildIndex(
	ctx context.Context,
	logger ectologger.Logger,
	listings []models.Listing,
	products map[string]*models.CanonicalProduct,
	syn *synonyms.Resolver,
	config Config,
) *CandidateIndex {
	ctx, span := tracing.StartSpan(ctx, "matching.BuildIndex")
	defer span.End()

	ix := &CandidateIndex{
		config:     config,
		synonyms:   syn,
		byID:       make(map[string]int, len(listings)),
		byBrand:    make(map[string][]int),
		byKeyword:  make(map[string][]int),
		byBucket:   make(map[string][]int),
		byGroup:    make(map[synonyms.GroupID][]int),
		byCategory: make(map[string][]int),
	}
	brandSeen := make(map[string]struct{})

	for i := range listings {
		l := &listings[i]
		sourceCount := 1
		if p, ok := products[l.CanonicalID]; ok {
			sourceCount = p.SourceCount()
		}
		profile, err := NewProfile(l, syn, sourceCount)
		if err != nil {
			ix.stats.Skipped++
			logger.WithContext(ctx).WithError(err).WithField("listing_id", l.ID).Debug("Skipping listing that cannot be indexed")
			continue
		}

		pos := len(ix.profiles)
		ix.profiles = append(ix.profiles, profile)
		ix.byID[l.ID] = pos

		for _, v := range profile.BrandVariants {
			ix.byBrand[v] = append(ix.byBrand[v], pos)
		}
		if profile.BrandKey != "" {
			if _, ok := brandSeen[profile.BrandKey]; !ok {
				brandSeen[profile.BrandKey] = struct{}{}
				ix.brands = append(ix.brands, brandRef{latin: profile.BrandLatin, key: profile.BrandKey})
			}
		}
		for _, kw := range profile.Keywords {
			ix.byKeyword[kw] = append(ix.byKeyword[kw], pos)
		}
		if profile.HasQuantity {
			b := weight.Bucket(profile.Quantity)
			ix.byBucket[b] = append(ix.byBucket[b], pos)
		}
		for _, g := range profile.Groups {
			ix.byGroup[g] = append(ix.byGroup[g], pos)
		}
		if profile.Category != "" {
			ix.byCategory[profile.Category] = append(ix.byCategory[profile.Category], pos)
		}
	}

	sort.Slice(ix.brands, func(i, j int) bool { return ix.brands[i].key < ix.brands[j].key })
	ix.stats.Indexed = len(ix.profiles)
	ix.stats.Brands = len(ix.brands)

	logger.WithContext(ctx).WithFields(map[string]any{
		"indexed":  ix.stats.Indexed,
		"skipped":  ix.stats.Skipped,
		"brands":   ix.stats.Brands,
		"keywords": len(ix.byKeyword),
	}).Info("Built candidate index")

	return ix
}

// Stats returns build statistics
func (ix *CandidateIndex) Stats() IndexStats {
	return ix.stats
}

// Size is the number of indexed listings
func (ix *CandidateIndex) Size() int {
	return len(ix.profiles)
}

// Profile returns the indexed profile of a listing
func (ix *CandidateIndex) Profile(listingID string) (*Profile, bool) {
	pos, ok := ix.byID[listingID]
	if !ok {
		return nil, false
	}
	return ix.profiles[pos], true
}

// eligible applies the exclusions shared by every retrieval strategy: the
// query itself, its own product, its own source, and (when merge direction
// is enforced) listings ingested after it.
func (ix *CandidateIndex) eligible(query, candidate *Profile) bool {
	if candidate.Listing.ID == query.Listing.ID {
		return false
	}
	if candidate.CanonicalID == query.CanonicalID {
		return false
	}
	if candidate.Listing.Source == query.Listing.Source {
		return false
	}
	if ix.config.EnforceMergeDirection && !candidate.Listing.IngestedBefore(query.Listing) {
		return false
	}
	return true
}
