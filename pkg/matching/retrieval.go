package matching

import (
	"sort"

	"github.com/scoutalgo/clover/pkg/weight"
)

// Retrieval strategy names, reported on each candidate
const (
	StrategyBrand      = "brand"
	StrategyWeight     = "weight"
	StrategyKeyword    = "keyword"
	StrategySynonym    = "synonym"
	StrategyFuzzyBrand = "fuzzy_brand"
	StrategyCategory   = "category"
	StrategyFallback   = "fallback"
)

// hits accumulates candidate positions and the strategies that surfaced them
type hits map[int][]string

func (h hits) add(pos int, strategy string) {
	for _, s := range h[pos] {
		if s == strategy {
			return
		}
	}
	h[pos] = append(h[pos], strategy)
}

// Retrieve runs every strategy and returns the union of eligible candidate
// positions. When the union is empty the brute-force fallback runs.
func (ix *CandidateIndex) Retrieve(query *Profile, scorer *Scorer) hits {
	found := make(hits)
	add := func(pos int, strategy string) {
		if ix.eligible(query, ix.profiles[pos]) {
			found.add(pos, strategy)
		}
	}

	ix.byBrandVariant(query, add)
	ix.byWeight(query, add)
	ix.byKeywords(query, add)
	ix.bySynonyms(query, add)
	ix.byFuzzyBrand(query, scorer, add)
	ix.byCategoryKeywords(query, add)

	if len(found) == 0 && ix.config.FallbackEnabled {
		ix.fallback(query, scorer, found)
	}
	return found
}

func (ix *CandidateIndex) byBrandVariant(query *Profile, add func(int, string)) {
	for _, v := range query.BrandVariants {
		for _, pos := range ix.byBrand[v] {
			add(pos, StrategyBrand)
		}
	}
}

func (ix *CandidateIndex) byWeight(query *Profile, add func(int, string)) {
	if !query.HasQuantity {
		return
	}
	for _, b := range weight.BucketsWithin(query.Quantity, ix.config.WeightToleranceAbs, ix.config.WeightToleranceRatio) {
		for _, pos := range ix.byBucket[b] {
			if weight.Within(query.Quantity, ix.profiles[pos].Quantity, ix.config.WeightToleranceAbs, ix.config.WeightToleranceRatio) {
				add(pos, StrategyWeight)
			}
		}
	}
}

// byKeywords requires two shared keywords, or a single one that is long or rare
func (ix *CandidateIndex) byKeywords(query *Profile, add func(int, string)) {
	counts := make(map[int]int)
	strong := make(map[int]bool)
	for _, kw := range query.Keywords {
		postings := ix.byKeyword[kw]
		distinctive := len([]rune(kw)) >= ix.config.LongKeywordRunes || len(postings) <= ix.config.RareKeywordMaxPostings
		for _, pos := range postings {
			counts[pos]++
			if distinctive {
				strong[pos] = true
			}
		}
	}
	for pos, n := range counts {
		if n >= 2 || strong[pos] {
			add(pos, StrategyKeyword)
		}
	}
}

func (ix *CandidateIndex) bySynonyms(query *Profile, add func(int, string)) {
	for _, g := range query.Groups {
		for _, pos := range ix.byGroup[g] {
			add(pos, StrategySynonym)
		}
	}
}

func (ix *CandidateIndex) byFuzzyBrand(query *Profile, scorer *Scorer, add func(int, string)) {
	if query.BrandKey == "" {
		return
	}
	for _, ref := range ix.brands {
		if ref.key == query.BrandKey {
			continue
		}
		if scorer.JaroWinkler(query.BrandLatin, ref.latin) < ix.config.FuzzyBrandThreshold {
			continue
		}
		for _, pos := range ix.byBrand[ref.key] {
			add(pos, StrategyFuzzyBrand)
		}
	}
}

// byCategoryKeywords helps brandless queries: same leaf category and at least
// two shared keywords.
func (ix *CandidateIndex) byCategoryKeywords(query *Profile, add func(int, string)) {
	if !query.Brandless() || query.Category == "" {
		return
	}
	for _, pos := range ix.byCategory[query.Category] {
		if sharedCount(query.Keywords, ix.profiles[pos].Keywords) >= 2 {
			add(pos, StrategyCategory)
		}
	}
}

// fallback scans a bounded pool of the corpus. The pool is pre-filtered by a
// doubled weight tolerance; listings without a weight stay in the pool.
func (ix *CandidateIndex) fallback(query *Profile, scorer *Scorer, found hits) {
	type scored struct {
		pos int
		sim float64
	}
	var pool []scored
	scanned := 0
	for pos, p := range ix.profiles {
		if scanned >= ix.config.FallbackPoolLimit {
			break
		}
		if !ix.eligible(query, p) {
			continue
		}
		if query.HasQuantity && p.HasQuantity &&
			!weight.Within(query.Quantity, p.Quantity, 2*ix.config.WeightToleranceAbs, 2*ix.config.WeightToleranceRatio) {
			continue
		}
		scanned++

		shared := sharedCount(query.Keywords, p.Keywords)
		if shared == 0 || (shared == 1 && len(query.Keywords) > 2) {
			continue
		}
		sim := scorer.Levenshtein(query.LatinName, p.LatinName)
		if sim < ix.config.FallbackSimilarityFloor {
			continue
		}
		pool = append(pool, scored{pos: pos, sim: sim})
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].sim > pool[j].sim })
	if len(pool) > ix.config.FallbackMaxCandidates {
		pool = pool[:ix.config.FallbackMaxCandidates]
	}
	for _, s := range pool {
		found.add(s.pos, StrategyFallback)
	}
}

func sharedCount(a, b []string) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if x == y {
				n++
				break
			}
		}
	}
	return n
}
