package matching

import (
	"fmt"
	"math"

	"github.com/agnivade/levenshtein"

	"github.com/scoutalgo/clover/pkg/synonyms"
	"github.com/scoutalgo/clover/pkg/weight"
)

// Score components. Only the highest applicable tier of a component counts.
const (
	brandExactPoints    = 35
	brandTranslitPoints = 33
	brandSimilarPoints  = 25
	weightExactPoints   = 35
	weightNearPoints    = 20
	titleMaxPoints      = 30
	synonymPoints       = 10
	synonymMaxPoints    = 20

	maxScore = 100
)

// Scorer provides string similarity primitives and the candidate score
type Scorer struct {
	config Config
}

// NewScorer creates a new Scorer
func NewScorer(config Config) *Scorer {
	return &Scorer{config: config}
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	jaro := jaro(ra, rb)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}
	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))
	matches := 0
	for i := range a {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Levenshtein returns the edit-distance similarity between 0.0 and 1.0
func (s *Scorer) Levenshtein(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// TokenIoU is the intersection-over-union of two token sets
func TokenIoU(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, tok := range b {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := set[tok]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// Score computes the 0..100 similarity of a candidate to a query and the
// human-readable reasons behind it.
func (s *Scorer) Score(query, candidate *Profile) (int, []string) {
	score := 0
	var reasons []string

	if query.BrandKey != "" && candidate.BrandKey != "" {
		switch {
		case query.BrandKey == candidate.BrandKey:
			score += brandExactPoints
			reasons = append(reasons, "brand:exact")
		case sharesAny(query.BrandVariants, candidate.BrandVariants):
			score += brandTranslitPoints
			reasons = append(reasons, "brand:translit")
		case s.JaroWinkler(query.BrandLatin, candidate.BrandLatin) >= s.config.BrandSimilarThreshold:
			score += brandSimilarPoints
			reasons = append(reasons, "brand:similar")
		}
	}

	if query.HasQuantity && candidate.HasQuantity {
		switch {
		case weight.Equal(query.Quantity, candidate.Quantity):
			score += weightExactPoints
			reasons = append(reasons, "weight:exact")
		case weight.Within(query.Quantity, candidate.Quantity, s.config.WeightToleranceAbs, s.config.WeightToleranceRatio):
			score += weightNearPoints
			reasons = append(reasons, fmt.Sprintf("weight:±%s", formatDelta(query.Quantity.Value-candidate.Quantity.Value)))
		}
	}

	if iou := TokenIoU(query.Keywords, candidate.Keywords); iou > 0 {
		score += int(math.Floor(iou * titleMaxPoints))
		reasons = append(reasons, fmt.Sprintf("title:%d%%", int(math.Round(iou*100))))
	}

	if shared := synonyms.Intersect(query.Groups, candidate.Groups); shared > 0 {
		score += min(shared*synonymPoints, synonymMaxPoints)
		reasons = append(reasons, fmt.Sprintf("synonyms:%d", shared))
	}

	return min(max(score, 0), maxScore), reasons
}

func formatDelta(d float64) string {
	return fmt.Sprintf("%g", math.Abs(d))
}

func sharesAny(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
