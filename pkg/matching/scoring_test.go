package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/synonyms"
)

func profileOf(t *testing.T, l models.Listing) *Profile {
	t.Helper()
	syn, err := synonyms.Default()
	require.NoError(t, err)
	p, err := NewProfile(&l, syn, 1)
	require.NoError(t, err)
	return p
}

func TestScoreCrossScriptDuplicate(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	a := profileOf(t, listing("a", "glovo", "Coca-Cola 0.5L", "Coca-Cola", 0))
	b := profileOf(t, listing("b", "wolt", "Кока-Кола 500мл", "Кока-Кола", 1))

	score, reasons := scorer.Score(b, a)
	assert.Equal(t, 100, score)
	assert.Contains(t, reasons, "brand:translit")
	assert.Contains(t, reasons, "weight:exact")
	assert.Contains(t, reasons, "title:100%")
}

func TestScoreFlavorVariants(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	orange := profileOf(t, listing("a", "glovo", "Fanta Orange 1L", "Fanta", 0))
	grape := profileOf(t, listing("b", "wolt", "Fanta Grape 1L", "Fanta", 1))

	score, reasons := scorer.Score(grape, orange)
	assert.Equal(t, 80, score)
	assert.Equal(t, []string{"brand:exact", "weight:exact", "title:33%"}, reasons)
}

func TestScoreBrandTiers(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	query := profileOf(t, listing("q", "wolt", "Nestle Classic 100g", "Nestle", 1))

	exact := profileOf(t, listing("a", "glovo", "Nestle Classic 100g", "Nestle", 0))
	similar := profileOf(t, listing("b", "glovo", "Nestle Classic 100g", "Nestea", 0))
	none := profileOf(t, listing("c", "glovo", "Nestle Classic 100g", "Roshen", 0))

	exactScore, _ := scorer.Score(query, exact)
	similarScore, reasons := scorer.Score(query, similar)
	noneScore, _ := scorer.Score(query, none)

	assert.Contains(t, reasons, "brand:similar")
	assert.Equal(t, exactScore-brandExactPoints+brandSimilarPoints, similarScore)
	assert.Greater(t, exactScore, similarScore)
	assert.Greater(t, similarScore, noneScore)
}

func TestScoreWeightTolerance(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	query := profileOf(t, listing("q", "wolt", "Сахар 900г", "", 1))
	near := profileOf(t, listing("a", "glovo", "Сахар 1кг", "", 0))
	far := profileOf(t, listing("b", "glovo", "Сахар 5кг", "", 0))

	nearScore, reasons := scorer.Score(query, near)
	farScore, _ := scorer.Score(query, far)
	assert.Contains(t, reasons, "weight:±100")
	assert.Equal(t, weightNearPoints, nearScore-farScore)
}

func TestJaroWinkler(t *testing.T) {
	s := NewScorer(DefaultConfig())

	tests := []struct {
		a, b string
		want float64
	}{
		{"fanta", "fanta", 1.0},
		{"", "abc", 0.0},
		{"martha", "marhta", 0.961},
		{"barilla", "barbella", 0.908},
		{"danone", "danon", 0.967},
		{"молоко", "малоко", 0.78},
		{"roshen", "rochester", 0.757},
		{"tess", "tetley", 0.689},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.JaroWinkler(tt.a, tt.b), 0.001)
		})
	}
}

// Brands between the fuzzy retrieval floor and the similar-brand tier are
// retrieved as candidates but earn no brand points.
func TestJaroWinklerThresholdBands(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg)

	similar := s.JaroWinkler("barilla", "barbella")
	assert.GreaterOrEqual(t, similar, cfg.BrandSimilarThreshold)

	for _, pair := range [][2]string{{"молоко", "малоко"}, {"roshen", "rochester"}} {
		jw := s.JaroWinkler(pair[0], pair[1])
		assert.GreaterOrEqual(t, jw, cfg.FuzzyBrandThreshold, pair)
		assert.Less(t, jw, cfg.BrandSimilarThreshold, pair)
	}

	assert.Less(t, s.JaroWinkler("tess", "tetley"), cfg.FuzzyBrandThreshold)
}

func TestScoreBrandBetweenBands(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	query := profileOf(t, listing("q", "wolt", "Pasta Spaghetti 500g", "Barilla", 1))
	similar := profileOf(t, listing("a", "glovo", "Pasta Spaghetti 500g", "Barbella", 0))
	fuzzyOnly := profileOf(t, listing("b", "glovo", "Pasta Spaghetti 500g", "Rochester", 0))
	roshen := profileOf(t, listing("c", "wolt", "Pasta Spaghetti 500g", "Roshen", 1))

	_, reasons := scorer.Score(query, similar)
	assert.Contains(t, reasons, "brand:similar")

	_, reasons = scorer.Score(roshen, fuzzyOnly)
	assert.NotContains(t, reasons, "brand:similar")
	assert.NotContains(t, reasons, "brand:exact")
	assert.NotContains(t, reasons, "brand:translit")
}

func TestLevenshteinSimilarity(t *testing.T) {
	s := NewScorer(DefaultConfig())
	assert.Equal(t, 1.0, s.Levenshtein("", ""))
	assert.InDelta(t, 0.8, s.Levenshtein("fanta", "panta"), 0.0001)
	assert.Equal(t, 0.0, s.Levenshtein("abc", "xyz"))
}

func TestTokenIoU(t *testing.T) {
	assert.InDelta(t, 1.0/3, TokenIoU([]string{"a", "b"}, []string{"a", "c"}), 0.0001)
	assert.Equal(t, 1.0, TokenIoU([]string{"a", "b"}, []string{"b", "a", "a"}))
	assert.Equal(t, 0.0, TokenIoU(nil, []string{"a"}))
}
