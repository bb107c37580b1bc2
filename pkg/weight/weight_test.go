package weight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Quantity
		ok       bool
	}{
		{name: "grams cyrillic", input: "Сахар 500г", expected: Quantity{500, Grams}, ok: true},
		{name: "kilograms with comma", input: "Сахар 0,5кг", expected: Quantity{500, Grams}, ok: true},
		{name: "kilograms with dot", input: "Sugar 0.5 kg", expected: Quantity{500, Grams}, ok: true},
		{name: "liters uppercase", input: "Coca-Cola 0.5L", expected: Quantity{500, Milliliters}, ok: true},
		{name: "milliliters cyrillic", input: "Кока-Кола 500мл", expected: Quantity{500, Milliliters}, ok: true},
		{name: "leading multiplier", input: "Juice 2 x 500ml", expected: Quantity{1000, Milliliters}, ok: true},
		{name: "cyrillic multiplier", input: "Вода 6х1,5л", expected: Quantity{9000, Milliliters}, ok: true},
		{name: "trailing multiplier", input: "Пиво 500мл х 4 шт", expected: Quantity{2000, Milliliters}, ok: true},
		{name: "pieces", input: "Яйца С1 10 шт", expected: Quantity{10, Pieces}, ok: true},
		{name: "word litr", input: "Молоко 1 литр", expected: Quantity{1000, Milliliters}, ok: true},
		{name: "gram abbreviation", input: "Сыр 200 гр.", expected: Quantity{200, Grams}, ok: true},
		{name: "unit prefix of a word is ignored", input: "Молоко 3 литрушки", ok: false},
		{name: "no quantity", input: "Хлеб Бородинский", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := Parse(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, q)
			}
		})
	}
}

func TestParseEquivalentForms(t *testing.T) {
	a, ok := Parse("500г")
	require.True(t, ok)
	b, ok := Parse("0.5кг")
	require.True(t, ok)
	assert.True(t, Equal(a, b))
}

func TestForListingPriority(t *testing.T) {
	value := 1.0
	l := &models.Listing{
		Name:          "Молоко 930 мл",
		QuantityValue: &value,
		QuantityUnit:  "л",
		IngestedAt:    time.Now(),
	}

	q, ok := ForListing(l)
	require.True(t, ok)
	assert.Equal(t, Quantity{1000, Milliliters}, q)

	l.QuantityUnit = "упак"
	q, ok = ForListing(l)
	require.True(t, ok)
	assert.Equal(t, Quantity{930, Milliliters}, q, "unknown dedicated unit falls through to the title")

	l.QuantityValue = nil
	l.QuantityText = "0.9 л"
	q, ok = ForListing(l)
	require.True(t, ok)
	assert.Equal(t, Quantity{900, Milliliters}, q)
}

func TestWithin(t *testing.T) {
	g500 := Quantity{500, Grams}
	assert.True(t, Within(g500, Quantity{700, Grams}, 200, 0.3))
	assert.False(t, Within(g500, Quantity{1000, Grams}, 200, 0.3))
	assert.True(t, Within(Quantity{2000, Milliliters}, Quantity{2500, Milliliters}, 200, 0.3))
	assert.True(t, Within(g500, Quantity{500, Milliliters}, 200, 0.3))
	assert.False(t, Within(Quantity{10, Pieces}, Quantity{10, Grams}, 200, 0.3))
	assert.False(t, Within(Quantity{}, g500, 200, 0.3))
}

func TestBuckets(t *testing.T) {
	assert.Equal(t, "m:500", Bucket(Quantity{510, Grams}))
	assert.Equal(t, Bucket(Quantity{500, Grams}), Bucket(Quantity{500, Milliliters}))
	assert.Equal(t, "c:10", Bucket(Quantity{10, Pieces}))

	buckets := BucketsWithin(Quantity{500, Grams}, 200, 0.3)
	assert.Contains(t, buckets, "m:300")
	assert.Contains(t, buckets, "m:700")
	assert.NotContains(t, buckets, "m:750")
	assert.Len(t, buckets, 9)
}

func TestBucketsWithinCoverHeavierCandidates(t *testing.T) {
	tests := []struct {
		query, candidate Quantity
	}{
		{Quantity{1000, Grams}, Quantity{1400, Grams}},
		{Quantity{1000, Grams}, Quantity{700, Grams}},
		{Quantity{2000, Milliliters}, Quantity{2850, Milliliters}},
		{Quantity{100, Grams}, Quantity{300, Grams}},
		{Quantity{4, Pieces}, Quantity{6, Pieces}},
	}
	for _, tt := range tests {
		t.Run(tt.query.String()+"~"+tt.candidate.String(), func(t *testing.T) {
			require.True(t, Within(tt.query, tt.candidate, 200, 0.3))
			assert.Contains(t, BucketsWithin(tt.query, 200, 0.3), Bucket(tt.candidate))
		})
	}
}
