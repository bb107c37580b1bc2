package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "punctuation and spacing", input: " Coca-Cola  0.5L ", expected: "coca cola 0.5l"},
		{name: "decimal comma kept as dot", input: "Молоко 3,2%", expected: "молоко 3.2"},
		{name: "yo folds to ye", input: "Ёжик", expected: "ежик"},
		{name: "short i survives", input: "Чай Майский", expected: "чай майский"},
		{name: "accents stripped", input: "Nestlé Crème", expected: "nestle creme"},
		{name: "dot between words becomes space", input: "Coca.Cola", expected: "coca cola"},
		{name: "empty", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{" Coca-Cola  0.5L ", "Кока-Кола 500мл", "Nestlé 1,5 кг", "a.b,c 1.2.3", "Чай «Майский» №1"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
	assert.Equal(t, Normalize(" Coca-Cola  0.5L "), Normalize("coca-cola 0.5l"))
}

func TestNormalizeStrict(t *testing.T) {
	_, err := NormalizeStrict(" -- ")
	require.ErrorIs(t, err, ErrEmptyText)

	n, err := NormalizeStrict("Fanta")
	require.NoError(t, err)
	assert.Equal(t, "fanta", n)
}

func TestSignificantTokens(t *testing.T) {
	assert.Equal(t, []string{"fanta", "orange"}, SignificantTokens("Fanta Orange 1L"))
	assert.Equal(t, []string{"молоко", "простоквашино"}, SignificantTokens("Молоко Простоквашино 2.5% 930 мл"))
	assert.Empty(t, SignificantTokens("1 кг"))
}

func TestTransliteration(t *testing.T) {
	assert.Equal(t, "koka kola", ToLatin("кока кола"))
	assert.Equal(t, "shchi", ToLatin("щи"))
	assert.Equal(t, "кока кола", ToCyrillic("coca cola"))
	assert.Equal(t, "шоколад", ToCyrillic("shokolad"))
	assert.Equal(t, "qazaq", ToLatin("қазақ"))
}

func TestPhoneticKey(t *testing.T) {
	assert.Equal(t, "koka kola", PhoneticKey("Coca-Cola"))
	assert.Equal(t, PhoneticKey("Coca-Cola"), PhoneticKey("Кока-Кола"))
	assert.Equal(t, PhoneticKey("Nescafe"), PhoneticKey("Нескафе"))
	assert.Equal(t, PhoneticKey("Activia"), PhoneticKey("Активиа"))
	assert.NotEqual(t, PhoneticKey("Fanta"), PhoneticKey("Sprite"))
}

func TestBrandVariants(t *testing.T) {
	t.Run("suffix stripped", func(t *testing.T) {
		assert.Equal(t, "coca cola", BrandKey("Coca-Cola LLC"))
		assert.Equal(t, "rahat", BrandKey("Rahat ТОО"))
	})

	t.Run("cross script", func(t *testing.T) {
		assert.True(t, SharesVariant("Coca-Cola", "Кока-Кола"))
		assert.True(t, SharesVariant("Pepsi", "Пепси"))
		assert.False(t, SharesVariant("Pepsi", "Fanta"))
	})

	t.Run("empty brand has no variants", func(t *testing.T) {
		assert.Nil(t, BrandVariants(" "))
		assert.False(t, SharesVariant("", ""))
	})
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("ntext")
	require.True(t, ok)
	assert.Equal(t, "coca cola", fn("Coca-Cola"))
	assert.Equal(t, "koka kola", ApplyChain("Кока-Кола", "ntext", "latin"))
	assert.Equal(t, "value", Apply("value", "unknown"))
}
