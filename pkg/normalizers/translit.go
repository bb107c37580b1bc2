package normalizers

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
)

var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	// Ukrainian
	'і': "i", 'ї': "yi", 'є': "ye", 'ґ': "g",
	// Kazakh
	'ә': "a", 'ғ': "gh", 'қ': "q", 'ң': "ng", 'ө': "o", 'ұ': "u", 'ү': "u", 'һ': "h",
}

// latinToCyrillic is ordered longest first so digraphs win over single letters
var latinToCyrillic = []struct {
	latin    string
	cyrillic string
}{
	{"shch", "щ"},
	{"sch", "щ"},
	{"zh", "ж"}, {"kh", "х"}, {"ts", "ц"}, {"ch", "ч"}, {"sh", "ш"},
	{"yu", "ю"}, {"ya", "я"}, {"yo", "ё"}, {"ye", "е"},
	{"ph", "ф"},
	{"a", "а"}, {"b", "б"}, {"c", "к"}, {"d", "д"}, {"e", "е"}, {"f", "ф"},
	{"g", "г"}, {"h", "х"}, {"i", "и"}, {"j", "дж"}, {"k", "к"}, {"l", "л"},
	{"m", "м"}, {"n", "н"}, {"o", "о"}, {"p", "п"}, {"q", "к"}, {"r", "р"},
	{"s", "с"}, {"t", "т"}, {"u", "у"}, {"v", "в"}, {"w", "в"}, {"x", "кс"},
	{"y", "й"}, {"z", "з"},
}

// ToLatin transliterates Cyrillic to Latin. Other non-ASCII letters fall back
// to unidecode. Input is expected to be lowercase.
func ToLatin(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if lat, ok := cyrillicToLatin[unicode.ToLower(r)]; ok {
			b.WriteString(lat)
			continue
		}
		if r <= unicode.MaxASCII || !unicode.IsLetter(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteString(strings.ToLower(unidecode.Unidecode(string(r))))
	}
	return b.String()
}

// ToCyrillic transliterates Latin letters to Cyrillic, longest digraph first.
// Non-Latin characters pass through unchanged.
func ToCyrillic(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); {
		matched := false
		for _, pair := range latinToCyrillic {
			if strings.HasPrefix(s[i:], pair.latin) {
				b.WriteString(pair.cyrillic)
				i += len(pair.latin)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// PhoneticKey reduces text to a Latin sound skeleton so that spellings of the
// same brand in different scripts compare equal, e.g. "coca cola" and
// "кока кола" both become "koka kola".
func PhoneticKey(s string) string {
	latin := ToLatin(Normalize(s))
	latin = strings.NewReplacer("sch", "sh", "tch", "ch", "ck", "k", "ph", "f", "kh", "h", "tz", "ts").Replace(latin)

	in := []rune(latin)
	var b strings.Builder
	b.Grow(len(in))
	var last rune
	emit := func(r rune) {
		if r == last && unicode.IsLetter(r) {
			return
		}
		b.WriteRune(r)
		last = r
	}
	for i, r := range in {
		switch r {
		case 'c':
			var next rune
			if i+1 < len(in) {
				next = in[i+1]
			}
			switch next {
			case 'e', 'i', 'y':
				emit('s')
			case 'h':
				emit('c')
			default:
				emit('k')
			}
		case 'q':
			emit('k')
		case 'w':
			emit('v')
		case 'x':
			emit('k')
			emit('s')
		case 'y', 'j':
			emit('i')
		default:
			emit(r)
		}
	}
	return b.String()
}

var brandSuffixes = []string{" ltd", " llc", " ooo", " ооо", " тоо", " оао", " зао", " gmbh", " corp", " inc", " co"}

// StripBrandSuffix removes a trailing company-form suffix from a normalized brand
func StripBrandSuffix(s string) string {
	for _, suffix := range brandSuffixes {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(s, suffix))
		}
	}
	return s
}

// BrandKey is the normalized, suffix-stripped form used for exact brand equality
func BrandKey(brand string) string {
	return StripBrandSuffix(Normalize(brand))
}

// BrandVariants returns every form of a brand that should compare equal to it:
// the normalized key, its transliterations both ways, and their phonetic keys.
func BrandVariants(brand string) []string {
	key := BrandKey(brand)
	if key == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		v = Normalize(v)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	add(key)
	add(ToLatin(key))
	add(ToCyrillic(key))
	add(PhoneticKey(key))
	return out
}

// SharesVariant reports whether two brands have any variant in common
func SharesVariant(a, b string) bool {
	va := BrandVariants(a)
	if len(va) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(va))
	for _, v := range va {
		set[v] = struct{}{}
	}
	for _, v := range BrandVariants(b) {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
