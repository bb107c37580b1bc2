// Package normalizers provides text normalization for product matching
package normalizers

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when a value normalizes to nothing
var ErrEmptyText = errors.New("text normalizes to empty string")

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("digits_only", DigitsOnly)
	Register("ntext", Normalize)
	Register("nbrand", BrandKey)
	Register("latin", ToLatin)
	Register("cyrillic", ToCyrillic)
	Register("phonetic", PhoneticKey)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// combining breve is kept so that й survives decomposition
const combiningBreve = '\u0306'

func strippableMark(r rune) bool {
	return unicode.Is(unicode.Mn, r) && r != combiningBreve
}

// Normalize lowercases, strips accents (ё folds to е), replaces punctuation
// with spaces and collapses whitespace. A '.' or ',' between two digits is
// kept as '.' so decimal quantities survive. The result is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// transform chains are stateful, build one per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(strippableMark)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	rs := []rune(folded)
	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.Is(unicode.Mn, r):
			// orphan mark that could not recompose
		case (r == '.' || r == ',') && !pendingSpace && i > 0 && i+1 < len(rs) &&
			unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]):
			b.WriteByte('.')
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// NormalizeStrict is Normalize that reports an empty result as an error
func NormalizeStrict(s string) (string, error) {
	n := Normalize(s)
	if n == "" {
		return "", ErrEmptyText
	}
	return n, nil
}

// Tokens splits a normalized string into words
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// IsQuantityToken reports whether a token starts with a digit, e.g. "500г" or "0.5"
func IsQuantityToken(tok string) bool {
	r, _ := utf8.DecodeRuneInString(tok)
	return tok != "" && unicode.IsDigit(r)
}

// SignificantTokens returns distinct tokens longer than two runes that are not quantities
func SignificantTokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokens(s) {
		if len([]rune(tok)) <= 2 || IsQuantityToken(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// TitleKeys returns the distinct phonetic keys of the significant tokens,
// which makes token overlap insensitive to script.
func TitleKeys(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range SignificantTokens(s) {
		key := PhoneticKey(tok)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
