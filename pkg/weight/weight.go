// Package weight extracts normalized package quantities from free text
package weight

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/scoutalgo/clover/pkg/models"
)

// Unit is a base unit after conversion
type Unit string

const (
	Grams       Unit = "g"
	Milliliters Unit = "ml"
	Pieces      Unit = "pcs"
)

// Quantity is a normalized package size
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Value, 'f', -1, 64) + string(q.Unit)
}

// IsZero reports whether no quantity is known
func (q Quantity) IsZero() bool {
	return q.Value <= 0 || q.Unit == ""
}

type unitSpec struct {
	unit   Unit
	factor float64
}

var units = map[string]unitSpec{
	"g": {Grams, 1}, "г": {Grams, 1}, "гр": {Grams, 1},
	"kg": {Grams, 1000}, "кг": {Grams, 1000},
	"ml": {Milliliters, 1}, "мл": {Milliliters, 1},
	"l": {Milliliters, 1000}, "л": {Milliliters, 1000},
	"литр": {Milliliters, 1000}, "литра": {Milliliters, 1000}, "литров": {Milliliters, 1000},
	"pcs": {Pieces, 1}, "шт": {Pieces, 1},
}

// longest alternatives first; RE2 \b is ASCII-only so the trailing boundary is spelled out
const unitPattern = `(кг|kg|мл|ml|гр|литров|литра|литр|л|l|г|g|шт|pcs)`

var (
	leadingMultiplier  = regexp.MustCompile(`(?i)(\d+)\s*[xх×*]\s*(\d+(?:[.,]\d+)?)\s*` + unitPattern + `(?:[^\p{L}]|$)`)
	trailingMultiplier = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*` + unitPattern + `\s*[xх×*]\s*(\d+)(?:[^\p{L}\d]|$)`)
	plainQuantity      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*` + unitPattern + `(?:[^\p{L}]|$)`)
)

// Parse extracts the first quantity from text, applying a multiplier such as
// "2 x 500ml" or "500мл х 6". Units are converted to g, ml or pcs.
func Parse(text string) (Quantity, bool) {
	if text == "" {
		return Quantity{}, false
	}

	if m := leadingMultiplier.FindStringSubmatch(text); m != nil {
		if q, ok := build(m[2], m[3], m[1]); ok {
			return q, true
		}
	}
	if m := trailingMultiplier.FindStringSubmatch(text); m != nil {
		if q, ok := build(m[1], m[2], m[3]); ok {
			return q, true
		}
	}
	if m := plainQuantity.FindStringSubmatch(text); m != nil {
		return build(m[1], m[2], "")
	}
	return Quantity{}, false
}

func build(number, unit, multiplier string) (Quantity, bool) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", "."), 64)
	if err != nil || value <= 0 {
		return Quantity{}, false
	}
	u, ok := units[strings.ToLower(unit)]
	if !ok {
		return Quantity{}, false
	}
	value *= u.factor
	if multiplier != "" {
		n, err := strconv.Atoi(multiplier)
		if err != nil || n <= 0 {
			return Quantity{}, false
		}
		value *= float64(n)
	}
	// conversions such as 0.3kg produce float noise
	value = math.Round(value*1000) / 1000
	return Quantity{Value: value, Unit: u.unit}, true
}

// Extract tries each candidate text in order and stops at the first success
func Extract(sources ...string) (Quantity, bool) {
	for _, src := range sources {
		if q, ok := Parse(src); ok {
			return q, true
		}
	}
	return Quantity{}, false
}

// ForListing applies the fixed source priority: dedicated value and unit,
// then the raw dedicated quantity text, then the title.
func ForListing(l *models.Listing) (Quantity, bool) {
	var dedicated string
	if l.QuantityValue != nil && *l.QuantityValue > 0 && l.QuantityUnit != "" {
		dedicated = fmt.Sprintf("%s %s", strconv.FormatFloat(*l.QuantityValue, 'f', -1, 64), l.QuantityUnit)
	}
	return Extract(dedicated, l.QuantityText, l.Name)
}

// Comparable reports whether two quantities can be compared. Grams and
// milliliters are treated as interchangeable for liquids; pieces only
// compare with pieces.
func Comparable(a, b Quantity) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	if a.Unit == b.Unit {
		return true
	}
	return a.Unit != Pieces && b.Unit != Pieces
}

// Equal reports an exact match between comparable quantities
func Equal(a, b Quantity) bool {
	return Comparable(a, b) && math.Abs(a.Value-b.Value) < 1e-6
}

// Tolerance is the allowed difference around q: the larger of the absolute
// tolerance and ratio times the value. Piece counts only use the ratio.
func Tolerance(q Quantity, absolute, ratio float64) float64 {
	if q.Unit == Pieces {
		return ratio * q.Value
	}
	return math.Max(absolute, ratio*q.Value)
}

// Within reports whether b lies inside the tolerance window of a
func Within(a, b Quantity, absolute, ratio float64) bool {
	if !Comparable(a, b) {
		return false
	}
	larger := a
	if b.Value > a.Value {
		larger = b
	}
	return math.Abs(a.Value-b.Value) <= Tolerance(larger, absolute, ratio)
}

func class(u Unit) string {
	if u == Pieces {
		return "c"
	}
	return "m"
}

func bucketSize(u Unit) float64 {
	if u == Pieces {
		return 1
	}
	return 50
}

func bucketKey(u Unit, n float64) string {
	return fmt.Sprintf("%s:%d", class(u), int64(n))
}

// Bucket returns the index key of the bucket nearest to q
func Bucket(q Quantity) string {
	size := bucketSize(q.Unit)
	return bucketKey(q.Unit, math.Round(q.Value/size)*size)
}

// BucketsWithin returns the bucket keys covering every quantity that is
// Within q. Within measures against the larger quantity, so the upper bound is
// the largest c with c-q <= max(absolute, ratio*c). A ratio of 1 or more is
// unbounded and falls back to q's own tolerance.
func BucketsWithin(q Quantity, absolute, ratio float64) []string {
	if q.IsZero() {
		return nil
	}
	size := bucketSize(q.Unit)
	tol := Tolerance(q, absolute, ratio)
	upper := q.Value + tol
	if ratio > 0 && ratio < 1 {
		upper = math.Max(q.Value+absolute, q.Value/(1-ratio))
	}
	lo := math.Max(0, math.Round((q.Value-tol)/size)*size)
	hi := math.Round(upper/size) * size
	out := make([]string, 0, int((hi-lo)/size)+1)
	for v := lo; v <= hi; v += size {
		out = append(out, bucketKey(q.Unit, v))
	}
	return out
}
