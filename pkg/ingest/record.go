package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one raw source record as decoded from JSON
type Record map[string]any

// lookup resolves a dotted path such as "rawData.name"
func (r Record) lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the first non-empty value among paths, stringified
func (r Record) String(paths ...string) string {
	for _, p := range paths {
		v, ok := r.lookup(p)
		if !ok {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool, map[string]any, []any:
			continue
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Decimal returns the first positive amount among paths. Comma decimal
// separators are accepted.
func (r Record) Decimal(paths ...string) (decimal.Decimal, bool) {
	for _, p := range paths {
		s := strings.ReplaceAll(r.String(p), ",", ".")
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil || !d.IsPositive() {
			continue
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// Float returns the first positive number among paths
func (r Record) Float(paths ...string) (float64, bool) {
	d, ok := r.Decimal(paths...)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// Bool returns the value at path, or def when it is absent or not a boolean
func (r Record) Bool(path string, def bool) bool {
	v, ok := r.lookup(path)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Strings returns every non-empty value among paths, in order
func (r Record) Strings(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if s := r.String(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
