// Package synonyms resolves product words into equivalence groups
package synonyms

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scoutalgo/clover/pkg/normalizers"
)

// GroupID names a synonym group, e.g. "dish_soap"
type GroupID string

// maxPhraseWords bounds the n-grams looked up in a name
const maxPhraseWords = 3

var ErrDuplicateWord = errors.New("word belongs to more than one synonym group")

//go:embed groups.yaml
var defaultTable []byte

type tableFile struct {
	Groups map[string][]string `yaml:"groups"`
}

// Resolver maps words and short phrases to their group. It is read-only
// after construction and safe for concurrent use.
type Resolver struct {
	byWord map[string]GroupID
	groups []GroupID
}

// New builds a resolver from a group table. Entries are normalized; a word
// listed under two groups is rejected.
func New(groups map[string][]string) (*Resolver, error) {
	r := &Resolver{byWord: make(map[string]GroupID)}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := GroupID(name)
		r.groups = append(r.groups, id)
		for _, word := range groups[name] {
			key := normalizers.Normalize(word)
			if key == "" {
				continue
			}
			if len(strings.Fields(key)) > maxPhraseWords {
				return nil, fmt.Errorf("synonym %q in group %s is longer than %d words", word, name, maxPhraseWords)
			}
			if existing, ok := r.byWord[key]; ok && existing != id {
				return nil, fmt.Errorf("%w: %q in %s and %s", ErrDuplicateWord, key, existing, id)
			}
			r.byWord[key] = id
		}
	}
	return r, nil
}

// Parse builds a resolver from a YAML document with a top-level "groups" map
func Parse(data []byte) (*Resolver, error) {
	var table tableFile
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse synonym table: %w", err)
	}
	if len(table.Groups) == 0 {
		return nil, errors.New("synonym table has no groups")
	}
	return New(table.Groups)
}

// Default returns the resolver built from the embedded table
func Default() (*Resolver, error) {
	return Parse(defaultTable)
}

// Load reads a table from path, or returns the default table when path is empty
func Load(path string) (*Resolver, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonym table %s: %w", path, err)
	}
	return Parse(data)
}

// Groups lists every group id, sorted
func (r *Resolver) Groups() []GroupID {
	return r.groups
}

// GroupOf returns the group of a single word or phrase
func (r *Resolver) GroupOf(word string) (GroupID, bool) {
	id, ok := r.byWord[normalizers.Normalize(word)]
	return id, ok
}

// GroupsOf returns the distinct groups referenced by a product name, checking
// every word and every phrase of up to three words.
func (r *Resolver) GroupsOf(name string) []GroupID {
	tokens := normalizers.Tokens(name)
	seen := make(map[GroupID]struct{})
	var out []GroupID
	for i := range tokens {
		for n := 1; n <= maxPhraseWords && i+n <= len(tokens); n++ {
			id, ok := r.byWord[strings.Join(tokens[i:i+n], " ")]
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// SharedGroups counts the groups two names have in common
func (r *Resolver) SharedGroups(a, b string) int {
	return Intersect(r.GroupsOf(a), r.GroupsOf(b))
}

// Intersect counts common ids between two precomputed group lists
func Intersect(a, b []GroupID) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[GroupID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	count := 0
	for _, id := range b {
		if _, ok := set[id]; ok {
			count++
			delete(set, id)
		}
	}
	return count
}
