package catalog

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/scoutalgo/clover/pkg/models"
)

// MemoryStore is an in-process Store with the same semantics as the
// Postgres one. Reads return copies.
type MemoryStore struct {
	mu        sync.RWMutex
	listings  map[string]models.Listing
	products  map[string]*models.CanonicalProduct
	natives   map[string]string
	decisions []models.MatchDecision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]models.Listing),
		products: make(map[string]*models.CanonicalProduct),
		natives:  make(map[string]string),
	}
}

func nativeKey(source, id string) string {
	return source + "\x00" + id
}

func cloneListing(l models.Listing) models.Listing {
	l.CategoryPath = slices.Clone(l.CategoryPath)
	return l
}

func (s *MemoryStore) ListListings(_ context.Context) ([]models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, cloneListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedBefore(&out[j]) })
	return out, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) (map[string]*models.CanonicalProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.CanonicalProduct, len(s.products))
	for id, p := range s.products {
		out[id] = p.Clone()
	}
	return out, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	c := cloneListing(l)
	return &c, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*models.CanonicalProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("canonical product %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) FindListing(_ context.Context, source, sourceNativeID string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.natives[nativeKey(source, sourceNativeID)]
	if !ok {
		return nil, fmt.Errorf("listing %s/%s: %w", source, sourceNativeID, ErrNotFound)
	}
	c := cloneListing(s.listings[id])
	return &c, nil
}

func (s *MemoryStore) CreateListing(_ context.Context, l *models.Listing, p *models.CanonicalProduct) error {
	if l.CanonicalID != p.ID || !p.HasMember(l.ID) {
		return fmt.Errorf("listing %s must be the member of product %s", l.ID, p.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nativeKey(l.Source, l.SourceNativeID)
	if _, ok := s.natives[key]; ok {
		return fmt.Errorf("listing %s/%s: %w", l.Source, l.SourceNativeID, ErrDuplicate)
	}
	if _, ok := s.listings[l.ID]; ok {
		return fmt.Errorf("listing %s: %w", l.ID, ErrDuplicate)
	}
	if _, ok := s.products[p.ID]; ok {
		return fmt.Errorf("canonical product %s: %w", p.ID, ErrDuplicate)
	}

	s.listings[l.ID] = cloneListing(*l)
	s.natives[key] = l.ID
	s.products[p.ID] = p.Clone()
	return nil
}

// ApplyMerge validates every precondition before touching any state, so a
// rejected mutation leaves the store unchanged.
func (s *MemoryStore) ApplyMerge(_ context.Context, m models.MergeMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.listings[m.Listing.ID]
	if !ok {
		return fmt.Errorf("listing %s: %w", m.Listing.ID, ErrNotFound)
	}
	if !current.Status.CanAdvanceTo(m.Listing.Status) {
		return fmt.Errorf("listing %s is %s: %w", current.ID, current.Status, ErrVersionConflict)
	}
	if err := m.Listing.Status.Validate(); err != nil {
		return err
	}
	if err := s.checkVersion(m.TargetProduct, m.TargetExpectedVersion); err != nil {
		return err
	}
	if m.SourceProduct != nil {
		if err := s.checkVersion(m.SourceProduct, m.SourceExpectedVersion); err != nil {
			return err
		}
	}
	if m.Representative != nil {
		if _, ok := s.listings[m.Representative.ID]; !ok {
			return fmt.Errorf("listing %s: %w", m.Representative.ID, ErrNotFound)
		}
	}

	current.CanonicalID = m.Listing.CanonicalID
	current.Status = m.Listing.Status
	s.listings[current.ID] = current

	s.commitProduct(m.TargetProduct, m.TargetExpectedVersion)
	if m.SourceProduct != nil {
		s.commitProduct(m.SourceProduct, m.SourceExpectedVersion)
	}

	if m.Representative != nil {
		rep := s.listings[m.Representative.ID]
		if rep.Status.CanAdvanceTo(models.Matched()) {
			rep.Status = models.Matched()
			s.listings[rep.ID] = rep
		}
	}
	return nil
}

func (s *MemoryStore) checkVersion(p *models.CanonicalProduct, expected int) error {
	stored, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("canonical product %s: %w", p.ID, ErrNotFound)
	}
	if stored.Version != expected {
		return fmt.Errorf("canonical product %s at version %d, expected %d: %w", p.ID, stored.Version, expected, ErrVersionConflict)
	}
	return nil
}

func (s *MemoryStore) commitProduct(p *models.CanonicalProduct, expected int) {
	c := p.Clone()
	c.Version = expected + 1
	p.Version = c.Version
	s.products[c.ID] = c
}

func (s *MemoryStore) SaveDecision(_ context.Context, d *models.MatchDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = append(s.decisions, *d)
	return nil
}

func (s *MemoryStore) ListDecisions(_ context.Context, runID string) ([]models.MatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MatchDecision, 0, len(s.decisions))
	for _, d := range s.decisions {
		if runID == "" || d.RunID == runID {
			out = append(out, d)
		}
	}
	return out, nil
}
