package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/models"
)

func seed(t *testing.T, s *MemoryStore, id, source string, at time.Time) (*models.Listing, *models.CanonicalProduct) {
	t.Helper()
	l := &models.Listing{
		ID:             id,
		Source:         source,
		Name:           "Milk " + id,
		Price:          decimal.NewFromInt(500),
		SourceNativeID: "n-" + id,
		IngestedAt:     at,
		CanonicalID:    "p-" + id,
		Status:         models.Pending(),
	}
	p := models.NewProductForListing("p-"+id, l)
	require.NoError(t, s.CreateListing(context.Background(), l, p))
	return l, p
}

func TestMemoryStore_CreateAndRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seed(t, s, "b", "wolt", t0.Add(time.Minute))
	seed(t, s, "a", "glovo", t0)

	listings, err := s.ListListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "a", listings[0].ID)

	found, err := s.FindListing(ctx, "wolt", "n-b")
	require.NoError(t, err)
	assert.Equal(t, "b", found.ID)

	_, err = s.FindListing(ctx, "wolt", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	dup := &models.Listing{ID: "c", Source: "wolt", SourceNativeID: "n-b", CanonicalID: "p-c"}
	err = s.CreateListing(ctx, dup, models.NewProductForListing("p-c", dup))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_ReadsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "a", "glovo", time.Now())

	p, err := s.GetProduct(ctx, "p-a")
	require.NoError(t, err)
	p.Members = append(p.Members, "intruder")
	delete(p.Prices, "glovo")

	again, err := s.GetProduct(ctx, "p-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Members)
	assert.Contains(t, again.Prices, "glovo")
}

func TestMemoryStore_ApplyMerge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Now()
	a, pa := seed(t, s, "a", "glovo", t0)
	b, pb := seed(t, s, "b", "wolt", t0.Add(time.Second))

	moved := *b
	moved.CanonicalID = pa.ID
	moved.Status = models.MergedInto(pa.ID)

	target := pa.Clone()
	target.Members = append(target.Members, b.ID)
	target.Prices["wolt"] = b.PriceEntry()

	source := pb.Clone()
	source.Members = nil
	source.Prices = map[string]models.PriceEntry{}
	source.Tombstoned = true
	source.MergedInto = pa.ID

	m := models.MergeMutation{
		Listing:               moved,
		SourceProduct:         source,
		SourceExpectedVersion: 1,
		TargetProduct:         target,
		TargetExpectedVersion: 1,
		Representative:        a,
	}
	require.NoError(t, s.ApplyMerge(ctx, m))
	assert.Equal(t, 2, target.Version)

	gotB, err := s.GetListing(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, models.MergedInto("p-a"), gotB.Status)
	assert.Equal(t, "p-a", gotB.CanonicalID)

	gotA, err := s.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.Matched(), gotA.Status)

	gotSource, err := s.GetProduct(ctx, "p-b")
	require.NoError(t, err)
	assert.True(t, gotSource.Tombstoned)
	assert.Equal(t, "p-a", gotSource.MergedInto)

	// the same mutation replayed is stale on every count
	err = s.ApplyMerge(ctx, m)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryStore_ApplyMergeRejectsStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, pa := seed(t, s, "a", "glovo", time.Now())
	b, _ := seed(t, s, "b", "wolt", time.Now())

	moved := *b
	moved.CanonicalID = pa.ID
	moved.Status = models.MergedInto(pa.ID)

	err := s.ApplyMerge(ctx, models.MergeMutation{
		Listing:               moved,
		TargetProduct:         pa.Clone(),
		TargetExpectedVersion: 7,
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	gotB, err := s.GetListing(ctx, "b")
	require.NoError(t, err)
	assert.True(t, gotB.Status.IsPending())
}

func TestMemoryStore_Decisions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveDecision(ctx, &models.MatchDecision{ID: "1", RunID: "r1"}))
	require.NoError(t, s.SaveDecision(ctx, &models.MatchDecision{ID: "2", RunID: "r2"}))

	r1, err := s.ListDecisions(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, "1", r1[0].ID)

	all, err := s.ListDecisions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
