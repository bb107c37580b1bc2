package merging

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	merged     []models.MergeResult
	tombstoned []string
}

func (n *recordingNotifier) EmitListingMerged(_ context.Context, _ *models.Listing, r models.MergeResult, _ int) error {
	n.merged = append(n.merged, r)
	return nil
}

func (n *recordingNotifier) EmitProductTombstoned(_ context.Context, p *models.CanonicalProduct) error {
	n.tombstoned = append(n.tombstoned, p.ID)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func addListing(t *testing.T, s *catalog.MemoryStore, id, source string, price int64, at time.Time) {
	t.Helper()
	l := &models.Listing{
		ID:             id,
		Source:         source,
		Name:           "Кефир " + id,
		Price:          decimal.NewFromInt(price),
		SourceNativeID: "n-" + id,
		IngestedAt:     at,
		CanonicalID:    "p-" + id,
		Status:         models.Pending(),
	}
	require.NoError(t, s.CreateListing(context.Background(), l, models.NewProductForListing("p-"+id, l)))
}

func setup(t *testing.T) (*catalog.MemoryStore, *Coordinator, *recordingNotifier) {
	t.Helper()
	s := catalog.NewMemoryStore()
	n := &recordingNotifier{}
	return s, NewCoordinator(s, testLogger(), n), n
}

func TestMerge_MovesListingAndTombstonesSource(t *testing.T) {
	s, c, n := setup(t)
	ctx := context.Background()
	addListing(t, s, "a", "glovo", 500, t0)
	addListing(t, s, "b", "wolt", 520, t0.Add(time.Minute))

	res, err := c.Merge(ctx, "b", "p-a", WithRepresentative("a"))
	require.NoError(t, err)
	assert.Equal(t, models.MergeStatusMerged, res.Status)
	assert.Equal(t, "p-b", res.SourceProductID)
	assert.True(t, res.SourceTombstoned)
	assert.False(t, res.PriceReplaced)

	b, err := s.GetListing(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, models.MergedInto("p-a"), b.Status)
	assert.Equal(t, "p-a", b.CanonicalID)

	a, err := s.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.Matched(), a.Status)

	target, err := s.GetProduct(ctx, "p-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, target.Members)
	assert.Equal(t, []string{"glovo", "wolt"}, target.Sources())
	assert.Equal(t, 2, target.Version)

	source, err := s.GetProduct(ctx, "p-b")
	require.NoError(t, err)
	assert.True(t, source.Tombstoned)
	assert.Equal(t, "p-a", source.MergedInto)
	assert.Empty(t, source.Members)
	assert.Empty(t, source.Prices)

	require.Len(t, n.merged, 1)
	assert.Equal(t, []string{"p-b"}, n.tombstoned)
}

func TestMerge_NoOpOutcomes(t *testing.T) {
	s, c, n := setup(t)
	ctx := context.Background()
	addListing(t, s, "a", "glovo", 500, t0)
	addListing(t, s, "b", "wolt", 520, t0)
	addListing(t, s, "c", "arbuz", 510, t0)

	res, err := c.Merge(ctx, "b", "p-missing")
	require.NoError(t, err)
	assert.Equal(t, models.MergeStatusNotFound, res.Status)

	res, err = c.Merge(ctx, "b", "p-b")
	require.NoError(t, err)
	assert.Equal(t, models.MergeStatusSelfTarget, res.Status)

	_, err = c.Merge(ctx, "b", "p-a")
	require.NoError(t, err)

	res, err = c.Merge(ctx, "b", "p-c")
	require.NoError(t, err)
	assert.Equal(t, models.MergeStatusAlreadyMerged, res.Status)

	// a merged listing is never re-absorbed
	b, err := s.GetListing(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "p-a", b.CanonicalID)
	assert.Len(t, n.merged, 1)
}

func TestMerge_FollowsTombstoneChain(t *testing.T) {
	s, c, _ := setup(t)
	ctx := context.Background()
	addListing(t, s, "a", "glovo", 500, t0)
	addListing(t, s, "b", "wolt", 520, t0)
	addListing(t, s, "c", "arbuz", 510, t0)

	_, err := c.Merge(ctx, "b", "p-a")
	require.NoError(t, err)

	// p-b is tombstoned into p-a
	res, err := c.Merge(ctx, "c", "p-b")
	require.NoError(t, err)
	assert.Equal(t, models.MergeStatusMerged, res.Status)
	assert.Equal(t, "p-a", res.TargetID)

	cl, err := s.GetListing(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "p-a", cl.CanonicalID)
}

func TestMerge_OverwriteByRecency(t *testing.T) {
	tests := []struct {
		name          string
		incomingAt    time.Time
		wantReplaced  bool
		wantActiveID  string
		wantDisplaced string
	}{
		{name: "newer replaces", incomingAt: t0.Add(time.Hour), wantReplaced: true, wantActiveID: "b", wantDisplaced: "a"},
		{name: "same time replaces", incomingAt: t0, wantReplaced: true, wantActiveID: "b", wantDisplaced: "a"},
		{name: "older is ignored", incomingAt: t0.Add(-time.Hour), wantReplaced: false, wantActiveID: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c, _ := setup(t)
			ctx := context.Background()
			addListing(t, s, "a", "glovo", 500, t0)
			addListing(t, s, "b", "glovo", 450, tt.incomingAt)

			res, err := c.Merge(ctx, "b", "p-a")
			require.NoError(t, err)
			assert.Equal(t, tt.wantReplaced, res.PriceReplaced)
			assert.Equal(t, tt.wantDisplaced, res.DisplacedListing)

			target, err := s.GetProduct(ctx, "p-a")
			require.NoError(t, err)
			require.Len(t, target.Prices, 1)
			assert.Equal(t, tt.wantActiveID, target.Prices["glovo"].ListingID)
			assert.ElementsMatch(t, []string{"a", "b"}, target.Members)
		})
	}
}

func TestRelease_HandsPriceToSameSourceMember(t *testing.T) {
	m := NewFieldMerger()
	x := &models.Listing{ID: "x", Source: "glovo", Price: decimal.NewFromInt(10), IngestedAt: t0.Add(time.Hour)}
	y := &models.Listing{ID: "y", Source: "glovo", Price: decimal.NewFromInt(12), IngestedAt: t0}
	p := &models.CanonicalProduct{
		ID:      "p",
		Members: []string{"x", "y"},
		Prices:  map[string]models.PriceEntry{"glovo": x.PriceEntry()},
	}

	m.Release(p, x, []*models.Listing{x, y}, "q")
	assert.Equal(t, []string{"y"}, p.Members)
	assert.Equal(t, "y", p.Prices["glovo"].ListingID)
	assert.False(t, p.Tombstoned)

	m.Release(p, y, []*models.Listing{y}, "q")
	assert.True(t, p.Tombstoned)
	assert.Equal(t, "q", p.MergedInto)
	assert.Empty(t, p.Prices)
}
