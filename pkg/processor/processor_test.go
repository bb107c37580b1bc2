package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/merging"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/review"
	"github.com/scoutalgo/clover/pkg/synonyms"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func seed(t *testing.T, store *catalog.MemoryStore, id, source, name, brand string, order int) {
	t.Helper()
	l := &models.Listing{
		ID:             id,
		Source:         source,
		Name:           name,
		Brand:          brand,
		Price:          decimal.NewFromInt(500),
		SourceNativeID: "native-" + id,
		Available:      true,
		IngestedAt:     baseTime.Add(time.Duration(order) * time.Minute),
		CanonicalID:    "p-" + id,
		Status:         models.Pending(),
	}
	require.NoError(t, store.CreateListing(context.Background(), l, models.NewProductForListing(l.CanonicalID, l)))
}

func newProcessor(t *testing.T, store catalog.Store, guard Guard, config matching.Config, opts ...Option) *MatchProcessor {
	t.Helper()
	syn, err := synonyms.Default()
	require.NoError(t, err)
	opts = append([]Option{WithSynonyms(syn)}, opts...)
	coordinator := merging.NewCoordinator(store, testLogger(), nil)
	return NewMatchProcessor(testLogger(), store, coordinator, guard, Config{Matching: config}, opts...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	decisions []*models.MatchDecision
}

func (r *recordingNotifier) EmitMatchDecided(_ context.Context, d *models.MatchDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return nil
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, GuardName)
	require.NoError(t, err)

	_, err = g.Acquire(ctx, GuardName)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	other, err := g.Acquire(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := g.Acquire(ctx, GuardName)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMatchProcessor_Run(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store, "a", "glovo", "Coca-Cola 0.5L", "Coca-Cola", 0)
	seed(t, store, "b", "wolt", "Кока-Кола 500мл", "Кока-Кола", 1)

	notifier := &recordingNotifier{}
	var observed []models.Progress
	p := newProcessor(t, store, NewLocalGuard(), matching.DefaultConfig(), WithDecisionNotifier(notifier))

	report, err := p.Run(context.Background(), RunOptions{
		RunID:    "run-1",
		Observer: func(pr models.Progress) { observed = append(observed, pr) },
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Equal(t, 1, report.NoMatch)
	assert.Equal(t, 1, report.Merged)
	assert.Zero(t, report.Errors)
	assert.False(t, report.Interrupted)

	ctx := context.Background()
	b, err := store.GetListing(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "p-a", b.CanonicalID)
	assert.True(t, b.Status.IsMerged())

	source, err := store.GetProduct(ctx, "p-b")
	require.NoError(t, err)
	assert.Equal(t, "p-a", source.MergedInto)

	decisions, err := store.ListDecisions(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
	assert.Len(t, notifier.decisions, 2)

	require.NotEmpty(t, observed)
	last := observed[len(observed)-1]
	assert.False(t, last.Running)
	assert.Equal(t, int64(2), last.Processed)
	assert.Equal(t, int64(1), last.Matched)

	got, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, report, got)
	_, running := p.Current()
	assert.False(t, running)
}

func TestMatchProcessor_SkipsClaimedListings(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store, "a", "glovo", "Coca-Cola 0.5L", "Coca-Cola", 0)
	seed(t, store, "b", "wolt", "Coca-Cola 0.5L", "Coca-Cola", 1)

	config := matching.DefaultConfig()
	config.EnforceMergeDirection = false
	p := newProcessor(t, store, NewLocalGuard(), config)

	report, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Merged)
}

func TestMatchProcessor_DryRun(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store, "a", "glovo", "Coca-Cola 0.5L", "Coca-Cola", 0)
	seed(t, store, "b", "wolt", "Coca-Cola 0.5L", "Coca-Cola", 1)

	p := newProcessor(t, store, NewLocalGuard(), matching.DefaultConfig())
	report, err := p.Run(context.Background(), RunOptions{RunID: "dry", DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Zero(t, report.Merged)

	b, err := store.GetListing(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, b.Status.IsPending())
	assert.Equal(t, "p-b", b.CanonicalID)

	decisions, err := store.ListDecisions(context.Background(), "dry")
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
}

func TestMatchProcessor_Interrupted(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store, "a", "glovo", "Sprite 1L", "Sprite", 0)
	seed(t, store, "b", "wolt", "Fanta 1L", "Fanta", 1)
	seed(t, store, "c", "arbuz", "Pepsi 1L", "Pepsi", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newProcessor(t, store, NewLocalGuard(), matching.DefaultConfig())
	report, err := p.Run(ctx, RunOptions{
		RunID:    "r",
		Observer: func(models.Progress) { cancel() },
	})
	require.NoError(t, err)

	assert.True(t, report.Interrupted)
	assert.Equal(t, 1, report.Processed)

	decisions, err := store.ListDecisions(context.Background(), "r")
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestMatchProcessor_QuerySourcesAndLimit(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store, "a", "glovo", "Sprite 1L", "Sprite", 0)
	seed(t, store, "b", "wolt", "Fanta 1L", "Fanta", 1)
	seed(t, store, "c", "wolt", "Pepsi 1L", "Pepsi", 2)

	p := newProcessor(t, store, NewLocalGuard(), matching.DefaultConfig())
	report, err := p.Run(context.Background(), RunOptions{QuerySources: []string{"wolt"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Processed)
}

func TestMatchProcessor_StartChecks(t *testing.T) {
	store := catalog.NewMemoryStore()

	t.Run("oracle required", func(t *testing.T) {
		p := NewMatchProcessor(testLogger(), store, merging.NewCoordinator(store, testLogger(), nil), NewLocalGuard(),
			Config{Matching: matching.DefaultConfig(), OracleRequired: true})
		_, err := p.Run(context.Background(), RunOptions{})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("invalid thresholds", func(t *testing.T) {
		config := matching.DefaultConfig()
		config.AutoAcceptThreshold = 10
		p := NewMatchProcessor(testLogger(), store, merging.NewCoordinator(store, testLogger(), nil), NewLocalGuard(),
			Config{Matching: config})
		_, err := p.Run(context.Background(), RunOptions{})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("guard held", func(t *testing.T) {
		guard := NewLocalGuard()
		release, err := guard.Acquire(context.Background(), GuardName)
		require.NoError(t, err)
		defer release(context.Background())

		p := newProcessor(t, store, guard, matching.DefaultConfig())
		_, err = p.Run(context.Background(), RunOptions{})
		assert.ErrorIs(t, err, ErrJobAlreadyRunning)
	})
}

func TestSelectQueries(t *testing.T) {
	listings := []models.Listing{
		{ID: "old", Source: "glovo", CanonicalID: "p1", IngestedAt: baseTime, Status: models.Pending()},
		{ID: "new", Source: "wolt", CanonicalID: "p2", IngestedAt: baseTime.Add(time.Hour), Status: models.Pending()},
		{ID: "gone", Source: "wolt", CanonicalID: "p2", IngestedAt: baseTime, Status: models.MergedInto("p2")},
	}
	products := map[string]*models.CanonicalProduct{
		"p1": {ID: "p1", Prices: map[string]models.PriceEntry{"glovo": {}}},
		"p2": {ID: "p2", Prices: map[string]models.PriceEntry{"wolt": {}, "arbuz": {}}},
	}

	got := SelectQueries(listings, products, nil, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)

	got = SelectQueries(listings, products, []string{"glovo"}, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
}

func TestReviewProcessor_Run(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store, "a", "glovo", "Coca-Cola 0.5L", "Coca-Cola", 0)
	seed(t, store, "b", "wolt", "Coca-Cola 0.5L", "Coca-Cola", 1)

	guard := NewLocalGuard()
	_, err := newProcessor(t, store, guard, matching.DefaultConfig()).Run(context.Background(), RunOptions{RunID: "r1"})
	require.NoError(t, err)

	rp := NewReviewProcessor(testLogger(), review.NewService(store, testLogger(), review.DefaultConfig()), guard)
	report, err := rp.Run(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Correct)
}
