package matching

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/synonyms"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// listing builds a pending listing that owns product "p-<id>". Listings with
// a larger order were ingested later.
func listing(id, source, name, brand string, order int) models.Listing {
	return models.Listing{
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
}

func productsFor(listings []models.Listing) map[string]*models.CanonicalProduct {
	out := make(map[string]*models.CanonicalProduct, len(listings))
	for i := range listings {
		l := &listings[i]
		if p, ok := out[l.CanonicalID]; ok {
			p.Members = append(p.Members, l.ID)
			p.Prices[l.Source] = l.PriceEntry()
			continue
		}
		out[l.CanonicalID] = models.NewProductForListing(l.CanonicalID, l)
	}
	return out
}

func buildIndex(t *testing.T, config Config, listings ...models.Listing) *CandidateIndex {
	t.Helper()
	syn, err := synonyms.Default()
	require.NoError(t, err)
	return BuildIndex(context.Background(), testLogger(), listings, productsFor(listings), syn, config)
}

type stubOracle struct {
	resp     *OracleResponse
	err      error
	calls    int
	requests []OracleRequest
}

func (s *stubOracle) Arbitrate(_ context.Context, req OracleRequest) (*OracleResponse, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	resp := *s.resp
	return &resp, nil
}
