package oracle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/scoutalgo/clover/pkg/matching"
)

// Paced enforces a minimum delay between consecutive oracle calls. The
// limiter is shared by all callers, so concurrent workers are paced too.
type Paced struct {
	inner   matching.Oracle
	limiter *rate.Limiter
}

// NewPaced wraps an oracle with a fixed minimum delay between calls. A
// non-positive delay disables pacing.
func NewPaced(inner matching.Oracle, delay time.Duration) *Paced {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Paced{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Arbitrate waits for the pacing slot, then delegates
func (p *Paced) Arbitrate(ctx context.Context, req matching.OracleRequest) (*matching.OracleResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return p.inner.Arbitrate(ctx, req)
}
