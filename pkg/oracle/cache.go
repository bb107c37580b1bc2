package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Gobusters/ectologger"
	"github.com/cockroachdb/pebble"

	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/metrics"
)

const cacheKeyPrefix = "oracle/v1/"

// Cache stores oracle verdicts by request key
type Cache interface {
	Get(key string) (*matching.OracleResponse, bool, error)
	Set(key string, resp *matching.OracleResponse) error
}

// Cached answers repeated requests from a cache. Only successful responses
// are stored; errors always reach the caller.
type Cached struct {
	inner  matching.Oracle
	cache  Cache
	logger ectologger.Logger
}

// NewCached wraps an oracle with a verdict cache
func NewCached(inner matching.Oracle, cache Cache, logger ectologger.Logger) *Cached {
	return &Cached{inner: inner, cache: cache, logger: logger}
}

// RequestKey is the SHA-256 of the request's JSON encoding
func RequestKey(req matching.OracleRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Arbitrate serves cached verdicts and records fresh ones
func (c *Cached) Arbitrate(ctx context.Context, req matching.OracleRequest) (*matching.OracleResponse, error) {
	key, err := RequestKey(req)
	if err != nil {
		return c.inner.Arbitrate(ctx, req)
	}

	if resp, ok, err := c.cache.Get(key); err != nil {
		metrics.OracleCacheTotal.WithLabelValues("error").Inc()
		c.logger.WithContext(ctx).WithError(err).Warn("Oracle cache read failed")
	} else if ok {
		metrics.OracleCacheTotal.WithLabelValues("hit").Inc()
		c.logger.WithContext(ctx).WithField("query_id", req.Query.ID).Debug("Oracle cache hit")
		return resp, nil
	}

	metrics.OracleCacheTotal.WithLabelValues("miss").Inc()

	resp, err := c.inner.Arbitrate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(key, resp); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Oracle cache write failed")
	}
	return resp, nil
}

// PebbleCache persists verdicts in a local Pebble store across runs
type PebbleCache struct {
	db *pebble.DB
}

// OpenPebbleCache opens (or creates) the cache at dir
func OpenPebbleCache(dir string) (*PebbleCache, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleCache{db: db}, nil
}

// Close closes the underlying store
func (p *PebbleCache) Close() error {
	return p.db.Close()
}

func (p *PebbleCache) Get(key string) (*matching.OracleResponse, bool, error) {
	v, closer, err := p.db.Get([]byte(cacheKeyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var resp matching.OracleResponse
	if err := json.Unmarshal(v, &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (p *PebbleCache) Set(key string, resp *matching.OracleResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return p.db.Set([]byte(cacheKeyPrefix+key), raw, pebble.Sync)
}

// Len counts cached verdicts
func (p *PebbleCache) Len() (int, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(cacheKeyPrefix),
		UpperBound: []byte("oracle/v10"),
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	return n, it.Error()
}
