package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/matching"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func sampleRequest() matching.OracleRequest {
	return matching.OracleRequest{
		Query: matching.OracleListing{ID: "q", Source: "wolt", Name: "Fanta Grape 1L", Brand: "Fanta", Quantity: "1000ml"},
		Candidates: []matching.OracleCandidate{
			{OracleListing: matching.OracleListing{ID: "c1", Source: "glovo", Name: "Fanta Orange 1L", Brand: "Fanta", Quantity: "1000ml"}, LocalScore: 80, SourceCount: 1},
		},
	}
}

func chatBody(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(raw)
}

func testClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.Backoff = time.Millisecond
	return NewClient(cfg, testLogger())
}

func TestClient_Arbitrate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(chatBody(`{"matched_id": null, "confidence": 85, "verdict": "no_match", "rationale": "different flavour"}`)))
	}))
	defer server.Close()

	resp, err := testClient(server.URL).Arbitrate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, matching.OracleVerdictNoMatch, resp.Verdict)
	assert.Equal(t, 85, resp.Confidence)
	assert.Empty(t, resp.MatchedID)
	assert.Equal(t, "different flavour", resp.Rationale)

	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "[id: c1] Fanta Orange 1L")
	assert.Contains(t, got.Messages[0].Content, "Fanta Orange is not Fanta Grape")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatBody("```json\n{\"matched_id\": \"c1\", \"confidence\": 72, \"verdict\": \"match\", \"rationale\": \"same\"}\n```")))
	}))
	defer server.Close()

	resp, err := testClient(server.URL).Arbitrate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "c1", resp.MatchedID)
	assert.Equal(t, matching.OracleVerdictMatch, resp.Verdict)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Arbitrate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Arbitrate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "valid match", content: `{"matched_id":"c1","confidence":90,"verdict":"match","rationale":"x"}`},
		{name: "valid no match", content: `{"matched_id":null,"confidence":10,"verdict":"no_match"}`},
		{name: "not json", content: `I think it is c1`, wantErr: true},
		{name: "missing confidence", content: `{"matched_id":"c1","verdict":"match"}`, wantErr: true},
		{name: "confidence too high", content: `{"matched_id":"c1","confidence":101,"verdict":"match"}`, wantErr: true},
		{name: "match without id", content: `{"confidence":90,"verdict":"match"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseVerdict(tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, matching.ErrMalformedOracleResponse)
				return
			}
			assert.NoError(t, err)
		})
	}
}

type countingOracle struct {
	calls atomic.Int32
	err   error
}

func (c *countingOracle) Arbitrate(_ context.Context, _ matching.OracleRequest) (*matching.OracleResponse, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &matching.OracleResponse{Verdict: matching.OracleVerdictNoMatch, Confidence: 70}, nil
}

func TestPaced_EnforcesMinimumDelay(t *testing.T) {
	inner := &countingOracle{}
	paced := NewPaced(inner, 50*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := paced.Arbitrate(context.Background(), sampleRequest())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestPaced_RespectsCancellation(t *testing.T) {
	inner := &countingOracle{}
	paced := NewPaced(inner, time.Hour)
	_, err := paced.Arbitrate(context.Background(), sampleRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = paced.Arbitrate(ctx, sampleRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCached_PebbleCache(t *testing.T) {
	cache, err := OpenPebbleCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	inner := &countingOracle{}
	cached := NewCached(inner, cache, testLogger())

	first, err := cached.Arbitrate(context.Background(), sampleRequest())
	require.NoError(t, err)
	second, err := cached.Arbitrate(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, first, second)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other := sampleRequest()
	other.Query.ID = "q2"
	_, err = cached.Arbitrate(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	cache, err := OpenPebbleCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	inner := &countingOracle{err: errors.New("boom")}
	cached := NewCached(inner, cache, testLogger())

	for i := 0; i < 2; i++ {
		_, err := cached.Arbitrate(context.Background(), sampleRequest())
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
