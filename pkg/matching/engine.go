// Package matching implements candidate retrieval, scoring and match decisions
package matching

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

// Engine finds, scores and decides candidates for query listings against a
// fixed CandidateIndex. The oracle is optional.
type Engine struct {
	logger ectologger.Logger
	index  *CandidateIndex
	scorer *Scorer
	oracle Oracle
	config Config

	oracleCalls  atomic.Int64
	oracleErrors atomic.Int64
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, index *CandidateIndex, oracle Oracle, config Config) *Engine {
	return &Engine{
		logger: logger,
		index:  index,
		scorer: NewScorer(config),
		oracle: oracle,
		config: config,
	}
}

// OracleCalls returns how many times the oracle was consulted
func (e *Engine) OracleCalls() int64 {
	return e.oracleCalls.Load()
}

// OracleErrors returns how many oracle calls failed
func (e *Engine) OracleErrors() int64 {
	return e.oracleErrors.Load()
}

// Index exposes the engine's candidate index
func (e *Engine) Index() *CandidateIndex {
	return e.index
}

func (e *Engine) queryProfile(l *models.Listing) (*Profile, error) {
	if p, ok := e.index.Profile(l.ID); ok {
		return p, nil
	}
	return NewProfile(l, e.index.synonyms, 1)
}

// FindCandidates retrieves and scores candidates for a listing. Candidates
// below the floor are dropped; each canonical product keeps its best listing.
// Results are ranked by score, then source richness, then id.
func (e *Engine) FindCandidates(ctx context.Context, l *models.Listing) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.FindCandidates")
	defer span.End()

	query, err := e.queryProfile(l)
	if err != nil {
		return nil, err
	}

	found := e.index.Retrieve(query, e.scorer)

	best := make(map[string]models.MatchCandidate)
	for pos, strategies := range found {
		p := e.index.profiles[pos]
		score, reasons := e.scorer.Score(query, p)
		if score < e.config.MinCandidateFloor {
			continue
		}
		c := models.MatchCandidate{
			QueryListingID: l.ID,
			Listing:        p.Listing,
			CanonicalID:    p.CanonicalID,
			Score:          score,
			Reasons:        reasons,
			SourceCount:    p.SourceCount,
			Strategies:     strategies,
		}
		if existing, ok := best[p.CanonicalID]; ok && !betterRepresentative(c, existing) {
			continue
		}
		best[p.CanonicalID] = c
	}

	candidates := make([]models.MatchCandidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	sortCandidates(candidates)
	if len(candidates) > e.config.MaxCandidates {
		candidates = candidates[:e.config.MaxCandidates]
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": l.ID,
		"retrieved":  len(found),
		"candidates": len(candidates),
	}).Debug("Found candidates")

	return candidates, nil
}

func betterRepresentative(c, existing models.MatchCandidate) bool {
	if c.Score != existing.Score {
		return c.Score > existing.Score
	}
	return c.Listing.IngestedBefore(existing.Listing)
}

func sortCandidates(candidates []models.MatchCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SourceCount != b.SourceCount {
			return a.SourceCount > b.SourceCount
		}
		return a.CanonicalID < b.CanonicalID
	})
}

// Decide turns ranked candidates into a decision. Oracle failures become a
// no_match decision; only context cancellation is returned as an error.
func (e *Engine) Decide(ctx context.Context, l *models.Listing, candidates []models.MatchCandidate) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Decide")
	defer span.End()

	decision := &models.MatchDecision{
		ID:             uuid.New().String(),
		ListingID:      l.ID,
		CandidateCount: len(candidates),
		DecidedAt:      time.Now().UTC(),
	}

	if len(candidates) == 0 {
		decision.Verdict = models.VerdictNoMatch
		decision.Reason = models.ReasonNoCandidates
		return decision, nil
	}

	top := candidates[0]
	decision.TopScore = top.Score

	switch {
	case top.Score >= e.config.AutoAcceptThreshold:
		decision.Verdict = models.VerdictAutoMatch
		decision.Reason = models.ReasonAutoAccept
		decision.Confidence = top.Score
		setTarget(decision, top)
		return decision, nil
	case top.Score < e.config.MinCandidateFloor:
		decision.Verdict = models.VerdictNoMatch
		decision.Reason = models.ReasonBelowFloor
		decision.Confidence = top.Score
		return decision, nil
	case e.oracle == nil:
		decision.Verdict = models.VerdictNeedsReview
		decision.Reason = models.ReasonOracleDisabled
		decision.Confidence = top.Score
		setTarget(decision, top)
		return decision, nil
	}

	return e.consultOracle(ctx, l, candidates, decision)
}

func (e *Engine) consultOracle(ctx context.Context, l *models.Listing, candidates []models.MatchCandidate, decision *models.MatchDecision) (*models.MatchDecision, error) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": l.ID,
		"top_score":  decision.TopScore,
		"candidates": len(candidates),
	})

	query, err := e.queryProfile(l)
	if err != nil {
		return nil, err
	}
	req := e.index.oracleRequest(query, candidates, e.config.MaxCandidatesToOracle)

	e.oracleCalls.Add(1)
	resp, err := e.oracle.Arbitrate(ctx, req)
	if err == nil {
		err = resp.Validate(req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		e.oracleErrors.Add(1)
		log.WithError(err).Warn("Oracle call failed, treating as no match")
		decision.Verdict = models.VerdictNoMatch
		decision.Reason = models.ReasonOracleError
		decision.Rationale = err.Error()
		return decision, nil
	}

	decision.Confidence = resp.Confidence
	decision.Rationale = resp.Rationale

	if resp.Verdict != OracleVerdictMatch {
		decision.Verdict = models.VerdictNoMatch
		decision.Reason = models.ReasonOracleNoMatch
		return decision, nil
	}

	var matched models.MatchCandidate
	for _, c := range candidates {
		if c.Listing.ID == resp.MatchedID {
			matched = c
			break
		}
	}

	switch {
	case resp.Confidence >= e.config.OracleMatchThreshold:
		decision.Verdict = models.VerdictAIMatch
		decision.Reason = models.ReasonOracleMatch
		setTarget(decision, matched)
	case resp.Confidence >= e.config.OracleMatchThreshold-e.config.OracleLeniencyMargin:
		decision.Verdict = models.VerdictAIMatch
		decision.Reason = models.ReasonOracleLenientMatch
		setTarget(decision, matched)
	default:
		decision.Verdict = models.VerdictNoMatch
		decision.Reason = models.ReasonOracleLowConfidence
	}

	log.WithFields(map[string]any{
		"verdict":    decision.Verdict,
		"confidence": decision.Confidence,
		"reason":     decision.Reason,
	}).Debug("Oracle decided")

	return decision, nil
}

func setTarget(d *models.MatchDecision, c models.MatchCandidate) {
	d.TargetCanonicalID = c.CanonicalID
	d.TargetListingID = c.Listing.ID
}

// Match runs retrieval, scoring and the decision for one listing
func (e *Engine) Match(ctx context.Context, l *models.Listing) (*models.MatchDecision, []models.MatchCandidate, error) {
	candidates, err := e.FindCandidates(ctx, l)
	if err != nil {
		return nil, nil, err
	}
	decision, err := e.Decide(ctx, l, candidates)
	if err != nil {
		return nil, candidates, err
	}
	return decision, candidates, nil
}
