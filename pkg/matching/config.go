package matching

import (
	"errors"
	"fmt"
)

// Config contains the thresholds and knobs for retrieval, scoring and decisions
type Config struct {
	AutoAcceptThreshold  int // Score at or above which a match is accepted without the oracle (default: 95)
	OracleMatchThreshold int // Minimum oracle confidence for a match (default: 60)
	OracleLeniencyMargin int // Oracle "match" verdicts are accepted down to threshold minus this margin (default: 20)
	MinCandidateFloor    int // Candidates below this score are discarded, and a top score below it skips the oracle (default: 40)

	MaxCandidates         int // Maximum scored candidates kept per query (default: 150)
	MaxCandidatesToOracle int // Candidates forwarded to the oracle (default: 15)

	WeightToleranceAbs   float64 // Absolute weight tolerance in g/ml (default: 200)
	WeightToleranceRatio float64 // Relative weight tolerance (default: 0.3)

	FuzzyBrandThreshold    float64 // Jaro-Winkler floor for fuzzy brand retrieval (default: 0.7)
	BrandSimilarThreshold  float64 // Jaro-Winkler floor for the "similar brand" score tier (default: 0.8)
	LongKeywordRunes       int     // A single shared keyword this long is enough for retrieval (default: 5)
	RareKeywordMaxPostings int     // A single shared keyword with at most this many postings is enough (default: 25)

	FallbackEnabled         bool    // Brute-force scan when every strategy returns nothing (default: true)
	FallbackPoolLimit       int     // Maximum listings scanned by the fallback (default: 5000)
	FallbackSimilarityFloor float64 // Minimum name similarity in the fallback (default: 0.4)
	FallbackMaxCandidates   int     // Fallback candidates kept (default: 20)

	EnforceMergeDirection bool // Only listings ingested before the query are candidates (default: true)
}

// DefaultConfig returns default matching configuration
func DefaultConfig() Config {
	return Config{
		AutoAcceptThreshold:     95,
		OracleMatchThreshold:    60,
		OracleLeniencyMargin:    20,
		MinCandidateFloor:       40,
		MaxCandidates:           150,
		MaxCandidatesToOracle:   15,
		WeightToleranceAbs:      200,
		WeightToleranceRatio:    0.3,
		FuzzyBrandThreshold:     0.7,
		BrandSimilarThreshold:   0.8,
		LongKeywordRunes:        5,
		RareKeywordMaxPostings:  25,
		FallbackEnabled:         true,
		FallbackPoolLimit:       5000,
		FallbackSimilarityFloor: 0.4,
		FallbackMaxCandidates:   20,
		EnforceMergeDirection:   true,
	}
}

var ErrInvalidConfig = errors.New("invalid matching configuration")

// Validate checks that thresholds are in range and consistently ordered
func (c Config) Validate() error {
	inRange := func(name string, v int) error {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s must be within 0..100, got %d", ErrInvalidConfig, name, v)
		}
		return nil
	}
	for name, v := range map[string]int{
		"auto_accept_threshold":  c.AutoAcceptThreshold,
		"oracle_match_threshold": c.OracleMatchThreshold,
		"oracle_leniency_margin": c.OracleLeniencyMargin,
		"min_candidate_floor":    c.MinCandidateFloor,
	} {
		if err := inRange(name, v); err != nil {
			return err
		}
	}
	if c.MinCandidateFloor > c.AutoAcceptThreshold {
		return fmt.Errorf("%w: min_candidate_floor %d exceeds auto_accept_threshold %d", ErrInvalidConfig, c.MinCandidateFloor, c.AutoAcceptThreshold)
	}
	if c.MaxCandidates <= 0 || c.MaxCandidatesToOracle <= 0 {
		return fmt.Errorf("%w: candidate limits must be positive", ErrInvalidConfig)
	}
	if c.WeightToleranceAbs < 0 || c.WeightToleranceRatio < 0 || c.WeightToleranceRatio >= 1 {
		return fmt.Errorf("%w: weight tolerances out of range", ErrInvalidConfig)
	}
	return nil
}
