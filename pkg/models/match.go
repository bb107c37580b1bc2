package models

import "time"

// Verdict is the outcome class of a match decision
type Verdict string

const (
	VerdictAutoMatch   Verdict = "auto_match"
	VerdictAIMatch     Verdict = "ai_match"
	VerdictNoMatch     Verdict = "no_match"
	VerdictNeedsReview Verdict = "needs_review"
)

// IsMatch reports whether the verdict commits a merge
func (v Verdict) IsMatch() bool {
	return v == VerdictAutoMatch || v == VerdictAIMatch
}

// Decision reason codes
const (
	ReasonNoCandidates        = "no_candidates"
	ReasonBelowFloor          = "below_floor"
	ReasonAutoAccept          = "auto_accept"
	ReasonOracleDisabled      = "oracle_disabled"
	ReasonOracleMatch         = "oracle_match"
	ReasonOracleLenientMatch  = "oracle_lenient_match"
	ReasonOracleNoMatch       = "oracle_no_match"
	ReasonOracleLowConfidence = "oracle_low_confidence"
	ReasonOracleError         = "oracle_error"
)

// MatchCandidate is a scored candidate for one query listing. Candidates live
// only for the duration of one decision.
type MatchCandidate struct {
	QueryListingID string   `json:"query_listing_id"`
	Listing        *Listing `json:"listing"`
	CanonicalID    string   `json:"canonical_id"`
	Score          int      `json:"score"`
	Reasons        []string `json:"reasons"`
	SourceCount    int      `json:"source_count"`
	Strategies     []string `json:"strategies,omitempty"`
}

// MatchDecision is the persisted audit record of one query's outcome
type MatchDecision struct {
	ID                string    `json:"id" db:"id"`
	RunID             string    `json:"run_id" db:"run_id"`
	ListingID         string    `json:"listing_id" db:"listing_id"`
	Verdict           Verdict   `json:"verdict" db:"verdict"`
	TargetCanonicalID string    `json:"target_canonical_id,omitempty" db:"target_canonical_id"`
	TargetListingID   string    `json:"target_listing_id,omitempty" db:"target_listing_id"`
	Confidence        int       `json:"confidence" db:"confidence"`
	Reason            string    `json:"reason" db:"reason"`
	Rationale         string    `json:"rationale,omitempty" db:"rationale"`
	CandidateCount    int       `json:"candidate_count" db:"candidate_count"`
	TopScore          int       `json:"top_score" db:"top_score"`
	DecidedAt         time.Time `json:"decided_at" db:"decided_at"`
}

// MergeStatus classifies the outcome of a merge request
type MergeStatus string

const (
	MergeStatusMerged        MergeStatus = "merged"
	MergeStatusAlreadyMerged MergeStatus = "already_merged"
	MergeStatusNotFound      MergeStatus = "not_found"
	MergeStatusSelfTarget    MergeStatus = "self_target"
)

// MergeResult describes what a merge did
type MergeResult struct {
	Status           MergeStatus `json:"status"`
	ListingID        string      `json:"listing_id"`
	TargetID         string      `json:"target_id"`
	SourceProductID  string      `json:"source_product_id,omitempty"`
	SourceTombstoned bool        `json:"source_tombstoned"`
	PriceReplaced    bool        `json:"price_replaced"`
	DisplacedListing string      `json:"displaced_listing,omitempty"`
}

// MergeMutation is the full set of state changes a merge commits atomically.
// Expected versions guard against concurrent writers.
type MergeMutation struct {
	Listing               Listing
	SourceProduct         *CanonicalProduct
	SourceExpectedVersion int
	TargetProduct         *CanonicalProduct
	TargetExpectedVersion int
	Representative        *Listing
}
