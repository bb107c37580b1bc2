package models

import "time"

// Progress is a point-in-time view of a running batch
type Progress struct {
	RunID       string    `json:"run_id"`
	Total       int64     `json:"total"`
	Processed   int64     `json:"processed"`
	Matched     int64     `json:"matched"`
	Errored     int64     `json:"errored"`
	OracleCalls int64     `json:"oracle_calls"`
	StartedAt   time.Time `json:"started_at"`
	Running     bool      `json:"running"`
}

// BatchReport summarizes one matching run
type BatchReport struct {
	RunID          string        `json:"run_id"`
	Total          int           `json:"total"`
	Processed      int           `json:"processed"`
	Skipped        int           `json:"skipped"`
	AutoMatched    int           `json:"auto_matched"`
	AIMatched      int           `json:"ai_matched"`
	NoMatch        int           `json:"no_match"`
	NeedsReview    int           `json:"needs_review"`
	Merged         int           `json:"merged"`
	AlreadyMerged  int           `json:"already_merged"`
	TargetNotFound int           `json:"target_not_found"`
	SelfTarget     int           `json:"self_target"`
	OracleCalls    int           `json:"oracle_calls"`
	OracleErrors   int           `json:"oracle_errors"`
	Errors         int           `json:"errors"`
	ErrorSamples   []string      `json:"error_samples,omitempty"`
	IndexSkipped   int           `json:"index_skipped"`
	Interrupted    bool          `json:"interrupted"`
	DryRun         bool          `json:"dry_run"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`
}

// ReviewVerdict is the audit classification of a committed match
type ReviewVerdict string

const (
	ReviewCorrect     ReviewVerdict = "correct"
	ReviewNeedsReview ReviewVerdict = "needs_review"
	ReviewLikelyWrong ReviewVerdict = "likely_wrong"
	ReviewUnmapped    ReviewVerdict = "unmapped"
	ReviewNotFound    ReviewVerdict = "not_found"
)

// ReviewResult is the review outcome for one committed match
type ReviewResult struct {
	ListingID      string        `json:"listing_id"`
	ListingName    string        `json:"listing_name"`
	Source         string        `json:"source"`
	TargetID       string        `json:"target_id,omitempty"`
	TargetName     string        `json:"target_name,omitempty"`
	Verdict        ReviewVerdict `json:"verdict"`
	NameSimilarity float64       `json:"name_similarity"`
	BrandMatch     *bool         `json:"brand_match,omitempty"`
	WeightMatch    *bool         `json:"weight_match,omitempty"`
	CategoryMatch  *bool         `json:"category_match,omitempty"`
	Reasons        []string      `json:"reasons,omitempty"`
}

// ReviewSummary counts results per verdict
type ReviewSummary struct {
	Total       int `json:"total"`
	Correct     int `json:"correct"`
	NeedsReview int `json:"needs_review"`
	LikelyWrong int `json:"likely_wrong"`
	Unmapped    int `json:"unmapped"`
	NotFound    int `json:"not_found"`
}

// Add counts one result into the summary
func (s *ReviewSummary) Add(v ReviewVerdict) {
	s.Total++
	switch v {
	case ReviewCorrect:
		s.Correct++
	case ReviewNeedsReview:
		s.NeedsReview++
	case ReviewLikelyWrong:
		s.LikelyWrong++
	case ReviewUnmapped:
		s.Unmapped++
	case ReviewNotFound:
		s.NotFound++
	}
}

// ReviewReport is the output of one review pass
type ReviewReport struct {
	Summary     ReviewSummary  `json:"summary"`
	Results     []ReviewResult `json:"results"`
	GeneratedAt time.Time      `json:"generated_at"`
}
