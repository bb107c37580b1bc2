// Package review audits committed matches with its own, more conservative
// rules and reports likely false positives without touching committed state.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/agnivade/levenshtein"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/normalizers"
	"github.com/scoutalgo/clover/pkg/tracing"
	"github.com/scoutalgo/clover/pkg/weight"
)

const maxHops = 8

// Subject is one committed match to audit. An empty TargetID means the
// listing was expected to be mapped but is not.
type Subject struct {
	Listing  *models.Listing
	TargetID string
}

// Service is the read-only mapping review
type Service struct {
	store  catalog.Store
	logger ectologger.Logger
	config Config
}

func NewService(store catalog.Store, logger ectologger.Logger, config Config) *Service {
	return &Service{
		store:  store,
		logger: logger,
		config: config,
	}
}

// CommittedMatches collects every listing merged into another product plus
// every audited decision that named a target. With a runID only that run's
// decisions are included; merged listings are always included.
func (s *Service) CommittedMatches(ctx context.Context, runID string) ([]Subject, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.CommittedMatches")
	defer span.End()

	listings, err := s.store.ListListings(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Listing, len(listings))
	for i := range listings {
		byID[listings[i].ID] = &listings[i]
	}

	seen := make(map[string]struct{})
	var out []Subject
	for i := range listings {
		l := &listings[i]
		if !l.Status.IsMerged() {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, Subject{Listing: l, TargetID: l.Status.MergedInto})
	}

	decisions, err := s.store.ListDecisions(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if !d.Verdict.IsMatch() {
			continue
		}
		if _, ok := seen[d.ListingID]; ok {
			continue
		}
		l, ok := byID[d.ListingID]
		if !ok {
			continue
		}
		seen[d.ListingID] = struct{}{}
		out = append(out, Subject{Listing: l, TargetID: d.TargetCanonicalID})
	}
	return out, nil
}

// Review evaluates every subject and builds the report
func (s *Service) Review(ctx context.Context, subjects []Subject) (*models.ReviewReport, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Review")
	defer span.End()

	report := &models.ReviewReport{
		Results:     make([]models.ReviewResult, 0, len(subjects)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, subj := range subjects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.reviewOne(ctx, subj)
		if err != nil {
			return nil, err
		}
		report.Summary.Add(result.Verdict)
		report.Results = append(report.Results, result)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"total":        report.Summary.Total,
		"correct":      report.Summary.Correct,
		"needs_review": report.Summary.NeedsReview,
		"likely_wrong": report.Summary.LikelyWrong,
		"unmapped":     report.Summary.Unmapped,
		"not_found":    report.Summary.NotFound,
	}).Info("Mapping review completed")

	return report, nil
}

func (s *Service) reviewOne(ctx context.Context, subj Subject) (models.ReviewResult, error) {
	result := models.ReviewResult{
		ListingID:   subj.Listing.ID,
		ListingName: subj.Listing.Name,
		Source:      subj.Listing.Source,
		TargetID:    subj.TargetID,
	}

	if subj.TargetID == "" {
		result.Verdict = models.ReviewUnmapped
		result.Reasons = []string{"no target"}
		return result, nil
	}

	target, err := s.resolve(ctx, subj.TargetID)
	if errors.Is(err, catalog.ErrNotFound) {
		result.Verdict = models.ReviewNotFound
		result.Reasons = []string{fmt.Sprintf("target %s not found", subj.TargetID)}
		return result, nil
	}
	if err != nil {
		return result, err
	}

	result.TargetID = target.ID
	result.TargetName = target.Name
	s.Evaluate(subj.Listing, target, &result)
	return result, nil
}

func (s *Service) resolve(ctx context.Context, id string) (*models.CanonicalProduct, error) {
	for hop := 0; hop <= maxHops; hop++ {
		p, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if !p.Tombstoned {
			return p, nil
		}
		if p.MergedInto == "" {
			break
		}
		id = p.MergedInto
	}
	return nil, fmt.Errorf("product %s: %w", id, catalog.ErrNotFound)
}

// Evaluate fills the signal fields, verdict and reasons of result
func (s *Service) Evaluate(l *models.Listing, p *models.CanonicalProduct, result *models.ReviewResult) {
	cfg := s.config

	nameScore := NameSimilarity(l.Name, p.Name)
	result.NameSimilarity = nameScore

	brandKnown := normalizers.BrandKey(l.Brand) != "" && normalizers.BrandKey(p.Brand) != ""
	brandMatch := brandKnown && normalizers.SharesVariant(l.Brand, p.Brand)
	if brandKnown {
		result.BrandMatch = &brandMatch
	}

	if categoryKnown, categoryMatch := CategoryOverlap(l.CategoryPath, p.CategoryPath); categoryKnown {
		result.CategoryMatch = &categoryMatch
	}

	weightKnown, weightOK, weightReason := s.weightMatch(l, p)
	if weightKnown {
		result.WeightMatch = &weightOK
	}

	result.Reasons = []string{
		fmt.Sprintf("name_score=%.2f", nameScore),
		fmt.Sprintf("brand_match=%t", brandMatch),
		weightReason,
	}
	if result.CategoryMatch != nil {
		result.Reasons = append(result.Reasons, fmt.Sprintf("category_match=%t", *result.CategoryMatch))
	}

	brandConflict := cfg.RequireBrandIfPresent && brandKnown && !brandMatch
	weightConflict := weightKnown && !weightOK

	verdict, why := models.ReviewCorrect, ""
	switch {
	case nameScore >= cfg.NameStrictThreshold:
		switch {
		case brandConflict:
			verdict, why = models.ReviewNeedsReview, "high name similarity but brand differs"
		case weightConflict:
			verdict, why = models.ReviewNeedsReview, "high name similarity but weight differs"
		default:
			why = "high name similarity"
		}
	case nameScore >= cfg.NameOKThreshold:
		switch {
		case brandConflict:
			verdict, why = models.ReviewNeedsReview, "similar name but brand differs"
		case weightConflict:
			verdict, why = models.ReviewNeedsReview, "similar name but weight differs"
		default:
			why = "similar name"
		}
	case nameScore <= cfg.NameLowThreshold:
		verdict, why = models.ReviewLikelyWrong, "low name similarity"
	case brandMatch && !weightConflict:
		verdict, why = models.ReviewNeedsReview, "moderate name similarity, brand matches"
	default:
		verdict, why = models.ReviewLikelyWrong, "moderate name similarity without supporting signals"
	}

	result.Verdict = verdict
	result.Reasons = append(result.Reasons, why)
}

func (s *Service) weightMatch(l *models.Listing, p *models.CanonicalProduct) (known, ok bool, reason string) {
	a, okA := weight.ForListing(l)
	b, okB := weight.Parse(p.Name)
	if !okA || !okB || !weight.Comparable(a, b) {
		return false, true, "weight=unknown"
	}

	diff := a.Value - b.Value
	if diff < 0 {
		diff = -diff
	}
	if weight.Within(a, b, s.config.WeightToleranceAbs, s.config.WeightToleranceRatio) {
		return true, true, fmt.Sprintf("weight_diff=±%d", int(diff))
	}
	return true, false, fmt.Sprintf("weight_diff=±%d", int(diff))
}

// NameSimilarity is 1 - distance/longer length over the two names after
// normalization and transliteration to Latin. Unrelated names of equal
// length score 0.
func NameSimilarity(a, b string) float64 {
	la := normalizers.ToLatin(normalizers.Normalize(a))
	lb := normalizers.ToLatin(normalizers.Normalize(b))
	if la == "" || lb == "" {
		return 0
	}
	longest := max(len([]rune(la)), len([]rune(lb)))
	return 1 - float64(levenshtein.ComputeDistance(la, lb))/float64(longest)
}

// CategoryOverlap reports whether either category path contains the other.
// known is false when either side has no category.
func CategoryOverlap(a, b []string) (known, match bool) {
	pa := joinPath(a)
	pb := joinPath(b)
	if pa == "" || pb == "" {
		return false, false
	}
	return true, strings.Contains(pa, pb) || strings.Contains(pb, pa)
}

func joinPath(path []string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		if n := normalizers.Normalize(p); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " / ")
}
