package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/scoutalgo/clover/pkg/metrics"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/review"
	"github.com/scoutalgo/clover/pkg/tracing"
)

// ReviewProcessor audits the matches committed by earlier runs. It shares the
// guard with matching so the audited state is not moving underneath it.
type ReviewProcessor struct {
	logger  ectologger.Logger
	service *review.Service
	guard   Guard
}

// NewReviewProcessor creates a new review processor
func NewReviewProcessor(logger ectologger.Logger, service *review.Service, guard Guard) *ReviewProcessor {
	return &ReviewProcessor{
		logger:  logger,
		service: service,
		guard:   guard,
	}
}

// Run reviews the matches of runID, or every committed match when runID is empty
func (p *ReviewProcessor) Run(ctx context.Context, runID string) (*models.ReviewReport, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.ReviewProcessor.Run")
	defer span.End()

	release, err := p.guard.Acquire(ctx, GuardName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to release job guard")
		}
	}()

	metrics.RunInFlight.WithLabelValues("review").Set(1)
	defer metrics.RunInFlight.WithLabelValues("review").Set(0)

	start := time.Now()

	subjects, err := p.service.CommittedMatches(ctx, runID)
	if err != nil {
		metrics.ObserveRun("review", "failed", time.Since(start))
		return nil, fmt.Errorf("collect committed matches: %w", err)
	}

	report, err := p.service.Review(ctx, subjects)
	if err != nil {
		metrics.ObserveRun("review", "failed", time.Since(start))
		return nil, err
	}

	metrics.ObserveReview(report)
	metrics.ObserveRun("review", "completed", time.Since(start))

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       runID,
		"total":        report.Summary.Total,
		"correct":      report.Summary.Correct,
		"needs_review": report.Summary.NeedsReview,
		"likely_wrong": report.Summary.LikelyWrong,
		"unmapped":     report.Summary.Unmapped,
		"not_found":    report.Summary.NotFound,
	}).Info("Review finished")

	return report, nil
}
