// Package processor runs the batch jobs: a matching pass over pending
// listings and a review pass over committed matches.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/merging"
	"github.com/scoutalgo/clover/pkg/metrics"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/reqctx"
	"github.com/scoutalgo/clover/pkg/synonyms"
	"github.com/scoutalgo/clover/pkg/tracing"
)

// ErrConfiguration is returned before any listing is touched when the run
// cannot start with the given configuration
var ErrConfiguration = errors.New("configuration error")

// DecisionNotifier receives every recorded decision. *events.Emitter implements it.
type DecisionNotifier interface {
	EmitMatchDecided(ctx context.Context, d *models.MatchDecision) error
}

// Config controls a MatchProcessor
type Config struct {
	Matching       matching.Config
	OracleRequired bool
	WriterBuffer   int
}

// RunOptions narrow a single run
type RunOptions struct {
	RunID        string
	QuerySources []string // only listings from these sources are used as queries
	Limit        int      // maximum number of queries, 0 for all
	DryRun       bool     // decide and record without merging
	Observer     ProgressObserver
}

// MatchProcessor runs matching passes. Runs are serialized by the guard.
type MatchProcessor struct {
	logger      ectologger.Logger
	store       catalog.Store
	coordinator *merging.Coordinator
	guard       Guard
	oracle      matching.Oracle
	synonyms    *synonyms.Resolver
	notifier    DecisionNotifier
	config      Config

	current atomic.Pointer[JobContext]
	last    atomic.Pointer[models.BatchReport]
}

// Option configures optional MatchProcessor collaborators
type Option func(*MatchProcessor)

// WithOracle enables oracle arbitration for uncertain cases
func WithOracle(o matching.Oracle) Option {
	return func(p *MatchProcessor) { p.oracle = o }
}

// WithSynonyms sets the synonym table used for indexing
func WithSynonyms(r *synonyms.Resolver) Option {
	return func(p *MatchProcessor) { p.synonyms = r }
}

// WithDecisionNotifier publishes every recorded decision
func WithDecisionNotifier(n DecisionNotifier) Option {
	return func(p *MatchProcessor) { p.notifier = n }
}

// NewMatchProcessor creates a new match processor
func NewMatchProcessor(
	logger ectologger.Logger,
	store catalog.Store,
	coordinator *merging.Coordinator,
	guard Guard,
	config Config,
	opts ...Option,
) *MatchProcessor {
	if config.WriterBuffer <= 0 {
		config.WriterBuffer = 64
	}
	p := &MatchProcessor{
		logger:      logger,
		store:       store,
		coordinator: coordinator,
		guard:       guard,
		config:      config,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the live job context of the run in progress, if any
func (p *MatchProcessor) Current() (*JobContext, bool) {
	j := p.current.Load()
	return j, j != nil
}

// LastReport returns the report of the most recently finished run
func (p *MatchProcessor) LastReport() (*models.BatchReport, bool) {
	r := p.last.Load()
	return r, r != nil
}

// CheckConfig performs the start-of-job checks
func (p *MatchProcessor) CheckConfig() error {
	if err := p.config.Matching.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if p.config.OracleRequired && p.oracle == nil {
		return fmt.Errorf("%w: oracle is required but no oracle credentials are configured", ErrConfiguration)
	}
	return nil
}

// writeTally is owned by the writer goroutine until the run ends
type writeTally struct {
	merged, alreadyMerged, notFound, selfTarget int
}

// Run performs one matching pass. Per-listing failures are counted in the
// report; only start-of-job problems are returned as errors. A cancelled run
// stops between listings and reports Interrupted.
func (p *MatchProcessor) Run(ctx context.Context, opts RunOptions) (*models.BatchReport, error) {
	release, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(ctx, release)

	return p.execute(ctx, opts)
}

// Start runs a pass in the background once the start-of-job checks pass and
// the guard is held. ctx bounds the run, not the call.
func (p *MatchProcessor) Start(ctx context.Context, opts RunOptions) (string, error) {
	release, err := p.begin(ctx)
	if err != nil {
		return "", err
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}

	go func() {
		defer p.release(ctx, release)
		if _, err := p.execute(ctx, opts); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("run_id", opts.RunID).Error("Matching run failed")
		}
	}()
	return opts.RunID, nil
}

func (p *MatchProcessor) begin(ctx context.Context) (ReleaseFunc, error) {
	if err := p.CheckConfig(); err != nil {
		return nil, err
	}
	return p.guard.Acquire(ctx, GuardName)
}

func (p *MatchProcessor) release(ctx context.Context, release ReleaseFunc) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to release job guard")
	}
}

func (p *MatchProcessor) execute(ctx context.Context, opts RunOptions) (*models.BatchReport, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.MatchProcessor.Run")
	defer span.End()

	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	ctx = reqctx.SetRunID(ctx, opts.RunID)
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  opts.RunID,
		"dry_run": opts.DryRun,
	})

	job := newJobContext(opts.RunID, opts.Observer)
	p.current.Store(job)
	defer p.current.Store(nil)

	metrics.RunInFlight.WithLabelValues("match").Set(1)
	defer metrics.RunInFlight.WithLabelValues("match").Set(0)

	listings, err := p.store.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	products, err := p.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	index := matching.BuildIndex(ctx, p.logger, listings, products, p.synonyms, p.config.Matching)
	engine := matching.NewEngine(p.logger, index, p.oracle, p.config.Matching)
	metrics.IndexedListings.WithLabelValues("indexed").Set(float64(index.Stats().Indexed))
	metrics.IndexedListings.WithLabelValues("skipped").Set(float64(index.Stats().Skipped))

	queries := SelectQueries(listings, products, opts.QuerySources, opts.Limit)
	job.total.Store(int64(len(queries)))

	report := &models.BatchReport{
		RunID:        opts.RunID,
		Total:        len(queries),
		IndexSkipped: index.Stats().Skipped,
		DryRun:       opts.DryRun,
		StartedAt:    job.startedAt,
	}
	log.WithFields(map[string]any{
		"queries":  len(queries),
		"listings": len(listings),
		"products": len(products),
	}).Info("Starting matching run")

	work := make(chan *models.MatchDecision, p.config.WriterBuffer)
	var tally writeTally
	var g errgroup.Group

	// the writer finishes every decision already handed over, even after cancellation
	g.Go(func() error {
		p.writeLoop(context.WithoutCancel(ctx), job, work, opts.DryRun, &tally)
		return nil
	})
	g.Go(func() error {
		defer close(work)
		p.decideLoop(ctx, job, engine, queries, work, report)
		return nil
	})
	_ = g.Wait()

	report.Processed = int(job.processed.Load())
	report.Merged = tally.merged
	report.AlreadyMerged = tally.alreadyMerged
	report.TargetNotFound = tally.notFound
	report.SelfTarget = tally.selfTarget
	report.OracleCalls = int(engine.OracleCalls())
	report.OracleErrors = int(engine.OracleErrors())
	report.Errors = int(job.errored.Load())
	report.ErrorSamples = job.samples.list()
	report.FinishedAt = time.Now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	job.finish()
	p.last.Store(report)

	outcome := "completed"
	if report.Interrupted {
		outcome = "interrupted"
	}
	metrics.ObserveRun("match", outcome, report.Duration)

	log.WithFields(map[string]any{
		"processed":    report.Processed,
		"skipped":      report.Skipped,
		"auto_matched": report.AutoMatched,
		"ai_matched":   report.AIMatched,
		"no_match":     report.NoMatch,
		"needs_review": report.NeedsReview,
		"merged":       report.Merged,
		"oracle_calls": report.OracleCalls,
		"errors":       report.Errors,
		"interrupted":  report.Interrupted,
		"duration":     report.Duration.String(),
	}).Info("Matching run finished")

	return report, nil
}

// decideLoop is the sequential half of the run. It owns the verdict counts
// in report and the set of listings claimed by this run's matches.
func (p *MatchProcessor) decideLoop(
	ctx context.Context,
	job *JobContext,
	engine *matching.Engine,
	queries []*models.Listing,
	work chan<- *models.MatchDecision,
	report *models.BatchReport,
) {
	claimed := make(map[string]struct{})

	for _, q := range queries {
		if ctx.Err() != nil {
			report.Interrupted = true
			return
		}

		// a listing already taken by an earlier decision of this run is no longer pending
		if _, ok := claimed[q.ID]; ok {
			report.Skipped++
			continue
		}

		decision, _, err := engine.Match(ctx, q)
		job.oracleCalls.Store(engine.OracleCalls())
		if err != nil {
			if ctx.Err() != nil {
				report.Interrupted = true
				return
			}
			job.recordError(fmt.Errorf("listing %s: %w", q.ID, err))
			job.processed.Add(1)
			job.notify()
			continue
		}
		decision.RunID = job.runID

		switch decision.Verdict {
		case models.VerdictAutoMatch:
			report.AutoMatched++
		case models.VerdictAIMatch:
			report.AIMatched++
		case models.VerdictNeedsReview:
			report.NeedsReview++
		default:
			report.NoMatch++
		}
		if decision.Verdict.IsMatch() {
			claimed[q.ID] = struct{}{}
			claimed[decision.TargetListingID] = struct{}{}
		}

		work <- decision
		job.processed.Add(1)
		job.notify()
	}
}

// writeLoop is the single writer: it records decisions and commits merges
func (p *MatchProcessor) writeLoop(
	ctx context.Context,
	job *JobContext,
	work <-chan *models.MatchDecision,
	dryRun bool,
	tally *writeTally,
) {
	for d := range work {
		if err := p.store.SaveDecision(ctx, d); err != nil {
			job.recordError(fmt.Errorf("record decision for %s: %w", d.ListingID, err))
		}
		metrics.ObserveDecision(d)
		if p.notifier != nil {
			if err := p.notifier.EmitMatchDecided(ctx, d); err != nil {
				p.logger.WithContext(ctx).WithError(err).Warn("Failed to emit match decided event")
			}
		}

		if !d.Verdict.IsMatch() {
			continue
		}
		if dryRun {
			job.matched.Add(1)
			continue
		}

		res, err := p.coordinator.Merge(ctx, d.ListingID, d.TargetCanonicalID, merging.WithRepresentative(d.TargetListingID))
		if err != nil {
			job.recordError(fmt.Errorf("merge %s into %s: %w", d.ListingID, d.TargetCanonicalID, err))
			continue
		}
		metrics.MergesTotal.WithLabelValues(string(res.Status)).Inc()

		switch res.Status {
		case models.MergeStatusMerged:
			tally.merged++
			job.matched.Add(1)
		case models.MergeStatusAlreadyMerged:
			tally.alreadyMerged++
		case models.MergeStatusNotFound:
			tally.notFound++
		case models.MergeStatusSelfTarget:
			tally.selfTarget++
		}
	}
}

// SelectQueries returns the pending listings to match, optionally limited to
// some sources. Listings whose product already aggregates more sources go
// first, then older listings.
func SelectQueries(listings []models.Listing, products map[string]*models.CanonicalProduct, sources []string, limit int) []*models.Listing {
	allowed := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		allowed[s] = struct{}{}
	}

	sourceCount := func(l *models.Listing) int {
		if p, ok := products[l.CanonicalID]; ok {
			return p.SourceCount()
		}
		return 0
	}

	var out []*models.Listing
	for i := range listings {
		l := &listings[i]
		if !l.Status.IsPending() {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[l.Source]; !ok {
				continue
			}
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := sourceCount(out[i]), sourceCount(out[j])
		if ci != cj {
			return ci > cj
		}
		return out[i].IngestedBefore(out[j])
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
