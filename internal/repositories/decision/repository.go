package decision

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

var columns = []string{
	"id", "run_id", "listing_id", "verdict", "target_canonical_id", "target_listing_id",
	"confidence", "reason", "rationale", "candidate_count", "top_score", "decided_at",
}

// Repository persists the match decision audit trail
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records a decision
func (r *Repository) Create(ctx context.Context, d *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.Create")
	defer span.End()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	sb := database.NewInsertBuilder("match_decisions", columns...)
	sb.Values(d.ID, d.RunID, d.ListingID, string(d.Verdict), d.TargetCanonicalID, d.TargetListingID,
		d.Confidence, d.Reason, d.Rationale, d.CandidateCount, d.TopScore, d.DecidedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": d.ListingID,
			"run_id":     d.RunID,
		}).Error("Failed to record match decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record match decision")
	}
	return nil
}

// List returns decisions in decision order, optionally limited to one run
func (r *Repository) List(ctx context.Context, runID string) ([]models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("match_decisions")
	if runID != "" {
		sb.Where(sb.Equal("run_id", runID))
	}
	sb.OrderBy("decided_at ASC", "id ASC")

	query, args := sb.Build()
	var out []models.MatchDecision
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match decisions")
	}
	return out, nil
}
