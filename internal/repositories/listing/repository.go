package listing

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

var columns = []string{
	"id", "source", "name", "brand", "category_path", "quantity_value", "quantity_unit", "quantity_text",
	"price", "original_price", "source_native_id", "source_url", "available", "ingested_at",
	"canonical_id", "mapping_state", "merged_into",
}

type row struct {
	models.Listing
	CategoryPath database.JSONB[[]string] `db:"category_path"`
	MappingState string                   `db:"mapping_state"`
	MergedInto   sql.NullString           `db:"merged_into"`
}

func (r row) toModel() models.Listing {
	l := r.Listing
	l.CategoryPath = r.CategoryPath.GetValue()
	l.Status = models.MappingStatus{State: models.MappingState(r.MappingState), MergedInto: r.MergedInto.String}
	return l
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Repository handles listing persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new listing repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a listing. A duplicate (source, source_native_id) is a conflict.
func (r *Repository) Create(ctx context.Context, l *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Create")
	defer span.End()

	sb := database.NewInsertBuilder("listings", columns...)
	sb.Values(
		l.ID, l.Source, l.Name, l.Brand, database.NewJSONB(l.CategoryPath), l.QuantityValue, l.QuantityUnit, l.QuantityText,
		l.Price, l.OriginalPrice, l.SourceNativeID, l.SourceURL, l.Available, l.IngestedAt,
		l.CanonicalID, string(l.Status.State), nullable(l.Status.MergedInto),
	)
	query, args := sb.OnConflictDoNothing("source", "source_native_id").Build()

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("listing_id", l.ID).Error("Failed to create listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create listing")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "listing %s/%s already exists", l.Source, l.SourceNativeID)
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, where func(sb *sqlbuilder.SelectBuilder) string, what string) (*models.Listing, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.Where(where(sb))

	query, args := sb.Build()
	var out row
	if err := database.Conn(ctx, r.db).GetContext(ctx, &out, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "listing %s not found", what)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get listing")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get listing")
	}
	l := out.toModel()
	return &l, nil
}

// Get retrieves a listing by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Get")
	defer span.End()

	return r.getOne(ctx, func(sb *sqlbuilder.SelectBuilder) string { return sb.Equal("id", id) }, id)
}

// GetBySourceNativeID retrieves a listing by its source's own identifier
func (r *Repository) GetBySourceNativeID(ctx context.Context, source, nativeID string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.GetBySourceNativeID")
	defer span.End()

	return r.getOne(ctx, func(sb *sqlbuilder.SelectBuilder) string {
		return sb.And(sb.Equal("source", source), sb.Equal("source_native_id", nativeID))
	}, fmt.Sprintf("%s/%s", source, nativeID))
}

// List returns every listing ordered by ingestion
func (r *Repository) List(ctx context.Context) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.OrderBy("ingested_at ASC", "id ASC")

	query, args := sb.Build()
	var rows []row
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list listings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	out := make([]models.Listing, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

// MemberIDs returns the listings owned by each of the given products
func (r *Repository) MemberIDs(ctx context.Context, productIDs ...string) (map[string][]string, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.MemberIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("canonical_id", "id")
	sb.From("listings")
	if len(productIDs) > 0 {
		sb.Where(sb.In("canonical_id", sqlbuilder.Flatten(productIDs)...))
	}
	sb.OrderBy("ingested_at ASC", "id ASC")

	query, args := sb.Build()
	var pairs []struct {
		CanonicalID string `db:"canonical_id"`
		ID          string `db:"id"`
	}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &pairs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list product members")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list product members")
	}

	out := make(map[string][]string)
	for _, p := range pairs {
		out[p.CanonicalID] = append(out[p.CanonicalID], p.ID)
	}
	return out, nil
}

// UpdateOwnership moves a listing to a product and advances its status. The
// update only applies while the listing is still in expectedState.
func (r *Repository) UpdateOwnership(ctx context.Context, id, canonicalID string, status models.MappingStatus, expectedState models.MappingState) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.UpdateOwnership")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("listings")
	sb.Set(
		sb.Assign("canonical_id", canonicalID),
		sb.Assign("mapping_state", string(status.State)),
		sb.Assign("merged_into", nullable(status.MergedInto)),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("mapping_state", string(expectedState)),
	)

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("listing_id", id).Error("Failed to update listing ownership")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "listing %s is no longer %s", id, expectedState)
	}
	return nil
}
