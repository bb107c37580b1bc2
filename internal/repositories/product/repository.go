package product

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

var columns = []string{
	"id", "name", "brand", "category_path", "prices", "tombstoned", "merged_into", "version", "created_at", "updated_at",
}

type row struct {
	models.CanonicalProduct
	CategoryPath database.JSONB[[]string]                     `db:"category_path"`
	Prices       database.JSONB[map[string]models.PriceEntry] `db:"prices"`
	MergedInto   sql.NullString                               `db:"merged_into"`
}

func (r row) toModel() *models.CanonicalProduct {
	p := r.CanonicalProduct
	p.CategoryPath = r.CategoryPath.GetValue()
	p.Prices = r.Prices.GetValue()
	if p.Prices == nil {
		p.Prices = map[string]models.PriceEntry{}
	}
	p.MergedInto = r.MergedInto.String
	return &p
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Repository handles canonical product persistence. Membership is derived
// from listings.canonical_id and is not stored here.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical product repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a new product at version 1
func (r *Repository) Create(ctx context.Context, p *models.CanonicalProduct) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Create")
	defer span.End()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	p.Version = 1

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("canonical_products")
	sb.Cols(columns...)
	sb.Values(p.ID, p.Name, p.Brand, database.NewJSONB(p.CategoryPath), database.NewJSONB(p.Prices),
		p.Tombstoned, nullable(p.MergedInto), p.Version, p.CreatedAt, p.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", p.ID).Error("Failed to create canonical product")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create canonical product")
	}
	return nil
}

// Get retrieves a product by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.CanonicalProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("canonical_products")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := database.Conn(ctx, r.db).GetContext(ctx, &out, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "canonical product %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get canonical product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get canonical product")
	}
	return out.toModel(), nil
}

// List returns every product, tombstoned ones included
func (r *Repository) List(ctx context.Context) ([]*models.CanonicalProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("canonical_products")
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var rows []row
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list canonical products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list canonical products")
	}

	out := make([]*models.CanonicalProduct, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

// Update writes a product if it is still at expectedVersion and bumps the version
func (r *Repository) Update(ctx context.Context, p *models.CanonicalProduct, expectedVersion int) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("canonical_products")
	sb.Set(
		sb.Assign("name", p.Name),
		sb.Assign("brand", p.Brand),
		sb.Assign("category_path", database.NewJSONB(p.CategoryPath)),
		sb.Assign("prices", database.NewJSONB(p.Prices)),
		sb.Assign("tombstoned", p.Tombstoned),
		sb.Assign("merged_into", nullable(p.MergedInto)),
		sb.Assign("updated_at", now),
		sb.Add("version", 1),
	)
	sb.Where(
		sb.Equal("id", p.ID),
		sb.Equal("version", expectedVersion),
	)

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", p.ID).Error("Failed to update canonical product")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update canonical product")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "canonical product %s changed since version %d", p.ID, expectedVersion)
	}

	p.Version = expectedVersion + 1
	p.UpdatedAt = now
	return nil
}
