package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/scoutalgo/clover/internal/repositories/decision"
	"github.com/scoutalgo/clover/internal/repositories/listing"
	"github.com/scoutalgo/clover/internal/repositories/product"
	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

// PostgresStore implements Store on top of the SQL repositories
type PostgresStore struct {
	db        database.DB
	logger    ectologger.Logger
	listings  *listing.Repository
	products  *product.Repository
	decisions *decision.Repository
}

func NewPostgresStore(db database.DB, logger ectologger.Logger) *PostgresStore {
	return &PostgresStore{
		db:        db,
		logger:    logger,
		listings:  listing.NewRepository(db, logger),
		products:  product.NewRepository(db, logger),
		decisions: decision.NewRepository(db, logger),
	}
}

// translate maps repository HTTP errors onto the catalog's sentinels
func translate(err error) error {
	if err == nil || !httperror.IsHTTPError(err) {
		return err
	}
	switch httperror.GetStatusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", err.Error(), ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", err.Error(), ErrVersionConflict)
	}
	return err
}

func (s *PostgresStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	out, err := s.listings.List(ctx)
	return out, translate(err)
}

func (s *PostgresStore) ListProducts(ctx context.Context) (map[string]*models.CanonicalProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.PostgresStore.ListProducts")
	defer span.End()

	products, err := s.products.List(ctx)
	if err != nil {
		return nil, translate(err)
	}
	members, err := s.listings.MemberIDs(ctx)
	if err != nil {
		return nil, translate(err)
	}

	out := make(map[string]*models.CanonicalProduct, len(products))
	for _, p := range products {
		p.Members = members[p.ID]
		out[p.ID] = p
	}
	return out, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	l, err := s.listings.Get(ctx, id)
	return l, translate(err)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*models.CanonicalProduct, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	members, err := s.listings.MemberIDs(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	p.Members = members[id]
	return p, nil
}

func (s *PostgresStore) FindListing(ctx context.Context, source, sourceNativeID string) (*models.Listing, error) {
	l, err := s.listings.GetBySourceNativeID(ctx, source, sourceNativeID)
	return l, translate(err)
}

func (s *PostgresStore) CreateListing(ctx context.Context, l *models.Listing, p *models.CanonicalProduct) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.PostgresStore.CreateListing")
	defer span.End()

	ctxTx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	if err := s.products.Create(ctxTx, p); err != nil {
		return translate(err)
	}
	if err := s.listings.Create(ctxTx, l); err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict {
			return fmt.Errorf("listing %s/%s: %w", l.Source, l.SourceNativeID, ErrDuplicate)
		}
		return translate(err)
	}
	return tx.Commit(ctxTx)
}

func (s *PostgresStore) ApplyMerge(ctx context.Context, m models.MergeMutation) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.PostgresStore.ApplyMerge")
	defer span.End()

	ctxTx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	if err := s.listings.UpdateOwnership(ctxTx, m.Listing.ID, m.Listing.CanonicalID, m.Listing.Status, models.MappingStatePending); err != nil {
		return translate(err)
	}
	if err := s.products.Update(ctxTx, m.TargetProduct, m.TargetExpectedVersion); err != nil {
		return translate(err)
	}
	if m.SourceProduct != nil {
		if err := s.products.Update(ctxTx, m.SourceProduct, m.SourceExpectedVersion); err != nil {
			return translate(err)
		}
	}
	if m.Representative != nil {
		rep := m.Representative
		err := s.listings.UpdateOwnership(ctxTx, rep.ID, rep.CanonicalID, models.Matched(), models.MappingStatePending)
		// a representative that already advanced stays as it is
		if err != nil && !(httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict) {
			return translate(err)
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": m.Listing.ID,
		"target_id":  m.TargetProduct.ID,
	}).Debug("Committed merge")
	return nil
}

func (s *PostgresStore) SaveDecision(ctx context.Context, d *models.MatchDecision) error {
	return translate(s.decisions.Create(ctx, d))
}

func (s *PostgresStore) ListDecisions(ctx context.Context, runID string) ([]models.MatchDecision, error) {
	out, err := s.decisions.List(ctx, runID)
	return out, translate(err)
}
