// Package catalog holds the listing and canonical product state the
// matcher reads and the merge coordinator writes.
package catalog

import (
	"context"
	"errors"

	"github.com/scoutalgo/clover/pkg/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate listing")
)

// Store is the persistence boundary. Implementations must commit ApplyMerge
// atomically and reject it when any expected version or state is stale.
type Store interface {
	ListListings(ctx context.Context) ([]models.Listing, error)
	ListProducts(ctx context.Context) (map[string]*models.CanonicalProduct, error)
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	GetProduct(ctx context.Context, id string) (*models.CanonicalProduct, error)
	FindListing(ctx context.Context, source, sourceNativeID string) (*models.Listing, error)

	// CreateListing stores a first-sighted listing together with its fresh product
	CreateListing(ctx context.Context, l *models.Listing, p *models.CanonicalProduct) error
	ApplyMerge(ctx context.Context, m models.MergeMutation) error

	SaveDecision(ctx context.Context, d *models.MatchDecision) error
	ListDecisions(ctx context.Context, runID string) ([]models.MatchDecision, error)
}
