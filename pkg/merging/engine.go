// Package merging commits match verdicts by moving listings between
// canonical products
package merging

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

const (
	// DefaultMaxHops bounds how far a tombstone chain is followed
	DefaultMaxHops = 8
	// DefaultMaxAttempts bounds retries after an optimistic version conflict
	DefaultMaxAttempts = 3
)

// Notifier receives lifecycle notifications after a merge commits.
// *events.Emitter implements it.
type Notifier interface {
	EmitListingMerged(ctx context.Context, listing *models.Listing, result models.MergeResult, version int) error
	EmitProductTombstoned(ctx context.Context, product *models.CanonicalProduct) error
}

// Coordinator applies merges against a catalog store
type Coordinator struct {
	store       catalog.Store
	logger      ectologger.Logger
	notifier    Notifier
	fieldMerger *FieldMerger
	maxHops     int
	maxAttempts int
}

// NewCoordinator creates a merge coordinator. notifier may be nil.
func NewCoordinator(store catalog.Store, logger ectologger.Logger, notifier Notifier) *Coordinator {
	return &Coordinator{
		store:       store,
		logger:      logger,
		notifier:    notifier,
		fieldMerger: NewFieldMerger(),
		maxHops:     DefaultMaxHops,
		maxAttempts: DefaultMaxAttempts,
	}
}

type mergeOptions struct {
	representative string
}

// MergeOption customizes a single Merge call
type MergeOption func(*mergeOptions)

// WithRepresentative names the target listing the match was made against;
// it advances from pending to matched in the same commit.
func WithRepresentative(listingID string) MergeOption {
	return func(o *mergeOptions) {
		o.representative = listingID
	}
}

// Merge moves a pending listing into the target canonical product.
//
// Outcomes that leave state untouched are reported through the result status,
// not as errors: already_merged when the listing is no longer pending,
// not_found when the target cannot be resolved, self_target when the listing
// already belongs to the resolved target.
func (c *Coordinator) Merge(ctx context.Context, listingID, targetCanonicalID string, opts ...MergeOption) (models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Coordinator.Merge")
	defer span.End()

	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.attempt(ctx, listingID, targetCanonicalID, o)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, catalog.ErrVersionConflict) {
			return result, err
		}
		lastErr = err
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"listing_id": listingID,
			"target_id":  targetCanonicalID,
			"attempt":    attempt,
		}).Debug("Merge lost a version race, retrying")
	}
	return models.MergeResult{ListingID: listingID, TargetID: targetCanonicalID}, lastErr
}

func (c *Coordinator) attempt(ctx context.Context, listingID, targetCanonicalID string, o mergeOptions) (models.MergeResult, error) {
	result := models.MergeResult{ListingID: listingID, TargetID: targetCanonicalID}
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": listingID,
		"target_id":  targetCanonicalID,
	})

	listing, err := c.store.GetListing(ctx, listingID)
	if err != nil {
		return result, err
	}
	if !listing.Status.IsPending() {
		result.Status = models.MergeStatusAlreadyMerged
		log.WithField("status", listing.Status.String()).Debug("Listing already merged")
		return result, nil
	}

	target, err := c.resolve(ctx, targetCanonicalID)
	if errors.Is(err, catalog.ErrNotFound) {
		result.Status = models.MergeStatusNotFound
		log.Warn("Merge target not found")
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.TargetID = target.ID

	if target.ID == listing.CanonicalID {
		result.Status = models.MergeStatusSelfTarget
		return result, nil
	}

	mutation := models.MergeMutation{
		TargetProduct:         target,
		TargetExpectedVersion: target.Version,
	}

	source, err := c.store.GetProduct(ctx, listing.CanonicalID)
	switch {
	case err == nil:
		remaining, err := c.loadMembers(ctx, source)
		if err != nil {
			return result, err
		}
		mutation.SourceExpectedVersion = source.Version
		c.fieldMerger.Release(source, listing, remaining, target.ID)
		mutation.SourceProduct = source
		result.SourceProductID = source.ID
		result.SourceTombstoned = source.Tombstoned
	case errors.Is(err, catalog.ErrNotFound):
		log.Warn("Listing's current product is missing, merging without release")
	default:
		return result, err
	}

	outcome := c.fieldMerger.Absorb(target, listing)
	result.PriceReplaced = outcome.Replaced
	result.DisplacedListing = outcome.Displaced

	listing.CanonicalID = target.ID
	listing.Status = models.MergedInto(target.ID)
	mutation.Listing = *listing

	if o.representative != "" && o.representative != listing.ID {
		rep, err := c.store.GetListing(ctx, o.representative)
		switch {
		case err == nil:
			if rep.Status.IsPending() && rep.CanonicalID == target.ID {
				mutation.Representative = rep
			}
		case errors.Is(err, catalog.ErrNotFound):
		default:
			return result, err
		}
	}

	if err := c.store.ApplyMerge(ctx, mutation); err != nil {
		return result, err
	}
	result.Status = models.MergeStatusMerged

	log.WithFields(map[string]any{
		"source_product_id": result.SourceProductID,
		"source_tombstoned": result.SourceTombstoned,
		"price_replaced":    result.PriceReplaced,
	}).Info("Merged listing")

	c.notify(ctx, listing, result, mutation)
	return result, nil
}

// resolve follows tombstone forward references to the live product
func (c *Coordinator) resolve(ctx context.Context, id string) (*models.CanonicalProduct, error) {
	seen := make(map[string]struct{}, 2)
	for hop := 0; hop <= c.maxHops; hop++ {
		p, err := c.store.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if !p.Tombstoned {
			return p, nil
		}
		if _, loop := seen[p.ID]; loop || p.MergedInto == "" {
			return nil, fmt.Errorf("tombstoned product %s has no live successor: %w", p.ID, catalog.ErrNotFound)
		}
		seen[p.ID] = struct{}{}
		id = p.MergedInto
	}
	return nil, fmt.Errorf("tombstone chain from %s exceeds %d hops: %w", id, c.maxHops, catalog.ErrNotFound)
}

func (c *Coordinator) loadMembers(ctx context.Context, p *models.CanonicalProduct) ([]*models.Listing, error) {
	out := make([]*models.Listing, 0, len(p.Members))
	for _, id := range p.Members {
		l, err := c.store.GetListing(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *Coordinator) notify(ctx context.Context, listing *models.Listing, result models.MergeResult, m models.MergeMutation) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.EmitListingMerged(ctx, listing, result, m.TargetProduct.Version); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to emit listing merged event")
	}
	if m.SourceProduct != nil && m.SourceProduct.Tombstoned {
		if err := c.notifier.EmitProductTombstoned(ctx, m.SourceProduct); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Failed to emit product tombstoned event")
		}
	}
}
