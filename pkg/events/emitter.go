// Package events handles event emission for catalog lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/scoutalgo/clover/pkg/kafka"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/reqctx"
	"github.com/scoutalgo/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher delivers encoded events; *kafka.Producer implements it
type Publisher interface {
	Publish(ctx context.Context, event *kafka.Event) error
}

// Emitter handles event emission for clover. A nil publisher turns every
// Emit call into a no-op.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) publish(ctx context.Context, eventType EventType, key string, version int, payload any) error {
	if e == nil || e.publisher == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.Event{
		EventType: string(eventType),
		Key:       key,
		RunID:     reqctx.GetRunID(ctx),
		Data:      data,
		Version:   version,
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}

// EmitListingMerged emits a listing merged event keyed by the target product
func (e *Emitter) EmitListingMerged(ctx context.Context, listing *models.Listing, result models.MergeResult, version int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitListingMerged")
	defer span.End()

	return e.publish(ctx, EventTypeListingMerged, result.TargetID, version, &ListingMergedEvent{
		BaseEvent:        NewBaseEvent(EventTypeListingMerged),
		ListingID:        result.ListingID,
		Source:           listing.Source,
		TargetID:         result.TargetID,
		SourceProductID:  result.SourceProductID,
		PriceReplaced:    result.PriceReplaced,
		DisplacedListing: result.DisplacedListing,
	})
}

// EmitProductTombstoned emits a product tombstoned event
func (e *Emitter) EmitProductTombstoned(ctx context.Context, product *models.CanonicalProduct) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitProductTombstoned")
	defer span.End()

	return e.publish(ctx, EventTypeProductTombstoned, product.ID, product.Version, &ProductTombstonedEvent{
		BaseEvent:  NewBaseEvent(EventTypeProductTombstoned),
		ProductID:  product.ID,
		MergedInto: product.MergedInto,
	})
}

// EmitMatchDecided emits a match decided event
func (e *Emitter) EmitMatchDecided(ctx context.Context, d *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchDecided")
	defer span.End()

	return e.publish(ctx, EventTypeMatchDecided, d.ListingID, 1, &MatchDecidedEvent{
		BaseEvent:         NewBaseEvent(EventTypeMatchDecided),
		ListingID:         d.ListingID,
		Verdict:           string(d.Verdict),
		Reason:            d.Reason,
		TargetCanonicalID: d.TargetCanonicalID,
		Confidence:        d.Confidence,
		TopScore:          d.TopScore,
	})
}
