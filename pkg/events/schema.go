package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeListingMerged     EventType = "listing.merged"
	EventTypeProductTombstoned EventType = "product.tombstoned"
	EventTypeMatchDecided      EventType = "match.decided"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ListingMergedEvent is emitted when a listing joins another canonical product
type ListingMergedEvent struct {
	BaseEvent
	ListingID        string `json:"listing_id"`
	Source           string `json:"source"`
	TargetID         string `json:"target_id"`
	SourceProductID  string `json:"source_product_id,omitempty"`
	PriceReplaced    bool   `json:"price_replaced"`
	DisplacedListing string `json:"displaced_listing,omitempty"`
}

// ProductTombstonedEvent is emitted when a product loses its last member
type ProductTombstonedEvent struct {
	BaseEvent
	ProductID  string `json:"product_id"`
	MergedInto string `json:"merged_into"`
}

// MatchDecidedEvent is emitted for every recorded match decision
type MatchDecidedEvent struct {
	BaseEvent
	ListingID         string `json:"listing_id"`
	Verdict           string `json:"verdict"`
	Reason            string `json:"reason"`
	TargetCanonicalID string `json:"target_canonical_id,omitempty"`
	Confidence        int    `json:"confidence"`
	TopScore          int    `json:"top_score"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
