package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MappingState is the lifecycle stage of a listing within the matching pipeline
type MappingState string

const (
	// MappingStatePending means the listing has not been matched yet
	MappingStatePending MappingState = "pending"
	// MappingStateMatched means another listing was merged into this listing's product
	MappingStateMatched MappingState = "matched"
	// MappingStateMergedIntoParent means the listing was merged into another canonical product
	MappingStateMergedIntoParent MappingState = "merged_into_parent"
)

var ErrInvalidMappingStatus = errors.New("invalid mapping status")

// MappingStatus is a tagged variant. MergedInto is only meaningful for
// MappingStateMergedIntoParent; use the constructors to build values.
type MappingStatus struct {
	State      MappingState `json:"state" db:"mapping_state"`
	MergedInto string       `json:"merged_into,omitempty" db:"merged_into"`
}

func Pending() MappingStatus {
	return MappingStatus{State: MappingStatePending}
}

func Matched() MappingStatus {
	return MappingStatus{State: MappingStateMatched}
}

func MergedInto(target string) MappingStatus {
	return MappingStatus{State: MappingStateMergedIntoParent, MergedInto: target}
}

// IsPending reports whether the listing can still be used as a matching query
func (s MappingStatus) IsPending() bool {
	return s.State == MappingStatePending
}

// IsMerged reports whether the listing has been merged into another product
func (s MappingStatus) IsMerged() bool {
	return s.State == MappingStateMergedIntoParent
}

// Validate rejects status combinations the constructors never produce
func (s MappingStatus) Validate() error {
	switch s.State {
	case MappingStatePending, MappingStateMatched:
		if s.MergedInto != "" {
			return fmt.Errorf("%w: %s status carries merge target", ErrInvalidMappingStatus, s.State)
		}
	case MappingStateMergedIntoParent:
		if s.MergedInto == "" {
			return fmt.Errorf("%w: merged status without target", ErrInvalidMappingStatus)
		}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidMappingStatus, s.State)
	}
	return nil
}

// CanAdvanceTo enforces forward-only transitions:
// pending -> matched, pending -> merged_into_parent.
func (s MappingStatus) CanAdvanceTo(next MappingStatus) bool {
	if s.State != MappingStatePending {
		return false
	}
	return next.State == MappingStateMatched || next.State == MappingStateMergedIntoParent
}

func (s MappingStatus) String() string {
	if s.State == MappingStateMergedIntoParent {
		return fmt.Sprintf("%s(%s)", s.State, s.MergedInto)
	}
	return string(s.State)
}

// Listing is one source's record of a product. Everything except Status and
// CanonicalID is fixed at ingestion.
type Listing struct {
	ID             string           `json:"id" db:"id" validate:"required"`
	Source         string           `json:"source" db:"source" validate:"required"`
	Name           string           `json:"name" db:"name" validate:"required"`
	Brand          string           `json:"brand,omitempty" db:"brand"`
	CategoryPath   []string         `json:"category_path,omitempty" db:"-"`
	QuantityValue  *float64         `json:"quantity_value,omitempty" db:"quantity_value" validate:"omitempty,gt=0"`
	QuantityUnit   string           `json:"quantity_unit,omitempty" db:"quantity_unit"`
	QuantityText   string           `json:"quantity_text,omitempty" db:"quantity_text"`
	Price          decimal.Decimal  `json:"price" db:"price"`
	OriginalPrice  *decimal.Decimal `json:"original_price,omitempty" db:"original_price"`
	SourceNativeID string           `json:"source_native_id" db:"source_native_id" validate:"required"`
	SourceURL      string           `json:"source_url,omitempty" db:"source_url"`
	Available      bool             `json:"available" db:"available"`
	IngestedAt     time.Time        `json:"ingested_at" db:"ingested_at"`
	CanonicalID    string           `json:"canonical_id" db:"canonical_id"`
	Status         MappingStatus    `json:"status" db:"-"`
}

// IngestedBefore orders listings by ingestion time, ties broken by ID
func (l *Listing) IngestedBefore(other *Listing) bool {
	if !l.IngestedAt.Equal(other.IngestedAt) {
		return l.IngestedAt.Before(other.IngestedAt)
	}
	return l.ID < other.ID
}

// DiscountPercent returns the rounded discount relative to the original price, or 0
func (l *Listing) DiscountPercent() int {
	if l.OriginalPrice == nil || !l.OriginalPrice.IsPositive() || !l.Price.LessThan(*l.OriginalPrice) {
		return 0
	}
	off := l.OriginalPrice.Sub(l.Price).Div(*l.OriginalPrice).Mul(decimal.NewFromInt(100))
	return int(off.Round(0).IntPart())
}

// PriceEntry builds the price entry this listing contributes to its product
func (l *Listing) PriceEntry() PriceEntry {
	return PriceEntry{
		ListingID:      l.ID,
		Source:         l.Source,
		Price:          l.Price,
		OriginalPrice:  l.OriginalPrice,
		Available:      l.Available,
		URL:            l.SourceURL,
		SourceNativeID: l.SourceNativeID,
		ObservedAt:     l.IngestedAt,
	}
}
