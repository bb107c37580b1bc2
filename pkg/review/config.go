package review

import (
	"errors"
	"fmt"
)

// Config holds the review pass thresholds. They are deliberately stricter
// than the matcher's own and are tuned independently.
type Config struct {
	NameStrictThreshold   float64 `mapstructure:"name_strict" validate:"gte=0,lte=1"`
	NameOKThreshold       float64 `mapstructure:"name_ok" validate:"gte=0,lte=1"`
	NameLowThreshold      float64 `mapstructure:"name_low" validate:"gte=0,lte=1"`
	WeightToleranceAbs    float64 `mapstructure:"weight_tolerance_abs" validate:"gte=0"`
	WeightToleranceRatio  float64 `mapstructure:"weight_tolerance_ratio" validate:"gte=0,lte=1"`
	RequireBrandIfPresent bool    `mapstructure:"require_brand_if_present"`
}

func DefaultConfig() Config {
	return Config{
		NameStrictThreshold:   0.85,
		NameOKThreshold:       0.75,
		NameLowThreshold:      0.45,
		WeightToleranceAbs:    200,
		WeightToleranceRatio:  0.3,
		RequireBrandIfPresent: true,
	}
}

var ErrInvalidConfig = errors.New("invalid review configuration")

// Validate requires low <= ok <= strict
func (c Config) Validate() error {
	if c.NameLowThreshold > c.NameOKThreshold || c.NameOKThreshold > c.NameStrictThreshold {
		return fmt.Errorf("%w: name thresholds must satisfy low <= ok <= strict (%.2f, %.2f, %.2f)",
			ErrInvalidConfig, c.NameLowThreshold, c.NameOKThreshold, c.NameStrictThreshold)
	}
	if c.WeightToleranceAbs < 0 || c.WeightToleranceRatio < 0 {
		return fmt.Errorf("%w: weight tolerances must not be negative", ErrInvalidConfig)
	}
	return nil
}
