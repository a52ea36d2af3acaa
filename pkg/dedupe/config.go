package dedupe

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
)

// Thresholds are the score boundaries that classify a best match
type Thresholds struct {
	// Exact is the score at or above which the record is an exact duplicate
	Exact float64 `json:"exact" toml:"exact" env:"CLOVER_DEDUPE_EXACT_THRESHOLD"`
	// AutoMerge is the score at or above which the pipeline merges without review
	AutoMerge float64 `json:"auto_merge" toml:"auto_merge" env:"CLOVER_DEDUPE_AUTO_MERGE_THRESHOLD"`
	// Review is the score at or above which a pair needs a human decision. Below it
	// the records are unrelated.
	Review float64 `json:"review" toml:"review" env:"CLOVER_DEDUPE_REVIEW_THRESHOLD"`
}

// DefaultThresholds returns exact 1.0, auto-merge 0.97, review 0.88
func DefaultThresholds() Thresholds {
	return Thresholds{
		Exact:     1.0,
		AutoMerge: 0.97,
		Review:    0.88,
	}
}

// Config holds the pipeline configuration
type Config struct {
	Thresholds Thresholds            `json:"thresholds" toml:"thresholds"`
	Weights    matching.Weights      `json:"weights" toml:"weights"`
	Merge      merging.Config        `json:"merge" toml:"merge"`
	Bands      matching.DisplayBands `json:"bands" toml:"bands"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Weights:    matching.DefaultWeights(),
		Merge:      merging.DefaultConfig(),
		Bands:      matching.DefaultDisplayBands(),
	}
}

// Validate checks that the configuration values are within acceptable ranges
func (c Config) Validate() error {
	t := c.Thresholds
	if t.Review < 0 || t.Review > 1 {
		return fmt.Errorf("review threshold must be between 0 and 1, got %f", t.Review)
	}
	if t.AutoMerge < 0 || t.AutoMerge > 1 {
		return fmt.Errorf("auto-merge threshold must be between 0 and 1, got %f", t.AutoMerge)
	}
	if t.Exact <= 0 || t.Exact > 1 {
		return fmt.Errorf("exact threshold must be in (0, 1], got %f", t.Exact)
	}
	if t.Review > t.AutoMerge {
		return fmt.Errorf("review threshold (%f) must not exceed auto-merge threshold (%f)", t.Review, t.AutoMerge)
	}
	if t.AutoMerge > t.Exact {
		return fmt.Errorf("auto-merge threshold (%f) must not exceed exact threshold (%f)", t.AutoMerge, t.Exact)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Merge.Validate(); err != nil {
		return err
	}
	if c.Bands.Medium > c.Bands.High {
		return fmt.Errorf("medium display band (%f) must not exceed high band (%f)", c.Bands.Medium, c.Bands.High)
	}
	return nil
}
