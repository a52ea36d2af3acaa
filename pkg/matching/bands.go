package matching

// Band is a display classification of a similarity score. Bands never drive
// pipeline decisions; thresholds do.
type Band string

const (
	BandExact  Band = "exact"
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// DisplayBands holds the cut-offs used when presenting scores to reviewers
type DisplayBands struct {
	High   float64 `json:"high" toml:"high"`
	Medium float64 `json:"medium" toml:"medium"`
}

// DefaultDisplayBands returns the 0.95 / 0.75 presentation bands
func DefaultDisplayBands() DisplayBands {
	return DisplayBands{High: 0.95, Medium: 0.75}
}

// Classify returns the display band for a score
func (d DisplayBands) Classify(score float64) Band {
	switch {
	case score >= 1:
		return BandExact
	case score >= d.High:
		return BandHigh
	case score >= d.Medium:
		return BandMedium
	default:
		return BandLow
	}
}
