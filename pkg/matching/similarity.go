// Package matching scores how similar two test case records are
package matching

import (
	"fmt"
	"math"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

const (
	// titleKeyShare is the share of the title score taken from the comparison keys.
	// The rest comes from the stored values, so a case-only edit never scores as exact.
	titleKeyShare = 0.9

	weightTolerance = 1e-9
)

// Weights are the per-dimension weights of the composite score
type Weights struct {
	Title    float64 `json:"title" toml:"title"`
	Steps    float64 `json:"steps" toml:"steps"`
	Category float64 `json:"category" toml:"category"`
	Tags     float64 `json:"tags" toml:"tags"`
}

// DefaultWeights returns title 0.5, steps 0.3, category 0.1, tags 0.1
func DefaultWeights() Weights {
	return Weights{Title: 0.5, Steps: 0.3, Category: 0.1, Tags: 0.1}
}

// Validate checks the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"title": w.Title, "steps": w.Steps, "category": w.Category, "tags": w.Tags} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s weight must be between 0 and 1, got %f", name, v)
		}
	}
	if sum := w.Title + w.Steps + w.Category + w.Tags; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// Similarity computes composite similarity scores between records
type Similarity struct {
	weights Weights
	scorer  *Scorer
}

// NewSimilarity creates a Similarity with the given weights
func NewSimilarity(weights Weights) *Similarity {
	return &Similarity{
		weights: weights,
		scorer:  NewScorer(),
	}
}

// Weights returns the weights in use
func (s *Similarity) Weights() Weights {
	return s.weights
}

// Compare scores two records, refusing records without identity or title
func (s *Similarity) Compare(a, b models.Record) (models.SimilarityScore, error) {
	if err := a.Validate(); err != nil {
		return models.SimilarityScore{}, err
	}
	if err := b.Validate(); err != nil {
		return models.SimilarityScore{}, err
	}
	return s.Score(a, b), nil
}

// Score computes the weighted similarity of two records in [0,1].
// A dimension missing on one side scores 0; missing on both sides it scores 1.
// The score is exactly 1 only when every dimension is identical. Categories and tags are
// compared on their comparison keys, so "Auth" and "auth" are the same category; titles keep
// part of their score on the stored text, so a case-only title edit stays below 1.
func (s *Similarity) Score(a, b models.Record) models.SimilarityScore {
	breakdown := models.ScoreBreakdown{
		Title:    s.titleScore(a.Title, b.Title),
		Steps:    s.stepsScore(a.Steps, b.Steps),
		Category: s.categoryScore(a.Category, b.Category),
		Tags:     s.tagsScore(a.Tags, b.Tags),
	}

	if breakdown.Title == 1 && breakdown.Steps == 1 && breakdown.Category == 1 && breakdown.Tags == 1 {
		return models.SimilarityScore{Score: 1, Breakdown: breakdown}
	}

	score := s.weights.Title*breakdown.Title +
		s.weights.Steps*breakdown.Steps +
		s.weights.Category*breakdown.Category +
		s.weights.Tags*breakdown.Tags

	// rounding must never turn a partial match into an exact one
	if score >= 1 {
		score = math.Nextafter(1, 0)
	}
	if score < 0 {
		score = 0
	}

	return models.SimilarityScore{Score: score, Breakdown: breakdown}
}

func (s *Similarity) titleScore(a, b string) float64 {
	surfaceA := normalizers.CollapseWhitespace(a)
	surfaceB := normalizers.CollapseWhitespace(b)
	if surfaceA == surfaceB {
		return 1
	}
	if surfaceA == "" || surfaceB == "" {
		return 0
	}

	keyA := normalizers.ComparisonKey(a)
	keyB := normalizers.ComparisonKey(b)
	var key float64
	if keyA == keyB {
		key = 1
	} else {
		tokens := s.scorer.Jaccard(normalizers.Tokens(a), normalizers.Tokens(b))
		key = (tokens + s.scorer.Levenshtein(keyA, keyB)) / 2
	}

	surface := s.scorer.Levenshtein(surfaceA, surfaceB)
	return clamp(titleKeyShare*key + (1-titleKeyShare)*surface)
}

func (s *Similarity) stepsScore(a, b []models.Step) float64 {
	tokensA := stepTokens(a)
	tokensB := stepTokens(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	return clamp(s.scorer.SequenceSimilarity(tokensA, tokensB))
}

func (s *Similarity) categoryScore(a, b string) float64 {
	keyA := normalizers.ComparisonKey(a)
	keyB := normalizers.ComparisonKey(b)
	if keyA == keyB {
		return 1
	}
	return 0
}

func (s *Similarity) tagsScore(a, b []string) float64 {
	tagsA := normalizers.CanonicalTags(a)
	tagsB := normalizers.CanonicalTags(b)
	if len(tagsA) == 0 && len(tagsB) == 0 {
		return 1
	}
	if len(tagsA) == 0 || len(tagsB) == 0 {
		return 0
	}
	return clamp(s.scorer.Jaccard(tagsA, tagsB))
}

// StepSimilarity scores two step lists on their own
func (s *Similarity) StepSimilarity(a, b []models.Step) float64 {
	return s.stepsScore(a, b)
}

func stepTokens(steps []models.Step) []string {
	var tokens []string
	for _, step := range steps {
		tokens = append(tokens, normalizers.Tokens(step.Description)...)
	}
	return tokens
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
