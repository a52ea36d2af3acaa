// Package merging folds an incoming test case into an existing one
package merging

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Config holds merge resolver tuning
type Config struct {
	// LengthTolerance is the fraction of the longer text within which two different
	// values are equally detailed and therefore ambiguous.
	LengthTolerance float64 `json:"length_tolerance" toml:"length_tolerance"`
	// StepConfidence is the step similarity below which step lists are not merged automatically.
	StepConfidence float64 `json:"step_confidence" toml:"step_confidence"`
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() Config {
	return Config{
		LengthTolerance: 0.1,
		StepConfidence:  0.97,
	}
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.LengthTolerance < 0 || c.LengthTolerance >= 1 {
		return fmt.Errorf("length_tolerance must be in [0, 1), got %f", c.LengthTolerance)
	}
	if c.StepConfidence < 0 || c.StepConfidence > 1 {
		return fmt.Errorf("step_confidence must be in [0, 1], got %f", c.StepConfidence)
	}
	return nil
}

// Resolver merges two similar records
type Resolver struct {
	cfg        Config
	fields     *FieldMerger
	similarity *matching.Similarity
}

// NewResolver creates a new Resolver
func NewResolver(cfg Config, similarity *matching.Similarity) *Resolver {
	return &Resolver{
		cfg:        cfg,
		fields:     NewFieldMerger(cfg.LengthTolerance),
		similarity: similarity,
	}
}

// Merge folds incoming into existing. The merged record keeps the existing identity
// and creation time and carries version existing+1. Fields that cannot be decided
// without losing information are returned as unresolved and keep the existing value.
//
// Merge is pure: re-merging the same incoming record changes nothing but the version.
func (r *Resolver) Merge(existing, incoming models.Record) (models.Record, []string, error) {
	if err := existing.Validate(); err != nil {
		return models.Record{}, nil, fmt.Errorf("existing record: %w", err)
	}
	if err := incoming.Validate(); err != nil {
		return models.Record{}, nil, fmt.Errorf("incoming record: %w", err)
	}

	var unresolved []string
	text := func(field, a, b string) string {
		v, ok := r.fields.MergeText(a, b)
		if !ok {
			unresolved = append(unresolved, field)
		}
		return v
	}

	merged := models.Record{
		ID:        existing.ID,
		ProjectID: r.fields.PreferExisting(existing.ProjectID, incoming.ProjectID),
		Version:   existing.Version + 1,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: r.fields.Later(existing.UpdatedAt, incoming.UpdatedAt),
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = incoming.CreatedAt
	}

	merged.Title = text(models.FieldTitle, existing.Title, incoming.Title)
	merged.Category = text(models.FieldCategory, existing.Category, incoming.Category)

	priority, ok := r.fields.MergeEnum(string(existing.Priority), string(incoming.Priority))
	if !ok {
		unresolved = append(unresolved, models.FieldPriority)
	}
	merged.Priority = models.Priority(priority)

	steps, ok := r.fields.MergeSteps(existing.Steps, incoming.Steps, r.similarity.StepSimilarity(existing.Steps, incoming.Steps), r.cfg.StepConfidence)
	if !ok {
		unresolved = append(unresolved, models.FieldSteps)
	}
	merged.Steps = steps

	merged.Remarks = text(models.FieldRemarks, existing.Remarks, incoming.Remarks)
	merged.Owner = r.fields.PreferExisting(existing.Owner, incoming.Owner)
	merged.Tags = r.fields.Union(normalizers.Tag, existing.Tags, incoming.Tags)
	merged.References = r.fields.Union(normalizers.CollapseWhitespace, existing.References, incoming.References)
	merged.Provenance = r.mergeProvenance(existing, incoming)

	return merged, unresolved, nil
}

func (r *Resolver) mergeProvenance(existing, incoming models.Record) models.Provenance {
	sources := [][]string{existing.Provenance.SourceIDs, incoming.Provenance.SourceIDs}
	if incoming.ID != existing.ID {
		sources = append(sources, []string{incoming.ID})
	}
	return models.Provenance{
		SourceIDs:  r.fields.Union(strings.TrimSpace, sources...),
		ConflictID: r.fields.PreferExisting(existing.Provenance.ConflictID, incoming.Provenance.ConflictID),
		Note:       r.fields.PreferExisting(existing.Provenance.Note, incoming.Provenance.Note),
	}
}

// FieldConflicts lists every field whose values differ between the two records,
// rendered for a reviewer.
func (r *Resolver) FieldConflicts(existing, incoming models.Record) []models.FieldConflict {
	var out []models.FieldConflict
	add := func(field, a, b string) {
		if normalizers.ComparisonKey(a) != normalizers.ComparisonKey(b) || normalizers.CollapseWhitespace(a) != normalizers.CollapseWhitespace(b) {
			out = append(out, models.FieldConflict{Field: field, ExistingValue: a, IncomingValue: b})
		}
	}

	add(models.FieldTitle, existing.Title, incoming.Title)
	add(models.FieldCategory, existing.Category, incoming.Category)
	add(models.FieldPriority, string(existing.Priority), string(incoming.Priority))
	add(models.FieldSteps, RenderSteps(existing.Steps), RenderSteps(incoming.Steps))
	add(models.FieldRemarks, existing.Remarks, incoming.Remarks)
	add(models.FieldOwner, existing.Owner, incoming.Owner)
	add(models.FieldTags, strings.Join(normalizers.CanonicalTags(existing.Tags), ", "), strings.Join(normalizers.CanonicalTags(incoming.Tags), ", "))
	add(models.FieldReferences, strings.Join(existing.References, ", "), strings.Join(incoming.References, ", "))
	return out
}

// RenderSteps renders a step list as numbered lines
func RenderSteps(steps []models.Step) string {
	lines := make([]string, 0, len(steps))
	for i, s := range steps {
		line := fmt.Sprintf("%d. %s", i+1, s.Description)
		if s.TestData != "" {
			line += fmt.Sprintf(" [data: %s]", s.TestData)
		}
		if s.Expected != "" {
			line += fmt.Sprintf(" => %s", s.Expected)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
