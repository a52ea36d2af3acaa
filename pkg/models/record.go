package models

import (
	"time"
)

// Priority is the execution priority of a test case
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Record field names as they appear in conflicts and merge results
const (
	FieldTitle      = "title"
	FieldCategory   = "category"
	FieldPriority   = "priority"
	FieldSteps      = "steps"
	FieldRemarks    = "remarks"
	FieldOwner      = "owner"
	FieldTags       = "tags"
	FieldReferences = "references"
)

// Step is a single test step
type Step struct {
	Description string `json:"description" yaml:"description"`
	TestData    string `json:"test_data,omitempty" yaml:"test_data,omitempty"`
	Expected    string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// Provenance records which source records contributed to a record
type Provenance struct {
	SourceIDs  []string `json:"source_ids,omitempty" yaml:"source_ids,omitempty"`
	ConflictID string   `json:"conflict_id,omitempty" yaml:"conflict_id,omitempty"`
	Note       string   `json:"note,omitempty" yaml:"note,omitempty"`
}

// IsEmpty reports whether no provenance has been recorded
func (p Provenance) IsEmpty() bool {
	return len(p.SourceIDs) == 0 && p.ConflictID == "" && p.Note == ""
}

// Record is a normalized test case, the unit of comparison
type Record struct {
	ID         string     `json:"id" yaml:"id" validate:"required"`
	ProjectID  string     `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Title      string     `json:"title" yaml:"title" validate:"required"`
	Category   string     `json:"category,omitempty" yaml:"category,omitempty"`
	Priority   Priority   `json:"priority,omitempty" yaml:"priority,omitempty" validate:"omitempty,oneof=critical high medium low"`
	Steps      []Step     `json:"steps,omitempty" yaml:"steps,omitempty"`
	Remarks    string     `json:"remarks,omitempty" yaml:"remarks,omitempty"`
	Owner      string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	References []string   `json:"references,omitempty" yaml:"references,omitempty"`
	Version    int        `json:"version" yaml:"version"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	Provenance Provenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := r
	if r.Steps != nil {
		out.Steps = make([]Step, len(r.Steps))
		copy(out.Steps, r.Steps)
	}
	out.Tags = cloneStrings(r.Tags)
	out.References = cloneStrings(r.References)
	out.Provenance.SourceIDs = cloneStrings(r.Provenance.SourceIDs)
	return out
}

// StepDescriptions returns the step descriptions in order
func (r Record) StepDescriptions() []string {
	out := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Description)
	}
	return out
}

// CloneRecords deep copies a slice of records
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ScoreBreakdown holds the per-dimension sub-scores of a comparison
type ScoreBreakdown struct {
	Title    float64 `json:"title"`
	Steps    float64 `json:"steps"`
	Category float64 `json:"category"`
	Tags     float64 `json:"tags"`
}

// SimilarityScore is the composite similarity of two records
type SimilarityScore struct {
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}
