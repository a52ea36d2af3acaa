package models

// ConflictStatus is the review state of a merge conflict
type ConflictStatus string

// ConflictStatus constants
const (
	ConflictStatusPending  ConflictStatus = "pending"
	ConflictStatusMerged   ConflictStatus = "merged"
	ConflictStatusKeptBoth ConflictStatus = "kept_both"
	ConflictStatusSkipped  ConflictStatus = "skipped"
)

// IsTerminal reports whether no further transition is allowed
func (s ConflictStatus) IsTerminal() bool {
	return s == ConflictStatusMerged || s == ConflictStatusKeptBoth || s == ConflictStatusSkipped
}

// ResolutionAction is the reviewer's decision on a conflict
type ResolutionAction string

// ResolutionAction constants
const (
	ResolutionMerge    ResolutionAction = "merge"
	ResolutionKeepBoth ResolutionAction = "keep_both"
	ResolutionSkip     ResolutionAction = "skip"
)

// FieldConflict is a single field that differs between the two sides of a conflict
type FieldConflict struct {
	Field         string `json:"field" yaml:"field"`
	ExistingValue string `json:"existing_value" yaml:"existing_value"`
	IncomingValue string `json:"incoming_value" yaml:"incoming_value"`
}

// MergeConflict is an incoming/existing pair awaiting a human decision
type MergeConflict struct {
	ID             string          `json:"id" yaml:"id"`
	Incoming       Record          `json:"incoming" yaml:"incoming"`
	Existing       Record          `json:"existing" yaml:"existing"`
	Similarity     SimilarityScore `json:"similarity" yaml:"similarity"`
	FieldConflicts []FieldConflict `json:"field_conflicts,omitempty" yaml:"field_conflicts,omitempty"`
	// Unresolved lists the fields the merge resolver could not decide, if a merge was attempted.
	Unresolved []string       `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Status     ConflictStatus `json:"status" yaml:"status"`
	Resolution *Resolution    `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// Resolution is a reviewer decision against a pending conflict
type Resolution struct {
	ConflictID string           `json:"conflict_id" yaml:"conflict_id" validate:"required"`
	Action     ResolutionAction `json:"action" yaml:"action" validate:"required"`
	// Result is only meaningful for merge; when set it is the reviewer's merged content.
	Result *Record `json:"result,omitempty" yaml:"result,omitempty"`
}
