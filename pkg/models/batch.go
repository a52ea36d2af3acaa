package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how aggressively a batch is deduplicated
type Mode string

const (
	// ModeOff saves every record without comparing
	ModeOff Mode = "off"
	// ModeStrict drops exact duplicates only
	ModeStrict Mode = "strict"
	// ModeSmart drops exact duplicates, auto-merges near duplicates and raises conflicts for the rest
	ModeSmart Mode = "smart"
)

// ParseMode parses a mode name. An empty name is smart.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSmart:
		return ModeSmart, nil
	case ModeStrict:
		return ModeStrict, nil
	case ModeOff:
		return ModeOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// BatchResult is the aggregate outcome of a batch run
type BatchResult struct {
	SavedCount          int             `json:"saved_count" yaml:"saved_count"`
	ExactDuplicateCount int             `json:"exact_duplicate_count" yaml:"exact_duplicate_count"`
	AutoMergedCount     int             `json:"auto_merged_count" yaml:"auto_merged_count"`
	// ReviewRequiredCount counts the conflicts the run raised, not the ones still outstanding
	ReviewRequiredCount int             `json:"review_required_count" yaml:"review_required_count"`
	PendingConflicts    []MergeConflict `json:"pending_conflicts" yaml:"pending_conflicts"`
}

// PoolChangeAction describes how a pool entry changed
type PoolChangeAction string

// PoolChangeAction constants
const (
	PoolChangeCreated PoolChangeAction = "created"
	PoolChangeUpdated PoolChangeAction = "updated"
)

// PoolChange is a single pending write against the stored pool
type PoolChange struct {
	Action      PoolChangeAction `json:"action" yaml:"action"`
	RecordID    string           `json:"record_id" yaml:"record_id"`
	Record      Record           `json:"record" yaml:"record"`
	// BaseVersion is the stored version the update was computed from. Zero for creates.
	BaseVersion int              `json:"base_version,omitempty" yaml:"base_version,omitempty"`
}

// BatchRun is the serializable state of one batch: its result, every conflict raised,
// the working pool and the changes that would be committed.
type BatchRun struct {
	ID        string          `json:"id" yaml:"id"`
	ProjectID string          `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Mode      Mode            `json:"mode" yaml:"mode"`
	Result    BatchResult     `json:"result" yaml:"result"`
	Conflicts []MergeConflict `json:"conflicts" yaml:"conflicts"`
	Pool      []Record        `json:"pool" yaml:"pool"`
	Changes   []PoolChange    `json:"changes" yaml:"changes"`
	Errors    []ItemError     `json:"errors,omitempty" yaml:"errors,omitempty"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy of the run
func (b *BatchRun) Clone() *BatchRun {
	out := *b
	out.Pool = CloneRecords(b.Pool)
	out.Conflicts = cloneConflicts(b.Conflicts)
	out.Result.PendingConflicts = cloneConflicts(b.Result.PendingConflicts)
	if b.Changes != nil {
		out.Changes = make([]PoolChange, len(b.Changes))
		for i, c := range b.Changes {
			c.Record = c.Record.Clone()
			out.Changes[i] = c
		}
	}
	if b.Errors != nil {
		out.Errors = make([]ItemError, len(b.Errors))
		copy(out.Errors, b.Errors)
	}
	return &out
}

// Conflict returns the conflict with the given id
func (b *BatchRun) Conflict(id string) (*MergeConflict, bool) {
	for i := range b.Conflicts {
		if b.Conflicts[i].ID == id {
			return &b.Conflicts[i], true
		}
	}
	return nil, false
}

// Pending returns the conflicts still awaiting a decision
func (b *BatchRun) Pending() []MergeConflict {
	out := make([]MergeConflict, 0)
	for _, c := range b.Conflicts {
		if c.Status == ConflictStatusPending {
			out = append(out, c)
		}
	}
	return out
}

// PoolIndex returns the position of a record in the working pool or -1
func (b *BatchRun) PoolIndex(id string) int {
	for i := range b.Pool {
		if b.Pool[i].ID == id {
			return i
		}
	}
	return -1
}

// RecordChange appends a pool change, collapsing repeated writes to the same record.
// baseVersion is the version of the pool entry before this write; the first write to a
// record fixes it for the collapsed change.
func (b *BatchRun) RecordChange(action PoolChangeAction, record Record, baseVersion int) {
	if action == PoolChangeCreated {
		baseVersion = 0
	}
	for i := range b.Changes {
		if b.Changes[i].RecordID == record.ID {
			prev := b.Changes[i]
			// a record created in this batch stays a create
			if prev.Action == PoolChangeCreated {
				action = PoolChangeCreated
			}
			b.Changes[i] = PoolChange{Action: action, RecordID: record.ID, Record: record.Clone(), BaseVersion: prev.BaseVersion}
			return
		}
	}
	b.Changes = append(b.Changes, PoolChange{Action: action, RecordID: record.ID, Record: record.Clone(), BaseVersion: baseVersion})
}

func cloneConflicts(in []MergeConflict) []MergeConflict {
	if in == nil {
		return nil
	}
	out := make([]MergeConflict, len(in))
	for i, c := range in {
		c.Incoming = c.Incoming.Clone()
		c.Existing = c.Existing.Clone()
		if c.FieldConflicts != nil {
			c.FieldConflicts = append([]FieldConflict(nil), c.FieldConflicts...)
		}
		c.Unresolved = cloneStrings(c.Unresolved)
		if c.Resolution != nil {
			res := *c.Resolution
			if res.Result != nil {
				r := res.Result.Clone()
				res.Result = &r
			}
			c.Resolution = &res
		}
		out[i] = c
	}
	return out
}
