package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord is returned when a record is missing its identity or title
	ErrInvalidRecord = errors.New("invalid record")
	// ErrIrreconcilableMerge is returned when a merge would lose information
	ErrIrreconcilableMerge = errors.New("irreconcilable merge")
	// ErrUnknownConflictReference is returned when a resolution names no pending conflict
	ErrUnknownConflictReference = errors.New("unknown conflict reference")
	// ErrInvalidResolution is returned for a resolution with an unknown action
	ErrInvalidResolution = errors.New("invalid resolution")
	// ErrInvalidMode is returned for an unknown deduplication mode
	ErrInvalidMode = errors.New("invalid mode")
)

// ItemErrorKind classifies a per-item failure
type ItemErrorKind string

// ItemErrorKind constants
const (
	ItemErrorInvalidRecord       ItemErrorKind = "invalid_record"
	ItemErrorIrreconcilableMerge ItemErrorKind = "irreconcilable_merge"
	ItemErrorUnknownConflict     ItemErrorKind = "unknown_conflict_reference"
	ItemErrorInvalidResolution   ItemErrorKind = "invalid_resolution"
	ItemErrorInternal            ItemErrorKind = "internal"
)

// ItemError is a failure of a single record or resolution. It never aborts the batch.
type ItemError struct {
	Index      int           `json:"index" yaml:"index"`
	RecordID   string        `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	ConflictID string        `json:"conflict_id,omitempty" yaml:"conflict_id,omitempty"`
	Kind       ItemErrorKind `json:"kind" yaml:"kind"`
	Message    string        `json:"message" yaml:"message"`

	err error
}

// NewItemError builds an ItemError, deriving its kind from err
func NewItemError(index int, recordID, conflictID string, err error) ItemError {
	return ItemError{
		Index:      index,
		RecordID:   recordID,
		ConflictID: conflictID,
		Kind:       kindOf(err),
		Message:    err.Error(),
		err:        err,
	}
}

func (e ItemError) Error() string {
	switch {
	case e.ConflictID != "":
		return fmt.Sprintf("item %d (conflict %s): %s", e.Index, e.ConflictID, e.Message)
	case e.RecordID != "":
		return fmt.Sprintf("item %d (record %s): %s", e.Index, e.RecordID, e.Message)
	default:
		return fmt.Sprintf("item %d: %s", e.Index, e.Message)
	}
}

// Unwrap returns the underlying error. It is lost once the item error is serialized.
func (e ItemError) Unwrap() error {
	if e.err != nil {
		return e.err
	}
	switch e.Kind {
	case ItemErrorInvalidRecord:
		return ErrInvalidRecord
	case ItemErrorIrreconcilableMerge:
		return ErrIrreconcilableMerge
	case ItemErrorUnknownConflict:
		return ErrUnknownConflictReference
	case ItemErrorInvalidResolution:
		return ErrInvalidResolution
	}
	return nil
}

func kindOf(err error) ItemErrorKind {
	switch {
	case errors.Is(err, ErrInvalidRecord):
		return ItemErrorInvalidRecord
	case errors.Is(err, ErrIrreconcilableMerge):
		return ItemErrorIrreconcilableMerge
	case errors.Is(err, ErrUnknownConflictReference):
		return ItemErrorUnknownConflict
	case errors.Is(err, ErrInvalidResolution):
		return ItemErrorInvalidResolution
	default:
		return ItemErrorInternal
	}
}
