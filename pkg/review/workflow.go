// Package review applies reviewer decisions to the conflicts of a batch run
package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Workflow moves conflicts from pending to merged, kept_both or skipped.
// Every transition is final.
type Workflow struct {
	resolver *merging.Resolver
	logger   ectologger.Logger
	newID    func() string
}

// NewWorkflow creates a new Workflow
func NewWorkflow(resolver *merging.Resolver, logger ectologger.Logger) *Workflow {
	return &Workflow{
		resolver: resolver,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// Resolve applies resolutions to the pending conflicts of run and returns the updated run.
// The input run is not modified. A resolution that fails leaves its conflict pending and
// is reported in the returned errors; the others are still applied. Any subset of the
// pending conflicts may be resolved; the rest stay pending.
func (w *Workflow) Resolve(ctx context.Context, run *models.BatchRun, resolutions []models.Resolution) (*models.BatchRun, []models.ItemError) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.Resolve")
	defer span.End()

	out := run.Clone()
	var errs []models.ItemError

	log := w.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    run.ID,
		"resolutions": len(resolutions),
	})

	for i, res := range resolutions {
		if err := w.apply(out, res); err != nil {
			log.WithError(err).WithField("conflict_id", res.ConflictID).Warn("Resolution rejected")
			errs = append(errs, models.NewItemError(i, "", res.ConflictID, err))
			continue
		}
		log.WithFields(map[string]any{
			"conflict_id": res.ConflictID,
			"action":      res.Action,
		}).Debug("Resolution applied")
	}

	out.Result.PendingConflicts = out.Pending()

	log.WithFields(map[string]any{
		"pending":  len(out.Result.PendingConflicts),
		"rejected": len(errs),
	}).Info("Resolutions applied")

	return out, errs
}

func (w *Workflow) apply(run *models.BatchRun, res models.Resolution) error {
	conflict, ok := run.Conflict(res.ConflictID)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownConflictReference, res.ConflictID)
	}
	if conflict.Status != models.ConflictStatusPending {
		return fmt.Errorf("%w: conflict %s is already %s", models.ErrUnknownConflictReference, res.ConflictID, conflict.Status)
	}

	switch res.Action {
	case models.ResolutionMerge:
		return w.merge(run, conflict, res)
	case models.ResolutionKeepBoth:
		w.keepBoth(run, conflict)
		return nil
	case models.ResolutionSkip:
		conflict.Status = models.ConflictStatusSkipped
		conflict.Resolution = &models.Resolution{ConflictID: conflict.ID, Action: models.ResolutionSkip}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", models.ErrInvalidResolution, res.Action)
	}
}

// merge folds the incoming record into the current pool entry. A reviewer supplied
// result decides the content; otherwise the merge resolver must resolve every field.
func (w *Workflow) merge(run *models.BatchRun, conflict *models.MergeConflict, res models.Resolution) error {
	idx := run.PoolIndex(conflict.Existing.ID)
	if idx < 0 {
		return fmt.Errorf("%w: record %s is no longer in the pool", models.ErrUnknownConflictReference, conflict.Existing.ID)
	}
	current := run.Pool[idx]

	var merged models.Record
	if res.Result != nil {
		merged = w.applyReviewed(current, conflict.Incoming, *res.Result)
		if err := merged.Validate(); err != nil {
			return err
		}
	} else {
		var unresolved []string
		var err error
		merged, unresolved, err = w.resolver.Merge(current, conflict.Incoming)
		if err != nil {
			return err
		}
		if len(unresolved) > 0 {
			return fmt.Errorf("%w: unresolved fields %s", models.ErrIrreconcilableMerge, strings.Join(unresolved, ", "))
		}
	}

	merged.Provenance.ConflictID = conflict.ID
	run.Pool[idx] = merged
	run.RecordChange(models.PoolChangeUpdated, merged, current.Version)
	run.Result.AutoMergedCount++

	result := merged.Clone()
	conflict.Status = models.ConflictStatusMerged
	conflict.Resolution = &models.Resolution{ConflictID: conflict.ID, Action: models.ResolutionMerge, Result: &result}
	return nil
}

// applyReviewed takes content from the reviewer's record and identity from the current one
func (w *Workflow) applyReviewed(current, incoming, reviewed models.Record) models.Record {
	reviewed = normalizers.NormalizeRecord(reviewed)

	merged := current.Clone()
	merged.Title = reviewed.Title
	merged.Category = reviewed.Category
	merged.Priority = reviewed.Priority
	merged.Steps = reviewed.Steps
	merged.Remarks = reviewed.Remarks
	merged.Owner = reviewed.Owner
	merged.Tags = reviewed.Tags
	merged.References = reviewed.References
	merged.Version = current.Version + 1
	if incoming.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	merged.Provenance.SourceIDs = normalizers.CanonicalSet(append(append([]string{}, current.Provenance.SourceIDs...), incoming.ID))
	return merged
}

func (w *Workflow) keepBoth(run *models.BatchRun, conflict *models.MergeConflict) {
	rec := conflict.Incoming.Clone()
	rec.ID = w.newID()
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = run.CreatedAt
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.Provenance = models.Provenance{
		SourceIDs:  normalizers.CanonicalSet(append(append([]string{}, conflict.Incoming.Provenance.SourceIDs...), conflict.Incoming.ID)),
		ConflictID: conflict.ID,
		Note:       fmt.Sprintf("kept alongside %s", conflict.Existing.ID),
	}

	run.Pool = append(run.Pool, rec)
	run.RecordChange(models.PoolChangeCreated, rec, 0)
	run.Result.SavedCount++

	conflict.Status = models.ConflictStatusKeptBoth
	conflict.Resolution = &models.Resolution{ConflictID: conflict.ID, Action: models.ResolutionKeepBoth}
}
