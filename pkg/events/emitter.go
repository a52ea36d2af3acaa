// Package events turns committed batch runs and review decisions into test case lifecycle events
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Event types
const (
	TestCaseCreated  = "testcase.created"
	TestCaseMerged   = "testcase.merged"
	ImportCommitted  = "import.committed"
	ConflictResolved = "conflict.resolved"
)

// Publisher sends events to the event stream
type Publisher interface {
	PublishEvents(ctx context.Context, events []*kafka.Event) error
}

// Emitter handles event emission for committed imports and review decisions
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewEmitter creates a new event emitter. A nil publisher discards every event.
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EmitCommitted emits one event per written record followed by the batch summary
func (e *Emitter) EmitCommitted(ctx context.Context, run *models.BatchRun, changes []models.PoolChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCommitted")
	defer span.End()

	events := ChangeEvents(run.ProjectID, run.ID, changes)
	events = append(events, committedEvent(run))

	return e.emit(ctx, events)
}

// EmitResolved emits a conflict.resolved event for each conflict of after that was pending in before,
// plus one event per record the decisions wrote
func (e *Emitter) EmitResolved(ctx context.Context, before, after *models.BatchRun, changes []models.PoolChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolved")
	defer span.End()

	events := ChangeEvents(after.ProjectID, after.ID, changes)
	events = append(events, ResolutionEvents(before, after)...)

	return e.emit(ctx, events)
}

func (e *Emitter) emit(ctx context.Context, events []*kafka.Event) error {
	if e.publisher == nil || len(events) == 0 {
		return nil
	}

	now := e.now()
	for _, ev := range events {
		ev.Timestamp = now
	}

	if err := e.publisher.PublishEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %d events", len(events))
		return fmt.Errorf("failed to emit events: %w", err)
	}
	return nil
}

// ChangeEvents maps pool changes to testcase.created and testcase.merged events
func ChangeEvents(projectID, batchID string, changes []models.PoolChange) []*kafka.Event {
	events := make([]*kafka.Event, 0, len(changes)+1)
	for _, change := range changes {
		eventType := TestCaseMerged
		if change.Action == models.PoolChangeCreated {
			eventType = TestCaseCreated
		}

		data, _ := json.Marshal(change.Record)
		events = append(events, &kafka.Event{
			EventType:  eventType,
			ProjectID:  projectID,
			BatchID:    batchID,
			RecordID:   change.RecordID,
			ConflictID: change.Record.Provenance.ConflictID,
			SourceIDs:  change.Record.Provenance.SourceIDs,
			Version:    change.Record.Version,
			Data:       data,
		})
	}
	return events
}

// ResolutionEvents returns a conflict.resolved event for every conflict decided between before and after
func ResolutionEvents(before, after *models.BatchRun) []*kafka.Event {
	var events []*kafka.Event
	for _, c := range after.Conflicts {
		prev, ok := before.Conflict(c.ID)
		if !ok || prev.Status.IsTerminal() || !c.Status.IsTerminal() {
			continue
		}

		data, _ := json.Marshal(map[string]any{
			"status":      c.Status,
			"incoming_id": c.Incoming.ID,
			"existing_id": c.Existing.ID,
			"similarity":  c.Similarity.Score,
		})
		events = append(events, &kafka.Event{
			EventType:  ConflictResolved,
			ProjectID:  after.ProjectID,
			BatchID:    after.ID,
			ConflictID: c.ID,
			SourceIDs:  []string{c.Incoming.ID, c.Existing.ID},
			Data:       data,
		})
	}
	return events
}

func committedEvent(run *models.BatchRun) *kafka.Event {
	data, _ := json.Marshal(map[string]any{
		"mode":                  run.Mode,
		"saved_count":           run.Result.SavedCount,
		"exact_duplicate_count": run.Result.ExactDuplicateCount,
		"auto_merged_count":     run.Result.AutoMergedCount,
		"review_required_count": run.Result.ReviewRequiredCount,
		"pending_count":         len(run.Result.PendingConflicts),
	})
	return &kafka.Event{
		EventType: ImportCommitted,
		ProjectID: run.ProjectID,
		BatchID:   run.ID,
		Data:      data,
	}
}
