// Package dedupe reconciles a batch of incoming test cases against the stored pool
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Pipeline classifies each incoming record as new, an exact duplicate, an automatic
// merge or a conflict for review. It never touches the caller's pool: all work happens
// on a copy returned in the BatchRun.
type Pipeline struct {
	cfg        Config
	similarity *matching.Similarity
	resolver   *merging.Resolver
	logger     ectologger.Logger
	newID      func() string
	now        func() time.Time
}

// NewPipeline creates a new Pipeline
func NewPipeline(cfg Config, logger ectologger.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedupe config: %w", err)
	}

	similarity := matching.NewSimilarity(cfg.Weights)
	return &Pipeline{
		cfg:        cfg,
		similarity: similarity,
		resolver:   merging.NewResolver(cfg.Merge, similarity),
		logger:     logger,
		newID:      func() string { return uuid.New().String() },
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Similarity returns the scorer used by the pipeline
func (p *Pipeline) Similarity() *matching.Similarity {
	return p.similarity
}

// Resolver returns the merge resolver used by the pipeline
func (p *Pipeline) Resolver() *merging.Resolver {
	return p.resolver
}

// NewID returns a fresh record or conflict id
func (p *Pipeline) NewID() string {
	return p.newID()
}

// Run deduplicates batch against pool under mode. An empty mode is smart.
// Invalid records are reported per item and never abort the batch. The run is only
// cancelled through ctx, in which case no result is returned.
func (p *Pipeline) Run(ctx context.Context, batch []models.Record, pool []models.Record, mode models.Mode) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Pipeline.Run")
	defer span.End()

	mode, err := models.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	run := &models.BatchRun{
		ID:        p.newID(),
		Mode:      mode,
		Pool:      models.CloneRecords(pool),
		Conflicts: []models.MergeConflict{},
		Changes:   []models.PoolChange{},
		CreatedAt: p.now(),
		Result: models.BatchResult{
			PendingConflicts: []models.MergeConflict{},
		},
	}
	if run.Pool == nil {
		run.Pool = []models.Record{}
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   run.ID,
		"mode":       mode,
		"batch_size": len(batch),
		"pool_size":  len(pool),
	})

	for i, raw := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := normalizers.NormalizeRecord(raw)
		if err := rec.Validate(); err != nil {
			log.WithError(err).Warnf("Skipping invalid record at index %d", i)
			run.Errors = append(run.Errors, models.NewItemError(i, raw.ID, "", err))
			continue
		}

		if err := p.classify(run, rec); err != nil {
			log.WithError(err).Warnf("Failed to reconcile record at index %d", i)
			run.Errors = append(run.Errors, models.NewItemError(i, rec.ID, "", err))
		}
	}

	log.WithFields(map[string]any{
		"saved":           run.Result.SavedCount,
		"exact_duplicate": run.Result.ExactDuplicateCount,
		"auto_merged":     run.Result.AutoMergedCount,
		"review_required": run.Result.ReviewRequiredCount,
		"errors":          len(run.Errors),
	}).Info("Batch deduplicated")

	return run, nil
}

func (p *Pipeline) classify(run *models.BatchRun, rec models.Record) error {
	if run.Mode == models.ModeOff {
		p.save(run, rec)
		return nil
	}

	idx, best := p.bestMatch(run.Pool, rec)
	t := p.cfg.Thresholds

	switch {
	case idx >= 0 && best.Score >= t.Exact:
		run.Result.ExactDuplicateCount++
	case run.Mode == models.ModeStrict:
		p.save(run, rec)
	case idx >= 0 && best.Score >= t.AutoMerge:
		existing := run.Pool[idx]
		merged, unresolved, err := p.resolver.Merge(existing, rec)
		if err != nil {
			return err
		}
		if len(unresolved) > 0 {
			// a high score does not override an irreconcilable field
			p.raiseConflict(run, rec, existing, best, unresolved)
			return nil
		}
		run.Pool[idx] = merged
		run.RecordChange(models.PoolChangeUpdated, merged, existing.Version)
		run.Result.AutoMergedCount++
	case idx >= 0 && best.Score >= t.Review:
		p.raiseConflict(run, rec, run.Pool[idx], best, nil)
	default:
		p.save(run, rec)
	}
	return nil
}

// bestMatch returns the index and score of the highest scoring pool entry, or -1.
// Ties go to the earliest entry.
func (p *Pipeline) bestMatch(pool []models.Record, rec models.Record) (int, models.SimilarityScore) {
	bestIdx := -1
	var best models.SimilarityScore
	for i := range pool {
		score := p.similarity.Score(rec, pool[i])
		if bestIdx == -1 || score.Score > best.Score {
			bestIdx = i
			best = score
		}
	}
	return bestIdx, best
}

func (p *Pipeline) save(run *models.BatchRun, rec models.Record) {
	if run.PoolIndex(rec.ID) >= 0 {
		rec.ID = p.newID()
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = run.CreatedAt
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	run.Pool = append(run.Pool, rec)
	run.RecordChange(models.PoolChangeCreated, rec, 0)
	run.Result.SavedCount++
}

func (p *Pipeline) raiseConflict(run *models.BatchRun, incoming, existing models.Record, score models.SimilarityScore, unresolved []string) {
	conflict := models.MergeConflict{
		ID:             p.newID(),
		Incoming:       incoming.Clone(),
		Existing:       existing.Clone(),
		Similarity:     score,
		FieldConflicts: p.resolver.FieldConflicts(existing, incoming),
		Unresolved:     unresolved,
		Status:         models.ConflictStatusPending,
	}
	run.Conflicts = append(run.Conflicts, conflict)
	run.Result.PendingConflicts = append(run.Result.PendingConflicts, conflict)
	run.Result.ReviewRequiredCount++
}
