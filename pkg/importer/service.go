// Package importer runs batches through the deduplication engine and owns everything the engine
// leaves to its caller: loading the pool, staging previews, committing, and reviewing conflicts.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/importbatch"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RecordStore is the stored pool of test cases
type RecordStore interface {
	ListByProject(ctx context.Context, projectID string) ([]models.Record, error)
	ApplyChanges(ctx context.Context, projectID string, changes []models.PoolChange) error
}

// BatchStore keeps committed batch runs and their conflicts
type BatchStore interface {
	Save(ctx context.Context, run *models.BatchRun) error
	Get(ctx context.Context, projectID, id string) (*models.BatchRun, error)
	List(ctx context.Context, projectID string, onlyPending bool, limit int) ([]importbatch.Summary, error)
}

// Stager keeps uncommitted batch runs. Load and Discard return redis.ErrNotStaged for unknown runs.
type Stager interface {
	Stage(ctx context.Context, run *models.BatchRun) error
	Load(ctx context.Context, projectID, id string) (*models.BatchRun, error)
	Discard(ctx context.Context, projectID, id string) error
}

// Locker serializes work on a key. It returns redis.ErrLockNotAcquired while another holder has it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Transactor runs fn in a database transaction carried by its context
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventEmitter publishes lifecycle events for committed work
type EventEmitter interface {
	EmitCommitted(ctx context.Context, run *models.BatchRun, changes []models.PoolChange) error
	EmitResolved(ctx context.Context, before, after *models.BatchRun, changes []models.PoolChange) error
}

// ProvenanceWriter records where committed test cases came from
type ProvenanceWriter interface {
	Write(ctx context.Context, projectID, batchID string, changes []models.PoolChange, conflicts []models.MergeConflict) error
}

// BatchStatus tells a staged preview apart from a committed batch
type BatchStatus string

const (
	BatchStatusStaged    BatchStatus = "staged"
	BatchStatusCommitted BatchStatus = "committed"
)

// Batch is a batch run together with its lifecycle status
type Batch struct {
	Status BatchStatus `json:"status"`
	*models.BatchRun
}

// Config holds the importer limits
type Config struct {
	DefaultMode   models.Mode
	MaxBatchSize  int
	ReviewLockTTL time.Duration
}

// Dependencies are the collaborators of the service. Emitter and Provenance are optional.
type Dependencies struct {
	Pipeline   *dedupe.Pipeline
	Normalizer *normalizers.RecordNormalizer
	Records    RecordStore
	Batches    BatchStore
	Staging    Stager
	Locker     Locker
	Tx         Transactor
	Emitter    EventEmitter
	Provenance ProvenanceWriter
}

// Service orchestrates load, run, stage, commit and review of import batches
type Service struct {
	pipeline   *dedupe.Pipeline
	workflow   *review.Workflow
	normalizer *normalizers.RecordNormalizer
	records    RecordStore
	batches    BatchStore
	staging    Stager
	locker     Locker
	tx         Transactor
	emitter    EventEmitter
	provenance ProvenanceWriter
	cfg        Config
	logger     ectologger.Logger
}

// NewService creates a new import service
func NewService(deps Dependencies, cfg Config, logger ectologger.Logger) *Service {
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer, _ = normalizers.NewRecordNormalizer(normalizers.DefaultAliases())
	}
	if cfg.ReviewLockTTL <= 0 {
		cfg.ReviewLockTTL = 30 * time.Second
	}

	return &Service{
		pipeline:   deps.Pipeline,
		workflow:   review.NewWorkflow(deps.Pipeline.Resolver(), logger),
		normalizer: normalizer,
		records:    deps.Records,
		batches:    deps.Batches,
		staging:    deps.Staging,
		locker:     deps.Locker,
		tx:         deps.Tx,
		emitter:    deps.Emitter,
		provenance: deps.Provenance,
		cfg:        cfg,
		logger:     logger,
	}
}

// Stage normalizes raw, deduplicates it against the project's pool and stages the run for
// review. Nothing is written to the pool until Commit.
func (s *Service) Stage(ctx context.Context, projectID string, raw []normalizers.RawRecord, mode models.Mode) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Stage")
	defer span.End()

	if projectID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "project id is required")
	}
	if s.cfg.MaxBatchSize > 0 && len(raw) > s.cfg.MaxBatchSize {
		return nil, httperror.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("batch of %d records exceeds the limit of %d", len(raw), s.cfg.MaxBatchSize))
	}
	if mode == "" {
		mode = s.cfg.DefaultMode
	}
	mode, err := models.ParseMode(string(mode))
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	batch := make([]models.Record, len(raw))
	for i, r := range raw {
		rec := s.normalizer.Normalize(r)
		if rec.ID == "" {
			rec.ID = s.pipeline.NewID()
		}
		rec.ProjectID = projectID
		batch[i] = rec
	}

	pool, err := s.records.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	run, err := s.pipeline.Run(ctx, batch, pool, mode)
	if err != nil {
		return nil, err
	}
	run.ProjectID = projectID
	metrics.RecordStaged(run.Mode, len(batch), run.Result, len(run.Errors), time.Since(start).Seconds())

	if err := s.staging.Stage(ctx, run); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to stage import")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   run.ID,
		"project_id": projectID,
		"mode":       run.Mode,
		"pending":    len(run.Result.PendingConflicts),
	}).Info("Staged import")

	return run, nil
}

// Get returns a staged or committed batch
func (s *Service) Get(ctx context.Context, projectID, id string) (*Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Get")
	defer span.End()

	run, err := s.staging.Load(ctx, projectID, id)
	if err == nil {
		return &Batch{Status: BatchStatusStaged, BatchRun: run}, nil
	}
	if !errors.Is(err, redis.ErrNotStaged) {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to load staged import")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load import")
	}

	run, err = s.batches.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	return &Batch{Status: BatchStatusCommitted, BatchRun: run}, nil
}

// List returns the committed batches of a project, newest first
func (s *Service) List(ctx context.Context, projectID string, onlyPending bool, limit int) ([]importbatch.Summary, error) {
	return s.batches.List(ctx, projectID, onlyPending, limit)
}

// Conflicts returns the conflicts of a batch still awaiting a decision
func (s *Service) Conflicts(ctx context.Context, projectID, id string) ([]models.MergeConflict, error) {
	batch, err := s.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	return batch.Pending(), nil
}

// Discard drops a staged batch
func (s *Service) Discard(ctx context.Context, projectID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Discard")
	defer span.End()

	run, err := s.staging.Load(ctx, projectID, id)
	if err != nil {
		return s.stagingError(ctx, id, err)
	}
	if err := s.staging.Discard(ctx, projectID, id); err != nil {
		return s.stagingError(ctx, id, err)
	}

	metrics.RecordStage(run.Mode, "discarded")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   id,
		"project_id": projectID,
	}).Info("Discarded import")
	return nil
}

// Commit writes the pool changes of a staged batch and persists the batch with its conflicts,
// in one transaction. Pending conflicts stay reviewable after the commit.
func (s *Service) Commit(ctx context.Context, projectID, id string) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Commit")
	defer span.End()

	var committed *models.BatchRun
	err := s.locker.WithLock(ctx, lockKey(projectID, id), s.cfg.ReviewLockTTL, func(ctx context.Context) error {
		run, err := s.staging.Load(ctx, projectID, id)
		if err != nil {
			return s.stagingError(ctx, id, err)
		}

		changes := run.Changes
		committed = run.Clone()
		committed.Changes = []models.PoolChange{}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.records.ApplyChanges(ctx, projectID, changes); err != nil {
				return err
			}
			return s.batches.Save(ctx, committed)
		})
		if err != nil {
			return err
		}

		if err := s.staging.Discard(ctx, projectID, id); err != nil && !errors.Is(err, redis.ErrNotStaged) {
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to drop committed import %s from staging", id)
		}

		s.publish(ctx, committed, changes, func(ctx context.Context) error {
			return s.emitter.EmitCommitted(ctx, committed, changes)
		})
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	metrics.RecordStage(committed.Mode, "committed")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   id,
		"project_id": projectID,
		"pending":    len(committed.Result.PendingConflicts),
	}).Info("Committed import")

	return committed, nil
}

// Resolve applies reviewer decisions to a batch. On a staged batch the decisions are staged
// with it; on a committed batch the resulting pool changes are written right away.
// Resolutions that fail are returned as item errors and leave their conflicts pending.
func (s *Service) Resolve(ctx context.Context, projectID, id string, resolutions []models.Resolution) (*Batch, []models.ItemError, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Resolve")
	defer span.End()

	var out *Batch
	var itemErrs []models.ItemError
	err := s.locker.WithLock(ctx, lockKey(projectID, id), s.cfg.ReviewLockTTL, func(ctx context.Context) error {
		batch, err := s.Get(ctx, projectID, id)
		if err != nil {
			return err
		}

		if batch.Status == BatchStatusStaged {
			resolved, errs := s.workflow.Resolve(ctx, batch.BatchRun, resolutions)
			if err := s.staging.Stage(ctx, resolved); err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to stage resolutions")
			}
			out, itemErrs = &Batch{Status: BatchStatusStaged, BatchRun: resolved}, errs
			return nil
		}

		// decisions on a committed batch apply to the pool as it is now
		before := batch.BatchRun
		current := before.Clone()
		pool, err := s.records.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		current.Pool = pool
		current.Changes = []models.PoolChange{}

		resolved, errs := s.workflow.Resolve(ctx, current, resolutions)
		changes := resolved.Changes
		resolved.Changes = []models.PoolChange{}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.records.ApplyChanges(ctx, projectID, changes); err != nil {
				return err
			}
			return s.batches.Save(ctx, resolved)
		})
		if err != nil {
			return err
		}

		s.publish(ctx, resolved, changes, func(ctx context.Context) error {
			return s.emitter.EmitResolved(ctx, before, resolved, changes)
		})
		out, itemErrs = &Batch{Status: BatchStatusCommitted, BatchRun: resolved}, errs
		return nil
	})
	if err != nil {
		return nil, nil, lockError(err)
	}

	recordResolutions(resolutions, itemErrs)
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   id,
		"project_id": projectID,
		"status":     out.Status,
		"rejected":   len(itemErrs),
		"pending":    len(out.Result.PendingConflicts),
	}).Info("Resolved conflicts")

	return out, itemErrs, nil
}

// publish emits events and provenance for committed work. The pool is already committed, so
// failures are logged and do not fail the request.
func (s *Service) publish(ctx context.Context, run *models.BatchRun, changes []models.PoolChange, emit func(ctx context.Context) error) {
	if s.emitter != nil {
		if err := emit(ctx); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to emit events for import %s", run.ID)
		}
	}
	if s.provenance != nil && len(changes) > 0 {
		if err := s.provenance.Write(ctx, run.ProjectID, run.ID, changes, run.Conflicts); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to write provenance for import %s", run.ID)
		}
	}
}

func (s *Service) stagingError(ctx context.Context, id string, err error) error {
	if errors.Is(err, redis.ErrNotStaged) {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("import %s is not staged", id))
	}
	s.logger.WithContext(ctx).WithError(err).Error("Staging failure")
	return httperror.NewHTTPError(http.StatusInternalServerError, "failed to access staged import")
}

func lockError(err error) error {
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return httperror.NewHTTPError(http.StatusConflict, "import is being reviewed by someone else")
	}
	return err
}

func lockKey(projectID, id string) string {
	return "review:" + projectID + ":" + id
}

func recordResolutions(resolutions []models.Resolution, errs []models.ItemError) {
	rejected := make(map[int]bool, len(errs))
	for _, e := range errs {
		rejected[e.Index] = true
	}
	for i, res := range resolutions {
		status := "applied"
		if rejected[i] {
			status = "rejected"
		}
		metrics.RecordResolution(res.Action, status)
	}
}
