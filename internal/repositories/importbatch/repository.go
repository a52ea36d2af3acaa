package importbatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const table = "import_batches"

// Summary is the listing view of a committed batch
type Summary struct {
	ID                  string    `db:"id" json:"id"`
	ProjectID           string    `db:"project_id" json:"project_id"`
	Mode                string    `db:"mode" json:"mode"`
	SavedCount          int       `db:"saved_count" json:"saved_count"`
	ExactDuplicateCount int       `db:"exact_duplicate_count" json:"exact_duplicate_count"`
	AutoMergedCount     int       `db:"auto_merged_count" json:"auto_merged_count"`
	ReviewRequiredCount int       `db:"review_required_count" json:"review_required_count"`
	PendingCount        int       `db:"pending_count" json:"pending_count"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Repository persists committed batch runs together with their conflicts
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import batch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Save inserts a batch run or replaces the stored one with the same id
func (r *Repository) Save(ctx context.Context, run *models.BatchRun) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Save")
	defer span.End()

	now := time.Now().UTC()
	res := run.Result

	ib := database.NewInsertBuilder(table)
	ib.Cols("id", "project_id", "mode", "saved_count", "exact_duplicate_count", "auto_merged_count", "review_required_count", "pending_count", "run", "created_at", "committed_at", "updated_at")
	ib.Values(run.ID, run.ProjectID, string(run.Mode), res.SavedCount, res.ExactDuplicateCount, res.AutoMergedCount, res.ReviewRequiredCount, len(res.PendingConflicts), database.NewJSONB(run), run.CreatedAt.UTC(), now, now)
	ib.OnConflictUpdate([]string{"id"}, "saved_count", "exact_duplicate_count", "auto_merged_count", "review_required_count", "pending_count", "run", "updated_at")

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to save import batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save import batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   run.ID,
		"project_id": run.ProjectID,
		"pending":    len(res.PendingConflicts),
	}).Info("Saved import batch")
	return nil
}

// Get retrieves a committed batch run
func (r *Repository) Get(ctx context.Context, projectID, id string) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("run")
	sb.From(table)
	sb.Where(sb.Equal("id", id), sb.Equal("project_id", projectID))

	query, args := sb.Build()
	var run database.JSONB[models.BatchRun]
	if err := database.Conn(ctx, r.db).GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("import %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get import batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import batch")
	}

	return &run.Data, nil
}

// List returns the most recent batches of a project, newest first
func (r *Repository) List(ctx context.Context, projectID string, onlyPending bool, limit int) ([]Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "project_id", "mode", "saved_count", "exact_duplicate_count", "auto_merged_count", "review_required_count", "pending_count", "created_at", "updated_at")
	sb.From(table)
	sb.Where(sb.Equal("project_id", projectID))
	if onlyPending {
		sb.Where(sb.GreaterThan("pending_count", 0))
	}
	sb.OrderBy("created_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	summaries := []Summary{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &summaries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import batches")
	}
	return summaries, nil
}
