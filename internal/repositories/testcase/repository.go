package testcase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const table = "test_cases"

var columns = []string{"id", "project_id", "title", "category", "priority", "steps", "remarks", "owner", "tags", "refs", "provenance", "version", "created_at", "updated_at"}

// uniqueViolation is the postgres error code for a duplicate key
const uniqueViolation = "23505"

type row struct {
	ID         string                            `db:"id"`
	ProjectID  string                            `db:"project_id"`
	Title      string                            `db:"title"`
	Category   string                            `db:"category"`
	Priority   string                            `db:"priority"`
	Steps      database.JSONB[[]models.Step]     `db:"steps"`
	Remarks    string                            `db:"remarks"`
	Owner      string                            `db:"owner"`
	Tags       database.JSONB[[]string]          `db:"tags"`
	References database.JSONB[[]string]          `db:"refs"`
	Provenance database.JSONB[models.Provenance] `db:"provenance"`
	Version    int                               `db:"version"`
	CreatedAt  time.Time                         `db:"created_at"`
	UpdatedAt  time.Time                         `db:"updated_at"`
}

func toRow(r models.Record) row {
	return row{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		Title:      r.Title,
		Category:   r.Category,
		Priority:   string(r.Priority),
		Steps:      database.NewJSONB(nonNil(r.Steps)),
		Remarks:    r.Remarks,
		Owner:      r.Owner,
		Tags:       database.NewJSONB(nonNil(r.Tags)),
		References: database.NewJSONB(nonNil(r.References)),
		Provenance: database.NewJSONB(r.Provenance),
		Version:    r.Version,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (r row) toModel() models.Record {
	rec := models.Record{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		Title:      r.Title,
		Category:   r.Category,
		Priority:   models.Priority(r.Priority),
		Steps:      r.Steps.Data,
		Remarks:    r.Remarks,
		Owner:      r.Owner,
		Tags:       r.Tags.Data,
		References: r.References.Data,
		Provenance: r.Provenance.Data,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	// empty JSON arrays come back as empty slices; the engine treats nil and empty alike
	if len(rec.Steps) == 0 {
		rec.Steps = nil
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}
	if len(rec.References) == 0 {
		rec.References = nil
	}
	return rec
}

func (r row) values() []any {
	return []any{r.ID, r.ProjectID, r.Title, r.Category, r.Priority, r.Steps, r.Remarks, r.Owner, r.Tags, r.References, r.Provenance, r.Version, r.CreatedAt, r.UpdatedAt}
}

// Repository persists the stored pool of test cases
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new test case repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByProject returns the pool snapshot of a project, oldest first
func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "testcase.Repository.ListByProject")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("project_id", projectID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var rows []row
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list test cases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list test cases")
	}

	records := make([]models.Record, 0, len(rows))
	for _, rw := range rows {
		records = append(records, rw.toModel())
	}
	return records, nil
}

// Get retrieves a single test case
func (r *Repository) Get(ctx context.Context, projectID, id string) (*models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "testcase.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("project_id", projectID), sb.Equal("id", id))

	query, args := sb.Build()
	var rw row
	if err := database.Conn(ctx, r.db).GetContext(ctx, &rw, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("test case %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get test case")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get test case")
	}

	rec := rw.toModel()
	return &rec, nil
}

// ApplyChanges writes the pool changes of a batch run. Updates are guarded by the base version
// of each change, so a pool that moved underneath the run is reported as a conflict.
// Call it inside a transaction carried by ctx to make the changes atomic.
func (r *Repository) ApplyChanges(ctx context.Context, projectID string, changes []models.PoolChange) error {
	ctx, span := tracing.StartSpan(ctx, "testcase.Repository.ApplyChanges")
	defer span.End()

	q := database.Conn(ctx, r.db)
	for _, change := range changes {
		var err error
		switch change.Action {
		case models.PoolChangeCreated:
			rec := change.Record
			rec.ProjectID = projectID
			err = r.insert(ctx, q, rec)
		case models.PoolChangeUpdated:
			err = r.update(ctx, q, projectID, change)
		default:
			err = httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("unknown pool change %q", change.Action))
		}
		if err != nil {
			return err
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"changes":    len(changes),
	}).Info("Applied pool changes")
	return nil
}

func (r *Repository) insert(ctx context.Context, q database.Queryer, rec models.Record) error {
	ib := database.NewInsertBuilder(table)
	ib.Cols(columns...)
	ib.Values(toRow(rec).values()...)

	query, args := ib.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("test case %s already exists", rec.ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create test case")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create test case")
	}
	return nil
}

func (r *Repository) update(ctx context.Context, q database.Queryer, projectID string, change models.PoolChange) error {
	query, args := updateQuery(projectID, change)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update test case")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update test case")
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("test case %s changed since the import was staged", change.RecordID))
	}
	return nil
}

// updateQuery overwrites a stored test case only while it is still at the version the
// change was computed from
func updateQuery(projectID string, change models.PoolChange) (string, []any) {
	rec := change.Record
	rec.ProjectID = projectID
	rw := toRow(rec)

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("title", rw.Title),
		ub.Assign("category", rw.Category),
		ub.Assign("priority", rw.Priority),
		ub.Assign("steps", rw.Steps),
		ub.Assign("remarks", rw.Remarks),
		ub.Assign("owner", rw.Owner),
		ub.Assign("tags", rw.Tags),
		ub.Assign("refs", rw.References),
		ub.Assign("provenance", rw.Provenance),
		ub.Assign("version", rw.Version),
		ub.Assign("updated_at", rw.UpdatedAt),
	)
	ub.Where(
		ub.Equal("project_id", rw.ProjectID),
		ub.Equal("id", rw.ID),
		ub.Equal("version", change.BaseVersion),
	)
	return ub.Build()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
