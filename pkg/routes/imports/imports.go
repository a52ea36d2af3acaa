package imports

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/importbatch"
	reqctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/importer"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Service is the import workflow behind the routes
type Service interface {
	Stage(ctx context.Context, projectID string, raw []normalizers.RawRecord, mode models.Mode) (*models.BatchRun, error)
	Get(ctx context.Context, projectID, id string) (*importer.Batch, error)
	List(ctx context.Context, projectID string, onlyPending bool, limit int) ([]importbatch.Summary, error)
	Conflicts(ctx context.Context, projectID, id string) ([]models.MergeConflict, error)
	Discard(ctx context.Context, projectID, id string) error
	Commit(ctx context.Context, projectID, id string) (*models.BatchRun, error)
	Resolve(ctx context.Context, projectID, id string, resolutions []models.Resolution) (*importer.Batch, []models.ItemError, error)
}

// StageRequest is the body of an import
type StageRequest struct {
	Records []normalizers.RawRecord `json:"records" validate:"required,min=1"`
}

// ResolveRequest is the body of a review submission
type ResolveRequest struct {
	Resolutions []models.Resolution `json:"resolutions" validate:"required,min=1"`
}

// Summary is the response for a batch without its pool
type Summary struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Mode      models.Mode        `json:"mode"`
	Result    models.BatchResult `json:"result"`
	Errors    []models.ItemError `json:"errors,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// ResolveResponse is the updated batch plus the resolutions that were rejected
type ResolveResponse struct {
	Summary
	Rejected []models.ItemError `json:"rejected"`
}

func summarize(status importer.BatchStatus, run *models.BatchRun) Summary {
	return Summary{
		ID:        run.ID,
		Status:    string(status),
		Mode:      run.Mode,
		Result:    run.Result,
		Errors:    run.Errors,
		CreatedAt: run.CreatedAt,
	}
}

type handler struct {
	svc Service
}

// Register registers import routes
func Register(g *echo.Group, svc Service) {
	h := &handler{svc: svc}

	g.Use(requireProject)
	g.GET("", h.ListImports)
	g.POST("", h.StageImport)
	g.GET("/:id", h.GetImport)
	g.DELETE("/:id", h.DiscardImport)
	g.POST("/:id/commit", h.CommitImport)
	g.GET("/:id/conflicts", h.ListConflicts)
	g.POST("/:id/resolutions", h.ResolveConflicts)
}

func requireProject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if reqctx.GetProjectID(c.Request().Context()) == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "X-Project-ID header is required")
		}
		return next(c)
	}
}

// ListImports lists committed imports, optionally only those with pending conflicts
func (h *handler) ListImports(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	onlyPending := c.QueryParam("pending") == "true"

	summaries, err := h.svc.List(ctx, reqctx.GetProjectID(ctx), onlyPending, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summaries)
}

// StageImport deduplicates a batch against the project's pool and stages the result
func (h *handler) StageImport(c echo.Context) error {
	ctx := c.Request().Context()

	var req StageRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := models.ValidateStruct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run, err := h.svc.Stage(ctx, reqctx.GetProjectID(ctx), req.Records, models.Mode(c.QueryParam("mode")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, summarize(importer.BatchStatusStaged, run))
}

// GetImport returns a staged or committed import with its conflicts and pool changes
func (h *handler) GetImport(c echo.Context) error {
	ctx := c.Request().Context()

	batch, err := h.svc.Get(ctx, reqctx.GetProjectID(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batch)
}

// DiscardImport drops a staged import
func (h *handler) DiscardImport(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.svc.Discard(ctx, reqctx.GetProjectID(ctx), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CommitImport writes a staged import to the pool
func (h *handler) CommitImport(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := h.svc.Commit(ctx, reqctx.GetProjectID(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summarize(importer.BatchStatusCommitted, run))
}

// ListConflicts returns the conflicts of an import still awaiting review
func (h *handler) ListConflicts(c echo.Context) error {
	ctx := c.Request().Context()

	conflicts, err := h.svc.Conflicts(ctx, reqctx.GetProjectID(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conflicts)
}

// ResolveConflicts applies reviewer decisions to an import
func (h *handler) ResolveConflicts(c echo.Context) error {
	ctx := c.Request().Context()

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := models.ValidateStruct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	batch, rejected, err := h.svc.Resolve(ctx, reqctx.GetProjectID(ctx), c.Param("id"), req.Resolutions)
	if err != nil {
		return err
	}
	if rejected == nil {
		rejected = []models.ItemError{}
	}
	return c.JSON(http.StatusOK, ResolveResponse{
		Summary:  summarize(batch.Status, batch.BatchRun),
		Rejected: rejected,
	})
}
