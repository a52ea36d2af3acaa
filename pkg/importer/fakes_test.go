package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/internal/repositories/importbatch"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
)

type memRecords struct {
	mu       sync.Mutex
	projects map[string][]models.Record
	listErr  error
}

func newMemRecords() *memRecords {
	return &memRecords{projects: map[string][]models.Record{}}
}

func (m *memRecords) ListByProject(_ context.Context, projectID string) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return models.CloneRecords(m.projects[projectID]), nil
}

// ApplyChanges is all or nothing, like the transactional repository
func (m *memRecords) ApplyChanges(_ context.Context, projectID string, changes []models.PoolChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool := models.CloneRecords(m.projects[projectID])
	for _, change := range changes {
		idx := -1
		for i := range pool {
			if pool[i].ID == change.RecordID {
				idx = i
			}
		}
		switch change.Action {
		case models.PoolChangeCreated:
			if idx >= 0 {
				return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("test case %s already exists", change.RecordID))
			}
			pool = append(pool, change.Record.Clone())
		case models.PoolChangeUpdated:
			if idx < 0 || pool[idx].Version != change.BaseVersion {
				return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("test case %s changed since the import was staged", change.RecordID))
			}
			pool[idx] = change.Record.Clone()
		}
	}
	m.projects[projectID] = pool
	return nil
}

func (m *memRecords) get(projectID, id string) (models.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.projects[projectID] {
		if r.ID == id {
			return r, true
		}
	}
	return models.Record{}, false
}

func (m *memRecords) count(projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projects[projectID])
}

func (m *memRecords) setVersion(projectID, id string, version int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects[projectID] {
		if m.projects[projectID][i].ID == id {
			m.projects[projectID][i].Version = version
		}
	}
}

type memBatches struct {
	mu   sync.Mutex
	runs map[string]*models.BatchRun
}

func newMemBatches() *memBatches {
	return &memBatches{runs: map[string]*models.BatchRun{}}
}

func (m *memBatches) Save(_ context.Context, run *models.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ProjectID+"/"+run.ID] = run.Clone()
	return nil
}

func (m *memBatches) Get(_ context.Context, projectID, id string) (*models.BatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[projectID+"/"+id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("import %s not found", id))
	}
	return run.Clone(), nil
}

func (m *memBatches) List(_ context.Context, projectID string, onlyPending bool, _ int) ([]importbatch.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []importbatch.Summary{}
	for _, run := range m.runs {
		if run.ProjectID != projectID || (onlyPending && len(run.Result.PendingConflicts) == 0) {
			continue
		}
		out = append(out, importbatch.Summary{ID: run.ID, ProjectID: run.ProjectID, PendingCount: len(run.Result.PendingConflicts)})
	}
	return out, nil
}

type memStager struct {
	mu   sync.Mutex
	runs map[string]*models.BatchRun
}

func newMemStager() *memStager {
	return &memStager{runs: map[string]*models.BatchRun{}}
}

func (m *memStager) Stage(_ context.Context, run *models.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ProjectID+"/"+run.ID] = run.Clone()
	return nil
}

func (m *memStager) Load(_ context.Context, projectID, id string) (*models.BatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[projectID+"/"+id]
	if !ok {
		return nil, redis.ErrNotStaged
	}
	return run.Clone(), nil
}

func (m *memStager) Discard(_ context.Context, projectID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[projectID+"/"+id]; !ok {
		return redis.ErrNotStaged
	}
	delete(m.runs, projectID+"/"+id)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (m *memLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.held[key] {
		m.mu.Unlock()
		return redis.ErrLockNotAcquired
	}
	m.held[key] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.held, key)
		m.mu.Unlock()
	}()
	return fn(ctx)
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingEmitter struct {
	committed [][]models.PoolChange
	resolved  [][]models.PoolChange
	err       error
}

func (r *recordingEmitter) EmitCommitted(_ context.Context, _ *models.BatchRun, changes []models.PoolChange) error {
	r.committed = append(r.committed, changes)
	return r.err
}

func (r *recordingEmitter) EmitResolved(_ context.Context, _, _ *models.BatchRun, changes []models.PoolChange) error {
	r.resolved = append(r.resolved, changes)
	return r.err
}

type recordingProvenance struct {
	writes int
	err    error
}

func (r *recordingProvenance) Write(context.Context, string, string, []models.PoolChange, []models.MergeConflict) error {
	r.writes++
	return r.err
}

var errUnavailable = errors.New("database unavailable")
