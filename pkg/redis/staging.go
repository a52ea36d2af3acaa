package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrNotStaged is returned for a batch run that was never staged, expired or was discarded
var ErrNotStaged = errors.New("batch run is not staged")

// Stager keeps uncommitted batch runs for review until they are committed or expire
type Stager struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

// NewStager creates a new Stager
func NewStager(client *Client, keyPrefix string, ttl time.Duration) *Stager {
	if keyPrefix == "" {
		keyPrefix = "staged:"
	}
	return &Stager{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *Stager) key(projectID, id string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, projectID, id)
}

// Stage stores run, replacing any earlier state of the same run and restarting its TTL
func (s *Stager) Stage(ctx context.Context, run *models.BatchRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode batch run %s: %w", run.ID, err)
	}

	if err := s.client.rdb.Set(ctx, s.key(run.ProjectID, run.ID), data, s.ttl).Err(); err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to stage batch run %s", run.ID)
		return fmt.Errorf("failed to stage batch run %s: %w", run.ID, err)
	}
	return nil
}

// Load returns a staged run
func (s *Stager) Load(ctx context.Context, projectID, id string) (*models.BatchRun, error) {
	data, err := s.client.rdb.Get(ctx, s.key(projectID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotStaged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staged batch run %s: %w", id, err)
	}

	var run models.BatchRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode staged batch run %s: %w", id, err)
	}
	return &run, nil
}

// Discard drops a staged run
func (s *Stager) Discard(ctx context.Context, projectID, id string) error {
	n, err := s.client.rdb.Del(ctx, s.key(projectID, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to discard staged batch run %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotStaged
	}
	return nil
}
