package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

const defaultRunKeyPrefix = "vitrine:sync:run:"

// RedisRunStore keeps run snapshots in Redis so every instance sees the same runs.
// Each run is stored as JSON under its id, and a second key per
// (organization, entity type) points at the latest run id.
type RedisRunStore struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
}

// NewRedisRunStore creates a run store on an existing client
func NewRedisRunStore(client redis.UniversalClient, keyPrefix string, retention time.Duration) *RedisRunStore {
	if keyPrefix == "" {
		keyPrefix = defaultRunKeyPrefix
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisRunStore{client: client, keyPrefix: keyPrefix, retention: retention}
}

func (s *RedisRunStore) runKey(id uuid.UUID) string {
	return s.keyPrefix + id.String()
}

func (s *RedisRunStore) latestKey(orgID uuid.UUID, entityType integration.EntityType) string {
	return s.keyPrefix + "latest:" + orgID.String() + ":" + entityType.String()
}

// Save writes the snapshot and the latest pointer in one transaction
func (s *RedisRunStore) Save(ctx context.Context, run *catalogsync.SyncRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode sync run: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.runKey(run.ID), data, s.retention)
		pipe.Set(ctx, s.latestKey(run.OrganizationID, run.EntityType), run.ID.String(), s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// Get reads a snapshot by id
func (s *RedisRunStore) Get(ctx context.Context, runID uuid.UUID) (*catalogsync.SyncRun, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, catalogsync.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load sync run: %w", err)
	}
	var run catalogsync.SyncRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode sync run: %w", err)
	}
	return &run, nil
}

// Latest follows the pair's latest pointer
func (s *RedisRunStore) Latest(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.SyncRun, error) {
	raw, err := s.client.Get(ctx, s.latestKey(orgID, entityType)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, catalogsync.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load latest sync run: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, catalogsync.ErrRunNotFound
	}
	return s.Get(ctx, id)
}

// ListByOrganization returns the latest run of every entity type that has one
func (s *RedisRunStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*catalogsync.SyncRun, error) {
	runs := make([]*catalogsync.SyncRun, 0, len(integration.AllEntityTypes()))
	for _, et := range integration.AllEntityTypes() {
		run, err := s.Latest(ctx, orgID, et)
		if errors.Is(err, catalogsync.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

var _ catalogsync.RunStore = (*RedisRunStore)(nil)
