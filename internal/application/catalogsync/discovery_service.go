package catalogsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// DiscoveryService compares the remote index with the local mirror
type DiscoveryService struct {
	resolver *CatalogResolver
	mirror   catalogsync.MirrorRepository
	queue    catalogsync.SyncQueueRepository
	status   catalogsync.SyncStatusRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewDiscoveryService creates a new DiscoveryService
func NewDiscoveryService(
	resolver *CatalogResolver,
	mirror catalogsync.MirrorRepository,
	queue catalogsync.SyncQueueRepository,
	status catalogsync.SyncStatusRepository,
	logger *zap.Logger,
) *DiscoveryService {
	return &DiscoveryService{
		resolver: resolver,
		mirror:   mirror,
		queue:    queue,
		status:   status,
		logger:   nopIfNil(logger).Named("discovery"),
		now:      time.Now,
	}
}

// Discover computes the difference between the remote catalog and the mirror
// and stores it as the pair's discovery metadata
func (s *DiscoveryService) Discover(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.DiscoveryResult, error) {
	resource, err := s.resolver.Resource(ctx, orgID, entityType)
	if err != nil {
		return nil, err
	}
	return s.discover(ctx, orgID, resource)
}

func (s *DiscoveryService) discover(ctx context.Context, orgID uuid.UUID, resource integration.RemoteResource) (*catalogsync.DiscoveryResult, error) {
	entityType := resource.EntityType()
	log := scoped(ctx, s.logger).With(
		zap.String("organization_id", orgID.String()),
		zap.String("entity_type", entityType.String()),
	)
	started := s.now()

	remote, err := resource.FetchIndex(ctx)
	if err != nil {
		log.Warn("Failed to fetch remote index", zap.Error(err))
		return nil, fmt.Errorf("fetch remote %s index: %w", entityType, err)
	}

	local, err := s.mirror.LocalIndex(ctx, orgID, entityType)
	if err != nil {
		return nil, err
	}

	queued, err := s.queue.FindActive(ctx, orgID, entityType)
	if err != nil {
		return nil, err
	}

	result := catalogsync.Diff(remote, local, queued, s.now())
	if err := s.status.SaveDiscovery(ctx, orgID, entityType, result); err != nil {
		return nil, err
	}

	log.Info("Discovery finished",
		zap.Int("remote_count", result.RemoteCount),
		zap.Int("local_count", result.LocalCount),
		zap.Int("missing", len(result.MissingIDs)),
		zap.Int("changed", len(result.ChangedIDs)),
		zap.Int("removed_remotely", len(result.RemovedRemotely)),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Duration("duration", s.now().Sub(started)),
	)
	return result, nil
}
