package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// IntegrationProvider lists the integrations that take part in scheduled syncs
type IntegrationProvider interface {
	FindEnabled(ctx context.Context) ([]*integration.RemoteIntegration, error)
}

// SyncStatusProvider reads the sync bookkeeping of an (organization, entity type) pair
type SyncStatusProvider interface {
	Get(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.SyncStatus, error)
}

// FullSyncSubmitter queues full sync jobs
type FullSyncSubmitter interface {
	ScheduleFullSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, trigger SyncJobTrigger) error
}

// SyncCronTriggerConfig holds configuration for the sync cron trigger
type SyncCronTriggerConfig struct {
	// CheckInterval is how often integrations are checked for due syncs
	CheckInterval time.Duration
	// EntityTypes are the entity types synced on schedule
	EntityTypes []integration.EntityType
}

// DefaultSyncCronTriggerConfig returns default configuration
func DefaultSyncCronTriggerConfig() SyncCronTriggerConfig {
	return SyncCronTriggerConfig{
		CheckInterval: time.Minute,
		EntityTypes:   integration.AllEntityTypes(),
	}
}

// SyncCronTrigger submits a full sync for every enabled integration whose interval has elapsed
type SyncCronTrigger struct {
	config       SyncCronTriggerConfig
	integrations IntegrationProvider
	status       SyncStatusProvider
	submitter    FullSyncSubmitter
	logger       *zap.Logger
	now          func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// last submission per pair, so a slow job is not submitted twice
	lastScheduledMu sync.RWMutex
	lastScheduled   map[string]time.Time
}

// NewSyncCronTrigger creates a new sync cron trigger
func NewSyncCronTrigger(
	config SyncCronTriggerConfig,
	integrations IntegrationProvider,
	status SyncStatusProvider,
	submitter FullSyncSubmitter,
	logger *zap.Logger,
) *SyncCronTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultSyncCronTriggerConfig().CheckInterval
	}
	if len(config.EntityTypes) == 0 {
		config.EntityTypes = integration.AllEntityTypes()
	}
	return &SyncCronTrigger{
		config:        config,
		integrations:  integrations,
		status:        status,
		submitter:     submitter,
		logger:        logger.Named("sync_cron"),
		now:           time.Now,
		lastScheduled: make(map[string]time.Time),
	}
}

// Start starts the cron trigger
func (c *SyncCronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sync cron trigger started", zap.Duration("check_interval", c.config.CheckInterval))
	return nil
}

// Stop stops the cron trigger
func (c *SyncCronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncCronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.CheckAndSchedule(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAndSchedule(ctx)
		}
	}
}

// CheckAndSchedule submits every due (organization, entity type) pair and returns how many were submitted
func (c *SyncCronTrigger) CheckAndSchedule(ctx context.Context) int {
	integrations, err := c.integrations.FindEnabled(ctx)
	if err != nil {
		c.logger.Error("Failed to list enabled integrations", zap.Error(err))
		return 0
	}

	now := c.now()
	submitted := 0
	for _, ri := range integrations {
		if ri.Usable() != nil || ri.SyncInterval() <= 0 {
			continue
		}
		for _, et := range c.config.EntityTypes {
			if !c.shouldScheduleSync(ctx, ri, et, now) {
				continue
			}
			if err := c.submitter.ScheduleFullSync(ctx, ri.OrganizationID, et, SyncJobTriggerScheduled); err != nil {
				c.logger.Error("Failed to schedule full sync",
					zap.String("organization_id", ri.OrganizationID.String()),
					zap.String("entity_type", et.String()),
					zap.Error(err),
				)
				continue
			}
			c.updateLastScheduled(ri.OrganizationID, et, now)
			submitted++
		}
	}
	if submitted > 0 {
		c.logger.Info("Scheduled full syncs", zap.Int("count", submitted))
	}
	return submitted
}

// shouldScheduleSync is true when the pair never synced or its interval has elapsed since the last success
func (c *SyncCronTrigger) shouldScheduleSync(ctx context.Context, ri *integration.RemoteIntegration, et integration.EntityType, now time.Time) bool {
	interval := ri.SyncInterval()

	c.lastScheduledMu.RLock()
	last, exists := c.lastScheduled[makeKey(ri.OrganizationID, et)]
	c.lastScheduledMu.RUnlock()
	if exists && now.Sub(last) < interval {
		return false
	}

	status, err := c.status.Get(ctx, ri.OrganizationID, et)
	if errors.Is(err, catalogsync.ErrSyncStatusNotFound) {
		return true
	}
	if err != nil {
		c.logger.Warn("Failed to read sync status",
			zap.String("organization_id", ri.OrganizationID.String()),
			zap.String("entity_type", et.String()),
			zap.Error(err),
		)
		return false
	}
	if status.IsSyncing {
		return false
	}
	if status.LastSyncTime == nil {
		return true
	}
	return !status.LastSyncTime.Add(interval).After(now)
}

func (c *SyncCronTrigger) updateLastScheduled(orgID uuid.UUID, et integration.EntityType, at time.Time) {
	c.lastScheduledMu.Lock()
	defer c.lastScheduledMu.Unlock()
	c.lastScheduled[makeKey(orgID, et)] = at
}

func makeKey(orgID uuid.UUID, et integration.EntityType) string {
	return orgID.String() + ":" + et.String()
}
