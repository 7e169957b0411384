package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
)

// QueueProcessor runs one push pass for an organization
type QueueProcessor interface {
	ProcessQueue(ctx context.Context, orgID uuid.UUID, batchSize, maxRetries int) (*catalogsync.PushResult, error)
}

// DueQueue is the part of the sync queue the poller reads and prunes
type DueQueue interface {
	OrganizationsWithDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
	ReleaseExpiredLeases(ctx context.Context, orgID *uuid.UUID, leasedBefore, now time.Time) (int64, error)
}

// PushQueuePollerConfig holds configuration for the push queue poller
type PushQueuePollerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// ProcessingLease is how long an item may stay in processing before it
	// is handed back to the queue
	ProcessingLease  time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultPushQueuePollerConfig returns default configuration
func DefaultPushQueuePollerConfig() PushQueuePollerConfig {
	return PushQueuePollerConfig{
		BatchSize:        50,
		PollInterval:     30 * time.Second,
		ProcessingLease:  15 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// PushQueuePoller drains due queue items of every organization in the background
type PushQueuePoller struct {
	processor QueueProcessor
	queue     DueQueue
	config    PushQueuePollerConfig
	logger    *zap.Logger
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPushQueuePoller creates a new push queue poller
func NewPushQueuePoller(processor QueueProcessor, queue DueQueue, config PushQueuePollerConfig, logger *zap.Logger) *PushQueuePoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultPushQueuePollerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = d.PollInterval
	}
	if config.ProcessingLease <= 0 {
		config.ProcessingLease = d.ProcessingLease
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = d.CleanupInterval
	}
	return &PushQueuePoller{
		processor: processor,
		queue:     queue,
		config:    config,
		logger:    logger.Named("push_poller"),
		now:       time.Now,
	}
}

// Start starts the background processing
func (p *PushQueuePoller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.pollLoop(ctx)

	if p.config.CleanupEnabled && p.config.CleanupRetention > 0 {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("Push queue poller started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the poller
func (p *PushQueuePoller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Push queue poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PushQueuePoller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce hands abandoned processing items back to the queue, then runs one
// push pass for every organization with due items
func (p *PushQueuePoller) PollOnce(ctx context.Context) *catalogsync.PushResult {
	total := &catalogsync.PushResult{FailedItems: []uuid.UUID{}}
	now := p.now()

	released, err := p.queue.ReleaseExpiredLeases(ctx, nil, now.Add(-p.config.ProcessingLease), now)
	if err != nil {
		p.logger.Error("Failed to release expired processing leases", zap.Error(err))
	} else if released > 0 {
		p.logger.Warn("Expired processing leases released", zap.Int64("count", released))
	}

	orgs, err := p.queue.OrganizationsWithDue(ctx, now)
	if err != nil {
		p.logger.Error("Failed to find organizations with due items", zap.Error(err))
		return total
	}

	for _, orgID := range orgs {
		if ctx.Err() != nil {
			return total
		}
		result, err := p.processor.ProcessQueue(ctx, orgID, p.config.BatchSize, 0)
		total.Add(result)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("Push pass failed",
				zap.String("organization_id", orgID.String()),
				zap.Error(err),
			)
			continue
		}
		if result != nil && result.Processed+result.Errors > 0 {
			p.logger.Debug("Push pass finished",
				zap.String("organization_id", orgID.String()),
				zap.Int("processed", result.Processed),
				zap.Int("errors", result.Errors),
				zap.Int("deferred", result.Deferred),
			)
		}
	}
	return total
}

func (p *PushQueuePoller) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup removes completed items older than the retention
func (p *PushQueuePoller) Cleanup(ctx context.Context) int64 {
	deleted, err := p.queue.DeleteCompletedBefore(ctx, p.now().Add(-p.config.CleanupRetention))
	if err != nil {
		p.logger.Error("Failed to clean up completed queue items", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		p.logger.Info("Cleaned up completed queue items", zap.Int64("deleted", deleted))
	}
	return deleted
}
