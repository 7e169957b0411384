package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// ErrMeterNil is returned when no meter is given
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// OrganizationLister lists the organizations whose queues are measured
type OrganizationLister interface {
	FindEnabled(ctx context.Context) ([]*integration.RemoteIntegration, error)
}

// QueueCounter counts queue items per status
type QueueCounter interface {
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[catalogsync.QueueStatus]int64, error)
}

// SyncMetrics records pull, push and run measurements of the sync engine
type SyncMetrics struct {
	logger *zap.Logger

	pullItems   *Counter
	pushItems   *Counter
	runs        *Counter
	runDuration *Histogram
	queueDepth  *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter, logger *zap.Logger) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SyncMetrics{logger: logger.Named("sync_metrics"), stopChan: make(chan struct{})}

	var err error
	if m.pullItems, err = NewCounter(meter, "vitrine_sync_pull_items_total", "Ids handled by pulls", "{items}"); err != nil {
		return nil, err
	}
	if m.pushItems, err = NewCounter(meter, "vitrine_sync_push_items_total", "Queue items pushed to the remote catalog", "{items}"); err != nil {
		return nil, err
	}
	if m.runs, err = NewCounter(meter, "vitrine_sync_runs_total", "Finished sync runs", "{runs}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, "vitrine_sync_run_duration_seconds", "Sync run duration", "s", RunDurationBuckets); err != nil {
		return nil, err
	}
	if m.queueDepth, err = NewGauge(meter, "vitrine_sync_queue_depth", "Queue items per status", "{items}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPull counts processed and failed ids of one pull
func (m *SyncMetrics) RecordPull(ctx context.Context, entityType integration.EntityType, processed, failed int) {
	if processed > 0 {
		m.pullItems.Add(ctx, int64(processed), AttrEntityType.String(entityType.String()), AttrOutcome.String("processed"))
	}
	if failed > 0 {
		m.pullItems.Add(ctx, int64(failed), AttrEntityType.String(entityType.String()), AttrOutcome.String("failed"))
	}
}

// RecordPush counts one queue item attempt
func (m *SyncMetrics) RecordPush(ctx context.Context, entityType integration.EntityType, op catalogsync.QueueOperation, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.pushItems.Add(ctx, 1,
		AttrEntityType.String(entityType.String()),
		AttrOperation.String(string(op)),
		AttrOutcome.String(outcome),
	)
}

// RecordRun counts a finished run and its duration
func (m *SyncMetrics) RecordRun(ctx context.Context, run *catalogsync.SyncRun) {
	if run == nil || !run.Phase.IsTerminal() {
		return
	}
	attrs := []attribute.KeyValue{
		AttrEntityType.String(run.EntityType.String()),
		AttrRunKind.String(string(run.Kind)),
		AttrOutcome.String(run.Phase.String()),
	}
	m.runs.Add(ctx, 1, attrs...)
	if run.FinishedAt != nil {
		m.runDuration.RecordDuration(ctx, run.FinishedAt.Sub(run.StartedAt), attrs...)
	}
}

// StartQueueDepthCollection records queue depth per organization every interval
// until ctx is done or Stop is called. Only the first call starts a collector.
func (m *SyncMetrics) StartQueueDepthCollection(ctx context.Context, orgs OrganizationLister, queue QueueCounter, interval time.Duration) {
	m.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go m.runCollection(ctx, orgs, queue, interval)
	})
}

func (m *SyncMetrics) runCollection(ctx context.Context, orgs OrganizationLister, queue QueueCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CollectQueueDepth(ctx, orgs, queue)
	for {
		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CollectQueueDepth(ctx, orgs, queue)
		}
	}
}

// CollectQueueDepth records the current queue depth of every enabled organization
func (m *SyncMetrics) CollectQueueDepth(ctx context.Context, orgs OrganizationLister, queue QueueCounter) {
	integrations, err := orgs.FindEnabled(ctx)
	if err != nil {
		m.logger.Error("Failed to list organizations for queue metrics", zap.Error(err))
		return
	}
	for _, ri := range integrations {
		counts, err := queue.CountByStatus(ctx, ri.OrganizationID)
		if err != nil {
			m.logger.Warn("Failed to count queue items",
				zap.String("organization_id", ri.OrganizationID.String()),
				zap.Error(err),
			)
			continue
		}
		for _, status := range []catalogsync.QueueStatus{
			catalogsync.QueueStatusPending,
			catalogsync.QueueStatusProcessing,
			catalogsync.QueueStatusFailed,
		} {
			m.queueDepth.Record(ctx, counts[status],
				AttrOrganizationID.String(ri.OrganizationID.String()),
				AttrQueueStatus.String(string(status)),
			)
		}
	}
}

// Stop stops the queue depth collector.
func (m *SyncMetrics) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}
