package catalogsync

import (
	"context"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// MetricsRecorder receives engine measurements
type MetricsRecorder interface {
	RecordPull(ctx context.Context, entityType integration.EntityType, processed, failed int)
	RecordPush(ctx context.Context, entityType integration.EntityType, op catalogsync.QueueOperation, success bool)
	RecordRun(ctx context.Context, run *catalogsync.SyncRun)
}

type noopMetrics struct{}

func (noopMetrics) RecordPull(context.Context, integration.EntityType, int, int) {}

func (noopMetrics) RecordPush(context.Context, integration.EntityType, catalogsync.QueueOperation, bool) {
}

func (noopMetrics) RecordRun(context.Context, *catalogsync.SyncRun) {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
