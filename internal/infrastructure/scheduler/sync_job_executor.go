package scheduler

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// FullSyncRunner runs full syncs; implemented by the catalog sync orchestrator
type FullSyncRunner interface {
	FullSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, progress catalogsync.ProgressFunc) (*catalogsync.SyncRun, error)
	ExecuteFullSync(ctx context.Context, run *catalogsync.SyncRun, progress catalogsync.ProgressFunc) (*catalogsync.SyncRun, error)
	AbortRun(ctx context.Context, run *catalogsync.SyncRun, reason error) error
}

// FullSyncExecutor implements SyncJobExecutor on top of a FullSyncRunner
type FullSyncExecutor struct {
	runner FullSyncRunner
	logger *zap.Logger
}

// NewFullSyncExecutor creates a new full sync executor
func NewFullSyncExecutor(runner FullSyncRunner, logger *zap.Logger) *FullSyncExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FullSyncExecutor{runner: runner, logger: logger.Named("sync_executor")}
}

// Execute runs the job's full sync. A job without a begun run takes the guard itself.
func (e *FullSyncExecutor) Execute(ctx context.Context, job *SyncJob) error {
	progress := func(run catalogsync.SyncRun) {
		job.RunID = run.ID
		e.logger.Debug("Sync job progress",
			zap.String("job_id", job.ID.String()),
			zap.String("phase", string(run.Phase)),
			zap.Int("progress", run.Progress),
		)
	}

	var (
		run *catalogsync.SyncRun
		err error
	)
	if job.Run != nil {
		job.RunID = job.Run.ID
		run, err = e.runner.ExecuteFullSync(ctx, job.Run, progress)
	} else {
		run, err = e.runner.FullSync(ctx, job.OrganizationID, job.EntityType, progress)
	}
	if run != nil {
		job.RunID = run.ID
	}
	return err
}

// Abort fails the job's begun run so its guard is released
func (e *FullSyncExecutor) Abort(ctx context.Context, job *SyncJob, reason error) {
	if job.Run == nil {
		return
	}
	if err := e.runner.AbortRun(ctx, job.Run, reason); err != nil {
		e.logger.Warn("Aborted sync run",
			zap.String("job_id", job.ID.String()),
			zap.String("run_id", job.Run.ID.String()),
			zap.Error(err),
		)
	}
}
