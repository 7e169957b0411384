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

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// SyncJobStatus represents the status of a full sync job
type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "PENDING"
	SyncJobStatusRunning   SyncJobStatus = "RUNNING"
	SyncJobStatusSuccess   SyncJobStatus = "SUCCESS"
	SyncJobStatusFailed    SyncJobStatus = "FAILED"
	SyncJobStatusSkipped   SyncJobStatus = "SKIPPED"
	SyncJobStatusCancelled SyncJobStatus = "CANCELLED"
)

// SyncJobTrigger records why a job was submitted
type SyncJobTrigger string

const (
	SyncJobTriggerManual    SyncJobTrigger = "manual"
	SyncJobTriggerScheduled SyncJobTrigger = "scheduled"
)

// SyncJob is one full sync waiting for or running on a worker
type SyncJob struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	EntityType     integration.EntityType
	Trigger        SyncJobTrigger
	// Run is the idle run begun by the submitter, nil when the worker begins its own
	Run         *catalogsync.SyncRun
	RunID       uuid.UUID
	Status      SyncJobStatus
	Error       string
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewSyncJob creates a job that begins its run when a worker picks it up
func NewSyncJob(orgID uuid.UUID, entityType integration.EntityType, trigger SyncJobTrigger) *SyncJob {
	return &SyncJob{
		ID:             uuid.New(),
		OrganizationID: orgID,
		EntityType:     entityType,
		Trigger:        trigger,
		Status:         SyncJobStatusPending,
		SubmittedAt:    time.Now(),
	}
}

// NewSyncJobForRun creates a job that executes an already begun run
func NewSyncJobForRun(run *catalogsync.SyncRun) *SyncJob {
	job := NewSyncJob(run.OrganizationID, run.EntityType, SyncJobTriggerManual)
	job.Run = run
	job.RunID = run.ID
	return job
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *SyncJob) Complete() {
	j.finish(SyncJobStatusSuccess, "")
}

// Fail marks the job as failed
func (j *SyncJob) Fail(err string) {
	j.finish(SyncJobStatusFailed, err)
}

// Skip marks a job that found another run holding the guard
func (j *SyncJob) Skip(reason string) {
	j.finish(SyncJobStatusSkipped, reason)
}

// Cancel marks a job that never ran
func (j *SyncJob) Cancel(reason string) {
	j.finish(SyncJobStatusCancelled, reason)
}

func (j *SyncJob) finish(status SyncJobStatus, errMsg string) {
	now := time.Now()
	j.Status = status
	j.Error = errMsg
	j.CompletedAt = &now
}

// ---------------------------------------------------------------------------
// SyncJobExecutor Interface
// ---------------------------------------------------------------------------

// SyncJobExecutor executes full sync jobs
type SyncJobExecutor interface {
	// Execute runs the job's full sync and sets job.RunID
	Execute(ctx context.Context, job *SyncJob) error
	// Abort releases whatever the job holds when it will never run
	Abort(ctx context.Context, job *SyncJob, reason error)
}

// ---------------------------------------------------------------------------
// SyncJobSchedulerConfig
// ---------------------------------------------------------------------------

// SyncJobSchedulerConfig holds configuration for the sync job scheduler
type SyncJobSchedulerConfig struct {
	// MaxConcurrentJobs is the worker pool size
	MaxConcurrentJobs int
	// JobTimeout bounds one full sync
	JobTimeout time.Duration
	// QueueSize is the number of jobs that can wait for a worker
	QueueSize int
	// HistoryLimit is the number of finished jobs kept for monitoring
	HistoryLimit int
}

// DefaultSyncJobSchedulerConfig returns default configuration
func DefaultSyncJobSchedulerConfig() SyncJobSchedulerConfig {
	return SyncJobSchedulerConfig{
		MaxConcurrentJobs: 4,
		JobTimeout:        30 * time.Minute,
		QueueSize:         100,
		HistoryLimit:      100,
	}
}

// Validate validates the configuration
func (c *SyncJobSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 || c.HistoryLimit < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncJobScheduler
// ---------------------------------------------------------------------------

// SyncJobScheduler runs full sync jobs on a bounded worker pool
type SyncJobScheduler struct {
	config   SyncJobSchedulerConfig
	executor SyncJobExecutor
	logger   *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	historyMu sync.RWMutex
	history   []*SyncJob
}

// NewSyncJobScheduler creates a new sync job scheduler
func NewSyncJobScheduler(config SyncJobSchedulerConfig, executor SyncJobExecutor, logger *zap.Logger) (*SyncJobScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncJobScheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("sync_jobs"),
		jobs:     make(chan *SyncJob, config.QueueSize),
		history:  make([]*SyncJob, 0, config.HistoryLimit),
	}, nil
}

// Start starts the worker pool
func (s *SyncJobScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync job scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs, aborts queued ones and waits for the workers
func (s *SyncJobScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Sync job scheduler stop timed out")
		return ctx.Err()
	}

	// workers are gone, whatever is left never ran
	for job := range s.jobs {
		s.abort(ctx, job, ErrSchedulerNotRunning)
	}
	s.logger.Info("Sync job scheduler stopped gracefully")
	return nil
}

// SubmitJob queues a job. A job carrying a begun run is aborted when it cannot be queued.
func (s *SyncJobScheduler) SubmitJob(ctx context.Context, job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		s.abort(ctx, job, ErrSchedulerNotRunning)
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("organization_id", job.OrganizationID.String()),
			zap.String("entity_type", job.EntityType.String()),
			zap.String("trigger", string(job.Trigger)),
		)
		return nil
	default:
		s.abort(ctx, job, ErrJobQueueFull)
		return ErrJobQueueFull
	}
}

// SubmitRun queues the execution of a run begun by the caller
func (s *SyncJobScheduler) SubmitRun(ctx context.Context, run *catalogsync.SyncRun) (*SyncJob, error) {
	job := NewSyncJobForRun(run)
	if err := s.SubmitJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ScheduleFullSync queues a full sync that begins its own run
func (s *SyncJobScheduler) ScheduleFullSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, trigger SyncJobTrigger) error {
	return s.SubmitJob(ctx, NewSyncJob(orgID, entityType, trigger))
}

func (s *SyncJobScheduler) abort(ctx context.Context, job *SyncJob, reason error) {
	s.executor.Abort(context.WithoutCancel(ctx), job, reason)
	job.Cancel(reason.Error())
	s.addToHistory(job)
}

// worker processes jobs from the queue
func (s *SyncJobScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *SyncJobScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("organization_id", job.OrganizationID.String()),
		zap.String("entity_type", job.EntityType.String()),
	)
	log.Info("Processing sync job", zap.String("trigger", string(job.Trigger)))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	switch {
	case err == nil:
		job.Complete()
		log.Info("Sync job completed", zap.String("run_id", job.RunID.String()))
	case errors.Is(err, catalogsync.ErrSyncInProgress):
		job.Skip(err.Error())
		log.Info("Sync job skipped, another run holds the guard")
	default:
		job.Fail(err.Error())
		log.Error("Sync job failed", zap.String("run_id", job.RunID.String()), zap.Error(err))
	}
	s.addToHistory(job)
}

// addToHistory adds a finished job to history
func (s *SyncJobScheduler) addToHistory(job *SyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*SyncJob{job}, s.history...)
	if len(s.history) > s.config.HistoryLimit {
		s.history = s.history[:s.config.HistoryLimit]
	}
}

// recentJobs returns recent job history across organizations, newest first
func (s *SyncJobScheduler) recentJobs(limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByOrganization returns job history for one organization
func (s *SyncJobScheduler) GetJobHistoryByOrganization(orgID uuid.UUID, limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*SyncJob, 0, limit)
	for _, job := range s.history {
		if job.OrganizationID == orgID {
			result = append(result, job)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}

// FindJob returns a finished job by id
func (s *SyncJobScheduler) FindJob(id uuid.UUID) (*SyncJob, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	for _, job := range s.history {
		if job.ID == id {
			return job, nil
		}
	}
	return nil, ErrJobNotFound
}

// queued returns the number of jobs waiting for a worker
func (s *SyncJobScheduler) queued() int {
	return len(s.jobs)
}
