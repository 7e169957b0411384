package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/infrastructure/scheduler"
)

// SyncService is the part of the orchestrator the sync API drives
type SyncService interface {
	Discover(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.DiscoveryResult, error)
	Pull(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, ids []int64, batchSize int) (*catalogsync.PullResult, error)
	ProcessQueue(ctx context.Context, orgID uuid.UUID, batchSize, maxRetries int) (*catalogsync.PushResult, error)
	BeginFullSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.SyncRun, error)
	SyncSpecific(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, ids []int64, progress appsync.ProgressFunc) (*catalogsync.SyncRun, error)
	GetSyncStatus(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*appsync.SyncStatusDTO, error)
	GetRun(ctx context.Context, orgID, runID uuid.UUID) (*catalogsync.SyncRun, error)
	ListRuns(ctx context.Context, orgID uuid.UUID) ([]*catalogsync.SyncRun, error)
}

// RunSubmitter hands a begun run to the background workers
type RunSubmitter interface {
	SubmitRun(ctx context.Context, run *catalogsync.SyncRun) (*scheduler.SyncJob, error)
	GetJobHistoryByOrganization(orgID uuid.UUID, limit int) []*scheduler.SyncJob
	FindJob(id uuid.UUID) (*scheduler.SyncJob, error)
}

// SyncHandler serves discovery, pull, push and run endpoints
type SyncHandler struct {
	BaseHandler
	sync   SyncService
	runner RunSubmitter
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync SyncService, runner RunSubmitter) *SyncHandler {
	return &SyncHandler{sync: sync, runner: runner}
}

// IDsRequest lists remote ids to pull
type IDsRequest struct {
	IDs       []int64 `json:"ids" binding:"required,min=1,max=1000,dive,gt=0"`
	BatchSize int     `json:"batch_size" binding:"omitempty,min=1,max=100"`
}

// ProcessQueueRequest tunes one queue pass; zero values use the configured defaults
type ProcessQueueRequest struct {
	BatchSize  int `json:"batch_size" binding:"omitempty,min=1,max=500"`
	MaxRetries int `json:"max_retries" binding:"omitempty,min=1,max=20"`
}

// FullSyncAccepted is returned when a full sync was queued
type FullSyncAccepted struct {
	JobID uuid.UUID           `json:"job_id"`
	Run   *appsync.SyncRunDTO `json:"run"`
}

// SyncJobDTO is a finished full sync job
type SyncJobDTO struct {
	ID          uuid.UUID  `json:"id"`
	EntityType  string     `json:"entity_type"`
	Trigger     string     `json:"trigger"`
	RunID       *uuid.UUID `json:"run_id,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toSyncJobDTO(job *scheduler.SyncJob) SyncJobDTO {
	out := SyncJobDTO{
		ID:          job.ID,
		EntityType:  job.EntityType.String(),
		Trigger:     string(job.Trigger),
		Status:      string(job.Status),
		Error:       job.Error,
		SubmittedAt: job.SubmittedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.RunID != uuid.Nil {
		id := job.RunID
		out.RunID = &id
	}
	return out
}

// JobsQuery bounds the job history listing
type JobsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// Discover compares the remote index with the mirror
// POST /sync/:entity_type/discover
func (h *SyncHandler) Discover(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	result, err := h.sync.Discover(c.Request.Context(), orgID, et)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Pull fetches the given ids into the mirror
// POST /sync/:entity_type/pull
func (h *SyncHandler) Pull(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	result, err := h.sync.Pull(c.Request.Context(), orgID, et, req.IDs, req.BatchSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// FullSync begins a full run and queues it; the run is polled via GET /sync/runs/:run_id
// POST /sync/:entity_type/full
func (h *SyncHandler) FullSync(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	run, err := h.sync.BeginFullSync(ctx, orgID, et)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	// the job outlives the request
	job, err := h.runner.SubmitRun(context.WithoutCancel(ctx), run)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.L(c.Request.Context()).Info("Full sync queued",
		zap.String("run_id", run.ID.String()),
		zap.String("job_id", job.ID.String()),
		zap.String("entity_type", et.String()),
	)
	h.Accepted(c, FullSyncAccepted{JobID: job.ID, Run: appsync.ToSyncRunDTO(run)})
}

// SyncSpecific pulls the given ids as a targeted run and waits for it
// POST /sync/:entity_type/specific
func (h *SyncHandler) SyncSpecific(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	run, err := h.sync.SyncSpecific(c.Request.Context(), orgID, et, req.IDs, nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appsync.ToSyncRunDTO(run))
}

// Status reports the guard, last sync and current run of an entity type
// GET /sync/:entity_type/status
func (h *SyncHandler) Status(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	status, err := h.sync.GetSyncStatus(c.Request.Context(), orgID, et)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// GetRun returns one run snapshot
// GET /sync/runs/:run_id
func (h *SyncHandler) GetRun(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	runID, ok := h.uuidParam(c, "run_id")
	if !ok {
		return
	}
	run, err := h.sync.GetRun(c.Request.Context(), orgID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appsync.ToSyncRunDTO(run))
}

// ListRuns returns the latest run of every entity type
// GET /sync/runs
func (h *SyncHandler) ListRuns(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	runs, err := h.sync.ListRuns(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]*appsync.SyncRunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, appsync.ToSyncRunDTO(run))
	}
	h.Success(c, out)
}

// ProcessQueue runs one push pass synchronously
// POST /sync/queue/process
func (h *SyncHandler) ProcessQueue(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	var req ProcessQueueRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.ValidationError(c, err)
			return
		}
	}
	result, err := h.sync.ProcessQueue(c.Request.Context(), orgID, req.BatchSize, req.MaxRetries)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListJobs returns the organization's finished full sync jobs, newest first
// GET /sync/jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	var q JobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	jobs := h.runner.GetJobHistoryByOrganization(orgID, q.Limit)
	out := make([]SyncJobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = toSyncJobDTO(job)
	}
	h.Success(c, out)
}

// GetJob returns one finished background job
// GET /sync/jobs/:job_id
func (h *SyncHandler) GetJob(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	jobID, ok := h.uuidParam(c, "job_id")
	if !ok {
		return
	}
	job, err := h.runner.FindJob(jobID)
	if err != nil || job.OrganizationID != orgID {
		h.NotFound(c, "Sync job not found")
		return
	}
	h.Success(c, toSyncJobDTO(job))
}
