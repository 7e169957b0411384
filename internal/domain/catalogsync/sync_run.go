package catalogsync

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/integration"
)

// RunPhase is the state of a sync run
type RunPhase string

const (
	RunPhaseIdle        RunPhase = "idle"
	RunPhaseDiscovering RunPhase = "discovering"
	RunPhasePulling     RunPhase = "pulling"
	RunPhasePushing     RunPhase = "pushing"
	RunPhaseCompleted   RunPhase = "completed"
	RunPhaseFailed      RunPhase = "failed"
)

// IsTerminal returns true for completed and failed
func (p RunPhase) IsTerminal() bool {
	return p == RunPhaseCompleted || p == RunPhaseFailed
}

// String returns the string representation of RunPhase
func (p RunPhase) String() string {
	return string(p)
}

// RunKind distinguishes full runs from targeted ones
type RunKind string

const (
	RunKindFull     RunKind = "full"
	RunKindTargeted RunKind = "targeted"
)

// Progress checkpoints
const (
	ProgressDiscovering = 10
	ProgressPulling     = 30
	ProgressPushing     = 80
	ProgressDone        = 100
)

// PullResult summarizes a pull. Processed + Errors equals Requested.
type PullResult struct {
	Requested int `json:"requested"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	// FailedIDs holds each failed id once
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}

// PushResult summarizes one queue processing pass
type PushResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	// Deferred items were due but skipped, e.g. updates waiting for a provisional create
	Deferred    int         `json:"deferred"`
	FailedItems []uuid.UUID `json:"failed_items,omitempty"`
}

// Add accumulates another pass into r
func (r *PushResult) Add(other *PushResult) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Errors += other.Errors
	r.Deferred += other.Deferred
	r.FailedItems = append(r.FailedItems, other.FailedItems...)
}

// ProgressFunc receives a snapshot of the run after every phase change
type ProgressFunc func(run SyncRun)

// SyncRun is the progress record of one run. Phases only move forward and
// progress never decreases.
type SyncRun struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	EntityType     integration.EntityType
	Kind           RunKind
	Phase          RunPhase
	Progress       int
	CurrentStep    string
	FailureReason  string
	Discovery      *DiscoveryResult
	Pull           *PullResult
	Push           *PushResult
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// NewSyncRun creates an idle run
func NewSyncRun(orgID uuid.UUID, entityType integration.EntityType, kind RunKind, now time.Time) *SyncRun {
	return &SyncRun{
		ID:             uuid.New(),
		OrganizationID: orgID,
		EntityType:     entityType,
		Kind:           kind,
		Phase:          RunPhaseIdle,
		CurrentStep:    "queued",
		StartedAt:      now.UTC(),
	}
}

var phaseOrder = map[RunPhase]int{
	RunPhaseIdle:        0,
	RunPhaseDiscovering: 1,
	RunPhasePulling:     2,
	RunPhasePushing:     3,
	RunPhaseCompleted:   4,
}

// Advance moves the run to a later working phase
func (r *SyncRun) Advance(phase RunPhase, progress int, step string) error {
	if r.Phase.IsTerminal() {
		return fmt.Errorf("%w: run is %s", ErrInvalidRunTransition, r.Phase)
	}
	next, ok := phaseOrder[phase]
	if !ok || phase.IsTerminal() || next <= phaseOrder[r.Phase] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRunTransition, r.Phase, phase)
	}
	r.Phase = phase
	r.setProgress(progress)
	r.CurrentStep = step
	return nil
}

// Complete finishes the run successfully
func (r *SyncRun) Complete(now time.Time) error {
	if r.Phase.IsTerminal() {
		return fmt.Errorf("%w: run is %s", ErrInvalidRunTransition, r.Phase)
	}
	now = now.UTC()
	r.Phase = RunPhaseCompleted
	r.setProgress(ProgressDone)
	r.CurrentStep = "completed"
	r.FinishedAt = &now
	return nil
}

// Fail finishes the run with a reason. Progress stays where the run stopped.
func (r *SyncRun) Fail(reason string, now time.Time) error {
	if r.Phase.IsTerminal() {
		return fmt.Errorf("%w: run is %s", ErrInvalidRunTransition, r.Phase)
	}
	now = now.UTC()
	r.Phase = RunPhaseFailed
	r.FailureReason = reason
	r.CurrentStep = "failed during " + r.CurrentStep
	r.FinishedAt = &now
	return nil
}

// Duration returns the run's wall time so far
func (r *SyncRun) Duration(now time.Time) time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

func (r *SyncRun) setProgress(p int) {
	if p > ProgressDone {
		p = ProgressDone
	}
	if p > r.Progress {
		r.Progress = p
	}
}
