package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

type runKey struct {
	orgID      uuid.UUID
	entityType integration.EntityType
}

type storedRun struct {
	run       *catalogsync.SyncRun
	expiresAt time.Time
}

// InMemoryRunStore keeps run snapshots in process memory.
// Snapshots expire after the retention period.
type InMemoryRunStore struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]storedRun
	latest    map[runKey]uuid.UUID
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryRunStore creates an in-memory run store and starts its cleanup loop
func NewInMemoryRunStore(retention time.Duration) *InMemoryRunStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	s := &InMemoryRunStore{
		runs:      make(map[uuid.UUID]storedRun),
		latest:    make(map[runKey]uuid.UUID),
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

// Save stores a snapshot and makes it the latest run of its pair
func (s *InMemoryRunStore) Save(_ context.Context, run *catalogsync.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = storedRun{run: cloneRun(run), expiresAt: s.now().Add(s.retention)}
	key := runKey{run.OrganizationID, run.EntityType}
	if current, ok := s.latest[key]; !ok || current == run.ID || !s.olderThanCurrent(run, current) {
		s.latest[key] = run.ID
	}
	return nil
}

// olderThanCurrent reports whether run started before the pair's current latest run
func (s *InMemoryRunStore) olderThanCurrent(run *catalogsync.SyncRun, current uuid.UUID) bool {
	stored, ok := s.runs[current]
	return ok && run.StartedAt.Before(stored.run.StartedAt)
}

// Get returns a snapshot by id
func (s *InMemoryRunStore) Get(_ context.Context, runID uuid.UUID) (*catalogsync.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(runID)
}

func (s *InMemoryRunStore) get(runID uuid.UUID) (*catalogsync.SyncRun, error) {
	stored, ok := s.runs[runID]
	if !ok || s.now().After(stored.expiresAt) {
		return nil, catalogsync.ErrRunNotFound
	}
	return cloneRun(stored.run), nil
}

// Latest returns the latest run of a pair
func (s *InMemoryRunStore) Latest(_ context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.latest[runKey{orgID, entityType}]
	if !ok {
		return nil, catalogsync.ErrRunNotFound
	}
	return s.get(id)
}

// ListByOrganization returns the latest run of every entity type that has one
func (s *InMemoryRunStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*catalogsync.SyncRun, error) {
	runs := make([]*catalogsync.SyncRun, 0, len(integration.AllEntityTypes()))
	for _, et := range integration.AllEntityTypes() {
		run, err := s.Latest(ctx, orgID, et)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryRunStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryRunStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryRunStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, stored := range s.runs {
		if now.After(stored.expiresAt) {
			delete(s.runs, id)
		}
	}
	for key, id := range s.latest {
		if _, ok := s.runs[id]; !ok {
			delete(s.latest, key)
		}
	}
}

// Size returns the number of stored snapshots
func (s *InMemoryRunStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

var _ catalogsync.RunStore = (*InMemoryRunStore)(nil)
