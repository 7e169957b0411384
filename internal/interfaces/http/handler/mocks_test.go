package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	appintegration "github.com/vitrine/backend/internal/application/integration"
	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/scheduler"
)

// MockSyncService implements SyncService and TargetedSyncer for testing
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Discover(ctx context.Context, orgID uuid.UUID, et integration.EntityType) (*catalogsync.DiscoveryResult, error) {
	args := m.Called(ctx, orgID, et)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.DiscoveryResult), args.Error(1)
}

func (m *MockSyncService) Pull(ctx context.Context, orgID uuid.UUID, et integration.EntityType, ids []int64, batchSize int) (*catalogsync.PullResult, error) {
	args := m.Called(ctx, orgID, et, ids, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.PullResult), args.Error(1)
}

func (m *MockSyncService) ProcessQueue(ctx context.Context, orgID uuid.UUID, batchSize, maxRetries int) (*catalogsync.PushResult, error) {
	args := m.Called(ctx, orgID, batchSize, maxRetries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.PushResult), args.Error(1)
}

func (m *MockSyncService) BeginFullSync(ctx context.Context, orgID uuid.UUID, et integration.EntityType) (*catalogsync.SyncRun, error) {
	args := m.Called(ctx, orgID, et)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncRun), args.Error(1)
}

func (m *MockSyncService) SyncSpecific(ctx context.Context, orgID uuid.UUID, et integration.EntityType, ids []int64, progress appsync.ProgressFunc) (*catalogsync.SyncRun, error) {
	args := m.Called(ctx, orgID, et, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncRun), args.Error(1)
}

func (m *MockSyncService) GetSyncStatus(ctx context.Context, orgID uuid.UUID, et integration.EntityType) (*appsync.SyncStatusDTO, error) {
	args := m.Called(ctx, orgID, et)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.SyncStatusDTO), args.Error(1)
}

func (m *MockSyncService) GetRun(ctx context.Context, orgID, runID uuid.UUID) (*catalogsync.SyncRun, error) {
	args := m.Called(ctx, orgID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncRun), args.Error(1)
}

func (m *MockSyncService) ListRuns(ctx context.Context, orgID uuid.UUID) ([]*catalogsync.SyncRun, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalogsync.SyncRun), args.Error(1)
}

// MockRunSubmitter implements RunSubmitter for testing
type MockRunSubmitter struct {
	mock.Mock
}

func (m *MockRunSubmitter) SubmitRun(ctx context.Context, run *catalogsync.SyncRun) (*scheduler.SyncJob, error) {
	args := m.Called(ctx, run)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.SyncJob), args.Error(1)
}

func (m *MockRunSubmitter) GetJobHistoryByOrganization(orgID uuid.UUID, limit int) []*scheduler.SyncJob {
	args := m.Called(orgID, limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*scheduler.SyncJob)
}

func (m *MockRunSubmitter) FindJob(id uuid.UUID) (*scheduler.SyncJob, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.SyncJob), args.Error(1)
}

// MockQueueAPI implements QueueAPI for testing
type MockQueueAPI struct {
	mock.Mock
}

func (m *MockQueueAPI) AddToQueue(ctx context.Context, orgID uuid.UUID, input appsync.AddToQueueInput) (*catalogsync.SyncQueueItem, error) {
	args := m.Called(ctx, orgID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncQueueItem), args.Error(1)
}

func (m *MockQueueAPI) GetQueueStatus(ctx context.Context, orgID uuid.UUID) (*appsync.QueueStatusDTO, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.QueueStatusDTO), args.Error(1)
}

func (m *MockQueueAPI) ListItems(ctx context.Context, orgID uuid.UUID, status string, page, pageSize int) (*appsync.QueueListResult, error) {
	args := m.Called(ctx, orgID, status, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.QueueListResult), args.Error(1)
}

func (m *MockQueueAPI) GetItem(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncQueueItem), args.Error(1)
}

func (m *MockQueueAPI) RequeueFailed(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.SyncQueueItem), args.Error(1)
}

func (m *MockQueueAPI) RequeueAllFailed(ctx context.Context, orgID uuid.UUID) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueAPI) DeleteItem(ctx context.Context, orgID, id uuid.UUID) error {
	return m.Called(ctx, orgID, id).Error(0)
}

// MockMirrorAPI implements MirrorAPI for testing
type MockMirrorAPI struct {
	mock.Mock
}

func (m *MockMirrorAPI) CreateLocal(ctx context.Context, orgID uuid.UUID, et integration.EntityType, payload json.RawMessage) (*appsync.LocalChange, error) {
	args := m.Called(ctx, orgID, et, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.LocalChange), args.Error(1)
}

func (m *MockMirrorAPI) UpdateLocal(ctx context.Context, orgID uuid.UUID, et integration.EntityType, remoteID int64, patch json.RawMessage) (*appsync.LocalChange, error) {
	args := m.Called(ctx, orgID, et, remoteID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.LocalChange), args.Error(1)
}

func (m *MockMirrorAPI) DeleteLocal(ctx context.Context, orgID uuid.UUID, et integration.EntityType, remoteID int64) (*appsync.LocalChange, error) {
	args := m.Called(ctx, orgID, et, remoteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.LocalChange), args.Error(1)
}

func (m *MockMirrorAPI) Get(ctx context.Context, orgID uuid.UUID, et integration.EntityType, remoteID int64) (*catalogsync.MirrorEntity, error) {
	args := m.Called(ctx, orgID, et, remoteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogsync.MirrorEntity), args.Error(1)
}

func (m *MockMirrorAPI) List(ctx context.Context, orgID uuid.UUID, et integration.EntityType, filter catalogsync.MirrorFilter) (*appsync.MirrorListResult, error) {
	args := m.Called(ctx, orgID, et, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.MirrorListResult), args.Error(1)
}

// MockIntegrationAPI implements IntegrationAPI and WebhookVerifier for testing
type MockIntegrationAPI struct {
	mock.Mock
}

func (m *MockIntegrationAPI) Configure(ctx context.Context, orgID uuid.UUID, req appintegration.ConfigureIntegrationRequest) (*integration.RemoteIntegration, error) {
	args := m.Called(ctx, orgID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteIntegration), args.Error(1)
}

func (m *MockIntegrationAPI) Get(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteIntegration), args.Error(1)
}

func (m *MockIntegrationAPI) Disable(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteIntegration), args.Error(1)
}

func (m *MockIntegrationAPI) Delete(ctx context.Context, orgID uuid.UUID) error {
	return m.Called(ctx, orgID).Error(0)
}

func (m *MockIntegrationAPI) TestConnection(ctx context.Context, orgID uuid.UUID) (*appintegration.ConnectionTestResponse, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.ConnectionTestResponse), args.Error(1)
}

func (m *MockIntegrationAPI) VerifyWebhook(ctx context.Context, orgID uuid.UUID, body []byte, signature string) error {
	return m.Called(ctx, orgID, body, signature).Error(0)
}

// MockIdempotencyStore implements catalogsync.IdempotencyStore for testing
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}
