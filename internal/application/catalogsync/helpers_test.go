package catalogsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/cache"
	"github.com/vitrine/backend/internal/infrastructure/persistence"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Fake remote catalog
// ---------------------------------------------------------------------------

type fakeRemote struct {
	mu         sync.Mutex
	entityType integration.EntityType
	records    map[int64]integration.RemoteRecord
	nextID     int64
	calls      []string

	indexErr   error
	batchErr   func(ids []int64) error
	createErrs []error
	updateErrs []error
	deleteErrs []error
	// onUpdate runs before Update answers
	onUpdate func()
	// silentUpdates acknowledges updates without returning the record
	silentUpdates bool
}

func newFakeRemote(entityType integration.EntityType) *fakeRemote {
	return &fakeRemote{
		entityType: entityType,
		records:    make(map[int64]integration.RemoteRecord),
		nextID:     100,
	}
}

func (f *fakeRemote) put(id int64, modified time.Time, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = record(id, modified, fields)
}

func record(id int64, modified time.Time, fields map[string]any) integration.RemoteRecord {
	doc := map[string]any{"id": id}
	for k, v := range fields {
		doc[k] = v
	}
	payload, _ := json.Marshal(doc)
	return integration.RemoteRecord{ID: id, LastModified: modified.UTC(), Payload: payload}
}

func (f *fakeRemote) EntityType() integration.EntityType { return f.entityType }

func (f *fakeRemote) FetchIndex(context.Context) ([]integration.IndexEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "index")
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	entries := make([]integration.IndexEntry, 0, len(f.records))
	for id, rec := range f.records {
		entries = append(entries, integration.IndexEntry{ID: id, LastModified: rec.LastModified})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (f *fakeRemote) FetchBatch(_ context.Context, ids []int64) ([]integration.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("batch:%v", ids))
	if f.batchErr != nil {
		if err := f.batchErr(ids); err != nil {
			return nil, err
		}
	}
	var out []integration.RemoteRecord
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRemote) Create(_ context.Context, payload json.RawMessage) (*integration.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if err := popErr(&f.createErrs); err != nil {
		return nil, err
	}
	id := f.nextID
	f.nextID++
	var fields map[string]any
	_ = json.Unmarshal(payload, &fields)
	rec := record(id, t0.Add(time.Hour), fields)
	f.records[id] = rec
	return &rec, nil
}

func (f *fakeRemote) Update(_ context.Context, id int64, payload json.RawMessage) (*integration.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("update:%d", id))
	if f.onUpdate != nil {
		f.onUpdate()
	}
	if err := popErr(&f.updateErrs); err != nil {
		return nil, err
	}
	if _, ok := f.records[id]; !ok {
		return nil, integration.NewRemoteError(404, "woocommerce_rest_invalid_id", "Invalid ID.")
	}
	var fields map[string]any
	_ = json.Unmarshal(payload, &fields)
	rec := record(id, t0.Add(2*time.Hour), fields)
	f.records[id] = rec
	if f.silentUpdates {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeRemote) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("delete:%d", id))
	if err := popErr(&f.deleteErrs); err != nil {
		return err
	}
	if _, ok := f.records[id]; !ok {
		return integration.NewRemoteError(404, "woocommerce_rest_invalid_id", "Invalid ID.")
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type fakeCatalog struct {
	resources map[integration.EntityType]*fakeRemote
}

func (c *fakeCatalog) Resource(entityType integration.EntityType) (integration.RemoteResource, error) {
	r, ok := c.resources[entityType]
	if !ok {
		return nil, integration.ErrUnknownEntityType
	}
	return r, nil
}

func (c *fakeCatalog) Ping(context.Context) error { return nil }

type fakeFactory struct {
	catalog *fakeCatalog
}

func (f *fakeFactory) ForIntegration(context.Context, *integration.RemoteIntegration) (integration.RemoteCatalog, error) {
	return f.catalog, nil
}

func unavailable() error {
	return integration.NewRemoteError(503, "", "service unavailable")
}

func rejected() error {
	return integration.NewRemoteError(400, "rest_invalid_param", "Invalid parameter(s): regular_price")
}

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

type testEnv struct {
	orgID    uuid.UUID
	clock    *testClock
	db       *gorm.DB
	mirror   *persistence.GormMirrorRepository
	queue    *persistence.GormSyncQueueRepository
	status   *persistence.GormSyncStatusRepository
	runs     *cache.InMemoryRunStore
	products *fakeRemote
	orders   *fakeRemote

	discovery *DiscoveryService
	puller    *PullExecutor
	pusher    *PushQueueProcessor
	queueSvc  *QueueService
	local     *LocalChangeService
	orch      *Orchestrator
}

func testSettings() Settings {
	return Settings{
		BatchSize:      2,
		MaxRetries:     3,
		ChunkInterval:  0,
		ChunkTimeout:   time.Second,
		QueueBatchSize: 50,
		MaxPushPasses:  5,
		StaleAfter:     30 * time.Minute,
	}
}

func newTestEnv(t *testing.T, settings Settings) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	env := &testEnv{
		orgID:    uuid.New(),
		clock:    &testClock{now: t0},
		db:       db,
		mirror:   persistence.NewGormMirrorRepository(db),
		queue:    persistence.NewGormSyncQueueRepository(db),
		status:   persistence.NewGormSyncStatusRepository(db),
		runs:     cache.NewInMemoryRunStore(time.Hour),
		products: newFakeRemote(integration.EntityTypeProducts),
		orders:   newFakeRemote(integration.EntityTypeOrders),
	}
	t.Cleanup(func() { _ = env.runs.Close() })

	integrations := persistence.NewGormRemoteIntegrationRepository(db)
	ri, err := integration.NewRemoteIntegration(env.orgID, "https://shop.example.com", "ck_test", "cs_test")
	require.NoError(t, err)
	require.NoError(t, integrations.Save(context.Background(), ri))

	resolver := NewCatalogResolver(integrations, &fakeFactory{catalog: &fakeCatalog{
		resources: map[integration.EntityType]*fakeRemote{
			integration.EntityTypeProducts: env.products,
			integration.EntityTypeOrders:   env.orders,
		},
	}})

	env.discovery = NewDiscoveryService(resolver, env.mirror, env.queue, env.status, nil)
	env.puller = NewPullExecutor(resolver, env.mirror, settings, nil, nil)
	env.pusher = NewPushQueueProcessor(resolver, env.mirror, env.queue, settings, nil, nil)
	env.queueSvc = NewQueueService(env.queue, settings, nil)
	env.local = NewLocalChangeService(env.mirror, env.queue, settings, nil)
	env.orch = NewOrchestrator(OrchestratorDeps{
		Discovery: env.discovery,
		Puller:    env.puller,
		Pusher:    env.pusher,
		Resolver:  resolver,
		Mirror:    env.mirror,
		Queue:     env.queue,
		Status:    env.status,
		Runs:      env.runs,
	}, settings, nil)

	env.discovery.now = env.clock.Now
	env.puller.now = env.clock.Now
	env.pusher.now = env.clock.Now
	env.queueSvc.now = env.clock.Now
	env.local.now = env.clock.Now
	env.orch.now = env.clock.Now
	return env
}

func (e *testEnv) mirrorIDs(t *testing.T, entityType integration.EntityType) []int64 {
	t.Helper()
	index, err := e.mirror.LocalIndex(context.Background(), e.orgID, entityType)
	require.NoError(t, err)
	ids := make([]int64, 0, len(index))
	for _, entry := range index {
		ids = append(ids, entry.RemoteID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *testEnv) enqueue(t *testing.T, entityID int64, op catalogsync.QueueOperation, data string) *catalogsync.SyncQueueItem {
	t.Helper()
	var payload json.RawMessage
	if data != "" {
		payload = json.RawMessage(data)
	}
	item, err := catalogsync.NewSyncQueueItem(e.orgID, integration.EntityTypeProducts, entityID, op, payload, 3, e.clock.Now())
	require.NoError(t, err)
	require.NoError(t, e.queue.Enqueue(context.Background(), item))
	return item
}

func (e *testEnv) item(t *testing.T, id uuid.UUID) *catalogsync.SyncQueueItem {
	t.Helper()
	item, err := e.queue.FindByID(context.Background(), e.orgID, id)
	require.NoError(t, err)
	return item
}
