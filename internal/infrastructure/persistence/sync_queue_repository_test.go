package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

func queueItem(t *testing.T, orgID uuid.UUID, et integration.EntityType, entityID int64, op catalogsync.QueueOperation, createdAt time.Time) *catalogsync.SyncQueueItem {
	t.Helper()
	var data json.RawMessage
	if op != catalogsync.QueueOperationDelete {
		data = json.RawMessage(`{"name":"x"}`)
	}
	item, err := catalogsync.NewSyncQueueItem(orgID, et, entityID, op, data, 3, createdAt)
	require.NoError(t, err)
	return item
}

func TestGormSyncQueueRepository_FindDueOrdering(t *testing.T) {
	repo := NewGormSyncQueueRepository(newSQLiteDB(t))
	ctx := context.Background()
	orgID := newOrg()
	products := integration.EntityTypeProducts

	update := queueItem(t, orgID, products, 1, catalogsync.QueueOperationUpdate, t0)
	create := queueItem(t, orgID, products, -1, catalogsync.QueueOperationCreate, t0.Add(time.Second))
	deleteOld := queueItem(t, orgID, products, 2, catalogsync.QueueOperationDelete, t0.Add(2*time.Second))
	deleteNew := queueItem(t, orgID, products, 3, catalogsync.QueueOperationDelete, t0.Add(3*time.Second))
	future := queueItem(t, orgID, products, 4, catalogsync.QueueOperationUpdate, t0)
	future.ScheduledAt = t0.Add(time.Hour)
	order := queueItem(t, orgID, integration.EntityTypeOrders, 9, catalogsync.QueueOperationUpdate, t0)
	other := queueItem(t, newOrg(), products, 1, catalogsync.QueueOperationDelete, t0)

	require.NoError(t, repo.Enqueue(ctx, update, create, deleteNew, deleteOld, future, order, other))

	now := t0.Add(time.Minute)
	due, err := repo.FindDue(ctx, orgID, catalogsync.DueFilter{EntityType: &products, Now: now, Limit: 10})
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(due))
	for i, item := range due {
		ids[i] = item.ID
	}
	assert.Equal(t, []uuid.UUID{deleteOld.ID, deleteNew.ID, create.ID, update.ID}, ids)

	all, err := repo.FindDue(ctx, orgID, catalogsync.DueFilter{Now: now, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	orgs, err := repo.OrganizationsWithDue(ctx, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{orgID, other.OrganizationID}, orgs)
}

func TestGormSyncQueueRepository_ClaimOnce(t *testing.T) {
	repo := NewGormSyncQueueRepository(newSQLiteDB(t))
	ctx := context.Background()
	orgID := newOrg()

	item := queueItem(t, orgID, integration.EntityTypeProducts, 5, catalogsync.QueueOperationUpdate, t0)
	require.NoError(t, repo.Enqueue(ctx, item))

	first := *item
	require.NoError(t, first.MarkProcessing(t0))
	ok, err := repo.Claim(ctx, &first)
	require.NoError(t, err)
	assert.True(t, ok)

	second := *item
	require.NoError(t, second.MarkProcessing(t0))
	ok, err = repo.Claim(ctx, &second)
	require.NoError(t, err)
	assert.False(t, ok, "an item is claimed by one worker only")

	stored, err := repo.FindByID(ctx, orgID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestGormSyncQueueRepository_UpdateAndCounts(t *testing.T) {
	repo := NewGormSyncQueueRepository(newSQLiteDB(t))
	ctx := context.Background()
	orgID := newOrg()

	item := queueItem(t, orgID, integration.EntityTypeCustomers, 8, catalogsync.QueueOperationUpdate, t0)
	done := queueItem(t, orgID, integration.EntityTypeCustomers, 9, catalogsync.QueueOperationUpdate, t0)
	require.NoError(t, repo.Enqueue(ctx, item, done))

	require.NoError(t, item.MarkProcessing(t0))
	require.NoError(t, item.MarkFailed("remote catalog unavailable", t0))
	require.NoError(t, repo.Update(ctx, item))

	require.NoError(t, done.MarkProcessing(t0))
	require.NoError(t, done.MarkCompleted(t0))
	require.NoError(t, repo.Update(ctx, done))

	stored, err := repo.FindByID(ctx, orgID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusPending, stored.Status)
	assert.Equal(t, "remote catalog unavailable", stored.LastError)
	assert.True(t, stored.ScheduledAt.Equal(t0.Add(2*time.Minute)))

	counts, err := repo.CountByStatus(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[catalogsync.QueueStatusPending])
	assert.Equal(t, int64(1), counts[catalogsync.QueueStatusCompleted])
	assert.Equal(t, int64(0), counts[catalogsync.QueueStatusFailed])

	completed := catalogsync.QueueStatusCompleted
	page, total, err := repo.FindByStatus(ctx, orgID, &completed, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, done.ID, page[0].ID)

	_, total, err = repo.FindByStatus(ctx, orgID, nil, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	purged, err := repo.DeleteCompletedBefore(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	missing := *done
	assert.ErrorIs(t, repo.Update(ctx, &missing), catalogsync.ErrQueueItemNotFound)
}

func TestGormSyncQueueRepository_ProvisionalBookkeeping(t *testing.T) {
	repo := NewGormSyncQueueRepository(newSQLiteDB(t))
	ctx := context.Background()
	orgID := newOrg()
	products := integration.EntityTypeProducts

	create := queueItem(t, orgID, products, -3, catalogsync.QueueOperationCreate, t0)
	update := queueItem(t, orgID, products, -3, catalogsync.QueueOperationUpdate, t0.Add(time.Second))
	unrelated := queueItem(t, orgID, products, 40, catalogsync.QueueOperationUpdate, t0)
	require.NoError(t, repo.Enqueue(ctx, create, update, unrelated))

	active, err := repo.FindActive(ctx, orgID, products)
	require.NoError(t, err)
	assert.ElementsMatch(t, []catalogsync.QueuedRef{
		{EntityID: -3, Operation: catalogsync.QueueOperationCreate},
		{EntityID: -3, Operation: catalogsync.QueueOperationUpdate},
		{EntityID: 40, Operation: catalogsync.QueueOperationUpdate},
	}, active)

	moved, err := repo.ReassignEntityID(ctx, orgID, products, -3, 501)
	require.NoError(t, err)
	assert.EqualValues(t, 2, moved)

	stored, err := repo.FindByID(ctx, orgID, update.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(501), stored.EntityID)

	cancelled, err := repo.CancelPending(ctx, orgID, products, 501)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cancelled)

	require.NoError(t, repo.Delete(ctx, orgID, unrelated.ID))
	assert.ErrorIs(t, repo.Delete(ctx, orgID, unrelated.ID), catalogsync.ErrQueueItemNotFound)

	_, err = repo.FindByID(ctx, orgID, unrelated.ID)
	assert.ErrorIs(t, err, catalogsync.ErrQueueItemNotFound)
}

func newMockQueueRepository(t *testing.T) (*GormSyncQueueRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewGormSyncQueueRepository(gormDB), mock, mockDB
}

func TestGormSyncQueueRepository_ClaimIsConditional(t *testing.T) {
	repo, mock, mockDB := newMockQueueRepository(t)
	defer mockDB.Close()

	item := &catalogsync.SyncQueueItem{
		ID:        uuid.New(),
		Status:    catalogsync.QueueStatusProcessing,
		Attempts:  2,
		UpdatedAt: t0,
	}

	mock.ExpectExec(`UPDATE "sync_queue" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Claim(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncQueueRepository_StoreErrorsAreTagged(t *testing.T) {
	repo, mock, mockDB := newMockQueueRepository(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "sync_queue" WHERE .*id = .* LIMIT .*`).
		WillReturnError(sql.ErrConnDone)

	_, err := repo.FindByID(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrLocalStore)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncQueueRepository_ReleaseExpiredLeases(t *testing.T) {
	repo := NewGormSyncQueueRepository(newSQLiteDB(t))
	ctx := context.Background()
	orgID, otherOrg := newOrg(), newOrg()
	products := integration.EntityTypeProducts

	claim := func(org uuid.UUID, entityID int64, maxAttempts int, at time.Time) *catalogsync.SyncQueueItem {
		item := queueItem(t, org, products, entityID, catalogsync.QueueOperationDelete, t0)
		item.MaxAttempts = maxAttempts
		require.NoError(t, repo.Enqueue(ctx, item))
		require.NoError(t, item.MarkProcessing(at))
		claimed, err := repo.Claim(ctx, item)
		require.NoError(t, err)
		require.True(t, claimed)
		return item
	}
	abandoned := claim(orgID, 1, 3, t0)
	exhausted := claim(orgID, 2, 1, t0)
	fresh := claim(orgID, 3, 3, t0.Add(20*time.Minute))
	foreign := claim(otherOrg, 4, 3, t0)

	now := t0.Add(30 * time.Minute)
	leasedBefore := now.Add(-15 * time.Minute)

	released, err := repo.ReleaseExpiredLeases(ctx, &orgID, leasedBefore, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)

	got, err := repo.FindByID(ctx, orgID, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, now, got.ScheduledAt.UTC())
	assert.Equal(t, catalogsync.LeaseExpiredError, got.LastError)

	got, err = repo.FindByID(ctx, orgID, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusFailed, got.Status)

	got, err = repo.FindByID(ctx, orgID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusProcessing, got.Status)

	got, err = repo.FindByID(ctx, otherOrg, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusProcessing, got.Status, "scoped to the organization")

	released, err = repo.ReleaseExpiredLeases(ctx, nil, leasedBefore, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)
	orgs, err := repo.OrganizationsWithDue(ctx, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{orgID, otherOrg}, orgs)
}
