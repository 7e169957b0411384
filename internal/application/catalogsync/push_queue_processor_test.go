package catalogsync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

func TestPushQueueProcessor_RetriesWithBackoffThenSucceeds(t *testing.T) {
	env := newTestEnv(t, testSettings())
	ctx := context.Background()
	env.products.put(42, t0, map[string]any{"name": "Ring"})
	env.products.updateErrs = []error{unavailable(), unavailable()}
	item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"Gold ring"}`)

	var scheduled []time.Time
	for attempt := 1; attempt <= 3; attempt++ {
		result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, result.Processed+result.Errors, "attempt %d", attempt)

		stored := env.item(t, item.ID)
		assert.Equal(t, attempt, stored.Attempts)
		if attempt < 3 {
			assert.Equal(t, catalogsync.QueueStatusPending, stored.Status)
			assert.Equal(t, env.clock.Now().Add(catalogsync.BackoffDelay(attempt)), stored.ScheduledAt.UTC())
			assert.Contains(t, stored.LastError, "503")
			scheduled = append(scheduled, stored.ScheduledAt)

			// not due before its backoff elapsed
			early, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
			require.NoError(t, err)
			assert.Zero(t, early.Processed+early.Errors)

			env.clock.Advance(catalogsync.BackoffDelay(attempt))
		}
	}

	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Empty(t, stored.LastError)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, scheduled, 2)
	assert.True(t, scheduled[1].After(scheduled[0]))
	assert.Equal(t, 4*time.Minute, scheduled[1].Sub(scheduled[0]))
}

func TestPushQueueProcessor_ExhaustedItemIsNeverSelectedAgain(t *testing.T) {
	env := newTestEnv(t, testSettings())
	ctx := context.Background()
	env.products.put(42, t0, nil)
	env.products.updateErrs = []error{unavailable(), unavailable(), unavailable()}
	item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"x"}`)

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
		require.NoError(t, err)
		env.clock.Advance(time.Hour)
	}
	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)

	env.clock.Advance(24 * time.Hour)
	result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Processed+result.Errors)
	assert.Len(t, env.products.callLog(), 3)
}

func TestPushQueueProcessor_DeletesGoFirst(t *testing.T) {
	env := newTestEnv(t, testSettings())
	for _, id := range []int64{1, 2, 3} {
		env.products.put(id, t0, nil)
	}
	env.enqueue(t, 1, catalogsync.QueueOperationUpdate, `{"name":"a"}`)
	env.clock.Advance(time.Second)
	env.enqueue(t, 2, catalogsync.QueueOperationUpdate, `{"name":"b"}`)
	env.clock.Advance(time.Second)
	env.enqueue(t, 3, catalogsync.QueueOperationDelete, "")

	result, err := env.pusher.ProcessQueue(context.Background(), env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, []string{"delete:3", "update:1", "update:2"}, env.products.callLog())
}

func TestPushQueueProcessor_CreateBackfillsProvisionalID(t *testing.T) {
	env := newTestEnv(t, testSettings())
	ctx := context.Background()

	created, err := env.local.CreateLocal(ctx, env.orgID, integration.EntityTypeProducts, json.RawMessage(`{"name":"New ring"}`))
	require.NoError(t, err)
	require.Equal(t, int64(-1), created.Entity.RemoteID)

	env.clock.Advance(time.Minute)
	updated, err := env.local.UpdateLocal(ctx, env.orgID, integration.EntityTypeProducts, -1, json.RawMessage(`{"sku":"NR-1"}`))
	require.NoError(t, err)

	result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []string{"create", "update:100"}, env.products.callLog())

	assert.Equal(t, []int64{100}, env.mirrorIDs(t, integration.EntityTypeProducts))
	for _, id := range []uuid.UUID{created.Item.ID, updated.Item.ID} {
		stored := env.item(t, id)
		assert.Equal(t, catalogsync.QueueStatusCompleted, stored.Status)
		assert.Equal(t, int64(100), stored.EntityID)
	}

	entity, err := env.mirror.FindByRemoteID(ctx, env.orgID, integration.EntityTypeProducts, 100)
	require.NoError(t, err)
	assert.False(t, entity.IsDirty())
	assert.Equal(t, "NR-1", entity.Summary.SKU)
	assert.Equal(t, "New ring", entity.Summary.Name)
}

func TestPushQueueProcessor_DefersUpdatesOfUnresolvedProvisionalIDs(t *testing.T) {
	env := newTestEnv(t, testSettings())
	item := env.enqueue(t, -5, catalogsync.QueueOperationUpdate, `{"name":"x"}`)

	result, err := env.pusher.ProcessQueue(context.Background(), env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deferred)
	assert.Zero(t, result.Processed+result.Errors)

	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusPending, stored.Status)
	assert.Zero(t, stored.Attempts)
}

func TestPushQueueProcessor_DeleteRemovesLocalRowAfterConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("remote confirms", func(t *testing.T) {
		env := newTestEnv(t, testSettings())
		env.products.put(5, t0, nil)
		_, err := env.puller.Pull(ctx, env.orgID, integration.EntityTypeProducts, []int64{5}, 0)
		require.NoError(t, err)
		_, err = env.local.DeleteLocal(ctx, env.orgID, integration.EntityTypeProducts, 5)
		require.NoError(t, err)
		assert.Equal(t, []int64{5}, env.mirrorIDs(t, integration.EntityTypeProducts), "row stays until the remote confirms")

		result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
		assert.Empty(t, env.mirrorIDs(t, integration.EntityTypeProducts))
	})

	t.Run("remote already gone", func(t *testing.T) {
		env := newTestEnv(t, testSettings())
		env.products.put(5, t0, nil)
		_, err := env.puller.Pull(ctx, env.orgID, integration.EntityTypeProducts, []int64{5}, 0)
		require.NoError(t, err)
		change, err := env.local.DeleteLocal(ctx, env.orgID, integration.EntityTypeProducts, 5)
		require.NoError(t, err)
		require.NoError(t, env.products.Delete(ctx, 5))

		result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
		assert.Equal(t, catalogsync.QueueStatusCompleted, env.item(t, change.Item.ID).Status)
		assert.Empty(t, env.mirrorIDs(t, integration.EntityTypeProducts))
	})

	t.Run("remote fails", func(t *testing.T) {
		env := newTestEnv(t, testSettings())
		env.products.put(5, t0, nil)
		env.products.deleteErrs = []error{unavailable()}
		_, err := env.puller.Pull(ctx, env.orgID, integration.EntityTypeProducts, []int64{5}, 0)
		require.NoError(t, err)
		_, err = env.local.DeleteLocal(ctx, env.orgID, integration.EntityTypeProducts, 5)
		require.NoError(t, err)

		result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Errors)
		assert.Equal(t, []int64{5}, env.mirrorIDs(t, integration.EntityTypeProducts))
	})
}

func TestPushQueueProcessor_RejectedItems(t *testing.T) {
	t.Run("uniform retry by default", func(t *testing.T) {
		env := newTestEnv(t, testSettings())
		env.products.put(42, t0, nil)
		env.products.updateErrs = []error{rejected()}
		item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"regular_price":"abc"}`)

		_, err := env.pusher.ProcessQueue(context.Background(), env.orgID, 10, 0)
		require.NoError(t, err)
		stored := env.item(t, item.ID)
		assert.Equal(t, catalogsync.QueueStatusPending, stored.Status)
		assert.Equal(t, 2, stored.RemainingAttempts())
	})

	t.Run("strict mode fails immediately", func(t *testing.T) {
		settings := testSettings()
		settings.FailRejectedImmediately = true
		env := newTestEnv(t, settings)
		env.products.put(42, t0, nil)
		env.products.updateErrs = []error{rejected()}
		item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"regular_price":"abc"}`)

		result, err := env.pusher.ProcessQueue(context.Background(), env.orgID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{item.ID}, result.FailedItems)
		stored := env.item(t, item.ID)
		assert.Equal(t, catalogsync.QueueStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
	})

	t.Run("strict mode still retries outages", func(t *testing.T) {
		settings := testSettings()
		settings.FailRejectedImmediately = true
		env := newTestEnv(t, settings)
		env.products.put(42, t0, nil)
		env.products.updateErrs = []error{unavailable()}
		item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"x"}`)

		_, err := env.pusher.ProcessQueue(context.Background(), env.orgID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, catalogsync.QueueStatusPending, env.item(t, item.ID).Status)
	})
}

func TestPushQueueProcessor_MaxRetriesCapsAttempts(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.products.put(42, t0, nil)
	env.products.updateErrs = []error{unavailable()}
	item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"x"}`)

	_, err := env.pusher.ProcessQueue(context.Background(), env.orgID, 10, 1)
	require.NoError(t, err)
	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.MaxAttempts)
}

func TestPushQueueProcessor_BatchSizeAndEntityFilter(t *testing.T) {
	env := newTestEnv(t, testSettings())
	for _, id := range []int64{1, 2, 3} {
		env.products.put(id, t0, nil)
		env.enqueue(t, id, catalogsync.QueueOperationUpdate, `{"name":"x"}`)
		env.clock.Advance(time.Second)
	}

	orders := integration.EntityTypeOrders
	result, err := env.pusher.ProcessQueueFor(context.Background(), env.orgID, &orders, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	result, err = env.pusher.ProcessQueue(context.Background(), env.orgID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []string{"update:1", "update:2"}, env.products.callLog())
}

func TestPushQueueProcessor_MissingIntegrationStopsThePass(t *testing.T) {
	env := newTestEnv(t, testSettings())
	otherOrg := uuid.New()
	item, err := catalogsync.NewSyncQueueItem(otherOrg, integration.EntityTypeProducts, 1,
		catalogsync.QueueOperationDelete, nil, 3, env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.queue.Enqueue(context.Background(), item))

	_, err = env.pusher.ProcessQueue(context.Background(), otherOrg, 10, 0)
	assert.ErrorIs(t, err, integration.ErrConfiguration)

	stored, err := env.queue.FindByID(context.Background(), otherOrg, item.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogsync.QueueStatusPending, stored.Status)
	assert.Zero(t, stored.Attempts, "configuration errors do not consume attempts")
}

func TestPushQueueProcessor_CancelledPassStillRecordsTheAttempt(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.products.put(42, t0, map[string]any{"name": "Ring"})
	item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"Gold ring"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.products.onUpdate = cancel
	env.products.updateErrs = []error{context.Canceled}

	result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)

	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusPending, stored.Status, "a claimed item never stays processing")
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "canceled")
}

func TestPushQueueProcessor_ReleasesAbandonedItems(t *testing.T) {
	env := newTestEnv(t, testSettings())
	ctx := context.Background()
	env.products.put(42, t0, map[string]any{"name": "Ring"})
	item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"Gold ring"}`)

	// a worker claimed the item and died
	require.NoError(t, item.MarkProcessing(env.clock.Now()))
	claimed, err := env.queue.Claim(ctx, item)
	require.NoError(t, err)
	require.True(t, claimed)

	env.clock.Advance(DefaultProcessingLease / 2)
	result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Processed+result.Errors, "lease still held")
	assert.Equal(t, catalogsync.QueueStatusProcessing, env.item(t, item.ID).Status)

	env.clock.Advance(DefaultProcessingLease)
	result, err = env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Attempts, "the abandoned attempt stays counted")
	assert.Equal(t, []string{"update:42"}, env.products.callLog())
}

func TestPushQueueProcessor_AbandonedItemWithoutAttemptsLeftFails(t *testing.T) {
	env := newTestEnv(t, testSettings())
	ctx := context.Background()
	item, err := catalogsync.NewSyncQueueItem(env.orgID, integration.EntityTypeProducts, 42,
		catalogsync.QueueOperationDelete, nil, 1, env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.queue.Enqueue(ctx, item))
	require.NoError(t, item.MarkProcessing(env.clock.Now()))
	claimed, err := env.queue.Claim(ctx, item)
	require.NoError(t, err)
	require.True(t, claimed)

	env.clock.Advance(DefaultProcessingLease + time.Minute)
	result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Processed+result.Errors)

	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusFailed, stored.Status)
	assert.Equal(t, catalogsync.LeaseExpiredError, stored.LastError)
	assert.Empty(t, env.products.callLog())
}

func TestPushQueueProcessor_UpdateAcknowledgedWithoutBody(t *testing.T) {
	env := newTestEnv(t, testSettings())
	ctx := context.Background()
	env.products.put(42, t0, map[string]any{"name": "Ring"})
	env.products.silentUpdates = true
	item := env.enqueue(t, 42, catalogsync.QueueOperationUpdate, `{"name":"Gold ring"}`)

	result, err := env.pusher.ProcessQueue(ctx, env.orgID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Errors)

	stored := env.item(t, item.ID)
	assert.Equal(t, catalogsync.QueueStatusCompleted, stored.Status)
	assert.Empty(t, stored.LastError)
}
