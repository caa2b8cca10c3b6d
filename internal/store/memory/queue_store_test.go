package memory

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, s *QueueStore, at time.Time, maxAttempts int) *types.QueueItem {
	t.Helper()
	item, err := s.Enqueue(context.Background(), types.NewQueueItem{
		WorkflowType: types.ContractDistribution,
		Payload:      json.RawMessage(`{"project_id":"p","employee_id":"e"}`),
		ScheduledFor: at,
		MaxAttempts:  maxAttempts,
	})
	require.NoError(t, err)
	return item
}

func TestQueueStore_Enqueue(t *testing.T) {
	s := NewQueueStore()
	now := time.Now().UTC()

	item := enqueue(t, s, now, 0)
	assert.Equal(t, state.StatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, 3, item.MaxAttempts)
	assert.Equal(t, int64(1), item.Seq)
}

func TestQueueStore_ClaimDue_RespectsLimitAndOrder(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []string
	for i := 0; i < 15; i++ {
		ids = append(ids, enqueue(t, s, now.Add(-time.Minute), 3).ID.String())
	}
	enqueue(t, s, now.Add(time.Hour), 3)

	claimed, err := s.ClaimDue(ctx, 10, now, "node-a")
	require.NoError(t, err)
	require.Len(t, claimed, 10)
	for i, item := range claimed {
		assert.Equal(t, ids[i], item.ID.String(), "ties are broken by creation order")
		assert.Equal(t, state.StatusProcessing, item.Status)
		assert.Equal(t, 1, item.Attempts)
		require.NotNil(t, item.LockedBy)
		assert.Equal(t, "node-a", *item.LockedBy)
	}

	counts, err := s.CountGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, counts[state.StatusProcessing])
	assert.Equal(t, 6, counts[state.StatusPending])

	next, err := s.ClaimDue(ctx, 10, now, "node-a")
	require.NoError(t, err)
	assert.Len(t, next, 5)
}

func TestQueueStore_ClaimDue_ConcurrentClaimsNeverOverlap(t *testing.T) {
	s := NewQueueStore()
	now := time.Now().UTC()
	for i := 0; i < 50; i++ {
		enqueue(t, s, now, 3)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimDue(context.Background(), 20, now, "w")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, item := range claimed {
				seen[item.ID.String()]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestQueueStore_MarkRequiresProcessing(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Now().UTC()
	item := enqueue(t, s, now, 3)

	err := s.MarkCompleted(ctx, item.ID, now)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.ClaimDue(ctx, 1, now, "n")
	require.NoError(t, err)
	require.NoError(t, s.MarkFailedRetry(ctx, item.ID, "boom", now.Add(5*time.Minute)))

	got, err := s.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, got.Status)
	assert.Equal(t, "boom", *got.Error)
	assert.Equal(t, now.Add(5*time.Minute), got.ScheduledFor)
	assert.Nil(t, got.LockedBy)

	claimed, err := s.ClaimDue(ctx, 1, now, "n")
	require.NoError(t, err)
	assert.Empty(t, claimed, "retry is not due yet")
}

func TestQueueStore_MarkCompleted_ClearsError(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Now().UTC()
	item := enqueue(t, s, now, 3)

	_, _ = s.ClaimDue(ctx, 1, now, "n")
	require.NoError(t, s.MarkFailedRetry(ctx, item.ID, "boom", now))
	_, _ = s.ClaimDue(ctx, 1, now, "n")
	require.NoError(t, s.MarkCompleted(ctx, item.ID, now))

	got, err := s.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, got.Status)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2, got.Attempts)
}

func TestQueueStore_FindByID_NotFound(t *testing.T) {
	s := NewQueueStore()
	_, err := s.FindByID(context.Background(), [16]byte{1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueueStore_RecoverStuck(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)

	retryable := enqueue(t, s, start, 3)
	exhausted := enqueue(t, s, start, 1)
	_, err := s.ClaimDue(ctx, 10, start, "crashed")
	require.NoError(t, err)
	fresh := enqueue(t, s, time.Now().UTC(), 3)
	_, err = s.ClaimDue(ctx, 10, time.Now().UTC(), "alive")
	require.NoError(t, err)

	now := time.Now().UTC()
	result, err := s.RecoverStuck(ctx, now.Add(-10*time.Minute), 3, now)
	require.NoError(t, err)
	require.Len(t, result.Requeued, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, retryable.ID, result.Requeued[0].ID)
	assert.Equal(t, 1, result.Requeued[0].Recoveries)
	assert.Equal(t, exhausted.ID, result.Failed[0].ID)
	assert.Equal(t, state.StatusFailed, result.Failed[0].Status)

	got, err := s.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusProcessing, got.Status)
}

func TestQueueStore_List(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		enqueue(t, s, now, 3)
	}
	_, _ = s.ClaimDue(ctx, 2, now, "n")

	page, err := s.List(ctx, types.ItemFilter{Status: state.StatusPending}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNextPage)
}
