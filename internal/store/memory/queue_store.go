// Package memory holds in-process stores for development and tests. State is
// lost on restart and nothing is shared between processes.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

const recoveredMessage = "recovered after stuck in processing"

type QueueStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.QueueItem
	seq   int64
}

func NewQueueStore() *QueueStore {
	return &QueueStore{items: make(map[uuid.UUID]*types.QueueItem)}
}

var _ store.QueueStore = (*QueueStore)(nil)

func (s *QueueStore) Enqueue(_ context.Context, in types.NewQueueItem) (*types.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.seq++
	item := &types.QueueItem{
		ID:           uuid.New(),
		Seq:          s.seq,
		WorkflowType: in.WorkflowType,
		Payload:      bytes.Clone(in.Payload),
		Status:       state.StatusPending,
		MaxAttempts:  in.MaxAttempts,
		ScheduledFor: in.ScheduledFor,
		ProjectID:    in.ProjectID,
		UserID:       in.UserID,
		RetryOf:      in.RetryOf,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = now
	}
	if item.MaxAttempts < 1 {
		item.MaxAttempts = constants.DefaultMaxAttempts
	}
	s.items[item.ID] = item
	return cloneItem(item), nil
}

func (s *QueueStore) FindByID(_ context.Context, id uuid.UUID) (*types.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("queue item %s: %w", id, store.ErrNotFound)
	}
	return cloneItem(item), nil
}

// ClaimDue holds the store mutex for the whole select-and-update, which is
// the in-process equivalent of the row-locking claim.
func (s *QueueStore) ClaimDue(_ context.Context, limit int, now time.Time, claimedBy string) ([]types.QueueItem, error) {
	if limit < 1 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*types.QueueItem
	for _, item := range s.items {
		if item.Status == state.StatusPending && !item.ScheduledFor.After(now) {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[j].ScheduledFor)
		}
		return due[i].Seq < due[j].Seq
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]types.QueueItem, 0, len(due))
	for _, item := range due {
		startedAt := now
		lockedBy := claimedBy
		item.Status = state.StatusProcessing
		item.StartedAt = &startedAt
		item.Attempts++
		item.LockedBy = &lockedBy
		item.UpdatedAt = now
		claimed = append(claimed, *cloneItem(item))
	}
	return claimed, nil
}

func (s *QueueStore) MarkCompleted(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.transition(id, state.StatusCompleted, func(item *types.QueueItem) {
		item.CompletedAt = &at
		item.Error = nil
		item.LockedBy = nil
		item.UpdatedAt = at
	})
}

func (s *QueueStore) MarkFailedRetry(_ context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	return s.transition(id, state.StatusPending, func(item *types.QueueItem) {
		item.Error = &errMsg
		item.ScheduledFor = next
		item.LockedBy = nil
		item.UpdatedAt = time.Now().UTC()
	})
}

func (s *QueueStore) MarkFailedTerminal(_ context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	return s.transition(id, state.StatusFailed, func(item *types.QueueItem) {
		item.Error = &errMsg
		item.CompletedAt = &at
		item.LockedBy = nil
		item.UpdatedAt = at
	})
}

func (s *QueueStore) transition(id uuid.UUID, to state.QueueStatus, apply func(*types.QueueItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("queue item %s: %w", id, store.ErrNotFound)
	}
	if !state.IsValidTransition(item.Status, to) {
		return fmt.Errorf("queue item %s %s -> %s: %w", id, item.Status, to, store.ErrInvalidTransition)
	}
	item.Status = to
	apply(item)
	return nil
}

func (s *QueueStore) RecoverStuck(_ context.Context, startedBefore time.Time, maxRecoveries int, at time.Time) (*types.RecoveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &types.RecoveryResult{}
	for _, item := range s.items {
		if item.Status != state.StatusProcessing || item.StartedAt == nil || !item.StartedAt.Before(startedBefore) {
			continue
		}
		msg := recoveredMessage
		item.Error = &msg
		item.LockedBy = nil
		item.UpdatedAt = at
		if item.Recoveries < maxRecoveries && item.Attempts < item.MaxAttempts {
			item.Status = state.StatusPending
			item.Recoveries++
			item.ScheduledFor = at
			result.Requeued = append(result.Requeued, *cloneItem(item))
			continue
		}
		item.Status = state.StatusFailed
		item.CompletedAt = &at
		result.Failed = append(result.Failed, *cloneItem(item))
	}
	return result, nil
}

func (s *QueueStore) CountGroupedByStatus(_ context.Context) (map[state.QueueStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[state.QueueStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for _, item := range s.items {
		result[item.Status]++
	}
	return result, nil
}

func (s *QueueStore) List(_ context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error) {
	page, pageSize, offset := types.NormalizePage(page, pageSize, constants.DefaultPageSize)

	s.mu.Lock()
	var matched []types.QueueItem
	for _, item := range s.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.WorkflowType != "" && item.WorkflowType != filter.WorkflowType {
			continue
		}
		if filter.ProjectID != "" && (item.ProjectID == nil || *item.ProjectID != filter.ProjectID) {
			continue
		}
		matched = append(matched, *cloneItem(item))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq > matched[j].Seq })
	total := len(matched)
	return types.NewPaginationResult(window(matched, offset, pageSize), total, page, pageSize), nil
}

func cloneItem(item *types.QueueItem) *types.QueueItem {
	c := *item
	c.Payload = bytes.Clone(item.Payload)
	return &c
}

func window[T any](items []T, offset, size int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + size
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
