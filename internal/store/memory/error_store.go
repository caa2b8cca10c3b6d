package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

type ErrorStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*types.ErrorRecord
	active  map[types.DedupKey]uuid.UUID
}

func NewErrorStore() *ErrorStore {
	return &ErrorStore{
		records: make(map[uuid.UUID]*types.ErrorRecord),
		active:  make(map[types.DedupKey]uuid.UUID),
	}
}

var _ store.ErrorStore = (*ErrorStore)(nil)

func (s *ErrorStore) Upsert(_ context.Context, c types.ErrorCapture) (*types.ErrorRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Keys.DedupKey(c.ErrorType)
	if id, ok := s.active[key]; ok {
		r := s.records[id]
		r.OccurrenceCount++
		r.LastOccurrence = c.At
		r.Message = c.Message
		r.StackTrace = c.StackTrace
		r.Context = maps.Clone(c.Context)
		r.Severity = state.MaxSeverity(r.Severity, c.Severity)
		if c.Keys.QueueItemID != nil {
			r.QueueItemID = c.Keys.QueueItemID
		}
		if c.Keys.AutomationRunID != nil {
			r.AutomationRunID = c.Keys.AutomationRunID
		}
		r.UpdatedAt = c.At
		return cloneRecord(r), false, nil
	}

	r := &types.ErrorRecord{
		ID:              uuid.New(),
		ErrorType:       c.ErrorType,
		Severity:        c.Severity,
		Category:        c.Category,
		Status:          state.ErrorActive,
		Message:         c.Message,
		StackTrace:      c.StackTrace,
		Context:         maps.Clone(c.Context),
		OccurrenceCount: 1,
		FirstOccurrence: c.At,
		LastOccurrence:  c.At,
		QueueItemID:     c.Keys.QueueItemID,
		AutomationRunID: c.Keys.AutomationRunID,
		ProjectID:       c.Keys.ProjectID,
		UserID:          c.Keys.UserID,
		CreatedAt:       c.At,
		UpdatedAt:       c.At,
	}
	s.records[r.ID] = r
	s.active[key] = r.ID
	return cloneRecord(r), true, nil
}

func (s *ErrorStore) FindByID(_ context.Context, id uuid.UUID) (*types.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("error record %s: %w", id, store.ErrNotFound)
	}
	return cloneRecord(r), nil
}

func (s *ErrorStore) Transition(_ context.Context, id uuid.UUID, t types.ErrorTransition) (*types.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("error record %s: %w", id, store.ErrNotFound)
	}
	if !state.IsValidErrorTransition(r.Status, t.To) {
		return nil, fmt.Errorf("error record %s %s -> %s: %w", id, r.Status, t.To, store.ErrInvalidTransition)
	}
	s.apply(r, t)
	return cloneRecord(r), nil
}

func (s *ErrorStore) apply(r *types.ErrorRecord, t types.ErrorTransition) {
	if r.Status == state.ErrorActive {
		delete(s.active, r.DedupKey())
	}
	actor, at := t.Actor, t.At
	r.Status = t.To
	r.UpdatedAt = at
	if t.To == state.ErrorAcknowledged {
		r.AcknowledgedBy = &actor
		r.AcknowledgedAt = &at
		return
	}
	r.ResolvedBy = &actor
	r.ResolvedAt = &at
	r.ResolutionNotes = t.Notes
}

func (s *ErrorStore) AutoResolve(_ context.Context, lastSeenBefore, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := 0
	for _, r := range s.records {
		if !r.Status.IsOpen() || !r.LastOccurrence.Before(lastSeenBefore) {
			continue
		}
		s.apply(r, types.ErrorTransition{To: state.ErrorAutoResolved, Actor: constants.SystemActor, At: at})
		resolved++
	}
	return resolved, nil
}

func (s *ErrorStore) CountOpenBySeverity(_ context.Context) (map[state.Severity]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[state.Severity]int, len(state.AllSeverities))
	for _, sev := range state.AllSeverities {
		result[sev] = 0
	}
	for _, r := range s.records {
		if r.Status.IsOpen() {
			result[r.Severity]++
		}
	}
	return result, nil
}

func (s *ErrorStore) List(_ context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error) {
	page, pageSize, offset := types.NormalizePage(page, pageSize, constants.DefaultPageSize)

	s.mu.Lock()
	var matched []types.ErrorRecord
	for _, r := range s.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && r.Severity != filter.Severity {
			continue
		}
		if filter.ErrorType != "" && r.ErrorType != filter.ErrorType {
			continue
		}
		matched = append(matched, *cloneRecord(r))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].LastOccurrence.After(matched[j].LastOccurrence) })
	return types.NewPaginationResult(window(matched, offset, pageSize), len(matched), page, pageSize), nil
}

func cloneRecord(r *types.ErrorRecord) *types.ErrorRecord {
	c := *r
	c.Context = maps.Clone(r.Context)
	return &c
}
