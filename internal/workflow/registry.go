package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RezaEskandarii/workflowq/types"
)

// Handler runs one workflow execution. A nil error completes the item; errors
// wrapped with Permanent skip the remaining retries.
type Handler interface {
	Handle(ctx context.Context, item types.QueueItem, payload types.Payload) error
}

type HandlerFunc func(ctx context.Context, item types.QueueItem, payload types.Payload) error

func (f HandlerFunc) Handle(ctx context.Context, item types.QueueItem, payload types.Payload) error {
	return f(ctx, item, payload)
}

// Typed adapts a function over one payload variant to a Handler.
func Typed[P types.Payload](fn func(ctx context.Context, item types.QueueItem, payload P) error) Handler {
	return HandlerFunc(func(ctx context.Context, item types.QueueItem, payload types.Payload) error {
		p, ok := payload.(P)
		if !ok {
			return Permanent(fmt.Errorf("%w: %s handler cannot take %T", types.ErrInvalidPayload, item.WorkflowType, payload))
		}
		return fn(ctx, item, p)
	})
}

type Registry struct {
	handlers map[types.WorkflowType]Handler
	mutex    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.WorkflowType]Handler),
	}
}

// Register adds a handler for workflowType. Each type has at most one handler.
func (r *Registry) Register(workflowType types.WorkflowType, handler Handler) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.handlers[workflowType]; exists {
		return fmt.Errorf("handler '%s' already registered", workflowType)
	}
	r.handlers[workflowType] = handler
	return nil
}

func (r *Registry) Exists(workflowType types.WorkflowType) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.handlers[workflowType]
	return exists
}

func (r *Registry) List() []types.WorkflowType {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]types.WorkflowType, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Dispatch decodes the item's payload and runs the registered handler.
// Undecodable payloads and unregistered types fail permanently.
func (r *Registry) Dispatch(ctx context.Context, item types.QueueItem) error {
	r.mutex.RLock()
	handler, exists := r.handlers[item.WorkflowType]
	r.mutex.RUnlock()

	if !exists {
		return Permanent(fmt.Errorf("%w: no handler for %q", types.ErrUnknownWorkflowType, item.WorkflowType))
	}

	payload, err := types.DecodePayload(item.WorkflowType, item.Payload)
	if err != nil {
		return Permanent(err)
	}
	return handler.Handle(ctx, item, payload)
}
