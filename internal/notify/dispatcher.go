package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/message_broker"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// Dispatcher stores in-app notifications and, with a broker, fans each one out
// to delivery channels as a NotificationEvent.
type Dispatcher struct {
	notifications store.NotificationStore
	broker        message_broker.MessageBroker
	topic         string
	logger        *slog.Logger
	now           func() time.Time
}

// NewDispatcher accepts a nil broker, in which case notifications are only stored.
func NewDispatcher(notifications store.NotificationStore, broker message_broker.MessageBroker, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		broker:        broker,
		topic:         topic,
		logger:        logger,
		now:           time.Now,
	}
}

// Send stores n and publishes it. When the user already has a notification with
// the same dedup key, an undelivered one is published again and a delivered one
// is returned together with store.ErrAlreadyExists. Other failures are wrapped as
// a notification dependency error.
func (d *Dispatcher) Send(ctx context.Context, n types.Notification) (*types.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	if d.broker == nil {
		delivered := n.CreatedAt
		n.DeliveredAt = &delivered
	}

	saved, err := d.notifications.Create(ctx, n)
	switch {
	case errors.Is(err, store.ErrAlreadyExists) && n.DedupKey != nil:
		saved, err = d.resume(ctx, n.UserID, *n.DedupKey, err)
	case err != nil && !errors.Is(err, store.ErrAlreadyExists):
		err = fmt.Errorf("store notification: %w", err)
	}
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return saved, err
		}
		return nil, types.NewDependencyError(types.DependencyNotification, err)
	}

	if saved.DeliveredAt == nil {
		if err := d.deliver(ctx, saved); err != nil {
			return saved, types.NewDependencyError(types.DependencyNotification, err)
		}
	}

	d.logger.Debug("notification sent", "notification_id", saved.ID, "user_id", saved.UserID, "type", saved.Type)
	return saved, nil
}

// resume looks up the notification that collided on the dedup key. It returns
// the stored one with no error only when it still has to be delivered.
func (d *Dispatcher) resume(ctx context.Context, userID, dedupKey string, dupErr error) (*types.Notification, error) {
	existing, err := d.notifications.FindByDedupKey(ctx, userID, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("find notification %s: %w", dedupKey, err)
	}
	if existing == nil || existing.DeliveredAt != nil {
		return existing, dupErr
	}
	d.logger.Info("resuming undelivered notification", "notification_id", existing.ID, "user_id", userID, "dedup_key", dedupKey)
	return existing, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *types.Notification) error {
	if d.broker != nil {
		if err := message_broker.PublishJSON(ctx, d.broker, d.topic, n.Event()); err != nil {
			return err
		}
	}
	at := d.now().UTC()
	if err := d.notifications.MarkDelivered(ctx, n.ID, at); err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	n.DeliveredAt = &at
	return nil
}
