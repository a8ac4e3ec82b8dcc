// Package notifier delivers user-facing notifications for assignments,
// decisions, and escalations. Delivery is best effort: callers log failures
// and continue, a lost notification never fails workflow state changes.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/events"
	"github.com/grantflow/grantflow/pkg/log"
)

// Notification is an outbound message to one or more users.
type Notification struct {
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// EventBusNotifier queues notifications on the event bus for downstream
// delivery channels (email, chat) to consume.
type EventBusNotifier struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

func NewEventBusNotifier(bus eventbus.EventBus) *EventBusNotifier {
	return &EventBusNotifier{
		bus:    bus,
		logger: log.WithModule("notifier"),
	}
}

func (n *EventBusNotifier) Notify(ctx context.Context, notification Notification) error {
	if len(notification.Recipients) == 0 {
		return nil
	}

	event := events.NotificationQueued{
		BaseEvent: events.BaseEvent{
			ID:        n.bus.GenerateID(),
			Type:      events.NotificationQueuedEvent,
			Timestamp: time.Now().UTC(),
		},
		Recipients: notification.Recipients,
		Subject:    notification.Subject,
		Body:       notification.Body,
		Data:       notification.Data,
	}

	err := n.bus.Publish(ctx, event.ID, event)
	if err != nil {
		return err
	}

	n.logger.DebugContext(ctx, "Queued notification",
		"recipients", len(notification.Recipients),
		"subject", notification.Subject)

	return nil
}

// LogNotifier writes notifications to the log. Used in development and as the
// fallback when no event bus is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.WithModule("notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "Notification",
		"recipients", notification.Recipients,
		"subject", notification.Subject,
		"body", notification.Body)

	return nil
}
