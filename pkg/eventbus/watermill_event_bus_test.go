package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/grantflow/grantflow/pkg/channels/gochannel"
	"github.com/grantflow/grantflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBusPublishSubscribe(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	received := make(chan *events.InstanceStarted, 1)

	err = bus.Handle(events.InstanceStartedEvent, func(ctx context.Context, event interface{}) error {
		started, ok := event.(*events.InstanceStarted)
		require.True(t, ok)
		received <- started

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.InstanceStarted{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.InstanceStartedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-grant-review",
		},
		InstanceID: "WFI-ABCD1234",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	}

	require.NoError(t, bus.Publish(ctx, event.InstanceID, event))

	select {
	case got := <-received:
		assert.Equal(t, "WFI-ABCD1234", got.InstanceID)
		assert.Equal(t, "wf-grant-review", got.WorkflowID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered: the message is acked and dropped.
	event := events.TaskCreated{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.TaskCreatedEvent, Timestamp: time.Now().UTC()},
		TaskID:    "TASK-ABCD1234",
	}

	require.NoError(t, bus.Publish(ctx, event.TaskID, event))
}
