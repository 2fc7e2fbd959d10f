package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/metrics"
	"github.com/marain-chat/marain-server/internal/v1/types"
)

var (
	ErrDoubleSubscription = errors.New("app: user already subscribed")
	ErrNotSubscribed      = errors.New("app: user not subscribed")
)

// EventBus routes events from the App loop to the sessions that should see
// them. Like AppState it is touched only from the App task, so it needs no
// locking; the send into a recipient's channel is the only step another
// goroutine observes.
type EventBus struct {
	sinks map[types.User]chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{sinks: make(map[types.User]chan Event)}
}

// Subscribe registers user's event sink. A user can hold at most one.
func (b *EventBus) Subscribe(user types.User, sink chan Event) error {
	if _, ok := b.sinks[user]; ok {
		return fmt.Errorf("%w: %s", ErrDoubleSubscription, user.ID)
	}
	b.sinks[user] = sink
	return nil
}

// Unsubscribe drops user's registration.
func (b *EventBus) Unsubscribe(user types.User) error {
	if _, ok := b.sinks[user]; !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, user.ID)
	}
	delete(b.sinks, user)
	return nil
}

// Subscribed reports whether user currently holds a sink.
func (b *EventBus) Subscribed(user types.User) bool {
	_, ok := b.sinks[user]
	return ok
}

// Publish delivers event to each subscribed recipient in order. Recipients
// without a subscription are skipped; that is the normal race with a session
// that already dropped.
func (b *EventBus) Publish(ctx context.Context, event Event, recipients []types.User) {
	for _, r := range recipients {
		sink, ok := b.sinks[r]
		if !ok {
			continue
		}
		b.deliver(ctx, sink, event, r)
		metrics.EventsPublished.WithLabelValues(event.kind()).Inc()
	}
}

// deliver sends event into sink, evicting the oldest pending event when the
// buffer is full. A slow reader loses history instead of stalling the App
// loop. Only the App goroutine sends on sinks, so the evict-retry loop makes
// progress: each pass either sends or frees a slot.
func (b *EventBus) deliver(ctx context.Context, sink chan Event, event Event, recipient types.User) {
	for {
		select {
		case sink <- event:
			return
		default:
		}
		select {
		case <-sink:
			metrics.EventsDropped.Inc()
			logging.Warn(ctx, "event sink full, evicted oldest event",
				zap.String("recipient_id", recipient.ID),
				zap.String("event_kind", event.kind()),
			)
		default:
		}
	}
}
