// Package app is the single-owner core of the chat server. One App goroutine
// exclusively owns the room state and the event bus; session workers interact
// with it purely by sending Commands through the Gateway and receiving Events
// on their subscribed sinks. Serializing every mutation through one loop is
// what makes the ordering guarantees precise without any locks.
package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/metrics"
)

// App consumes commands from the gateway, applies them through the
// CommandHandler, and publishes the resulting broadcasts. It never
// terminates on a handler error; it is the process-long authority for state.
type App struct {
	state    *AppState
	bus      *EventBus
	handler  *CommandHandler
	commands <-chan Command
	buf      []Broadcast
	tracer   trace.Tracer
	done     chan struct{}
}

// New builds the App loop around its sole input channel, normally
// Gateway.Commands().
func New(commands <-chan Command) *App {
	state := NewAppState()
	return &App{
		state:    state,
		bus:      NewEventBus(),
		handler:  NewCommandHandler(state),
		commands: commands,
		tracer:   otel.Tracer("marain/app"),
		done:     make(chan struct{}),
	}
}

// Run consumes commands until the input channel closes, then exits cleanly.
// It is the only goroutine that may touch AppState and the EventBus.
func (a *App) Run(ctx context.Context) {
	defer close(a.done)
	logging.Info(ctx, "app loop started")
	for cmd := range a.commands {
		a.process(ctx, cmd)
	}
	logging.Info(ctx, "app loop drained, exiting")
}

// Done closes once Run has drained its input and returned.
func (a *App) Done() <-chan struct{} { return a.done }

// Alive reports whether the loop is still consuming commands. Readiness
// probes use it.
func (a *App) Alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

func (a *App) process(ctx context.Context, cmd Command) {
	start := time.Now()
	kind := cmd.Payload.kind()

	ctx, span := a.tracer.Start(ctx, "app.command",
		trace.WithAttributes(
			attribute.String("command.kind", kind),
			attribute.String("user.id", cmd.User.ID),
		))
	defer span.End()

	if reg, ok := cmd.Payload.(RegisterUser); ok {
		if err := a.bus.Subscribe(cmd.User, reg.Sink); err != nil {
			logging.Warn(ctx, "dropping registration", zap.Error(err), zap.String("user_id", cmd.User.ID))
			return
		}
	}

	// A DropUser unsubscribes after the handler ran, so its final UserLeft
	// still reaches the departing session.
	_, unsubscribeAfter := cmd.Payload.(DropUser)

	a.buf = a.handler.Handle(ctx, cmd, a.buf[:0])
	for _, b := range a.buf {
		a.bus.Publish(ctx, b.Event, b.Recipients)
	}

	if unsubscribeAfter {
		if err := a.bus.Unsubscribe(cmd.User); err != nil {
			logging.Warn(ctx, "unsubscribe after drop", zap.Error(err), zap.String("user_id", cmd.User.ID))
		}
	}

	metrics.Commands.WithLabelValues(kind).Inc()
	metrics.CommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
