package app

import (
	"context"

	"github.com/marain-chat/marain-server/internal/v1/logging"
)

// Gateway fans commands from every session worker into the App's single
// input channel. Sessions share the submit side; the App is the only
// consumer of the drained side.
type Gateway struct {
	source chan Command
	sink   chan Command
}

// NewGateway sizes both hops with the same buffer. Submitting blocks when
// the buffer is full, which is the backpressure on the command path.
func NewGateway(buffer int) *Gateway {
	return &Gateway{
		source: make(chan Command, buffer),
		sink:   make(chan Command, buffer),
	}
}

// Sink is the submit side handed to session workers.
func (g *Gateway) Sink() chan<- Command { return g.source }

// Commands is the drained side the App loop consumes.
func (g *Gateway) Commands() <-chan Command { return g.sink }

// Run forwards commands until Close. Closing the App side afterwards lets
// the loop drain what was already accepted and exit cleanly.
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.sink)
	for cmd := range g.source {
		g.sink <- cmd
	}
	logging.Info(ctx, "gateway input closed, draining into app")
}

// Close stops intake. The caller must ensure every session worker has
// finished submitting first.
func (g *Gateway) Close() {
	close(g.source)
}

// Depth reports the commands queued across both hops and the combined
// capacity. Readiness probes treat a saturated queue as not ready.
func (g *Gateway) Depth() (queued, capacity int) {
	return len(g.source) + len(g.sink), cap(g.source) + cap(g.sink)
}
