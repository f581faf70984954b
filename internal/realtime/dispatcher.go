package realtime

import (
	"context"

	"kindred/internal/logger"
)

// Dispatcher pushes frames to currently-connected recipients. Delivery
// is best-effort: a disconnected recipient is skipped, a failed publish
// is logged, and the caller never learns either way. The unread rows in
// the store are the durable source of truth; this is latency only.
type Dispatcher struct {
	log *logger.Logger
	hub *Hub
	bus Bus // nil when running a single instance
}

func NewDispatcher(log *logger.Logger, hub *Hub, bus Bus) *Dispatcher {
	return &Dispatcher{log: log.With("service", "Dispatcher"), hub: hub, bus: bus}
}

// Hub exposes the local connection registry for the stream handler.
func (d *Dispatcher) Hub() *Hub { return d.hub }

// Push delivers the frame to every listed recipient. With a bus the
// envelope goes through redis and comes back to every instance's local
// hub (this one included) via the forwarder; without one it goes
// straight to the local hub.
func (d *Dispatcher) Push(ctx context.Context, recipients []string, frame Frame) {
	if len(recipients) == 0 {
		return
	}
	if d.bus == nil {
		d.hub.Send(recipients, frame)
		return
	}
	if err := d.bus.Publish(ctx, Envelope{Recipients: recipients, Frame: frame}); err != nil {
		d.log.Warn("push bus publish failed, delivering locally only",
			"event", frame.Event, "error", err)
		d.hub.Send(recipients, frame)
	}
}

// StartForwarder wires bus deliveries into the local hub. No-op without
// a bus.
func (d *Dispatcher) StartForwarder(ctx context.Context) error {
	if d.bus == nil {
		return nil
	}
	return d.bus.StartForwarder(ctx, func(env Envelope) {
		d.hub.Send(env.Recipients, env.Frame)
	})
}
