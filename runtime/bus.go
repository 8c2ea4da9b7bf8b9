package runtime

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/domain/session"
	"context"
	"log/slog"
	"time"
)

var _ contract.IBus = (*Bus)(nil)

// Bus delivers an event to every connection attached to its session.
//
// Delivery is sequential over a stable subscriber order. Callers publish
// from inside the session critical section, which is what gives each
// connection a FIFO view of its session. A sink that can't accept an event
// within the delivery timeout is skipped; it is up to the sink to give up
// on its connection.
type Bus struct {
	registry        contract.IRegistry
	log             *slog.Logger
	deliveryTimeout time.Duration
}

func NewBus(registry contract.IRegistry, log *slog.Logger, deliveryTimeout time.Duration) *Bus {
	return &Bus{registry: registry, log: log, deliveryTimeout: deliveryTimeout}
}

// Publish sends evt to all subscribers of the event's session except
// exclude, which may be empty. It returns the number of deliveries.
func (b *Bus) Publish(ctx context.Context, evt event.DomainEvent, exclude session.ConnectionID) int {
	delivered := 0
	for _, sub := range b.registry.Subscribers(evt.SessionID()) {
		if exclude != "" && sub.Connection == exclude {
			continue
		}
		if err := b.consume(ctx, sub.Sink, evt); err != nil {
			b.log.Warn("Event delivery failed",
				"session", evt.SessionID(),
				"connection", sub.Connection,
				"event", evt.Name(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Deliver sends evt to a single connection of the event's session.
func (b *Bus) Deliver(ctx context.Context, conn session.ConnectionID, evt event.DomainEvent) error {
	for _, sub := range b.registry.Subscribers(evt.SessionID()) {
		if sub.Connection == conn {
			return b.consume(ctx, sub.Sink, evt)
		}
	}
	return nil
}

func (b *Bus) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) error {
	ctx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
	defer cancel()
	return sink.Consume(ctx, evt)
}
