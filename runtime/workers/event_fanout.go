package workers

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"context"
	"log/slog"
	"time"
)

// EventFanout hands every broadcast event to the permanent sinks
// (search index, metrics, timeline).
//
// It provides best-effort fan-out with no guarantees regarding delivery
// or retries. Sessions never wait on it: events reach it through a buffered
// channel which the synchronizer feeds without blocking.
//
// Sinks are called one after another so that each of them observes the
// events in the order they were broadcast. A sink slower than sinkTimeout
// only loses that event.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel closed")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event",
				"sink", contract.GetSinkName(sink), "event", evt.Name(), "error", err)
		}
		cancel()
	}
}
