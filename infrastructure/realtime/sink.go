package realtime

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/errors"
	"context"
	"fmt"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink buffers the events of one connection until its writer
// pushes them on the socket.
//
// Events are never dropped silently: a gap would leave the client with a
// diverging copy of the session. A connection which cannot keep up within
// the delivery deadline is closed instead, and a reconnecting client gets a
// fresh snapshot.
type ConnectionSink struct {
	events chan event.DomainEvent
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		s.Close()
		return fmt.Errorf("%w: slow consumer: %v", errors.ErrConnectionClosed, ctx.Err())
	}
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent { return s.events }

func (s *ConnectionSink) Done() <-chan struct{} { return s.done }

func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
