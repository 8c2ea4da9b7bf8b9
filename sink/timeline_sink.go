package sink

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/domain/session"
	"context"
	"fmt"
	"sync"
	"time"
)

var _ contract.EventSink = (*Timeline)(nil)

// Entry is one line of a session timeline.
type Entry struct {
	Event   string    `json:"event"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// Timeline holds the last events of every session, for debugging.
type Timeline struct {
	mu       sync.RWMutex
	capacity int
	entries  map[session.ID][]Entry
	now      func() time.Time
}

func NewTimeline(capacity int) *Timeline {
	return &Timeline{
		capacity: capacity,
		entries:  make(map[session.ID][]Entry),
		now:      time.Now,
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	entry := t.fromEvent(e)
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := append(t.entries[e.SessionID()], entry)
	if len(entries) > t.capacity {
		entries = entries[len(entries)-t.capacity:]
	}
	t.entries[e.SessionID()] = entries
	return nil
}

// Recent returns a copy of the session timeline, oldest first.
func (t *Timeline) Recent(id session.ID) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries[id]...)
}

func (t *Timeline) fromEvent(e event.DomainEvent) Entry {
	entry := Entry{Event: e.Name(), At: t.now()}
	switch evt := e.(type) {
	case event.UserJoined:
		entry.Summary, entry.At = evt.UserName, evt.At
	case event.UserLeft:
		entry.Summary, entry.At = evt.UserName, evt.At
	case event.FileCreated:
		entry.Summary = fmt.Sprintf("%s (%d bytes)", evt.Filename, len(evt.Content))
	case event.FileUpdated:
		entry.Summary = fmt.Sprintf("%s (%d bytes)", evt.Filename, len(evt.Content))
	case event.FileDeleted:
		entry.Summary = evt.Filename
	case event.ChatPosted:
		entry.Summary, entry.At = evt.Message.UserName, evt.Message.At
	}
	return entry
}
