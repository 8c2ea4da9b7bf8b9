package runtime

import (
	"code-lab/contract"
	"code-lab/domain/session"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

var _ contract.IRegistry = (*Registry)(nil)

type Set map[session.ConnectionID]contract.EventSink

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[session.ID]Set // map session -> connections
}

type connectionShard struct {
	mu       sync.RWMutex
	bindings map[session.ConnectionID]session.Binding
}

// Registry is the in-process record of who is attached where.
// Sessions and connections are spread over independent shards so that
// traffic on one session never waits on a lock held for another one,
// unless both hash to the same shard for the few instructions of a map update.
type Registry struct {
	sessionShards    [shardCount]*sessionShard
	connectionShards [shardCount]*connectionShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := 0; i < shardCount; i++ {
		r.sessionShards[i] = &sessionShard{sessions: make(map[session.ID]Set)}
		r.connectionShards[i] = &connectionShard{bindings: make(map[session.ConnectionID]session.Binding)}
	}
	return r
}

func (r *Registry) sessionShard(id session.ID) *sessionShard {
	return r.sessionShards[xxhash.Sum64String(string(id))%shardCount]
}

func (r *Registry) connectionShard(conn session.ConnectionID) *connectionShard {
	return r.connectionShards[xxhash.Sum64String(string(conn))%shardCount]
}

// Bind attaches a connection to a session under a user name.
// A connection owns a single binding: binding it again replaces the previous
// one, which is returned so the caller can release it.
func (r *Registry) Bind(binding session.Binding, sink contract.EventSink) (session.Binding, bool) {
	cs := r.connectionShard(binding.Connection)
	cs.mu.Lock()
	previous, rebound := cs.bindings[binding.Connection]
	cs.bindings[binding.Connection] = binding
	cs.mu.Unlock()

	if rebound && previous.Session != binding.Session {
		r.removeFromSession(previous.Session, binding.Connection)
	}

	ss := r.sessionShard(binding.Session)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.sessions[binding.Session]; !ok {
		ss.sessions[binding.Session] = make(Set)
	}
	ss.sessions[binding.Session][binding.Connection] = sink
	return previous, rebound
}

// Unbind releases the binding of a connection.
// No empty set is left behind to prevent the map from growing forever.
func (r *Registry) Unbind(conn session.ConnectionID) (session.Binding, bool) {
	cs := r.connectionShard(conn)
	cs.mu.Lock()
	binding, ok := cs.bindings[conn]
	delete(cs.bindings, conn)
	cs.mu.Unlock()

	if !ok {
		return session.Binding{}, false
	}
	r.removeFromSession(binding.Session, conn)
	return binding, true
}

func (r *Registry) removeFromSession(id session.ID, conn session.ConnectionID) {
	ss := r.sessionShard(id)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if members, ok := ss.sessions[id]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(ss.sessions, id)
		}
	}
}

func (r *Registry) Lookup(conn session.ConnectionID) (session.Binding, bool) {
	cs := r.connectionShard(conn)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	binding, ok := cs.bindings[conn]
	return binding, ok
}

// Subscribers returns the connections attached to a session, ordered by
// connection id so that a publish walks them in a stable order.
// Returns nil if nobody is attached.
func (r *Registry) Subscribers(id session.ID) []contract.Subscriber {
	ss := r.sessionShard(id)
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	members, ok := ss.sessions[id]
	if !ok {
		return nil
	}
	subscribers := make([]contract.Subscriber, 0, len(members))
	for conn, sink := range members {
		subscribers = append(subscribers, contract.Subscriber{Connection: conn, Sink: sink})
	}
	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].Connection < subscribers[j].Connection
	})
	return subscribers
}

// Count returns the number of attached connections, all sessions included.
func (r *Registry) Count() int {
	total := 0
	for _, cs := range r.connectionShards {
		cs.mu.RLock()
		total += len(cs.bindings)
		cs.mu.RUnlock()
	}
	return total
}
