package runtime

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/domain/session"
	"code-lab/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

var _ contract.ISynchronizer = (*Synchronizer)(nil)

// Synchronizer owns the session lifecycle and the file mutations.
//
// Every mutation of a session runs inside that session's critical section:
// the store write and the broadcast happen together, so connections observe
// events in processing order. Concurrent updates of one file are resolved by
// that same order (last write wins), stale writes are never detected.
type Synchronizer struct {
	log        *slog.Logger
	store      contract.WorkspaceStore
	registry   contract.IRegistry
	bus        contract.IBus
	locks      *SessionLocks
	filter     contract.ChatFilter
	sideEvents chan<- event.DomainEvent
	now        func() time.Time
}

type SynchronizerOption func(*Synchronizer)

// WithChatFilter masks chat text before relay.
func WithChatFilter(filter contract.ChatFilter) SynchronizerOption {
	return func(s *Synchronizer) { s.filter = filter }
}

// WithSideEvents copies every broadcast event to a channel consumed by the
// permanent sinks. The copy is best effort and never blocks a session.
func WithSideEvents(ch chan<- event.DomainEvent) SynchronizerOption {
	return func(s *Synchronizer) { s.sideEvents = ch }
}

func WithClock(now func() time.Time) SynchronizerOption {
	return func(s *Synchronizer) { s.now = now }
}

func NewSynchronizer(log *slog.Logger, store contract.WorkspaceStore,
	registry contract.IRegistry, bus contract.IBus, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		log:      log,
		store:    store,
		registry: registry,
		bus:      bus,
		locks:    NewSessionLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join binds the connection, records its presence and returns the session
// snapshot. The snapshot is also delivered to the connection before anyone
// else can mutate the session, so nothing published afterwards can overtake it.
func (s *Synchronizer) Join(ctx context.Context, conn session.ConnectionID,
	sink contract.EventSink, cmd session.JoinCommand) (session.Snapshot, error) {
	if cmd.Session == "" || cmd.UserName == "" {
		return session.Snapshot{}, fmt.Errorf("%w: session and userName are required", errors.ErrBadRequest)
	}

	// A connection owns a single binding: switching session or name releases the old one first.
	if previous, ok := s.registry.Lookup(conn); ok &&
		(previous.Session != cmd.SessionID() || previous.UserName != cmd.UserName) {
		if err := s.Leave(ctx, conn); err != nil {
			s.log.Warn("Failed to release previous session", "connection", conn, "error", err)
		}
	}

	sessionID := cmd.SessionID()
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	s.registry.Bind(session.Binding{Connection: conn, Session: sessionID, UserName: cmd.UserName}, sink)

	if err := s.store.AddMember(ctx, sessionID, conn, cmd.UserName); err != nil {
		s.registry.Unbind(conn)
		return session.Snapshot{}, fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}

	snapshot, err := s.snapshot(ctx, sessionID)
	if err != nil {
		s.registry.Unbind(conn)
		if rollbackErr := s.store.RemoveMember(ctx, sessionID, conn); rollbackErr != nil {
			s.log.Warn("Failed to roll back presence", "session", sessionID, "connection", conn, "error", rollbackErr)
		}
		return session.Snapshot{}, err
	}

	if err := s.bus.Deliver(ctx, conn, event.SessionInitialized{Session: sessionID, Snapshot: snapshot}); err != nil {
		s.log.Warn("Snapshot delivery failed", "session", sessionID, "connection", conn, "error", err)
	}
	s.broadcast(ctx, event.UserJoined{Session: sessionID, UserName: cmd.UserName, At: s.now()}, conn)

	s.log.Debug("Connection joined", "session", sessionID, "connection", conn, "user", cmd.UserName)
	return snapshot, nil
}

func (s *Synchronizer) snapshot(ctx context.Context, sessionID session.ID) (session.Snapshot, error) {
	files, err := s.store.GetFiles(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	users, err := s.store.Members(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	return session.Snapshot{Files: files, Users: users}, nil
}

// UpdateFile overwrites a file and notifies every other connection.
// The origin is not echoed: it already holds the value it sent.
func (s *Synchronizer) UpdateFile(ctx context.Context, origin session.ConnectionID, cmd session.UpdateFileCommand) error {
	if cmd.Session == "" || cmd.Filename == "" {
		return fmt.Errorf("%w: session and filename are required", errors.ErrBadRequest)
	}
	unlock := s.locks.Lock(cmd.SessionID())
	defer unlock()

	if err := s.store.SetFile(ctx, cmd.SessionID(), cmd.Filename, cmd.Content); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	s.broadcast(ctx, event.FileUpdated{Session: cmd.SessionID(), Filename: cmd.Filename, Content: cmd.Content}, origin)
	return nil
}

// CreateFile creates or overwrites a file and notifies every connection,
// the creator included, so that all file lists stay identical.
func (s *Synchronizer) CreateFile(ctx context.Context, _ session.ConnectionID, cmd session.CreateFileCommand) error {
	if cmd.Session == "" || cmd.Filename == "" {
		return fmt.Errorf("%w: session and filename are required", errors.ErrBadRequest)
	}
	unlock := s.locks.Lock(cmd.SessionID())
	defer unlock()

	if err := s.store.SetFile(ctx, cmd.SessionID(), cmd.Filename, cmd.Content); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	s.broadcast(ctx, event.FileCreated{Session: cmd.SessionID(), Filename: cmd.Filename, Content: cmd.Content}, "")
	return nil
}

func (s *Synchronizer) DeleteFile(ctx context.Context, _ session.ConnectionID, cmd session.DeleteFileCommand) error {
	if cmd.Session == "" || cmd.Filename == "" {
		return fmt.Errorf("%w: session and filename are required", errors.ErrBadRequest)
	}
	unlock := s.locks.Lock(cmd.SessionID())
	defer unlock()

	if err := s.store.DeleteFile(ctx, cmd.SessionID(), cmd.Filename); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	s.broadcast(ctx, event.FileDeleted{Session: cmd.SessionID(), Filename: cmd.Filename}, "")
	return nil
}

// Chat relays a message to the whole session with a server-assigned time.
// Empty text is ignored.
func (s *Synchronizer) Chat(ctx context.Context, origin session.ConnectionID, cmd session.ChatCommand) error {
	if cmd.Text == "" {
		return nil
	}
	if cmd.Session == "" {
		return fmt.Errorf("%w: session is required", errors.ErrBadRequest)
	}

	userName := cmd.UserName
	if binding, ok := s.registry.Lookup(origin); ok && binding.Session == cmd.SessionID() {
		userName = binding.UserName
	}
	text := cmd.Text
	if s.filter != nil {
		text = s.filter.Censor(text)
	}

	unlock := s.locks.Lock(cmd.SessionID())
	defer unlock()

	s.broadcast(ctx, event.ChatPosted{Message: session.ChatMessage{
		ID:       uuid.New(),
		Session:  cmd.SessionID(),
		UserName: userName,
		Text:     text,
		At:       s.now(),
	}}, "")
	return nil
}

// Leave releases the binding of a disconnected connection.
// On a store failure the binding is kept and Leave may be called again.
// The name leaves the visible presence set only when no other connection
// of the session still carries it, and only then is the departure broadcast.
func (s *Synchronizer) Leave(ctx context.Context, conn session.ConnectionID) error {
	binding, ok := s.registry.Lookup(conn)
	if !ok {
		return nil
	}
	unlock := s.locks.Lock(binding.Session)
	defer unlock()

	if err := s.store.RemoveMember(ctx, binding.Session, conn); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	s.registry.Unbind(conn)
	members, err := s.store.Members(ctx, binding.Session)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	if slices.Contains(members, binding.UserName) {
		s.log.Debug("User still present through another connection",
			"session", binding.Session, "user", binding.UserName)
		return nil
	}
	s.broadcast(ctx, event.UserLeft{Session: binding.Session, UserName: binding.UserName, At: s.now()}, conn)
	return nil
}

func (s *Synchronizer) Files(ctx context.Context, sessionID session.ID) (session.Files, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session is required", errors.ErrBadRequest)
	}
	files, err := s.store.GetFiles(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	return files, nil
}

func (s *Synchronizer) broadcast(ctx context.Context, evt event.DomainEvent, exclude session.ConnectionID) {
	delivered := s.bus.Publish(ctx, evt, exclude)
	s.log.Debug("Event broadcast", "session", evt.SessionID(), "event", evt.Name(), "delivered", delivered)
	if s.sideEvents == nil {
		return
	}
	select {
	case s.sideEvents <- evt:
	default:
		s.log.Debug("Side event lost", "event", evt.Name())
	}
}
