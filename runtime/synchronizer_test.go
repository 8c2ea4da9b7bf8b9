package runtime

import (
	"code-lab/domain/event"
	"code-lab/domain/session"
	"code-lab/errors"
	"code-lab/infrastructure/storage"
	"code-lab/mocks"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recorder is a sink keeping every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recorder) Consume(_ context.Context, e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Events() []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.DomainEvent(nil), r.events...)
}

func (r *recorder) Names() []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.Name())
	}
	return names
}

type upperFilter struct{}

func (upperFilter) Censor(text string) string { return "[" + text + "]" }

func newSynchronizer(t *testing.T, opts ...SynchronizerOption) *Synchronizer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	bus := NewBus(registry, log, time.Second)
	return NewSynchronizer(log, storage.NewWorkspaceStore(db, log), registry, bus, opts...)
}

func join(t *testing.T, s *Synchronizer, id session.ID, user string) (session.ConnectionID, *recorder, session.Snapshot) {
	t.Helper()
	conn := session.NewConnectionID()
	sink := &recorder{}
	snapshot, err := s.Join(context.Background(), conn, sink, session.JoinCommand{Session: id, UserName: user})
	require.NoError(t, err)
	return conn, sink, snapshot
}

func TestSynchronizer_Join_Returns_Snapshot_And_Notifies_Others(t *testing.T) {
	req := require.New(t)
	s := newSynchronizer(t)

	// Given alice is in the session
	_, alice, snapshot := join(t, s, "room", "alice")
	req.Empty(snapshot.Files)
	req.Equal([]string{"alice"}, snapshot.Users)

	// When bob joins
	_, bob, snapshot := join(t, s, "room", "bob")

	// Then bob receives the snapshot first
	req.Equal([]string{"alice", "bob"}, snapshot.Users)
	req.Equal([]string{event.SessionInitName}, bob.Names())
	init := bob.Events()[0].(event.SessionInitialized)
	req.Equal(snapshot, init.Snapshot)

	// And alice is told that bob joined
	req.Equal([]string{event.SessionInitName, event.UserJoinedName}, alice.Names())
	req.Equal("bob", alice.Events()[1].(event.UserJoined).UserName)
}

func TestSynchronizer_CreateFile_Is_Visible_To_Later_Joiners(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	creator, creatorSink, _ := join(t, s, "room", "alice")

	// When a file is created
	req.NoError(s.CreateFile(ctx, creator, session.CreateFileCommand{Session: "room", Filename: "main.py", Content: "print(1)"}))

	// Then the creator receives it too
	req.Contains(creatorSink.Names(), event.FileCreatedName)

	// And a later joiner observes it
	_, _, snapshot := join(t, s, "room", "bob")
	req.Equal(session.Files{"main.py": "print(1)"}, snapshot.Files)
}

func TestSynchronizer_UpdateFile_Is_Not_Echoed_To_Origin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	alice, aliceSink, _ := join(t, s, "room", "alice")
	_, bobSink, _ := join(t, s, "room", "bob")

	// When alice updates a file
	req.NoError(s.UpdateFile(ctx, alice, session.UpdateFileCommand{Session: "room", Filename: "a.js", Content: "x"}))

	// Then bob is notified with the full content
	events := bobSink.Events()
	last := events[len(events)-1].(event.FileUpdated)
	req.Equal("a.js", last.Filename)
	req.Equal("x", last.Content)

	// And alice is not
	req.NotContains(aliceSink.Names(), event.FileUpdatedName)
}

func TestSynchronizer_UpdateFile_Without_Origin_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	s := newSynchronizer(t)
	_, aliceSink, _ := join(t, s, "room", "alice")

	req.NoError(s.UpdateFile(context.Background(), "", session.UpdateFileCommand{Session: "room", Filename: "a.js", Content: "x"}))

	req.Contains(aliceSink.Names(), event.FileUpdatedName)
}

func TestSynchronizer_Last_Write_Wins_In_Processing_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	writer, _, _ := join(t, s, "room", "alice")

	// When updates are processed in order o1..on
	for i := 1; i <= 10; i++ {
		req.NoError(s.UpdateFile(ctx, writer, session.UpdateFileCommand{
			Session: "room", Filename: "f.txt", Content: fmt.Sprintf("v%d", i)}))
	}

	// Then the stored content is the one of on
	files, err := s.Files(ctx, "room")
	req.NoError(err)
	req.Equal("v10", files["f.txt"])
}

func TestSynchronizer_Concurrent_Updates_Are_Delivered_In_The_Same_Order_Everywhere(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	_, observer1, _ := join(t, s, "room", "observer-1")
	_, observer2, _ := join(t, s, "room", "observer-2")

	// When many writers update the same file concurrently
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.UpdateFile(ctx, "", session.UpdateFileCommand{
				Session: "room", Filename: "shared.txt", Content: fmt.Sprintf("w%d", i)})
		}(i)
	}
	wg.Wait()

	contents := func(r *recorder) []string {
		var res []string
		for _, e := range r.Events() {
			if u, ok := e.(event.FileUpdated); ok {
				res = append(res, u.Content)
			}
		}
		return res
	}

	// Then both observers saw the same sequence
	seq1, seq2 := contents(observer1), contents(observer2)
	req.Len(seq1, 50)
	req.Equal(seq1, seq2)

	// And the stored value is the last one delivered
	files, err := s.Files(ctx, "room")
	req.NoError(err)
	req.Equal(seq1[len(seq1)-1], files["shared.txt"])
}

func TestSynchronizer_DeleteFile_Is_Absent_From_Later_Snapshot(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	conn, sink, _ := join(t, s, "room", "alice")
	req.NoError(s.CreateFile(ctx, conn, session.CreateFileCommand{Session: "room", Filename: "a", Content: "1"}))
	req.NoError(s.CreateFile(ctx, conn, session.CreateFileCommand{Session: "room", Filename: "b", Content: "2"}))

	// When a file is deleted
	req.NoError(s.DeleteFile(ctx, conn, session.DeleteFileCommand{Session: "room", Filename: "a"}))

	// Then everybody including the origin is told
	req.Contains(sink.Names(), event.FileDeletedName)

	// And a later snapshot doesn't contain it
	_, _, snapshot := join(t, s, "room", "bob")
	req.Equal(session.Files{"b": "2"}, snapshot.Files)
}

func TestSynchronizer_Malformed_Input_Is_Rejected_Without_Side_Effect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	conn, sink, _ := join(t, s, "room", "alice")
	before := len(sink.Events())

	err := s.UpdateFile(ctx, "", session.UpdateFileCommand{Session: "room", Filename: "", Content: "x"})
	req.True(stderrors.Is(err, errors.ErrBadRequest))
	err = s.CreateFile(ctx, conn, session.CreateFileCommand{Session: "room", Filename: ""})
	req.True(stderrors.Is(err, errors.ErrBadRequest))
	err = s.DeleteFile(ctx, conn, session.DeleteFileCommand{Session: "", Filename: "a"})
	req.True(stderrors.Is(err, errors.ErrBadRequest))
	_, err = s.Join(ctx, session.NewConnectionID(), &recorder{}, session.JoinCommand{Session: "", UserName: "x"})
	req.True(stderrors.Is(err, errors.ErrBadRequest))

	req.Len(sink.Events(), before)
	files, err := s.Files(ctx, "room")
	req.NoError(err)
	req.Empty(files)
}

func TestSynchronizer_Chat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newSynchronizer(t, WithClock(func() time.Time { return now }), WithChatFilter(upperFilter{}))
	alice, aliceSink, _ := join(t, s, "room", "alice")
	_, bobSink, _ := join(t, s, "room", "bob")

	// When alice sends an empty message
	req.NoError(s.Chat(ctx, alice, session.ChatCommand{Session: "room", UserName: "alice", Text: ""}))

	// Then nothing is relayed
	req.NotContains(bobSink.Names(), event.ChatPostedName)

	// When alice sends only blanks
	req.NoError(s.Chat(ctx, alice, session.ChatCommand{Session: "room", UserName: "alice", Text: "   "}))

	// Then the text is relayed untouched by trimming
	events := bobSink.Events()
	req.Equal("[   ]", events[len(events)-1].(event.ChatPosted).Message.Text)

	// When alice sends a message claiming another name
	req.NoError(s.Chat(ctx, alice, session.ChatCommand{Session: "room", UserName: "mallory", Text: "hi"}))

	// Then everybody including alice receives it under her bound name
	for _, sink := range []*recorder{aliceSink, bobSink} {
		events := sink.Events()
		msg := events[len(events)-1].(event.ChatPosted).Message
		req.Equal("alice", msg.UserName)
		req.Equal("[hi]", msg.Text)
		req.Equal(now, msg.At)
		req.NotEmpty(msg.ID)
	}
}

func TestSynchronizer_Presence_Is_Idempotent_Per_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	_, observer, _ := join(t, s, "room", "observer")

	// Given the same connection joins twice as alice
	conn := session.NewConnectionID()
	sink := &recorder{}
	_, err := s.Join(ctx, conn, sink, session.JoinCommand{Session: "room", UserName: "alice"})
	req.NoError(err)
	snapshot, err := s.Join(ctx, conn, sink, session.JoinCommand{Session: "room", UserName: "alice"})
	req.NoError(err)
	req.Equal([]string{"alice", "observer"}, snapshot.Users)

	// When it leaves once
	req.NoError(s.Leave(ctx, conn))

	// Then alice is absent and the departure was broadcast
	_, _, snapshot = join(t, s, "room", "late")
	req.Equal([]string{"late", "observer"}, snapshot.Users)
	req.Contains(observer.Names(), event.UserLeftName)
}

func TestSynchronizer_Presence_Name_Stays_While_Another_Connection_Holds_It(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	_, observer, _ := join(t, s, "room", "observer")
	tab1, _, _ := join(t, s, "room", "alice")
	tab2, _, _ := join(t, s, "room", "alice")

	// When one of alice's tabs disconnects
	req.NoError(s.Leave(ctx, tab1))

	// Then alice is still visible and no departure is broadcast
	_, _, snapshot := join(t, s, "room", "late")
	req.Contains(snapshot.Users, "alice")
	req.NotContains(observer.Names(), event.UserLeftName)

	// When the last tab disconnects
	req.NoError(s.Leave(ctx, tab2))

	// Then alice's departure is broadcast
	req.Contains(observer.Names(), event.UserLeftName)

	// And leaving twice is a no-op
	req.NoError(s.Leave(ctx, tab2))
}

func TestSynchronizer_Join_Another_Session_Leaves_The_Previous_One(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	_, observer, _ := join(t, s, "first", "observer")
	conn := session.NewConnectionID()
	_, err := s.Join(ctx, conn, &recorder{}, session.JoinCommand{Session: "first", UserName: "alice"})
	req.NoError(err)

	// When the connection joins another session
	_, err = s.Join(ctx, conn, &recorder{}, session.JoinCommand{Session: "second", UserName: "alice"})
	req.NoError(err)

	// Then it has left the first one
	req.Contains(observer.Names(), event.UserLeftName)
	_, _, snapshot := join(t, s, "first", "late")
	req.NotContains(snapshot.Users, "alice")
}

func TestSynchronizer_Rejoin_Under_Another_Name_Announces_The_Departure(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newSynchronizer(t)
	_, observer, _ := join(t, s, "room", "observer")
	conn := session.NewConnectionID()
	_, err := s.Join(ctx, conn, &recorder{}, session.JoinCommand{Session: "room", UserName: "alice"})
	req.NoError(err)

	// When the same connection joins the same session as bob
	snapshot, err := s.Join(ctx, conn, &recorder{}, session.JoinCommand{Session: "room", UserName: "bob"})
	req.NoError(err)

	// Then alice's departure precedes bob's arrival
	req.Equal([]string{"bob", "observer"}, snapshot.Users)
	names := observer.Names()
	req.Equal([]string{event.SessionInitName, event.UserJoinedName, event.UserLeftName, event.UserJoinedName}, names)
	req.Equal("alice", observer.Events()[2].(event.UserLeft).UserName)
	req.Equal("bob", observer.Events()[3].(event.UserJoined).UserName)
}

func TestSynchronizer_Side_Events_Are_Copied(t *testing.T) {
	req := require.New(t)
	side := make(chan event.DomainEvent, 10)
	s := newSynchronizer(t, WithSideEvents(side))
	conn, _, _ := join(t, s, "room", "alice")

	req.NoError(s.CreateFile(context.Background(), conn, session.CreateFileCommand{Session: "room", Filename: "a", Content: "1"}))

	// user:join from the joiner, then file:created
	req.Len(side, 2)
	<-side
	evt := <-side
	req.Equal(event.FileCreatedName, evt.Name())
}

func TestSynchronizer_Join_Store_Failure_Releases_Binding(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockWorkspaceStore(ctrl)
	registry := NewRegistry()
	s := NewSynchronizer(log, store, registry, NewBus(registry, log, time.Second))
	conn := session.NewConnectionID()

	// Given the store is unreachable
	store.EXPECT().AddMember(gomock.Any(), session.ID("room"), conn, "alice").
		Return(fmt.Errorf("connection refused")).Times(1)

	// When a connection joins
	_, err := s.Join(context.Background(), conn, &recorder{}, session.JoinCommand{Session: "room", UserName: "alice"})

	// Then an infrastructure error is surfaced
	req.True(stderrors.Is(err, errors.ErrInfrastructure))
	// And the connection is not left attached
	_, ok := registry.Lookup(conn)
	req.False(ok)
}

func TestSynchronizer_UpdateFile_Store_Failure_Does_Not_Broadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockWorkspaceStore(ctrl)
	bus := mocks.NewMockIBus(ctrl)
	s := NewSynchronizer(log, store, NewRegistry(), bus)

	store.EXPECT().SetFile(gomock.Any(), session.ID("room"), "a", "1").Return(fmt.Errorf("disk full"))
	bus.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := s.UpdateFile(context.Background(), "", session.UpdateFileCommand{Session: "room", Filename: "a", Content: "1"})
	req.True(stderrors.Is(err, errors.ErrInfrastructure))
}

func TestSynchronizer_Leave_Store_Failure_Keeps_Binding_For_Retry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockWorkspaceStore(ctrl)
	registry := NewRegistry()
	s := NewSynchronizer(log, store, registry, NewBus(registry, log, time.Second))
	conn := session.NewConnectionID()
	registry.Bind(session.Binding{Connection: conn, Session: "room", UserName: "alice"}, &recorder{})

	// Given the store fails once then recovers
	gomock.InOrder(
		store.EXPECT().RemoveMember(gomock.Any(), session.ID("room"), conn).Return(fmt.Errorf("connection refused")),
		store.EXPECT().RemoveMember(gomock.Any(), session.ID("room"), conn).Return(nil),
		store.EXPECT().Members(gomock.Any(), session.ID("room")).Return(nil, nil),
	)

	// When the connection leaves
	err := s.Leave(ctx, conn)

	// Then the failure is surfaced and the binding survives
	req.True(stderrors.Is(err, errors.ErrInfrastructure))
	_, ok := registry.Lookup(conn)
	req.True(ok)

	// When it leaves again
	req.NoError(s.Leave(ctx, conn))

	// Then the binding is gone
	_, ok = registry.Lookup(conn)
	req.False(ok)
}
