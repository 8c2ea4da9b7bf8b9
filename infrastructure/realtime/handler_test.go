package realtime

import (
	"code-lab/domain/event"
	"code-lab/domain/session"
	"code-lab/errors"
	"code-lab/infrastructure/storage"
	"code-lab/mocks"
	"code-lab/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	synchronizer := runtime.NewSynchronizer(log, storage.NewWorkspaceStore(db, log), registry,
		runtime.NewBus(registry, log, time.Second))
	server := httptest.NewServer(NewHandler(log, synchronizer, 16, time.Second, nil))
	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, name string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: name, Data: data}))
}

func next(t *testing.T, conn *websocket.Conn, payload any) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var envelope Envelope
	require.NoError(t, conn.ReadJSON(&envelope))
	if payload != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, payload))
	}
	return envelope.Event
}

func TestHandler_Session_Flow(t *testing.T) {
	req := require.New(t)
	server := newServer(t)
	alice := dial(t, server)
	bob := dial(t, server)

	// Given alice joined first
	send(t, alice, JoinEvent, JoinPayload{Session: "room", UserName: "alice"})
	var snapshot SessionPayload
	req.Equal(event.SessionInitName, next(t, alice, &snapshot))
	req.Empty(snapshot.Files)
	req.Equal([]string{"alice"}, snapshot.Users)

	// When bob joins
	send(t, bob, JoinEvent, JoinPayload{Session: "room", UserName: "bob"})

	// Then bob sees both users and alice is told
	req.Equal(event.SessionInitName, next(t, bob, &snapshot))
	req.Equal([]string{"alice", "bob"}, snapshot.Users)
	var user UserPayload
	req.Equal(event.UserJoinedName, next(t, alice, &user))
	req.Equal("bob", user.UserName)

	// When bob edits a file then chats
	send(t, bob, FileUpdateEvent, FilePayload{Session: "room", Filename: "main.py", Content: "print(1)"})
	send(t, bob, ChatEvent, ChatInPayload{Session: "room", Text: "done"})

	// Then alice receives both in order
	var file FilePayload
	req.Equal(event.FileUpdatedName, next(t, alice, &file))
	req.Equal(FilePayload{Session: "room", Filename: "main.py", Content: "print(1)"}, file)
	var chat ChatOutPayload
	req.Equal(event.ChatPostedName, next(t, alice, &chat))
	req.Equal("bob", chat.UserName)

	// And bob's first frame is his chat message: his edit was not echoed
	req.Equal(event.ChatPostedName, next(t, bob, &chat))
	req.Equal("done", chat.Text)
	req.NotEmpty(chat.ID)
}

func TestHandler_Malformed_Frames_Are_Dropped(t *testing.T) {
	req := require.New(t)
	server := newServer(t)
	conn := dial(t, server)

	// Given garbage, an unknown event and an incomplete join
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, "file:rename", map[string]string{"session": "room"})
	req.NoError(conn.WriteJSON(Envelope{Event: JoinEvent}))
	send(t, conn, JoinEvent, JoinPayload{Session: "room"})

	// When a valid join follows
	send(t, conn, JoinEvent, JoinPayload{Session: "room", UserName: "carol"})

	// Then the connection is still alive and answers it
	var snapshot SessionPayload
	req.Equal(event.SessionInitName, next(t, conn, &snapshot))
	req.Equal([]string{"carol"}, snapshot.Users)
}

func TestHandler_Disconnect_Notifies_Others(t *testing.T) {
	req := require.New(t)
	server := newServer(t)
	alice := dial(t, server)
	bob := dial(t, server)

	send(t, alice, JoinEvent, JoinPayload{Session: "room", UserName: "alice"})
	next(t, alice, nil)
	send(t, bob, JoinEvent, JoinPayload{Session: "room", UserName: "bob"})
	next(t, bob, nil)
	next(t, alice, nil)

	// When bob's socket goes away
	req.NoError(bob.Close())

	// Then alice is told
	var user UserPayload
	req.Equal(event.UserLeftName, next(t, alice, &user))
	req.Equal("bob", user.UserName)
}

func TestHandler_Release_Retries_Failed_Leave(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	synchronizer := mocks.NewMockISynchronizer(ctrl)
	handler := NewHandler(logs.GetLoggerFromLevel(slog.LevelDebug), synchronizer, 16, time.Second, nil)
	id := session.NewConnectionID()

	// Given a store that fails the first release attempt
	gomock.InOrder(
		synchronizer.EXPECT().Leave(gomock.Any(), id).Return(errors.ErrInfrastructure),
		synchronizer.EXPECT().Leave(gomock.Any(), id).Return(nil),
	)

	// When the connection is released
	start := time.Now()
	handler.release(context.Background(), id)

	// Then Leave was attempted again after a pause
	req.GreaterOrEqual(time.Since(start), leaveBackoff)
}

func TestHandler_Release_Gives_Up(t *testing.T) {
	ctrl := gomock.NewController(t)
	synchronizer := mocks.NewMockISynchronizer(ctrl)
	handler := NewHandler(logs.GetLoggerFromLevel(slog.LevelDebug), synchronizer, 16, time.Second, nil)
	id := session.NewConnectionID()

	// Given a store that never recovers
	synchronizer.EXPECT().Leave(gomock.Any(), id).Return(errors.ErrInfrastructure).Times(leaveAttempts)

	// When the connection is released
	handler.release(context.Background(), id)

	// Then release stops after the last attempt
}
