package realtime

import (
	"code-lab/contract"
	"code-lab/domain/session"
	"code-lab/errors"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	leaveAttempts = 3
	leaveBackoff  = 100 * time.Millisecond
)

// ConnectionObserver is told when connections open and close.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

type Handler struct {
	log          *slog.Logger
	synchronizer contract.ISynchronizer
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
	observer     ConnectionObserver
}

func NewHandler(log *slog.Logger, synchronizer contract.ISynchronizer, bufferSize int,
	writeTimeout time.Duration, observer ConnectionObserver) *Handler {
	return &Handler{
		log:          log,
		synchronizer: synchronizer,
		upgrader: websocket.Upgrader{
			// Any origin may connect: there is no authentication to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
		observer:     observer,
	}
}

// ServeHTTP holds one real-time connection until the client goes away.
// Frames are read on this goroutine and written by a dedicated one,
// so a slow socket never blocks the dispatch of incoming frames.
// The binding is released once the read loop ends, whatever ended it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade refused", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	id := session.NewConnectionID()
	sink := NewConnectionSink(h.bufferSize)
	if h.observer != nil {
		h.observer.ConnectionOpened()
		defer h.observer.ConnectionClosed()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.write(ctx, id, conn, sink)
	}()

	h.read(ctx, id, conn, sink)

	sink.Close()
	cancel()
	<-writerDone
	h.release(context.WithoutCancel(ctx), id)
	h.log.Debug("Connection closed", "connection", id)
}

// release retries Leave a few times: a failed Leave keeps the binding,
// and nobody else will clear the presence entry of a gone connection.
func (h *Handler) release(ctx context.Context, id session.ConnectionID) {
	for attempt := 1; ; attempt++ {
		err := h.synchronizer.Leave(ctx, id)
		if err == nil {
			return
		}
		if attempt == leaveAttempts {
			h.log.Error("Failed to release connection", "connection", id, "error", err)
			return
		}
		h.log.Warn("Failed to release connection, retrying", "connection", id, "attempt", attempt, "error", err)
		time.Sleep(leaveBackoff * time.Duration(attempt))
	}
}

func (h *Handler) read(ctx context.Context, id session.ConnectionID, conn *websocket.Conn, sink *ConnectionSink) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Connection read ended", "connection", id, "error", err)
			}
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			h.log.Debug("Malformed frame dropped", "connection", id, "error", err)
			continue
		}
		if err := h.dispatch(ctx, id, sink, envelope); err != nil {
			if stderrors.Is(err, errors.ErrBadRequest) {
				h.log.Debug("Frame dropped", "connection", id, "event", envelope.Event, "error", err)
				continue
			}
			h.log.Warn("Frame failed", "connection", id, "event", envelope.Event, "error", err)
		}
	}
}

func (h *Handler) write(ctx context.Context, id session.ConnectionID, conn *websocket.Conn, sink *ConnectionSink) {
	// Unblock the read loop whenever writing stops.
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sink.Done():
			h.log.Warn("Connection dropped", "connection", id)
			return
		case evt := <-sink.Events():
			envelope, err := Encode(evt)
			if err != nil {
				h.log.Error("Failed to encode event", "event", evt.Name(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(envelope); err != nil {
				h.log.Debug("Failed to push event", "connection", id, "error", err)
				sink.Close()
				return
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, id session.ConnectionID, sink *ConnectionSink, envelope Envelope) error {
	switch envelope.Event {
	case JoinEvent:
		var p JoinPayload
		if err := decode(envelope, &p); err != nil {
			return err
		}
		_, err := h.synchronizer.Join(ctx, id, sink, session.JoinCommand{Session: session.ID(p.Session), UserName: p.UserName})
		return err
	case FileUpdateEvent:
		var p FilePayload
		if err := decode(envelope, &p); err != nil {
			return err
		}
		return h.synchronizer.UpdateFile(ctx, id, session.UpdateFileCommand{
			Session: session.ID(p.Session), Filename: p.Filename, Content: p.Content,
		})
	case FileCreateEvent:
		var p FilePayload
		if err := decode(envelope, &p); err != nil {
			return err
		}
		return h.synchronizer.CreateFile(ctx, id, session.CreateFileCommand{
			Session: session.ID(p.Session), Filename: p.Filename, Content: p.Content,
		})
	case FileDeleteEvent:
		var p FileDeletedPayload
		if err := decode(envelope, &p); err != nil {
			return err
		}
		return h.synchronizer.DeleteFile(ctx, id, session.DeleteFileCommand{
			Session: session.ID(p.Session), Filename: p.Filename,
		})
	case ChatEvent:
		var p ChatInPayload
		if err := decode(envelope, &p); err != nil {
			return err
		}
		return h.synchronizer.Chat(ctx, id, session.ChatCommand{
			Session: session.ID(p.Session), UserName: p.UserName, Text: p.Text,
		})
	default:
		return fmt.Errorf("%w: unknown event %q", errors.ErrBadRequest, envelope.Event)
	}
}

func decode(envelope Envelope, payload any) error {
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%w: %s without data", errors.ErrBadRequest, envelope.Event)
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrBadRequest, err)
	}
	return nil
}
