//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"code-lab/domain/event"
	"code-lab/domain/execution"
	"code-lab/domain/session"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	return typeName(w)
}

// GetSinkName does the same for sinks, for the fan-out logs.
func GetSinkName(s EventSink) string {
	if s == nil {
		return "NilSink"
	}
	return typeName(s)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// WorkspaceStore is the durable associative store holding files and presence.
// It is the source of truth: no component may rely on process memory instead.
type WorkspaceStore interface {
	GetFiles(ctx context.Context, sessionID session.ID) (session.Files, error)
	SetFile(ctx context.Context, sessionID session.ID, filename, content string) error
	DeleteFile(ctx context.Context, sessionID session.ID, filename string) error
	AddMember(ctx context.Context, sessionID session.ID, conn session.ConnectionID, userName string) error
	RemoveMember(ctx context.Context, sessionID session.ID, conn session.ConnectionID) error
	Members(ctx context.Context, sessionID session.ID) ([]string, error)
}

// Subscriber is a connection attached to a session together with its sink.
type Subscriber struct {
	Connection session.ConnectionID
	Sink       EventSink
}

type IRegistry interface {
	Bind(binding session.Binding, sink EventSink) (previous session.Binding, rebound bool)
	Unbind(conn session.ConnectionID) (session.Binding, bool)
	Lookup(conn session.ConnectionID) (session.Binding, bool)
	Subscribers(sessionID session.ID) []Subscriber
}

type IBus interface {
	Publish(ctx context.Context, evt event.DomainEvent, exclude session.ConnectionID) int
	Deliver(ctx context.Context, conn session.ConnectionID, evt event.DomainEvent) error
}

type ISynchronizer interface {
	Join(ctx context.Context, conn session.ConnectionID, sink EventSink, cmd session.JoinCommand) (session.Snapshot, error)
	UpdateFile(ctx context.Context, origin session.ConnectionID, cmd session.UpdateFileCommand) error
	CreateFile(ctx context.Context, origin session.ConnectionID, cmd session.CreateFileCommand) error
	DeleteFile(ctx context.Context, origin session.ConnectionID, cmd session.DeleteFileCommand) error
	Chat(ctx context.Context, origin session.ConnectionID, cmd session.ChatCommand) error
	Leave(ctx context.Context, conn session.ConnectionID) error
	Files(ctx context.Context, sessionID session.ID) (session.Files, error)
}

type Executor interface {
	Run(ctx context.Context, req execution.Request) (execution.Result, error)
}

type ChatFilter interface {
	Censor(text string) string
}

// FileSearcher answers full-text queries over the files of a session.
type FileSearcher interface {
	Search(ctx context.Context, sessionID session.ID, text string) ([]string, error)
}

// RunObserver is told how every classified run ended.
type RunObserver interface {
	ObserveRun(language execution.Language, outcome execution.Outcome, elapsed time.Duration)
}
