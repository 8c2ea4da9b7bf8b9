// Package session contains core concepts of the collaborative workspace.
// A session owns a file map and a presence set. Both live in the workspace
// store, never in process memory.
package session

import (
	"time"

	"github.com/google/uuid"
)

type ID string

type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Files maps a filename to its full content.
type Files map[string]string

// Snapshot is what a joining connection receives.
type Snapshot struct {
	Files Files
	Users []string
}

// ChatMessage is transient: broadcast only, never persisted.
type ChatMessage struct {
	ID       uuid.UUID
	Session  ID
	UserName string
	Text     string
	At       time.Time
}

// Binding ties one connection to exactly one (session, user name) pair.
type Binding struct {
	Connection ConnectionID
	Session    ID
	UserName   string
}
