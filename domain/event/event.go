// Package event holds the facts produced by the session synchronizer.
// Names match the real-time wire contract.
package event

import (
	"time"

	"code-lab/domain/session"
)

const (
	SessionInitName = "session:init"
	UserJoinedName  = "user:join"
	UserLeftName    = "user:left"
	FileUpdatedName = "file:updated"
	FileCreatedName = "file:created"
	FileDeletedName = "file:deleted"
	ChatPostedName  = "chat:message"
)

type DomainEvent interface {
	SessionID() session.ID
	Name() string
}

// SessionInitialized is delivered only to the joining connection.
type SessionInitialized struct {
	Session  session.ID
	Snapshot session.Snapshot
}

func (e SessionInitialized) SessionID() session.ID { return e.Session }
func (e SessionInitialized) Name() string          { return SessionInitName }

type UserJoined struct {
	Session  session.ID
	UserName string
	At       time.Time
}

func (e UserJoined) SessionID() session.ID { return e.Session }
func (e UserJoined) Name() string          { return UserJoinedName }

type UserLeft struct {
	Session  session.ID
	UserName string
	At       time.Time
}

func (e UserLeft) SessionID() session.ID { return e.Session }
func (e UserLeft) Name() string          { return UserLeftName }

type FileUpdated struct {
	Session  session.ID
	Filename string
	Content  string
}

func (e FileUpdated) SessionID() session.ID { return e.Session }
func (e FileUpdated) Name() string          { return FileUpdatedName }

type FileCreated struct {
	Session  session.ID
	Filename string
	Content  string
}

func (e FileCreated) SessionID() session.ID { return e.Session }
func (e FileCreated) Name() string          { return FileCreatedName }

type FileDeleted struct {
	Session  session.ID
	Filename string
}

func (e FileDeleted) SessionID() session.ID { return e.Session }
func (e FileDeleted) Name() string          { return FileDeletedName }

type ChatPosted struct {
	Message session.ChatMessage
}

func (e ChatPosted) SessionID() session.ID { return e.Message.Session }
func (e ChatPosted) Name() string          { return ChatPostedName }
