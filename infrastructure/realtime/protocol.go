package realtime

import (
	"code-lab/domain/event"
	"code-lab/domain/session"
	"encoding/json"
	"time"
)

// Client to server event names. Server to client names are the domain event names.
const (
	JoinEvent       = "join"
	FileUpdateEvent = "file:update"
	FileCreateEvent = "file:create"
	FileDeleteEvent = "file:delete"
	ChatEvent       = event.ChatPostedName
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	Session  string `json:"session"`
	UserName string `json:"userName"`
}

type FilePayload struct {
	Session  string `json:"session"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type FileDeletedPayload struct {
	Session  string `json:"session"`
	Filename string `json:"filename"`
}

type ChatInPayload struct {
	Session  string `json:"session"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

type ChatOutPayload struct {
	ID       string    `json:"id"`
	UserName string    `json:"userName"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

type SessionPayload struct {
	Files session.Files `json:"files"`
	Users []string      `json:"users"`
}

type UserPayload struct {
	UserName string `json:"userName"`
}

// Encode maps a domain event on its outbound frame.
func Encode(e event.DomainEvent) (Envelope, error) {
	var payload any
	switch evt := e.(type) {
	case event.SessionInitialized:
		files := evt.Snapshot.Files
		if files == nil {
			files = session.Files{}
		}
		users := evt.Snapshot.Users
		if users == nil {
			users = []string{}
		}
		payload = SessionPayload{Files: files, Users: users}
	case event.UserJoined:
		payload = UserPayload{UserName: evt.UserName}
	case event.UserLeft:
		payload = UserPayload{UserName: evt.UserName}
	case event.FileUpdated:
		payload = FilePayload{Session: string(evt.Session), Filename: evt.Filename, Content: evt.Content}
	case event.FileCreated:
		payload = FilePayload{Session: string(evt.Session), Filename: evt.Filename, Content: evt.Content}
	case event.FileDeleted:
		payload = FileDeletedPayload{Session: string(evt.Session), Filename: evt.Filename}
	case event.ChatPosted:
		payload = ChatOutPayload{
			ID:       evt.Message.ID.String(),
			UserName: evt.Message.UserName,
			Text:     evt.Message.Text,
			Time:     evt.Message.At,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: e.Name(), Data: data}, nil
}
