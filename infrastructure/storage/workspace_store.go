package storage

import (
	"code-lab/contract"
	"code-lab/domain/session"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	FilePrefix     = "file:"
	PresencePrefix = "presence:"
)

var _ contract.WorkspaceStore = (*WorkspaceStore)(nil)

type WorkspaceStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewWorkspaceStore(db *badger.DB, log *slog.Logger) *WorkspaceStore {
	return &WorkspaceStore{db: db, log: log}
}

// FileKey is formatted as "file:{session}:{filename}".
// Both segments are query-escaped so a ':' inside an identifier can't
// make two different pairs collide on the same key.
func FileKey(sessionID session.ID, filename string) []byte {
	return []byte(fileSessionPrefix(sessionID) + url.QueryEscape(filename))
}

// PresenceKey is formatted as "presence:{session}:{connection}".
// Presence is stored per connection and the user name is the value,
// so two connections sharing a name are two distinct entries.
func PresenceKey(sessionID session.ID, conn session.ConnectionID) []byte {
	return []byte(presenceSessionPrefix(sessionID) + url.QueryEscape(string(conn)))
}

func fileSessionPrefix(sessionID session.ID) string {
	return FilePrefix + url.QueryEscape(string(sessionID)) + ":"
}

func presenceSessionPrefix(sessionID session.ID) string {
	return PresencePrefix + url.QueryEscape(string(sessionID)) + ":"
}

// GetFiles retrieves every file of a session using a prefix scan.
func (s *WorkspaceStore) GetFiles(_ context.Context, sessionID session.ID) (session.Files, error) {
	files := make(session.Files)
	prefix := fileSessionPrefix(sessionID)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			filename, err := url.QueryUnescape(string(item.Key()[len(prefix):]))
			if err != nil {
				return fmt.Errorf("invalid file key %q: %w", item.Key(), err)
			}
			err = item.Value(func(val []byte) error {
				content, err := decodeString(val)
				if err != nil {
					return err
				}
				files[filename] = content
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// SetFile overwrites the whole content. There is no version check: the last
// write processed wins.
func (s *WorkspaceStore) SetFile(_ context.Context, sessionID session.ID, filename, content string) error {
	bytes, err := encodeString(content)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(FileKey(sessionID, filename), bytes)
	})
}

func (s *WorkspaceStore) DeleteFile(_ context.Context, sessionID session.ID, filename string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(FileKey(sessionID, filename))
	})
}

func (s *WorkspaceStore) AddMember(_ context.Context, sessionID session.ID, conn session.ConnectionID, userName string) error {
	bytes, err := encodeString(userName)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(PresenceKey(sessionID, conn), bytes)
	})
}

func (s *WorkspaceStore) RemoveMember(_ context.Context, sessionID session.ID, conn session.ConnectionID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(PresenceKey(sessionID, conn))
	})
}

// Members returns the distinct user names present in a session, sorted.
func (s *WorkspaceStore) Members(_ context.Context, sessionID session.ID) ([]string, error) {
	var names []string
	prefix := []byte(presenceSessionPrefix(sessionID))
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				name, err := decodeString(val)
				if err != nil {
					return err
				}
				names = append(names, name)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names = lo.Uniq(names)
	slices.Sort(names)
	return names, nil
}

// Sessions lists every session owning at least one file or presence entry.
// Only the inspection tooling needs it; the core never enumerates sessions.
func (s *WorkspaceStore) Sessions() ([]session.ID, error) {
	var ids []session.ID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			var rest string
			switch {
			case strings.HasPrefix(key, FilePrefix):
				rest = strings.TrimPrefix(key, FilePrefix)
			case strings.HasPrefix(key, PresencePrefix):
				rest = strings.TrimPrefix(key, PresencePrefix)
			default:
				continue
			}
			escaped, _, found := strings.Cut(rest, ":")
			if !found {
				continue
			}
			id, err := url.QueryUnescape(escaped)
			if err != nil {
				s.log.Debug("Skipping undecodable key", "key", key, "error", err)
				continue
			}
			ids = append(ids, session.ID(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids = lo.Uniq(ids)
	slices.Sort(ids)
	return ids, nil
}

func encodeString(value string) ([]byte, error) {
	return proto.Marshal(wrapperspb.String(value))
}

func decodeString(b []byte) (string, error) {
	var value wrapperspb.StringValue
	if err := proto.Unmarshal(b, &value); err != nil {
		return "", err
	}
	return value.GetValue(), nil
}

// DecodeValue renders a stored value for inspection tooling.
func DecodeValue(b []byte) string {
	value, err := decodeString(b)
	if err != nil {
		return fmt.Sprintf("<%d bytes>", len(b))
	}
	return value
}
