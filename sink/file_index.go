package sink

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/domain/session"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"github.com/blugelabs/bluge"
)

const (
	sessionField  = "session"
	filenameField = "filename"
	contentField  = "content"
)

var (
	_ contract.EventSink    = (*FileIndex)(nil)
	_ contract.FileSearcher = (*FileIndex)(nil)
)

// FileIndex keeps a full-text index of every session file, following the
// file events. It is a projection: the store stays the source of truth and
// a lost event only makes the index stale for that file.
type FileIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
	limit  int
}

func NewFileIndex(writer *bluge.Writer, log *slog.Logger, limit int) *FileIndex {
	return &FileIndex{writer: writer, log: log, limit: limit}
}

func (i *FileIndex) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.FileCreated:
		return i.put(evt.Session, evt.Filename, evt.Content)
	case event.FileUpdated:
		return i.put(evt.Session, evt.Filename, evt.Content)
	case event.FileDeleted:
		if err := i.writer.Delete(bluge.Identifier(documentID(evt.Session, evt.Filename))); err != nil {
			return fmt.Errorf("failed to unindex %s: %w", evt.Filename, err)
		}
	}
	return nil
}

func (i *FileIndex) put(sessionID session.ID, filename, content string) error {
	doc := bluge.NewDocument(documentID(sessionID, filename)).
		AddField(bluge.NewKeywordField(sessionField, string(sessionID)).StoreValue()).
		AddField(bluge.NewKeywordField(filenameField, filename).StoreValue()).
		AddField(bluge.NewTextField(contentField, content))
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("failed to index %s: %w", filename, err)
	}
	return nil
}

// Search returns the names of the session files whose content matches text,
// sorted by name.
func (i *FileIndex) Search(ctx context.Context, sessionID session.ID, text string) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(sessionID)).SetField(sessionField)).
		AddMust(bluge.NewMatchQuery(text).SetField(contentField))
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(i.limit, query))
	if err != nil {
		return nil, err
	}

	var filenames []string
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == filenameField {
				filenames = append(filenames, string(value))
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(filenames)
	return filenames, nil
}

func documentID(sessionID session.ID, filename string) string {
	return url.QueryEscape(string(sessionID)) + ":" + url.QueryEscape(filename)
}
