package internal

import (
	"code-lab/infrastructure/storage"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const maxInspectRows = 500

type InspectRow struct {
	Key     string
	Kind    string
	Session string
	Name    string
	Detail  string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix    string
	Items     []InspectRow
	Truncated bool
	Stats     map[string]any
}

// DebugServer renders the raw store content as an HTML table.
// It is only started when the logger runs at debug level.
type DebugServer struct {
	log    *slog.Logger
	db     *badger.DB
	mapper RowMapper
	stats  StatsProvider
	tmpl   *template.Template
	server *http.Server
}

func NewDebugServer(log *slog.Logger, db *badger.DB, address, endpoint string,
	mapper RowMapper, stats StatsProvider) *DebugServer {
	if mapper == nil {
		mapper = DefaultMapper
	}
	d := &DebugServer{
		log:    log,
		db:     db,
		mapper: mapper,
		stats:  stats,
		tmpl:   template.Must(template.ParseFS(templatesFS, "inspect.html")),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(endpoint, d.inspect)
	d.server = &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return d
}

func (d *DebugServer) Handler() http.Handler {
	return d.server.Handler
}

func (d *DebugServer) inspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = storage.FilePrefix
	}
	data := PageData{Prefix: prefix, Stats: make(map[string]any)}
	if d.stats != nil {
		data.Stats = d.stats()
	}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if len(data.Items) == maxInspectRows {
				data.Truncated = true
				return nil
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				data.Items = append(data.Items, d.mapper(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.log.Warn("Inspection failed", "prefix", prefix, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.Execute(w, data); err != nil {
		d.log.Debug("Failed to render inspection page", "error", err)
	}
}

// ListenAndServe blocks until Shutdown is called.
func (d *DebugServer) ListenAndServe() error {
	if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (d *DebugServer) Shutdown(ctx context.Context) error {
	return d.server.Shutdown(ctx)
}

func DefaultMapper(key string, val []byte) InspectRow {
	return InspectRow{
		Key:    key,
		Kind:   "RAW",
		Detail: "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
}

// WorkspaceMapper decodes the "file:" and "presence:" entries of the workspace store.
func WorkspaceMapper(key string, val []byte) InspectRow {
	row := DefaultMapper(key, val)
	kind, rest, found := strings.Cut(key, ":")
	if !found {
		return row
	}
	escapedSession, escapedName, found := strings.Cut(rest, ":")
	if !found {
		return row
	}
	row.Kind = strings.ToUpper(kind)
	row.Session, _ = url.QueryUnescape(escapedSession)
	row.Name, _ = url.QueryUnescape(escapedName)
	row.Detail = storage.DecodeValue(val)
	return row
}
