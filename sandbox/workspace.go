package sandbox

import (
	"code-lab/domain/session"
	"code-lab/errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Workspace owns the directory tree where programs are materialized:
// one directory per session, one uniquely named scope per request inside it,
// so that two runs of the same session never share artifacts.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

func (w *Workspace) Root() string { return w.root }

// SessionDir is the directory shared by every run of a session.
// It is always a direct child of the root, whatever the id holds.
func (w *Workspace) SessionDir(id session.ID) string {
	return filepath.Join(w.root, dirName(id))
}

// dirName escapes dots on top of path escaping so that "." and ".."
// never name a parent. Runs outside any session share one directory.
func dirName(id session.ID) string {
	if id == "" {
		return anonymousDir
	}
	return strings.ReplaceAll(url.PathEscape(string(id)), ".", "%2E")
}

const anonymousDir = "_"

// Scope is the private directory of a single request.
type Scope struct {
	Dir        string
	sessionDir string
}

// Acquire creates a fresh scope for one request of the session.
func (w *Workspace) Acquire(id session.ID) (*Scope, error) {
	sessionDir := w.SessionDir(id)
	dir := filepath.Join(sessionDir, uuid.NewString())
	err := os.MkdirAll(dir, 0o755)
	if os.IsNotExist(err) {
		// The janitor removed the idle session directory in between.
		err = os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: workspace unavailable: %v", errors.ErrInfrastructure, err)
	}
	return &Scope{Dir: dir, sessionDir: sessionDir}, nil
}

func (s *Scope) Write(name, content string) error {
	if err := os.WriteFile(filepath.Join(s.Dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: cannot materialize source: %v", errors.ErrInfrastructure, err)
	}
	return nil
}

// Release removes the scope and marks the session directory as used,
// which keeps it away from the janitor for another ttl.
func (s *Scope) Release() error {
	var result error
	if err := os.RemoveAll(s.Dir); err != nil {
		result = multierror.Append(result, err)
	}
	now := time.Now()
	if err := os.Chtimes(s.sessionDir, now, now); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	return result
}
