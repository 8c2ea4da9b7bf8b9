package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
)

// WorkspaceJanitor removes session workspace directories left idle for
// longer than ttl. A run always works in its own subdirectory, whose
// creation and release refresh the modification time of the session directory.
type WorkspaceJanitor struct {
	log      *slog.Logger
	root     string
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewWorkspaceJanitor(log *slog.Logger, root string, ttl, interval time.Duration) *WorkspaceJanitor {
	return &WorkspaceJanitor{log: log, root: root, ttl: ttl, interval: interval, now: time.Now}
}

func (j *WorkspaceJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.log.Debug("Context done, stopping janitor")
			return nil
		case <-ticker.C:
			removed, err := j.Sweep()
			if err != nil {
				j.log.Warn("Workspace sweep incomplete", "removed", removed, "error", err)
				continue
			}
			if removed > 0 {
				j.log.Info("Idle workspaces removed", "removed", removed)
			}
		}
	}
}

// Sweep removes every expired session directory directly under root and
// returns how many were removed. Inside an expired session only the expired
// scopes are deleted; the session directory itself goes with a plain
// remove, which fails while a run still holds a scope in it. A missing
// root is not an error.
func (j *WorkspaceJanitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var result error
	removed := 0
	deadline := j.now().Add(-j.ttl)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if info.ModTime().After(deadline) {
			continue
		}
		dir := filepath.Join(j.root, entry.Name())
		if err := j.removeExpiredScopes(dir, deadline); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := os.Remove(dir); err != nil {
			if !os.IsNotExist(err) && !isNotEmpty(err) {
				result = multierror.Append(result, err)
			}
			continue
		}
		removed++
	}
	return removed, result
}

func (j *WorkspaceJanitor) removeExpiredScopes(dir string, deadline time.Time) error {
	scopes, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var result error
	for _, scope := range scopes {
		info, err := scope.Info()
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if info.ModTime().After(deadline) {
			j.log.Debug("Scope still in use", "dir", dir, "scope", scope.Name())
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, scope.Name())); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func isNotEmpty(err error) bool {
	return stderrors.Is(err, syscall.ENOTEMPTY) || stderrors.Is(err, syscall.EEXIST)
}
