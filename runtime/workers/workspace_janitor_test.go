package workers

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWorkspaceJanitor_Sweep_Removes_Only_Expired(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	root := t.TempDir()
	old := filepath.Join(root, "old-session")
	fresh := filepath.Join(root, "fresh-session")
	req.NoError(os.MkdirAll(filepath.Join(old, "run"), 0o755))
	req.NoError(os.MkdirAll(fresh, 0o755))
	req.NoError(os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	// Given a session directory and its scope untouched for two hours
	past := time.Now().Add(-2 * time.Hour)
	req.NoError(os.Chtimes(filepath.Join(old, "run"), past, past))
	req.NoError(os.Chtimes(old, past, past))

	// When the janitor sweeps with a one hour ttl
	janitor := NewWorkspaceJanitor(log, root, time.Hour, time.Minute)
	removed, err := janitor.Sweep()

	// Then only the expired directory is gone
	req.NoError(err)
	req.Equal(1, removed)
	req.NoDirExists(old)
	req.DirExists(fresh)
	req.FileExists(filepath.Join(root, "stray.txt"))
}

func TestWorkspaceJanitor_Sweep_Keeps_Live_Scope(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	root := t.TempDir()
	session := filepath.Join(root, "busy-session")
	stale := filepath.Join(session, "stale-run")
	live := filepath.Join(session, "live-run")
	req.NoError(os.MkdirAll(stale, 0o755))
	req.NoError(os.MkdirAll(live, 0o755))
	req.NoError(os.WriteFile(filepath.Join(live, "main.sh"), []byte("sleep 1"), 0o644))

	// Given an idle session directory where a run just acquired a scope
	past := time.Now().Add(-2 * time.Hour)
	req.NoError(os.Chtimes(stale, past, past))
	req.NoError(os.Chtimes(session, past, past))

	// When the janitor sweeps
	janitor := NewWorkspaceJanitor(log, root, time.Hour, time.Minute)
	removed, err := janitor.Sweep()

	// Then the stale scope is gone but the live one and its session survive
	req.NoError(err)
	req.Zero(removed)
	req.NoDirExists(stale)
	req.FileExists(filepath.Join(live, "main.sh"))

	// When the run releases its scope and the session idles again
	req.NoError(os.RemoveAll(live))
	req.NoError(os.Chtimes(session, past, past))
	removed, err = janitor.Sweep()

	// Then the session directory is removed
	req.NoError(err)
	req.Equal(1, removed)
	req.NoDirExists(session)
}

func TestWorkspaceJanitor_Sweep_Missing_Root(t *testing.T) {
	req := require.New(t)
	janitor := NewWorkspaceJanitor(slog.Default(), filepath.Join(t.TempDir(), "nope"), time.Hour, time.Minute)

	removed, err := janitor.Sweep()

	req.NoError(err)
	req.Zero(removed)
}

func TestWorkspaceJanitor_Run_Stops_On_Cancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	root := t.TempDir()
	req.NoError(os.MkdirAll(filepath.Join(root, "idle"), 0o755))

	// Given a janitor with a zero ttl ticking fast
	janitor := NewWorkspaceJanitor(slog.Default(), root, 0, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- janitor.Run(ctx) }()

	// Then the idle directory is eventually removed
	req.Eventually(func() bool {
		_, err := os.Stat(filepath.Join(root, "idle"))
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)

	// When cancelled, Run returns without error
	cancel()
	req.NoError(<-done)
}
