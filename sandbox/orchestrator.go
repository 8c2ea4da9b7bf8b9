package sandbox

import (
	"code-lab/contract"
	"code-lab/domain/execution"
	"code-lab/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

var _ contract.Executor = (*Orchestrator)(nil)

const defaultWaitDelay = time.Second

type Config struct {
	CompileTimeout    time.Duration
	RunTimeout        time.Duration
	MaxConcurrentRuns int64
	MaxOutputBytes    int
}

// Orchestrator turns a run request into a structured result.
// It runs on the caller's goroutine and never touches session state,
// so a hung program only holds its own request and one concurrency slot.
type Orchestrator struct {
	log       *slog.Logger
	languages *Languages
	workspace *Workspace
	slots     *semaphore.Weighted
	config    Config
	observer  contract.RunObserver
}

type OrchestratorOption func(*Orchestrator)

func WithRunObserver(observer contract.RunObserver) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = observer }
}

func NewOrchestrator(log *slog.Logger, languages *Languages, workspace *Workspace,
	config Config, opts ...OrchestratorOption) *Orchestrator {
	if config.MaxConcurrentRuns <= 0 {
		config.MaxConcurrentRuns = 1
	}
	o := &Orchestrator{
		log:       log,
		languages: languages,
		workspace: workspace,
		slots:     semaphore.NewWeighted(config.MaxConcurrentRuns),
		config:    config,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one request. A program that fails to compile, fails or
// times out is a Result with Success false. An error is returned only for
// a malformed request, an infrastructure failure or a cancelled caller.
func (o *Orchestrator) Run(ctx context.Context, req execution.Request) (execution.Result, error) {
	if strings.TrimSpace(string(req.Language)) == "" || req.Source == "" {
		return execution.Result{}, fmt.Errorf("%w: language and code are required", errors.ErrBadRequest)
	}
	start := time.Now()
	output, err := o.execute(ctx, req)
	outcome := classify(err)
	if outcome != "" && o.observer != nil {
		o.observer.ObserveRun(req.Language, outcome, time.Since(start))
	}

	switch outcome {
	case execution.OutcomeSuccess:
		return execution.Result{Success: true, Output: output}, nil
	case "":
		o.log.Error("Run aborted", "session", req.Session, "language", req.Language, "error", err)
		return execution.Result{}, err
	default:
		o.log.Debug("Run failed", "session", req.Session, "language", req.Language, "outcome", outcome)
		return execution.Result{Success: false, Output: output}, nil
	}
}

func classify(err error) execution.Outcome {
	switch {
	case err == nil:
		return execution.OutcomeSuccess
	case stderrors.Is(err, errors.ErrUnsupportedLanguage):
		return execution.OutcomeUnsupported
	case stderrors.Is(err, errors.ErrTimeout):
		return execution.OutcomeTimeout
	case stderrors.Is(err, errors.ErrCompileFailed):
		return execution.OutcomeCompileFailed
	case stderrors.Is(err, errors.ErrRunFailed):
		return execution.OutcomeRunFailed
	default:
		return ""
	}
}

// execute returns the output to show and, for a user-program failure,
// the sentinel naming its kind.
func (o *Orchestrator) execute(ctx context.Context, req execution.Request) (string, error) {
	adapter, ok := o.languages.Resolve(req.Language)
	if !ok {
		return execution.UnsupportedMessage, errors.ErrUnsupportedLanguage
	}
	if adapter.Kind == Passthrough {
		return req.Source, nil
	}

	if err := o.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer o.slots.Release(1)

	scope, err := o.workspace.Acquire(req.Session)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := scope.Release(); err != nil {
			o.log.Warn("Workspace scope not fully reclaimed", "dir", scope.Dir, "error", err)
		}
	}()

	plan := adapter.Plan(req.Filename, req.Source, scope.Dir)
	if err := scope.Write(plan.Source, req.Source); err != nil {
		return "", err
	}

	if len(plan.Compile) > 0 {
		result, err := o.step(scope.Dir, plan.Compile, o.config.CompileTimeout).run(ctx)
		if err != nil {
			return "", err
		}
		if result.TimedOut {
			return timedOut("Compilation", o.config.CompileTimeout, result), errors.ErrTimeout
		}
		if result.Failed {
			return result.diagnostics("Compilation"), errors.ErrCompileFailed
		}
	}

	result, err := o.step(scope.Dir, plan.Run, o.config.RunTimeout).run(ctx)
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return timedOut("Execution", o.config.RunTimeout, result), errors.ErrTimeout
	}
	if result.Failed {
		return result.diagnostics("Process"), errors.ErrRunFailed
	}
	return result.Stdout, nil
}

func (o *Orchestrator) step(dir string, argv []string, timeout time.Duration) step {
	return step{
		dir:       dir,
		argv:      argv,
		timeout:   timeout,
		waitDelay: defaultWaitDelay,
		maxOutput: o.config.MaxOutputBytes,
	}
}

// timedOut keeps whatever the program printed before it was killed.
func timedOut(what string, timeout time.Duration, result stepResult) string {
	message := fmt.Sprintf("%s timed out after %s", what, timeout)
	if partial := result.Stderr + result.Stdout; partial != "" {
		return message + "\n" + partial
	}
	return message
}
