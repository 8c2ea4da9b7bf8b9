// Package runtime keeps sessions in sync and runs the background machinery.
// It moves events around without containing execution logic.
package runtime

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator wires the background workers: the fan-out feeding the
// permanent sinks and any housekeeping worker, all under one supervisor.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	sideEvents     chan event.DomainEvent
	permanentSinks []contract.EventSink
	extraWorkers   []contract.Worker
	sinkTimeout    time.Duration
	started        bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	bufferSize int, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		sideEvents:  make(chan event.DomainEvent, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

// SideEvents is the channel handed to the synchronizer.
func (o *Orchestrator) SideEvents() chan<- event.DomainEvent {
	return o.sideEvents
}

// Add registers permanent sinks. Sinks added after Start are ignored.
func (o *Orchestrator) Add(sinks ...contract.EventSink) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
	return o
}

func (o *Orchestrator) AddWorker(w ...contract.Worker) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraWorkers = append(o.extraWorkers, w...)
	return o
}

// Start registers every worker to the supervisor and blocks until the
// context is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	fanout := workers.NewEventFanout(o.log, o.sideEvents, o.sinkTimeout).Add(o.permanentSinks...)
	o.supervisor.Add(fanout).Add(o.extraWorkers...)
	sinks, extra := len(o.permanentSinks), len(o.extraWorkers)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator", "sinks", sinks, "workers", extra+1)
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised workers. Events still buffered are dropped:
// the permanent sinks are derived views, not the source of truth.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
