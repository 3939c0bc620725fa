package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/nimbusops/opswatch/pkg/metrics"
	"github.com/nimbusops/opswatch/pkg/shared/logging"
)

// popTimeout bounds how long Pop waits before yielding back to the
// dispatch loop to re-check ctx.
const popTimeout = time.Second

// IncidentRunner executes one incident end to end (workflow selection,
// step execution, diagnosis), returning the workflow it selected so the
// Dispatcher can label metrics correctly even on failure. The Dispatcher
// depends only on this interface so pkg/incident never imports
// pkg/incident/workflow or pkg/incident/reasoner, avoiding an import
// cycle back into pkg/incident's Context/Event types.
type IncidentRunner interface {
	Run(ctx context.Context, event *Event) (workflow string, err error)
}

// Dispatcher pulls events off a PriorityQueue and runs at most
// MaxConcurrentEvents of them at a time, gated by a weighted semaphore
// rather than a polling worker loop.
type Dispatcher struct {
	queue   *PriorityQueue
	runner  IncidentRunner
	sem     *semaphore.Weighted
	log     *logrus.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewDispatcher returns a Dispatcher bounding concurrent incident handlers
// to maxConcurrent (default 3 per internal/config).
func NewDispatcher(queue *PriorityQueue, runner IncidentRunner, maxConcurrent int64, log *logrus.Logger) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		queue:  queue,
		runner: runner,
		sem:    semaphore.NewWeighted(maxConcurrent),
		log:    log,
		done:   make(chan struct{}),
	}
}

// Start launches the dispatch loop in a background goroutine. Calling
// Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	go d.loop(runCtx)
}

// loop dequeues the next-highest-priority event, waits for a free
// concurrency slot, then dispatches it to its own goroutine. On ctx
// cancellation it stops dequeuing and returns once all dispatched
// handlers have finished.
func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	for {
		event, ok := d.queue.Pop(ctx, func() <-chan struct{} {
			t := time.NewTimer(popTimeout)
			ch := make(chan struct{})
			go func() {
				<-t.C
				close(ch)
			}()
			return ch
		})
		if !ok {
			if ctx.Err() != nil {
				d.wg.Wait()
				return
			}
			continue
		}

		if err := d.sem.Acquire(ctx, 1); err != nil {
			// ctx was cancelled while waiting for a slot; the event is
			// dropped, matching shutdown semantics (in-flight work
			// finishes, nothing new starts).
			d.wg.Wait()
			return
		}

		d.wg.Add(1)
		go d.handle(ctx, event)
	}
}

// handle runs one event through the IncidentRunner, recording metrics and
// recovering from panics so one bad handler never takes down the
// dispatcher.
func (d *Dispatcher) handle(ctx context.Context, event *Event) {
	defer d.wg.Done()
	defer d.sem.Release(1)

	incidentID := event.IncidentID()
	metrics.IncrementIncidentsInFlight()
	defer metrics.DecrementIncidentsInFlight()

	start := time.Now()
	fields := logging.NewFields().
		Component("dispatcher").
		Operation("handle").
		Resource("incident", incidentID).
		Custom("priority", event.Priority.String())

	workflow := "unknown"

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordIncidentError(workflow, "panic")
			d.log.WithFields(fields.Error(fmt.Errorf("panic: %v", r)).ToLogrus()).
				Error("incident handler panicked")
		}
	}()

	d.log.WithFields(fields.ToLogrus()).Info("dispatching incident")

	ran, err := d.runner.Run(ctx, event)
	if ran != "" {
		workflow = ran
	}
	if err != nil {
		metrics.RecordIncidentError(workflow, "handler")
		d.log.WithFields(fields.Custom("workflow", workflow).Error(err).ToLogrus()).
			Error("incident handling failed")
		return
	}

	metrics.RecordIncidentCompleted(workflow, time.Since(start))
	d.log.WithFields(fields.Custom("workflow", workflow).
		Custom("duration_seconds", time.Since(start).Seconds()).ToLogrus()).
		Info("incident handling completed")
}

// Stop cancels the dispatch loop and blocks until in-flight handlers have
// observed cancellation and returned.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-d.done
}
