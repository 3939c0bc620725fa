package incident

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/metrics"
	"github.com/nimbusops/opswatch/pkg/shared/logging"
)

// Intake accepts alarm payloads, derives their priority, and enqueues them
// for the Dispatcher. It is the orchestrator's only inbound surface; real
// wiring to an event bus is left to a pluggable EventSource, of which
// WebhookSource is the default implementation.
type Intake struct {
	queue *PriorityQueue
	log   *logrus.Logger
}

// NewIntake returns an Intake that enqueues onto queue.
func NewIntake(queue *PriorityQueue, log *logrus.Logger) *Intake {
	return &Intake{queue: queue, log: log}
}

// Submit derives payload's priority, builds an Event, and enqueues it.
// Submit never blocks on downstream processing; it only pushes onto the
// priority queue.
func (in *Intake) Submit(payload Payload) *Event {
	event := NewEvent(payload)
	in.queue.Push(event)

	metrics.RecordEventAccepted()
	in.log.WithFields(logging.NewFields().
		Component("intake").
		Operation("submit").
		Resource("event", event.ID).
		Custom("priority", event.Priority.String()).
		ToLogrus()).
		Info("accepted event")

	return event
}

// EventSource is a pluggable producer of inbound alarm payloads, letting the
// default HTTP submit endpoint be swapped for a real event-bus consumer
// (cloud event router, message queue) without touching the Intake or
// Dispatcher. A source is built around an Intake and submits to it for as
// long as it runs.
type EventSource interface {
	// Start begins producing events in the background.
	Start()
	// Stop shuts the source down, honoring ctx's deadline.
	Stop(ctx context.Context) error
}
