package workflow

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/incident"
)

// Runner adapts Executor to incident.IncidentRunner, additionally sending
// a best-effort chat summary once a workflow finishes.
// It is the concrete type cmd/incident-orchestrator wires into the
// Dispatcher.
type Runner struct {
	executor *Executor
	chat     adapters.ChatNotifier
	channel  string
	log      *logrus.Logger
}

// NewRunner returns a Runner. chat and channel may be left zero-valued;
// notification failures are always logged, never propagated.
func NewRunner(executor *Executor, chat adapters.ChatNotifier, channel string, log *logrus.Logger) *Runner {
	return &Runner{executor: executor, chat: chat, channel: channel, log: log}
}

// Run executes the workflow for event and, regardless of outcome, attempts
// a best-effort chat summary; notification failures never affect the
// incident's recorded outcome.
func (r *Runner) Run(ctx context.Context, event *incident.Event) (string, error) {
	workflowName, incidentCtx, err := r.executor.Run(ctx, event)
	r.notify(ctx, incidentCtx)
	return workflowName, err
}

func (r *Runner) notify(ctx context.Context, incidentCtx *incident.Context) {
	if r.chat == nil || incidentCtx == nil {
		return
	}
	result := adapters.InvestigationResult{
		Workflow:        incidentCtx.WorkflowName,
		DurationSeconds: incidentCtx.Duration().Seconds(),
		RootCause:       incidentCtx.RootCause,
		Recommendations: incidentCtx.Recommendations,
	}
	if _, err := r.chat.SendInvestigationSummary(ctx, r.channel, incidentCtx.IncidentID, result); err != nil {
		r.log.WithError(err).Warn("failed to send investigation summary")
	}
}
