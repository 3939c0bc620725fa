package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/incident"
	"github.com/nimbusops/opswatch/pkg/metrics"
	"github.com/nimbusops/opswatch/pkg/shared/logging"
)

// StepHandler runs one workflow step against ctx, mutating it in place and
// returning a result map to be recorded as a Finding. A false continue
// return stops the remaining steps early without failing the incident;
// the Reasoner still runs against whatever findings were recorded.
type StepHandler func(ctx context.Context, incidentCtx *incident.Context) (result map[string]interface{}, cont bool, err error)

// Reasoner produces a root cause and recommendations from a finished
// incident.Context. The Step Executor depends on this interface rather
// than importing pkg/incident/reasoner directly, keeping the two packages
// decoupled (reasoner.Reasoner satisfies it).
type Reasoner interface {
	Diagnose(workflowName string, ctx *incident.Context)
}

// Executor runs a Workflow's steps in sequence against an incident.Context,
// then hands the finished context to a Reasoner.
type Executor struct {
	registry *Registry
	handlers map[string]StepHandler
	reasoner Reasoner
	log      *logrus.Logger
}

// NewExecutor returns an Executor wired to registry, handlers, and
// reasoner.
func NewExecutor(registry *Registry, handlers map[string]StepHandler, reasoner Reasoner, log *logrus.Logger) *Executor {
	return &Executor{registry: registry, handlers: handlers, reasoner: reasoner, log: log}
}

// Run selects a workflow for event, executes its steps against a fresh
// Context, runs the Reasoner, and returns the selected workflow name and
// the finished context. Runner wraps it to satisfy incident.IncidentRunner.
func (ex *Executor) Run(ctx context.Context, event *incident.Event) (string, *incident.Context, error) {
	wf := ex.registry.Select(event.AlarmName())
	incidentCtx := incident.NewContext(event.IncidentID(), wf.Name, event)
	defer incidentCtx.Finish()

	fields := logging.NewFields().
		Component("step-executor").
		Resource("incident", incidentCtx.IncidentID).
		Custom("workflow", wf.Name)
	ex.log.WithFields(fields.ToLogrus()).Info("starting workflow")

	panicked := ex.runSteps(ctx, wf, incidentCtx, fields)

	if panicked {
		incidentCtx.Failed = true
		return wf.Name, incidentCtx, fmt.Errorf("workflow %s: step handler panicked", wf.Name)
	}

	if ex.reasoner != nil {
		ex.reasoner.Diagnose(wf.Name, incidentCtx)
	}

	if incidentCtx.Failed {
		return wf.Name, incidentCtx, fmt.Errorf("workflow %s: %s", wf.Name, incidentCtx.Error)
	}
	return wf.Name, incidentCtx, nil
}

// runSteps executes wf's steps in order, stopping early on a handler's
// cont=false, a handler error (marks the incident failed and stops), or an
// unknown step id (records a warning finding and continues). It recovers
// from a step handler panic, marks the incident failed, and skips the
// Reasoner, returning true when that happened.
func (ex *Executor) runSteps(ctx context.Context, wf Workflow, incidentCtx *incident.Context, fields logging.Fields) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			incidentCtx.Error = fmt.Sprintf("panic: %v", r)
			ex.log.WithFields(fields.Custom("step_panic", r).ToLogrus()).Error("step handler panicked")
		}
	}()

	for _, step := range wf.Steps {
		handler, ok := ex.handlers[step]
		if !ok {
			incidentCtx.RecordFinding(step, map[string]interface{}{
				"warning": fmt.Sprintf("no handler registered for step %q", step),
			})
			ex.log.WithFields(fields.Custom("step", step).ToLogrus()).Warn("unknown step, skipping")
			continue
		}

		timer := time.Now()
		result, cont, err := handler(ctx, incidentCtx)
		metrics.RecordStepDuration(time.Since(timer))

		if result != nil {
			incidentCtx.RecordFinding(step, result)
		}
		if err != nil {
			incidentCtx.Failed = true
			incidentCtx.Error = err.Error()
			ex.log.WithFields(fields.Custom("step", step).Error(err).ToLogrus()).Error("step handler failed")
			return false
		}
		if !cont {
			ex.log.WithFields(fields.Custom("step", step).ToLogrus()).Info("step requested early stop")
			break
		}
	}
	return false
}
