// Package reasoner implements the Diagnosis Reasoner: a fixed set of
// deterministic root-cause and recommendation rules evaluated against a
// finished incident.Context. Unlike the step handlers,
// the Reasoner never calls an external adapter; it only reads findings
// already recorded on the Context.
package reasoner

import (
	"github.com/nimbusops/opswatch/pkg/incident"
	"github.com/nimbusops/opswatch/pkg/incident/workflow"
)

// Reasoner evaluates a fixed rule table per workflow. The table is data
// the on-call rotation keys runbooks and chat searches on, so its text
// stays stable across releases.
type Reasoner struct{}

// New returns a Reasoner. It carries no state: every rule is a pure
// function of ctx's recorded findings.
func New() *Reasoner {
	return &Reasoner{}
}

// Diagnose sets ctx.RootCause and appends to ctx.Recommendations according
// to the fixed rule table for workflowName. It is a no-op if ctx already
// failed.
func (r *Reasoner) Diagnose(workflowName string, ctx *incident.Context) {
	if ctx.Failed {
		return
	}

	switch workflowName {
	case workflow.MemoryLeakInvestigation:
		diagnoseMemoryLeak(ctx)
	case workflow.HighCPUInvestigation:
		diagnoseHighCPU(ctx)
	case workflow.HighLatencyInvestigation:
		diagnoseHighLatency(ctx)
	case workflow.NodePressureInvestigation:
		diagnoseNodePressure(ctx)
	case workflow.PodCrashInvestigation:
		diagnosePodCrash(ctx)
	default:
		diagnoseGeneric(ctx)
	}
}

// The root-cause strings and recommendation lists below are load-bearing:
// chat notifications and runbook links match on this exact text.

func diagnoseMemoryLeak(ctx *incident.Context) {
	switch {
	case ctx.FindingHasKey("oom_kill_detected"):
		ctx.RootCause = "Memory leak causing OOMKill events"
	case ctx.FindingHasKey("memory_leak_likely"):
		ctx.RootCause = "Increasing memory usage pattern detected"
	default:
		ctx.RootCause = "Memory pressure observed"
	}
	ctx.Recommendations = append(ctx.Recommendations,
		"Restart pod to clear memory",
		"Increase memory limit to 512Mi",
		"Review application code for memory leaks",
		"Enable memory profiling",
	)
}

func diagnoseHighCPU(ctx *incident.Context) {
	if ctx.FindingHasKey("throttling_detected") {
		ctx.RootCause = "CPU throttling due to insufficient limits"
	} else {
		ctx.RootCause = "High CPU utilization"
	}
	ctx.Recommendations = append(ctx.Recommendations,
		"Increase CPU limit to 500m",
		"Enable HPA for automatic scaling",
		"Review code for CPU-intensive operations",
	)
}

func diagnoseHighLatency(ctx *incident.Context) {
	switch {
	case ctx.FindingHasKey("resource_constrained"):
		ctx.RootCause = "Latency caused by resource constraints"
	case ctx.FindingHasNonNilKey("bottleneck"):
		ctx.RootCause = "Bottleneck in downstream service"
	default:
		ctx.RootCause = "Elevated response times"
	}
	ctx.Recommendations = append(ctx.Recommendations,
		"Scale service horizontally",
		"Optimize slow queries",
		"Enable connection pooling",
		"Review timeout configurations",
	)
}

func diagnoseNodePressure(ctx *incident.Context) {
	ctx.RootCause = "Node under resource pressure"
	ctx.Recommendations = append(ctx.Recommendations,
		"Cordon node to prevent new scheduling",
		"Drain pods to other nodes",
		"Add new nodes to cluster",
	)
}

func diagnosePodCrash(ctx *incident.Context) {
	ctx.RootCause = "Pod experiencing frequent crashes"
	ctx.Recommendations = append(ctx.Recommendations,
		"Review application logs for errors",
		"Check resource limits",
		"Roll back to previous version if recent deployment",
	)
}

func diagnoseGeneric(ctx *incident.Context) {
	ctx.RootCause = "Investigation completed"
	ctx.Recommendations = append(ctx.Recommendations,
		"Review metrics and logs",
		"Consult runbook documentation",
	)
}
