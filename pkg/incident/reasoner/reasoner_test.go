package reasoner

import (
	"testing"

	"github.com/nimbusops/opswatch/pkg/incident"
	"github.com/nimbusops/opswatch/pkg/incident/workflow"
)

func newCtx(workflowName string) *incident.Context {
	event := &incident.Event{ID: "evt-1"}
	return incident.NewContext(event.IncidentID(), workflowName, event)
}

func TestDiagnoseMemoryLeakOOMDetected(t *testing.T) {
	ctx := newCtx(workflow.MemoryLeakInvestigation)
	ctx.RecordFinding("check_oom_events", map[string]interface{}{"oom_kill_detected": true, "oom_count": 2})

	New().Diagnose(workflow.MemoryLeakInvestigation, ctx)

	if ctx.RootCause != "Memory leak causing OOMKill events" {
		t.Errorf("got root cause %q, want the OOMKill diagnosis", ctx.RootCause)
	}
	want := []string{
		"Restart pod to clear memory",
		"Increase memory limit to 512Mi",
		"Review application code for memory leaks",
		"Enable memory profiling",
	}
	assertRecommendations(t, ctx.Recommendations, want)
}

func TestDiagnoseMemoryLeakTrendIncreasingWithoutOOM(t *testing.T) {
	ctx := newCtx(workflow.MemoryLeakInvestigation)
	ctx.RecordFinding("check_oom_events", map[string]interface{}{"oom_kill_detected": false, "oom_count": 0})
	ctx.RecordFinding("analyze_memory_trend", map[string]interface{}{"memory_leak_likely": true})

	New().Diagnose(workflow.MemoryLeakInvestigation, ctx)

	if ctx.RootCause != "Increasing memory usage pattern detected" {
		t.Errorf("got root cause %q, want the increasing-trend diagnosis", ctx.RootCause)
	}
}

func TestDiagnoseMemoryLeakStable(t *testing.T) {
	ctx := newCtx(workflow.MemoryLeakInvestigation)
	ctx.RecordFinding("check_oom_events", map[string]interface{}{"oom_kill_detected": false, "oom_count": 0})
	ctx.RecordFinding("analyze_memory_trend", map[string]interface{}{"memory_leak_likely": false})

	New().Diagnose(workflow.MemoryLeakInvestigation, ctx)

	if ctx.RootCause != "Memory pressure observed" {
		t.Errorf("got root cause %q, want the default memory-pressure diagnosis", ctx.RootCause)
	}
}

func TestDiagnoseHighCPUThrottled(t *testing.T) {
	ctx := newCtx(workflow.HighCPUInvestigation)
	ctx.RecordFinding("check_cpu_throttling", map[string]interface{}{"throttling_detected": true})

	New().Diagnose(workflow.HighCPUInvestigation, ctx)

	if ctx.RootCause != "CPU throttling due to insufficient limits" {
		t.Errorf("got root cause %q, want the throttling diagnosis", ctx.RootCause)
	}
	assertRecommendations(t, ctx.Recommendations, []string{
		"Increase CPU limit to 500m",
		"Enable HPA for automatic scaling",
		"Review code for CPU-intensive operations",
	})
}

func TestDiagnoseHighCPUNotThrottled(t *testing.T) {
	ctx := newCtx(workflow.HighCPUInvestigation)
	ctx.RecordFinding("check_cpu_throttling", map[string]interface{}{"throttling_detected": false})

	New().Diagnose(workflow.HighCPUInvestigation, ctx)

	if ctx.RootCause != "High CPU utilization" {
		t.Errorf("got root cause %q, want the default high-CPU diagnosis", ctx.RootCause)
	}
}

func TestDiagnoseHighLatencyResourceConstrained(t *testing.T) {
	ctx := newCtx(workflow.HighLatencyInvestigation)
	ctx.RecordFinding("analyze_traces", map[string]interface{}{"bottleneck": "checkout-service"})
	ctx.RecordFinding("correlate_with_resources", map[string]interface{}{"resource_constrained": true})

	New().Diagnose(workflow.HighLatencyInvestigation, ctx)

	if ctx.RootCause != "Latency caused by resource constraints" {
		t.Errorf("got root cause %q, want the resource-constrained diagnosis", ctx.RootCause)
	}
}

func TestDiagnoseHighLatencyBottleneck(t *testing.T) {
	ctx := newCtx(workflow.HighLatencyInvestigation)
	ctx.RecordFinding("analyze_traces", map[string]interface{}{"bottleneck": "checkout-service"})
	ctx.RecordFinding("correlate_with_resources", map[string]interface{}{"resource_constrained": false})

	New().Diagnose(workflow.HighLatencyInvestigation, ctx)

	if ctx.RootCause != "Bottleneck in downstream service" {
		t.Errorf("got root cause %q, want the bottleneck diagnosis", ctx.RootCause)
	}
}

func TestDiagnoseHighLatencyElevatedOnly(t *testing.T) {
	ctx := newCtx(workflow.HighLatencyInvestigation)
	ctx.RecordFinding("analyze_traces", map[string]interface{}{"bottleneck": nil})
	ctx.RecordFinding("correlate_with_resources", map[string]interface{}{"resource_constrained": false})

	New().Diagnose(workflow.HighLatencyInvestigation, ctx)

	if ctx.RootCause != "Elevated response times" {
		t.Errorf("got root cause %q, want the default latency diagnosis", ctx.RootCause)
	}
}

func TestDiagnoseNodePressure(t *testing.T) {
	ctx := newCtx(workflow.NodePressureInvestigation)
	ctx.RecordFinding("analyze_evictions", map[string]interface{}{"evictions_detected": true})

	New().Diagnose(workflow.NodePressureInvestigation, ctx)

	if ctx.RootCause != "Node under resource pressure" {
		t.Errorf("got root cause %q, want the fixed node-pressure diagnosis", ctx.RootCause)
	}
	assertRecommendations(t, ctx.Recommendations, []string{
		"Cordon node to prevent new scheduling",
		"Drain pods to other nodes",
		"Add new nodes to cluster",
	})
}

func TestDiagnosePodCrash(t *testing.T) {
	ctx := newCtx(workflow.PodCrashInvestigation)
	ctx.RecordFinding("check_restart_count", map[string]interface{}{"frequent_restarts": true})

	New().Diagnose(workflow.PodCrashInvestigation, ctx)

	if ctx.RootCause != "Pod experiencing frequent crashes" {
		t.Errorf("got root cause %q, want the fixed pod-crash diagnosis", ctx.RootCause)
	}
	assertRecommendations(t, ctx.Recommendations, []string{
		"Review application logs for errors",
		"Check resource limits",
		"Roll back to previous version if recent deployment",
	})
}

func TestDiagnoseGenericFallback(t *testing.T) {
	ctx := newCtx(workflow.GenericInvestigation)

	New().Diagnose(workflow.GenericInvestigation, ctx)

	if ctx.RootCause != "Investigation completed" {
		t.Errorf("got root cause %q, want the generic fallback", ctx.RootCause)
	}
	assertRecommendations(t, ctx.Recommendations, []string{
		"Review metrics and logs",
		"Consult runbook documentation",
	})
}

func TestDiagnoseSkipsFailedIncident(t *testing.T) {
	ctx := newCtx(workflow.MemoryLeakInvestigation)
	ctx.Failed = true
	ctx.Error = "step handler panicked"

	New().Diagnose(workflow.MemoryLeakInvestigation, ctx)

	if ctx.RootCause != "" {
		t.Errorf("expected no root cause on a failed incident, got %q", ctx.RootCause)
	}
	if len(ctx.Recommendations) != 0 {
		t.Errorf("expected no recommendations on a failed incident, got %v", ctx.Recommendations)
	}
}

func assertRecommendations(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d recommendations %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recommendation[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
