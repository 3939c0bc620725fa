package workflow_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/incident"
	"github.com/nimbusops/opswatch/pkg/incident/reasoner"
	"github.com/nimbusops/opswatch/pkg/incident/workflow"
)

// End-to-end workflow scenarios: a real registry, the full handler table,
// and the real reasoner, with deterministic adapters underneath.

type scenarioCluster struct {
	podEvents []adapters.PodEvent
}

func (f *scenarioCluster) GetPodEvents(ctx context.Context, podName, namespace string) ([]adapters.PodEvent, error) {
	return f.podEvents, nil
}
func (f *scenarioCluster) GetPodLogs(ctx context.Context, podName, namespace string, lines int) ([]string, error) {
	return []string{"INFO ready"}, nil
}
func (f *scenarioCluster) GetRestartCount(ctx context.Context, podName, namespace string) (int, error) {
	return 0, nil
}
func (f *scenarioCluster) GetResourceLimits(ctx context.Context, podName, namespace string) (adapters.ResourceLimits, error) {
	return adapters.ResourceLimits{CPULimitMilli: 1000, MemLimitMiB: 256}, nil
}
func (f *scenarioCluster) GetRecentChanges(ctx context.Context, namespace string, lookback int) ([]adapters.DeploymentChange, error) {
	return nil, nil
}
func (f *scenarioCluster) GetNodeMetrics(ctx context.Context, nodeName string) (adapters.NodeMetrics, error) {
	return adapters.NodeMetrics{Name: nodeName, Status: "True"}, nil
}
func (f *scenarioCluster) GetPodsOnNode(ctx context.Context, nodeName string) ([]adapters.PodOnNode, error) {
	return nil, nil
}
func (f *scenarioCluster) GetEvictionEvents(ctx context.Context, nodeName string) ([]adapters.Eviction, error) {
	return nil, nil
}
func (f *scenarioCluster) RestartPod(ctx context.Context, podName, namespace string) error {
	return nil
}
func (f *scenarioCluster) ScaleDeployment(ctx context.Context, deploymentName, namespace string, replicas int32) error {
	return nil
}

type scenarioMetrics struct {
	result adapters.MetricsResult
}

func (f *scenarioMetrics) Query(ctx context.Context, nlQuery string) (adapters.MetricsResult, error) {
	return f.result, nil
}

type scenarioTraces struct {
	traces []adapters.Trace
}

func (f *scenarioTraces) GetSlowTraces(ctx context.Context, serviceName string, thresholdMS float64, limit int) ([]adapters.Trace, error) {
	return f.traces, nil
}
func (f *scenarioTraces) GetServiceMap(ctx context.Context, serviceName string) (map[string]interface{}, error) {
	return map[string]interface{}{"service": serviceName}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newScenarioExecutor(cluster adapters.ClusterAdapter, metrics adapters.MetricsAdapter, traces adapters.TraceAdapter) *workflow.Executor {
	handlers := &workflow.Handlers{Cluster: cluster, Metrics: metrics, Traces: traces}
	return workflow.NewExecutor(workflow.NewRegistry(), handlers.Table(), reasoner.New(), quietLogger())
}

func alarmEvent(id, alarmName string) *incident.Event {
	return incident.NewEvent(incident.Payload{
		ID: id,
		Detail: map[string]interface{}{
			"alarmName": alarmName,
			"state":     map[string]interface{}{"value": "ALARM"},
		},
	})
}

func TestScenarioOOMAlarmDiagnosesMemoryLeak(t *testing.T) {
	cluster := &scenarioCluster{podEvents: []adapters.PodEvent{
		{Type: "Warning", Reason: "OOMKilling", Message: "memory cgroup out of memory", Count: 2},
	}}
	metrics := &scenarioMetrics{result: adapters.MetricsResult{Current: 95, Average: 80, Trend: "increasing"}}
	ex := newScenarioExecutor(cluster, metrics, &scenarioTraces{})

	event := alarmEvent("e1", "pod-oom-critical")
	if event.Priority != incident.PriorityCritical {
		t.Fatalf("got priority %v, want CRITICAL", event.Priority)
	}

	workflowName, incidentCtx, err := ex.Run(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if workflowName != workflow.MemoryLeakInvestigation {
		t.Fatalf("got workflow %q, want memory_leak_investigation", workflowName)
	}
	if incidentCtx.RootCause != "Memory leak causing OOMKill events" {
		t.Errorf("got root cause %q, want the OOMKill diagnosis", incidentCtx.RootCause)
	}
	if len(incidentCtx.Recommendations) == 0 {
		t.Error("expected recommendations alongside a root cause")
	}
	if len(incidentCtx.Findings) > 6 {
		t.Errorf("got %d findings for a 6-step workflow", len(incidentCtx.Findings))
	}
}

func TestScenarioOOMAlarmWithoutEventsReportsMemoryPressure(t *testing.T) {
	metrics := &scenarioMetrics{result: adapters.MetricsResult{Current: 60, Average: 60, Trend: "stable"}}
	ex := newScenarioExecutor(&scenarioCluster{}, metrics, &scenarioTraces{})

	_, incidentCtx, err := ex.Run(context.Background(), alarmEvent("e2", "pod-oom-critical"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if incidentCtx.RootCause != "Memory pressure observed" {
		t.Errorf("got root cause %q, want the default memory-pressure diagnosis", incidentCtx.RootCause)
	}
}

func TestScenarioLatencyAlarmDiagnosesResourceConstraint(t *testing.T) {
	traces := &scenarioTraces{traces: []adapters.Trace{
		{ID: "t1", DurationMS: 1800, Bottleneck: "payments-db"},
	}}
	metrics := &scenarioMetrics{result: adapters.MetricsResult{Current: 1200, Average: 900, Trend: "increasing"}}
	ex := newScenarioExecutor(&scenarioCluster{}, metrics, traces)

	workflowName, incidentCtx, err := ex.Run(context.Background(), alarmEvent("e3", "svc-latency-high"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if workflowName != workflow.HighLatencyInvestigation {
		t.Fatalf("got workflow %q, want high_latency_investigation", workflowName)
	}
	if incidentCtx.RootCause != "Latency caused by resource constraints" {
		t.Errorf("got root cause %q, want the resource-constrained diagnosis", incidentCtx.RootCause)
	}
}
