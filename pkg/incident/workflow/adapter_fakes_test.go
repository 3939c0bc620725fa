package workflow

import (
	"context"

	"github.com/nimbusops/opswatch/pkg/adapters"
)

// fakeCluster is a deterministic adapters.ClusterAdapter for handler tests.
type fakeCluster struct {
	podEvents      []adapters.PodEvent
	podLogs        []string
	restartCount   int
	resourceLimits adapters.ResourceLimits
	recentChanges  []adapters.DeploymentChange
	nodeMetrics    adapters.NodeMetrics
	podsOnNode     []adapters.PodOnNode
	evictions      []adapters.Eviction
	err            error
}

func (f *fakeCluster) GetPodEvents(ctx context.Context, podName, namespace string) ([]adapters.PodEvent, error) {
	return f.podEvents, f.err
}
func (f *fakeCluster) GetPodLogs(ctx context.Context, podName, namespace string, lines int) ([]string, error) {
	return f.podLogs, f.err
}
func (f *fakeCluster) GetRestartCount(ctx context.Context, podName, namespace string) (int, error) {
	return f.restartCount, f.err
}
func (f *fakeCluster) GetResourceLimits(ctx context.Context, podName, namespace string) (adapters.ResourceLimits, error) {
	return f.resourceLimits, f.err
}
func (f *fakeCluster) GetRecentChanges(ctx context.Context, namespace string, lookback int) ([]adapters.DeploymentChange, error) {
	return f.recentChanges, f.err
}
func (f *fakeCluster) GetNodeMetrics(ctx context.Context, nodeName string) (adapters.NodeMetrics, error) {
	return f.nodeMetrics, f.err
}
func (f *fakeCluster) GetPodsOnNode(ctx context.Context, nodeName string) ([]adapters.PodOnNode, error) {
	return f.podsOnNode, f.err
}
func (f *fakeCluster) GetEvictionEvents(ctx context.Context, nodeName string) ([]adapters.Eviction, error) {
	return f.evictions, f.err
}
func (f *fakeCluster) RestartPod(ctx context.Context, podName, namespace string) error { return nil }
func (f *fakeCluster) ScaleDeployment(ctx context.Context, deploymentName, namespace string, replicas int32) error {
	return nil
}

var _ adapters.ClusterAdapter = (*fakeCluster)(nil)

// fakeMetrics is a deterministic adapters.MetricsAdapter for handler tests.
type fakeMetrics struct {
	result adapters.MetricsResult
	err    error
}

func (f *fakeMetrics) Query(ctx context.Context, nlQuery string) (adapters.MetricsResult, error) {
	return f.result, f.err
}

var _ adapters.MetricsAdapter = (*fakeMetrics)(nil)

// fakeTraces is a deterministic adapters.TraceAdapter for handler tests.
type fakeTraces struct {
	traces []adapters.Trace
	err    error
}

func (f *fakeTraces) GetSlowTraces(ctx context.Context, serviceName string, thresholdMS float64, limit int) ([]adapters.Trace, error) {
	return f.traces, f.err
}
func (f *fakeTraces) GetServiceMap(ctx context.Context, serviceName string) (map[string]interface{}, error) {
	return nil, f.err
}

var _ adapters.TraceAdapter = (*fakeTraces)(nil)

// fakeChat is a deterministic adapters.ChatNotifier for runner tests.
type fakeChat struct {
	notifications []string
	summaries     []adapters.InvestigationResult
	err           error
}

func (f *fakeChat) SendNotification(ctx context.Context, channel, message, severity, incidentID string) (string, error) {
	f.notifications = append(f.notifications, message)
	return "ts", f.err
}
func (f *fakeChat) SendInvestigationSummary(ctx context.Context, channel, incidentID string, result adapters.InvestigationResult) (string, error) {
	f.summaries = append(f.summaries, result)
	return "ts", f.err
}
func (f *fakeChat) SendRemediationApproval(ctx context.Context, channel, incidentID, action, description string) (string, error) {
	return "ts", f.err
}

var _ adapters.ChatNotifier = (*fakeChat)(nil)
