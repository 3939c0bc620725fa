package adapters

import (
	"context"
	"errors"
	"testing"
)

// failingCluster always errors, to drive the breaker open.
type failingCluster struct{ calls int }

var errAPIServer = errors.New("api server unavailable")

func (f *failingCluster) GetPodEvents(ctx context.Context, podName, namespace string) ([]PodEvent, error) {
	f.calls++
	return nil, errAPIServer
}
func (f *failingCluster) GetPodLogs(ctx context.Context, podName, namespace string, lines int) ([]string, error) {
	f.calls++
	return nil, errAPIServer
}
func (f *failingCluster) GetRestartCount(ctx context.Context, podName, namespace string) (int, error) {
	f.calls++
	return 0, errAPIServer
}
func (f *failingCluster) GetResourceLimits(ctx context.Context, podName, namespace string) (ResourceLimits, error) {
	f.calls++
	return ResourceLimits{}, errAPIServer
}
func (f *failingCluster) GetRecentChanges(ctx context.Context, namespace string, lookback int) ([]DeploymentChange, error) {
	f.calls++
	return nil, errAPIServer
}
func (f *failingCluster) GetNodeMetrics(ctx context.Context, nodeName string) (NodeMetrics, error) {
	f.calls++
	return NodeMetrics{}, errAPIServer
}
func (f *failingCluster) GetPodsOnNode(ctx context.Context, nodeName string) ([]PodOnNode, error) {
	f.calls++
	return nil, errAPIServer
}
func (f *failingCluster) GetEvictionEvents(ctx context.Context, nodeName string) ([]Eviction, error) {
	f.calls++
	return nil, errAPIServer
}
func (f *failingCluster) RestartPod(ctx context.Context, podName, namespace string) error {
	return nil
}
func (f *failingCluster) ScaleDeployment(ctx context.Context, deploymentName, namespace string, replicas int32) error {
	return nil
}

func TestBreakerClusterAdapterOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingCluster{}
	b := NewBreakerClusterAdapter(inner)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = b.GetPodEvents(ctx, "pod", "default")
	}
	if lastErr == nil {
		t.Fatal("expected an error once the breaker opens")
	}
	if inner.calls >= 10 {
		t.Errorf("expected the open breaker to stop reaching the inner adapter, got %d calls", inner.calls)
	}
}

func TestBreakerClusterAdapterSharesStateAcrossMethods(t *testing.T) {
	inner := &failingCluster{}
	b := NewBreakerClusterAdapter(inner)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = b.GetRestartCount(ctx, "pod", "default")
	}
	before := inner.calls
	_, err := b.GetNodeMetrics(ctx, "node-1")
	if err == nil {
		t.Fatal("expected an error from the opened breaker")
	}
	if inner.calls != before {
		t.Error("expected the opened breaker to short-circuit other methods too")
	}
}
