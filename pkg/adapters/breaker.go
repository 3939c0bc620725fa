package adapters

import (
	"context"

	"github.com/sony/gobreaker"
)

// BreakerClusterAdapter wraps a ClusterAdapter with a shared circuit
// breaker so repeated API-server failures fail fast instead of piling
// blocked step handlers onto an unhealthy control plane. The remediation
// methods pass through unwrapped since nothing in the orchestrator invokes
// them.
type BreakerClusterAdapter struct {
	inner   ClusterAdapter
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClusterAdapter wraps inner with a breaker that opens after five
// consecutive failures, the same trip rule as the metrics executor's
// breaker. Its open interval is gobreaker's default, not the executor's 30s.
func NewBreakerClusterAdapter(inner ClusterAdapter) *BreakerClusterAdapter {
	return &BreakerClusterAdapter{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "cluster-adapter",
			MaxRequests: 1,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

var _ ClusterAdapter = (*BreakerClusterAdapter)(nil)

func execute[T any](b *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := b.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (a *BreakerClusterAdapter) GetPodEvents(ctx context.Context, podName, namespace string) ([]PodEvent, error) {
	return execute(a.breaker, func() ([]PodEvent, error) {
		return a.inner.GetPodEvents(ctx, podName, namespace)
	})
}

func (a *BreakerClusterAdapter) GetPodLogs(ctx context.Context, podName, namespace string, lines int) ([]string, error) {
	return execute(a.breaker, func() ([]string, error) {
		return a.inner.GetPodLogs(ctx, podName, namespace, lines)
	})
}

func (a *BreakerClusterAdapter) GetRestartCount(ctx context.Context, podName, namespace string) (int, error) {
	return execute(a.breaker, func() (int, error) {
		return a.inner.GetRestartCount(ctx, podName, namespace)
	})
}

func (a *BreakerClusterAdapter) GetResourceLimits(ctx context.Context, podName, namespace string) (ResourceLimits, error) {
	return execute(a.breaker, func() (ResourceLimits, error) {
		return a.inner.GetResourceLimits(ctx, podName, namespace)
	})
}

func (a *BreakerClusterAdapter) GetRecentChanges(ctx context.Context, namespace string, lookback int) ([]DeploymentChange, error) {
	return execute(a.breaker, func() ([]DeploymentChange, error) {
		return a.inner.GetRecentChanges(ctx, namespace, lookback)
	})
}

func (a *BreakerClusterAdapter) GetNodeMetrics(ctx context.Context, nodeName string) (NodeMetrics, error) {
	return execute(a.breaker, func() (NodeMetrics, error) {
		return a.inner.GetNodeMetrics(ctx, nodeName)
	})
}

func (a *BreakerClusterAdapter) GetPodsOnNode(ctx context.Context, nodeName string) ([]PodOnNode, error) {
	return execute(a.breaker, func() ([]PodOnNode, error) {
		return a.inner.GetPodsOnNode(ctx, nodeName)
	})
}

func (a *BreakerClusterAdapter) GetEvictionEvents(ctx context.Context, nodeName string) ([]Eviction, error) {
	return execute(a.breaker, func() ([]Eviction, error) {
		return a.inner.GetEvictionEvents(ctx, nodeName)
	})
}

func (a *BreakerClusterAdapter) RestartPod(ctx context.Context, podName, namespace string) error {
	return a.inner.RestartPod(ctx, podName, namespace)
}

func (a *BreakerClusterAdapter) ScaleDeployment(ctx context.Context, deploymentName, namespace string, replicas int32) error {
	return a.inner.ScaleDeployment(ctx, deploymentName, namespace, replicas)
}
