// Package adapters defines the capability interfaces the orchestrator and
// gateway depend on for every external system (cluster API, metrics store,
// trace store, chat, request signing). Step handlers and the HTTP gateway
// depend only on these interfaces; concrete implementations live alongside
// them in this package, and tests inject deterministic fakes.
package adapters

import "context"

// PodEvent is one Kubernetes event scoped to a pod or node.
type PodEvent struct {
	Type           string
	Reason         string
	Message        string
	Count          int32
	FirstTimestamp string
	LastTimestamp  string
}

// ResourceLimits is the aggregated container requests/limits for a pod, in
// millicores and MiB.
type ResourceLimits struct {
	CPURequestMilli float64
	CPULimitMilli   float64
	MemRequestMiB   float64
	MemLimitMiB     float64
}

// DeploymentChange describes a deployment created within the lookback
// window.
type DeploymentChange struct {
	Name      string
	Type      string
	Timestamp string
	Replicas  int32
	Image     string
}

// NodeMetrics summarizes a node's status, capacity, and allocatable
// resources.
type NodeMetrics struct {
	Name        string
	Status      string
	Conditions  []string
	Capacity    map[string]string
	Allocatable map[string]string
}

// PodOnNode is one pod scheduled to a node, with its resource usage as
// known to the cluster adapter.
type PodOnNode struct {
	Name      string
	Namespace string
	Phase     string
	CPU       float64
	MemoryMiB float64
}

// Eviction is a node-scoped Evicted event.
type Eviction struct {
	Pod       string
	Namespace string
	Reason    string
	Message   string
	Timestamp string
}

// ClusterAdapter is the capability surface over the Kubernetes API the
// step handlers read through.
type ClusterAdapter interface {
	GetPodEvents(ctx context.Context, podName, namespace string) ([]PodEvent, error)
	GetPodLogs(ctx context.Context, podName, namespace string, lines int) ([]string, error)
	GetRestartCount(ctx context.Context, podName, namespace string) (int, error)
	GetResourceLimits(ctx context.Context, podName, namespace string) (ResourceLimits, error)
	GetRecentChanges(ctx context.Context, namespace string, lookback int) ([]DeploymentChange, error)
	GetNodeMetrics(ctx context.Context, nodeName string) (NodeMetrics, error)
	GetPodsOnNode(ctx context.Context, nodeName string) ([]PodOnNode, error)
	GetEvictionEvents(ctx context.Context, nodeName string) ([]Eviction, error)

	// RestartPod and ScaleDeployment complete the capability surface but
	// are never called by any step handler or the Reasoner: the
	// orchestrator recommends actions, it does not execute them.
	RestartPod(ctx context.Context, podName, namespace string) error
	ScaleDeployment(ctx context.Context, deploymentName, namespace string, replicas int32) error
}

// MetricsResult is the normalized shape every metrics-adapter query
// produces, regardless of instant-vector or range-matrix origin.
type MetricsResult struct {
	Current     float64
	Min         float64
	Max         float64
	Average     float64
	Trend       string
	SeriesCount int
}

// MetricsAdapter is the capability the Step Executor's collect_*_metrics
// handlers use to run a natural-language query against the metrics
// pipeline (translator + executor), decoupling the workflow engine from
// the query package.
type MetricsAdapter interface {
	Query(ctx context.Context, nlQuery string) (MetricsResult, error)
}

// Trace is one slow trace above a duration threshold, with its computed
// bottleneck segment.
type Trace struct {
	ID          string
	DurationMS  float64
	Bottleneck  string
	SegmentName string
}

// TraceAdapter is the capability surface for a distributed-tracing backend.
type TraceAdapter interface {
	GetSlowTraces(ctx context.Context, serviceName string, thresholdMS float64, limit int) ([]Trace, error)
	GetServiceMap(ctx context.Context, serviceName string) (map[string]interface{}, error)
}

// ChatNotifier is the capability surface for the outbound chat transport.
// Every method is best-effort: callers log failures and never let a
// notification error propagate.
type ChatNotifier interface {
	SendNotification(ctx context.Context, channel, message, severity, incidentID string) (string, error)
	SendInvestigationSummary(ctx context.Context, channel, incidentID string, result InvestigationResult) (string, error)
	SendRemediationApproval(ctx context.Context, channel, incidentID, action, description string) (string, error)
}

// InvestigationResult is the payload rendered by SendInvestigationSummary:
// workflow name, duration, root cause, recommendations.
type InvestigationResult struct {
	Workflow        string
	DurationSeconds float64
	RootCause       string
	Recommendations []string
}

// RequestSigner attaches transport-level authentication to an outbound
// request. The Metrics Executor depends on this capability rather than a
// concrete signing scheme so non-AWS backends can be substituted.
type RequestSigner interface {
	// Sign mutates req's headers in place to carry valid authentication for
	// service, then returns any error encountered deriving credentials.
	Sign(ctx context.Context, req SignableRequest, service, region string) error
}

// SignableRequest is the minimal shape RequestSigner needs: method, URL,
// body, and a mutable header map, decoupling the signer from any concrete
// HTTP client type.
type SignableRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string][]string
}
