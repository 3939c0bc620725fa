package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/incident"
)

// Thresholds carries the configurable floors the check_*/review_* handlers
// compare against, so they are configuration rather than hard-coded
// literals.
type Thresholds struct {
	MemoryLimitFloorMiB     float64
	RestartCountFloor       int
	CPUThrottlingRatioFloor float64
}

// Handlers builds the step-id -> StepHandler table the Executor dispatches
// against, closing over the adapters each handler needs.
type Handlers struct {
	Cluster    adapters.ClusterAdapter
	Metrics    adapters.MetricsAdapter
	Traces     adapters.TraceAdapter
	Thresholds Thresholds
}

// Table returns the full step-id -> StepHandler map for use by NewExecutor.
func (h *Handlers) Table() map[string]StepHandler {
	return map[string]StepHandler{
		"identify_pod":             h.identifyPod,
		"identify_service":         h.identifyService,
		"identify_node":            h.identifyNode,
		"identify_resource":        h.identifyResource,
		"collect_memory_metrics":   h.collectMemoryMetrics,
		"collect_cpu_metrics":      h.collectCPUMetrics,
		"collect_latency_metrics":  h.collectLatencyMetrics,
		"collect_node_metrics":     h.collectNodeMetrics,
		"collect_pod_events":       h.collectPodEvents,
		"collect_metrics":          h.collectGenericMetrics,
		"check_oom_events":         h.checkOOMEvents,
		"check_cpu_throttling":     h.checkCPUThrottling,
		"check_restart_count":      h.checkRestartCount,
		"check_dependencies":       h.checkDependencies,
		"check_resource_usage":     h.checkResourceUsage,
		"analyze_traces":           h.analyzeTraces,
		"analyze_memory_trend":     h.analyzeMemoryTrend,
		"analyze_request_patterns": h.analyzeRequestPatterns,
		"analyze_evictions":        h.analyzeEvictions,
		"analyze_logs":             h.analyzeLogs,
		"analyze_patterns":         h.analyzePatterns,
		"review_recent_changes":    h.reviewRecentChanges,
		"review_resource_limits":   h.reviewResourceLimits,
		"correlate_with_resources": h.correlateWithResources,
		"list_pods_on_node":        h.listPodsOnNode,
		"recommend_remediation":    h.recommendRemediation,
		"recommend_actions":        h.recommendActions,
	}
}

// resourceName extracts the identifier a step needs from the event detail,
// falling back to the alarm name itself when no structured dimension is
// present: an alarm name is always available, so identification never
// fails outright.
func resourceName(incidentCtx *incident.Context, keys ...string) string {
	for _, key := range keys {
		if v, ok := incidentCtx.Event.Detail[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return incidentCtx.Event.AlarmName()
}

func (h *Handlers) identifyPod(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	incidentCtx.PodName = resourceName(incidentCtx, "podName", "pod_name")
	incidentCtx.Namespace = resourceName(incidentCtx, "namespace")
	if incidentCtx.Namespace == incidentCtx.PodName {
		incidentCtx.Namespace = "default"
	}
	return map[string]interface{}{"pod_name": incidentCtx.PodName, "namespace": incidentCtx.Namespace}, true, nil
}

func (h *Handlers) identifyService(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	incidentCtx.ServiceName = resourceName(incidentCtx, "serviceName", "service_name")
	return map[string]interface{}{"service_name": incidentCtx.ServiceName}, true, nil
}

func (h *Handlers) identifyNode(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	incidentCtx.NodeName = resourceName(incidentCtx, "nodeName", "node_name")
	return map[string]interface{}{"node_name": incidentCtx.NodeName}, true, nil
}

func (h *Handlers) identifyResource(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	name := resourceName(incidentCtx, "podName", "serviceName", "nodeName")
	return map[string]interface{}{"resource_name": name}, true, nil
}

func (h *Handlers) collectMemoryMetrics(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return h.collectMetrics(ctx, incidentCtx, "memory", fmt.Sprintf("memory usage for pod %s", incidentCtx.PodName))
}

func (h *Handlers) collectCPUMetrics(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return h.collectMetrics(ctx, incidentCtx, "cpu", fmt.Sprintf("cpu usage for pod %s", incidentCtx.PodName))
}

func (h *Handlers) collectLatencyMetrics(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return h.collectMetrics(ctx, incidentCtx, "latency", fmt.Sprintf("p99 latency for service %s", incidentCtx.ServiceName))
}

// collectGenericMetrics backs the generic_investigation workflow's
// collect_metrics step, querying a broad resource-usage metric for
// whatever identifier identify_resource found.
func (h *Handlers) collectGenericMetrics(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	resourceName := resourceName(incidentCtx, "podName", "serviceName", "nodeName")
	return h.collectMetrics(ctx, incidentCtx, "generic", fmt.Sprintf("resource usage for %s", resourceName))
}

func (h *Handlers) collectMetrics(ctx context.Context, incidentCtx *incident.Context, category, nlQuery string) (map[string]interface{}, bool, error) {
	if h.Metrics == nil {
		return map[string]interface{}{"warning": "no metrics adapter configured"}, true, nil
	}
	result, err := h.Metrics.Query(ctx, nlQuery)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	block := map[string]interface{}{
		"current": result.Current,
		"min":     result.Min,
		"max":     result.Max,
		"average": result.Average,
		"trend":   result.Trend,
	}
	incidentCtx.SetMetrics(category, block)
	return block, true, nil
}

func (h *Handlers) collectNodeMetrics(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	node, err := h.Cluster.GetNodeMetrics(ctx, incidentCtx.NodeName)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	return map[string]interface{}{"status": node.Status, "conditions": node.Conditions}, true, nil
}

func (h *Handlers) collectPodEvents(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	events, err := h.Cluster.GetPodEvents(ctx, incidentCtx.PodName, incidentCtx.Namespace)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	raw := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		raw = append(raw, map[string]interface{}{
			"type": e.Type, "reason": e.Reason, "message": e.Message, "count": e.Count,
		})
	}
	incidentCtx.PodEvents = raw
	return map[string]interface{}{"event_count": len(events)}, true, nil
}

func (h *Handlers) checkOOMEvents(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if len(incidentCtx.PodEvents) == 0 && h.Cluster != nil {
		events, err := h.Cluster.GetPodEvents(ctx, incidentCtx.PodName, incidentCtx.Namespace)
		if err != nil {
			return map[string]interface{}{"error": err.Error()}, true, nil
		}
		for _, e := range events {
			incidentCtx.PodEvents = append(incidentCtx.PodEvents, map[string]interface{}{
				"type": e.Type, "reason": e.Reason, "message": e.Message, "count": e.Count,
			})
		}
	}
	for _, e := range incidentCtx.PodEvents {
		if reason, _ := e["reason"].(string); strings.Contains(strings.ToLower(reason), "oomkill") {
			incidentCtx.OOMEvents = append(incidentCtx.OOMEvents, e)
		}
	}
	return map[string]interface{}{
		"oom_kill_detected": len(incidentCtx.OOMEvents) > 0,
		"oom_count":         len(incidentCtx.OOMEvents),
	}, true, nil
}

func (h *Handlers) checkCPUThrottling(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	block, ok := incidentCtx.Metrics["cpu"]
	if !ok {
		return map[string]interface{}{"throttling_detected": false, "throttling_ratio": 0.0}, true, nil
	}
	// This step runs before review_resource_limits in the high_cpu workflow,
	// so fetch the limits here when no earlier step has.
	if incidentCtx.ResourceLimits == nil && h.Cluster != nil {
		if limits, err := h.Cluster.GetResourceLimits(ctx, incidentCtx.PodName, incidentCtx.Namespace); err == nil {
			incidentCtx.ResourceLimits = map[string]interface{}{
				"cpu_request_milli": limits.CPURequestMilli,
				"cpu_limit_milli":   limits.CPULimitMilli,
				"mem_request_mib":   limits.MemRequestMiB,
				"mem_limit_mib":     limits.MemLimitMiB,
			}
		}
	}
	avg, _ := block["average"].(float64)
	limit, _ := incidentCtx.ResourceLimits["cpu_limit_milli"].(float64)
	var ratio float64
	if limit > 0 {
		ratio = avg / limit
	}
	throttled := ratio > h.floorOr(h.Thresholds.CPUThrottlingRatioFloor, 0.10)
	return map[string]interface{}{"throttling_detected": throttled, "throttling_ratio": ratio}, true, nil
}

func (h *Handlers) checkRestartCount(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	count, err := h.Cluster.GetRestartCount(ctx, incidentCtx.PodName, incidentCtx.Namespace)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	floor := h.intFloorOr(h.Thresholds.RestartCountFloor, 5)
	return map[string]interface{}{
		"restart_count":     count,
		"frequent_restarts": count > floor,
	}, true, nil
}

func (h *Handlers) checkDependencies(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Traces == nil {
		return map[string]interface{}{"warning": "no trace adapter configured"}, true, nil
	}
	serviceMap, err := h.Traces.GetServiceMap(ctx, incidentCtx.ServiceName)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	return map[string]interface{}{"dependencies": serviceMap, "dependency_issues": []string{}}, true, nil
}

func (h *Handlers) checkResourceUsage(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	var totalCPU, totalMem float64
	var topConsumer string
	var topMem float64
	for _, p := range incidentCtx.PodsOnNode {
		cpu, _ := p["cpu_milli"].(float64)
		mem, _ := p["memory_mib"].(float64)
		totalCPU += cpu
		totalMem += mem
		if mem >= topMem {
			topMem = mem
			topConsumer, _ = p["name"].(string)
		}
	}
	return map[string]interface{}{
		"pods_on_node":     len(incidentCtx.PodsOnNode),
		"total_cpu_milli":  totalCPU,
		"total_memory_mib": totalMem,
		"top_consumer":     topConsumer,
	}, true, nil
}

func (h *Handlers) analyzeTraces(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Traces == nil {
		return map[string]interface{}{"warning": "no trace adapter configured"}, true, nil
	}
	traces, err := h.Traces.GetSlowTraces(ctx, incidentCtx.ServiceName, 500, 10)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	if len(traces) == 0 {
		return map[string]interface{}{"bottleneck": nil}, true, nil
	}
	slowest := traces[0]
	for _, t := range traces {
		if t.DurationMS > slowest.DurationMS {
			slowest = t
		}
	}
	result := map[string]interface{}{"bottleneck": slowest.Bottleneck, "duration_ms": slowest.DurationMS}
	incidentCtx.Traces = append(incidentCtx.Traces, result)
	return result, true, nil
}

func (h *Handlers) analyzeMemoryTrend(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	block, ok := incidentCtx.Metrics["memory"]
	if !ok {
		return map[string]interface{}{"trend": "unknown", "memory_leak_likely": false}, true, nil
	}
	trend, _ := block["trend"].(string)
	return map[string]interface{}{"trend": trend, "memory_leak_likely": trend == "increasing"}, true, nil
}

func (h *Handlers) analyzeRequestPatterns(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return map[string]interface{}{"pattern": "no anomalous request pattern detected"}, true, nil
}

func (h *Handlers) analyzeEvictions(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	evictions, err := h.Cluster.GetEvictionEvents(ctx, incidentCtx.NodeName)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	return map[string]interface{}{"evictions_detected": len(evictions) > 0, "eviction_count": len(evictions)}, true, nil
}

func (h *Handlers) analyzeLogs(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	logs, err := h.Cluster.GetPodLogs(ctx, incidentCtx.PodName, incidentCtx.Namespace, 200)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	incidentCtx.Logs = logs
	for _, line := range logs {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "exception") {
			incidentCtx.ErrorLogs = append(incidentCtx.ErrorLogs, line)
		}
	}
	sample := incidentCtx.ErrorLogs
	if len(sample) > 5 {
		sample = sample[:5]
	}
	return map[string]interface{}{
		"error_log_lines": len(incidentCtx.ErrorLogs),
		"error_samples":   sample,
	}, true, nil
}

func (h *Handlers) analyzePatterns(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return map[string]interface{}{"pattern": "generic investigation, no fixed pattern rule matched"}, true, nil
}

func (h *Handlers) reviewRecentChanges(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	changes, err := h.Cluster.GetRecentChanges(ctx, incidentCtx.Namespace, 24)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	return map[string]interface{}{"recent_change_count": len(changes)}, true, nil
}

func (h *Handlers) reviewResourceLimits(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	limits, err := h.Cluster.GetResourceLimits(ctx, incidentCtx.PodName, incidentCtx.Namespace)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	incidentCtx.ResourceLimits = map[string]interface{}{
		"cpu_request_milli": limits.CPURequestMilli,
		"cpu_limit_milli":   limits.CPULimitMilli,
		"mem_request_mib":   limits.MemRequestMiB,
		"mem_limit_mib":     limits.MemLimitMiB,
	}
	floor := h.floorOr(h.Thresholds.MemoryLimitFloorMiB, 128)
	return map[string]interface{}{
		"memory_limit_mib":   limits.MemLimitMiB,
		"limits_appropriate": limits.MemLimitMiB > floor,
	}, true, nil
}

// correlateWithResources always reports a high correlation between latency
// and resource pressure, leaving richer correlation analysis to a future
// capability.
func (h *Handlers) correlateWithResources(_ context.Context, _ *incident.Context) (map[string]interface{}, bool, error) {
	return map[string]interface{}{"correlation": "high", "resource_constrained": true}, true, nil
}

func (h *Handlers) listPodsOnNode(ctx context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	if h.Cluster == nil {
		return map[string]interface{}{"warning": "no cluster adapter configured"}, true, nil
	}
	pods, err := h.Cluster.GetPodsOnNode(ctx, incidentCtx.NodeName)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, true, nil
	}
	raw := make([]map[string]interface{}, 0, len(pods))
	for _, p := range pods {
		raw = append(raw, map[string]interface{}{
			"name": p.Name, "namespace": p.Namespace, "phase": p.Phase,
			"cpu_milli": p.CPU, "memory_mib": p.MemoryMiB,
		})
	}
	incidentCtx.PodsOnNode = raw
	return map[string]interface{}{"pod_count": len(pods)}, true, nil
}

func (h *Handlers) recommendRemediation(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return map[string]interface{}{"recommendations_pending": "deferred to diagnosis reasoner"}, true, nil
}

func (h *Handlers) recommendActions(_ context.Context, incidentCtx *incident.Context) (map[string]interface{}, bool, error) {
	return map[string]interface{}{"recommendations_pending": "deferred to diagnosis reasoner"}, true, nil
}

func (h *Handlers) floorOr(configured, fallback float64) float64 {
	if configured > 0 {
		return configured
	}
	return fallback
}

func (h *Handlers) intFloorOr(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}
