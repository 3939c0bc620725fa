package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/nimbusops/opswatch/pkg/metrics"
	sharederrors "github.com/nimbusops/opswatch/pkg/shared/errors"
)

// K8sClusterAdapter is the ClusterAdapter implementation backed by a real
// Kubernetes API server. Every call is instrumented via
// pkg/metrics.RecordClusterAPICall.
type K8sClusterAdapter struct {
	clientset   kubernetes.Interface
	clusterName string
}

// NewK8sClusterAdapter builds a K8sClusterAdapter, trying in-cluster config
// first and falling back to kubeconfigPath.
func NewK8sClusterAdapter(kubeconfigPath, clusterName string) (*K8sClusterAdapter, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes clientset: %w", err)
	}

	return &K8sClusterAdapter{clientset: clientset, clusterName: clusterName}, nil
}

var _ ClusterAdapter = (*K8sClusterAdapter)(nil)

func (a *K8sClusterAdapter) GetPodEvents(ctx context.Context, podName, namespace string) ([]PodEvent, error) {
	metrics.RecordClusterAPICall("get_pod_events")
	events, err := a.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("involvedObject.name=%s", podName),
	})
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("list pod events", "cluster-adapter", podName, err)
	}

	out := make([]PodEvent, 0, len(events.Items))
	for _, e := range events.Items {
		out = append(out, PodEvent{
			Type:           e.Type,
			Reason:         e.Reason,
			Message:        e.Message,
			Count:          e.Count,
			FirstTimestamp: e.FirstTimestamp.Format(time.RFC3339),
			LastTimestamp:  e.LastTimestamp.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (a *K8sClusterAdapter) GetPodLogs(ctx context.Context, podName, namespace string, lines int) ([]string, error) {
	metrics.RecordClusterAPICall("get_pod_logs")
	tail := int64(lines)
	req := a.clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{TailLines: &tail})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("stream pod logs", "cluster-adapter", podName, err)
	}
	defer stream.Close()

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil, nil
	}
	return strings.Split(string(buf), "\n"), nil
}

func (a *K8sClusterAdapter) GetRestartCount(ctx context.Context, podName, namespace string) (int, error) {
	metrics.RecordClusterAPICall("get_restart_count")
	pod, err := a.clientset.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return 0, sharederrors.FailedToWithDetails("get pod", "cluster-adapter", podName, err)
	}

	var total int
	for _, cs := range pod.Status.ContainerStatuses {
		total += int(cs.RestartCount)
	}
	return total, nil
}

func (a *K8sClusterAdapter) GetResourceLimits(ctx context.Context, podName, namespace string) (ResourceLimits, error) {
	metrics.RecordClusterAPICall("get_resource_limits")
	pod, err := a.clientset.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return ResourceLimits{}, sharederrors.FailedToWithDetails("get pod", "cluster-adapter", podName, err)
	}

	var limits ResourceLimits
	for _, c := range pod.Spec.Containers {
		if cpu, ok := c.Resources.Requests[corev1.ResourceCPU]; ok {
			limits.CPURequestMilli += parseCPUMilli(cpu)
		}
		if mem, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
			limits.MemRequestMiB += parseMemoryMiB(mem)
		}
		if cpu, ok := c.Resources.Limits[corev1.ResourceCPU]; ok {
			limits.CPULimitMilli += parseCPUMilli(cpu)
		}
		if mem, ok := c.Resources.Limits[corev1.ResourceMemory]; ok {
			limits.MemLimitMiB += parseMemoryMiB(mem)
		}
	}
	return limits, nil
}

func (a *K8sClusterAdapter) GetRecentChanges(ctx context.Context, namespace string, lookbackHours int) ([]DeploymentChange, error) {
	metrics.RecordClusterAPICall("get_recent_changes")
	deployments, err := a.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("list deployments", "cluster-adapter", namespace, err)
	}

	cutoff := time.Now().Add(-time.Duration(lookbackHours) * time.Hour)
	var changes []DeploymentChange
	for _, d := range deployments.Items {
		if d.CreationTimestamp.Time.Before(cutoff) {
			continue
		}
		image := "unknown"
		if len(d.Spec.Template.Spec.Containers) > 0 {
			image = d.Spec.Template.Spec.Containers[0].Image
		}
		replicas := int32(0)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		changes = append(changes, DeploymentChange{
			Name:      d.Name,
			Type:      "deployment",
			Timestamp: d.CreationTimestamp.Format(time.RFC3339),
			Replicas:  replicas,
			Image:     image,
		})
	}
	return changes, nil
}

func (a *K8sClusterAdapter) GetNodeMetrics(ctx context.Context, nodeName string) (NodeMetrics, error) {
	metrics.RecordClusterAPICall("get_node_metrics")
	node, err := a.clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		return NodeMetrics{}, sharederrors.FailedToWithDetails("get node", "cluster-adapter", nodeName, err)
	}

	result := NodeMetrics{
		Name:        node.Name,
		Status:      "Unknown",
		Capacity:    map[string]string{},
		Allocatable: map[string]string{},
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			result.Status = string(cond.Status)
		}
		result.Conditions = append(result.Conditions, fmt.Sprintf("%s=%s", cond.Type, cond.Status))
	}
	for name, qty := range node.Status.Capacity {
		result.Capacity[string(name)] = qty.String()
	}
	for name, qty := range node.Status.Allocatable {
		result.Allocatable[string(name)] = qty.String()
	}
	return result, nil
}

func (a *K8sClusterAdapter) GetPodsOnNode(ctx context.Context, nodeName string) ([]PodOnNode, error) {
	metrics.RecordClusterAPICall("get_pods_on_node")
	pods, err := a.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("spec.nodeName=%s", nodeName),
	})
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("list pods on node", "cluster-adapter", nodeName, err)
	}

	out := make([]PodOnNode, 0, len(pods.Items))
	for _, p := range pods.Items {
		pod := PodOnNode{
			Name:      p.Name,
			Namespace: p.Namespace,
			Phase:     string(p.Status.Phase),
		}
		for _, c := range p.Spec.Containers {
			if cpu, ok := c.Resources.Requests[corev1.ResourceCPU]; ok {
				pod.CPU += parseCPUMilli(cpu)
			}
			if mem, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
				pod.MemoryMiB += parseMemoryMiB(mem)
			}
		}
		out = append(out, pod)
	}
	return out, nil
}

func (a *K8sClusterAdapter) GetEvictionEvents(ctx context.Context, nodeName string) ([]Eviction, error) {
	metrics.RecordClusterAPICall("get_eviction_events")
	events, err := a.clientset.CoreV1().Events("").List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("involvedObject.name=%s,reason=Evicted", nodeName),
	})
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("list eviction events", "cluster-adapter", nodeName, err)
	}

	out := make([]Eviction, 0, len(events.Items))
	for _, e := range events.Items {
		out = append(out, Eviction{
			Pod:       e.InvolvedObject.Name,
			Namespace: e.InvolvedObject.Namespace,
			Reason:    e.Reason,
			Message:   e.Message,
			Timestamp: e.LastTimestamp.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (a *K8sClusterAdapter) RestartPod(ctx context.Context, podName, namespace string) error {
	metrics.RecordClusterAPICall("restart_pod")
	grace := int64(30)
	return a.clientset.CoreV1().Pods(namespace).Delete(ctx, podName, metav1.DeleteOptions{GracePeriodSeconds: &grace})
}

func (a *K8sClusterAdapter) ScaleDeployment(ctx context.Context, deploymentName, namespace string, replicas int32) error {
	metrics.RecordClusterAPICall("scale_deployment")
	deployment, err := a.clientset.AppsV1().Deployments(namespace).Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		return sharederrors.FailedToWithDetails("get deployment", "cluster-adapter", deploymentName, err)
	}
	deployment.Spec.Replicas = &replicas
	_, err = a.clientset.AppsV1().Deployments(namespace).Update(ctx, deployment, metav1.UpdateOptions{})
	return err
}

// parseCPUMilli converts a CPU resource.Quantity to millicores.
func parseCPUMilli(q resource.Quantity) float64 {
	return float64(q.MilliValue())
}

// parseMemoryMiB converts a memory resource.Quantity to MiB.
func parseMemoryMiB(q resource.Quantity) float64 {
	bytes := q.Value()
	return float64(bytes) / (1024 * 1024)
}
