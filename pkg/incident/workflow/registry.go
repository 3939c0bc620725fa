// Package workflow implements the Workflow Registry and Step Executor: the
// fixed set of investigation playbooks and the engine that runs their
// steps against an incident.Context.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Workflow is one fixed investigation playbook: an ordered list of step
// ids the Step Executor dispatches in sequence.
type Workflow struct {
	Name  string   `yaml:"name"`
	Steps []string `yaml:"steps"`
}

// names of the six fixed workflows.
const (
	MemoryLeakInvestigation   = "memory_leak_investigation"
	HighCPUInvestigation      = "high_cpu_investigation"
	HighLatencyInvestigation  = "high_latency_investigation"
	NodePressureInvestigation = "node_pressure_investigation"
	PodCrashInvestigation     = "pod_crash_investigation"
	GenericInvestigation      = "generic_investigation"
)

// Registry holds the workflow table and selects a workflow for an incoming
// alarm name. Watch lets an operator hot-reload the table from a
// YAML file without a restart; the map is replaced wholesale under mu
// rather than mutated in place.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
}

// NewRegistry returns a Registry populated with the six fixed workflows.
func NewRegistry() *Registry {
	return &Registry{workflows: defaultWorkflows()}
}

// workflowFile is the YAML document shape LoadWorkflowsFile expects: a flat
// list under a top-level "workflows" key.
type workflowFile struct {
	Workflows []Workflow `yaml:"workflows"`
}

// LoadWorkflowsFile reads and parses a workflow table from path, returning
// it keyed by workflow name. An empty or malformed file is an error; the
// caller decides whether to keep the previous table on failure.
func LoadWorkflowsFile(path string) (map[string]Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	var doc workflowFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing workflow file: %w", err)
	}
	if len(doc.Workflows) == 0 {
		return nil, fmt.Errorf("workflow file %s defines no workflows", path)
	}
	byName := make(map[string]Workflow, len(doc.Workflows))
	for _, w := range doc.Workflows {
		if w.Name == "" || len(w.Steps) == 0 {
			return nil, fmt.Errorf("workflow file %s has an entry with no name or steps", path)
		}
		byName[w.Name] = w
	}
	return byName, nil
}

// Reload replaces the Registry's workflow table with the one parsed from
// path, leaving the existing table untouched on error.
func (r *Registry) Reload(path string) error {
	workflows, err := LoadWorkflowsFile(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.workflows = workflows
	r.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watcher on path's directory and calls Reload
// whenever path itself is written, so operators can add a workflow without
// restarting the orchestrator. It runs until ctx is canceled; reload
// failures are logged and the previous table is kept.
func (r *Registry) Watch(ctx context.Context, path string, log *logrus.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting workflow file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.Reload(path); err != nil {
					log.WithError(err).Warn("workflow registry reload failed, keeping previous table")
					continue
				}
				log.Info("workflow registry reloaded from disk")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("workflow file watcher error")
			}
		}
	}()
	return nil
}

// defaultWorkflows returns the built-in table: one entry per investigation
// type, each an ordered step list.
func defaultWorkflows() map[string]Workflow {
	workflows := []Workflow{
		{
			Name: MemoryLeakInvestigation,
			Steps: []string{
				"identify_pod",
				"collect_memory_metrics",
				"check_oom_events",
				"analyze_memory_trend",
				"review_recent_changes",
				"recommend_remediation",
			},
		},
		{
			Name: HighCPUInvestigation,
			Steps: []string{
				"identify_pod",
				"collect_cpu_metrics",
				"check_cpu_throttling",
				"analyze_request_patterns",
				"review_resource_limits",
				"recommend_remediation",
			},
		},
		{
			Name: HighLatencyInvestigation,
			Steps: []string{
				"identify_service",
				"collect_latency_metrics",
				"analyze_traces",
				"check_dependencies",
				"correlate_with_resources",
				"recommend_remediation",
			},
		},
		{
			Name: NodePressureInvestigation,
			Steps: []string{
				"identify_node",
				"collect_node_metrics",
				"list_pods_on_node",
				"check_resource_usage",
				"analyze_evictions",
				"recommend_remediation",
			},
		},
		{
			Name: PodCrashInvestigation,
			Steps: []string{
				"identify_pod",
				"collect_pod_events",
				"analyze_logs",
				"check_restart_count",
				"review_resource_limits",
				"recommend_remediation",
			},
		},
		{
			Name: GenericInvestigation,
			Steps: []string{
				"identify_resource",
				"collect_metrics",
				"analyze_patterns",
				"recommend_actions",
			},
		},
	}

	byName := make(map[string]Workflow, len(workflows))
	for _, w := range workflows {
		byName[w.Name] = w
	}
	return byName
}

// keywordRoutes maps an alarm-name substring to its workflow, checked in
// the fixed order below so "memory" beats a later, more generic match.
var keywordRoutes = []struct {
	keyword  string
	workflow string
}{
	{"memory", MemoryLeakInvestigation},
	{"oom", MemoryLeakInvestigation},
	{"cpu", HighCPUInvestigation},
	{"throttl", HighCPUInvestigation},
	{"latency", HighLatencyInvestigation},
	{"response", HighLatencyInvestigation},
	{"node", NodePressureInvestigation},
	{"pressure", NodePressureInvestigation},
	{"restart", PodCrashInvestigation},
	{"crash", PodCrashInvestigation},
}

// SelectWorkflow picks a workflow name for alarmName by the first matching
// keyword, falling back to GenericInvestigation when nothing matches.
func SelectWorkflow(alarmName string) string {
	lower := strings.ToLower(alarmName)
	for _, route := range keywordRoutes {
		if strings.Contains(lower, route.keyword) {
			return route.workflow
		}
	}
	return GenericInvestigation
}

// Get returns the workflow registered under name and whether it exists.
func (r *Registry) Get(name string) (Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[name]
	return w, ok
}

// Select returns the workflow SelectWorkflow picks for alarmName.
func (r *Registry) Select(alarmName string) Workflow {
	name := SelectWorkflow(alarmName)
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[name]
	if !ok {
		return r.workflows[GenericInvestigation]
	}
	return w
}
