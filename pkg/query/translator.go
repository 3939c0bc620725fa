// Package query implements the Metrics Query Gateway's natural-language
// translation, signed execution, and insight generation.
package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nimbusops/opswatch/pkg/metrics"
)

// template is one NL->PromQL translation rule: a regex whose first capture
// group supplies the identifier parameter, and a PromQL format string
// taking that parameter.
type template struct {
	pattern     *regexp.Regexp
	promqlFmt   string
	paramName   string
	description string
	category    string
}

var templates = []template{
	{
		pattern:     regexp.MustCompile(`memory usage.*pod\s+(\S+)`),
		promqlFmt:   `container_memory_usage_bytes{pod="%s"}`,
		paramName:   "pod_name",
		description: "Memory usage for a specific pod",
		category:    "memory",
	},
	{
		pattern:     regexp.MustCompile(`cpu usage.*pod\s+(\S+)`),
		promqlFmt:   `rate(container_cpu_usage_seconds_total{pod="%s"}[5m])`,
		paramName:   "pod_name",
		description: "CPU usage for a specific pod",
		category:    "cpu",
	},
	{
		pattern:     regexp.MustCompile(`memory usage.*namespace\s+(\S+)`),
		promqlFmt:   `sum(container_memory_usage_bytes{namespace="%s"}) by (pod)`,
		paramName:   "namespace",
		description: "Memory usage by pod in namespace",
		category:    "memory",
	},
	{
		pattern:     regexp.MustCompile(`cpu usage.*namespace\s+(\S+)`),
		promqlFmt:   `sum(rate(container_cpu_usage_seconds_total{namespace="%s"}[5m])) by (pod)`,
		paramName:   "namespace",
		description: "CPU usage by pod in namespace",
		category:    "cpu",
	},
	{
		pattern:     regexp.MustCompile(`request rate.*service\s+(\S+)`),
		promqlFmt:   `rate(http_requests_total{service="%s"}[5m])`,
		paramName:   "service_name",
		description: "Request rate for a service",
		category:    "requests",
	},
	{
		pattern:     regexp.MustCompile(`error rate.*service\s+(\S+)`),
		promqlFmt:   `rate(http_requests_total{service="%s",status=~"5.."}[5m])`,
		paramName:   "service_name",
		description: "Error rate for a service",
		category:    "errors",
	},
	{
		pattern:     regexp.MustCompile(`latency.*service\s+(\S+)`),
		promqlFmt:   `histogram_quantile(0.99, rate(http_request_duration_seconds_bucket{service="%s"}[5m]))`,
		paramName:   "service_name",
		description: "P99 latency for a service",
		category:    "latency",
	},
	{
		pattern:     regexp.MustCompile(`resource usage.*node\s+(\S+)`),
		promqlFmt:   `node_memory_MemAvailable_bytes{node="%[1]s"} / node_memory_MemTotal_bytes{node="%[1]s"}`,
		paramName:   "node_name",
		description: "Memory availability on a node",
		category:    "node",
	},
	{
		pattern:     regexp.MustCompile(`pod count.*namespace\s+(\S+)`),
		promqlFmt:   `count(kube_pod_info{namespace="%s"}) by (namespace)`,
		paramName:   "namespace",
		description: "Count of pods in namespace",
		category:    "pods",
	},
	{
		pattern:     regexp.MustCompile(`restart count.*pod\s+(\S+)`),
		promqlFmt:   `kube_pod_container_status_restarts_total{pod="%s"}`,
		paramName:   "pod_name",
		description: "Container restart count for pod",
		category:    "restarts",
	},
}

// timeRangeMarkers maps a phrase to its PromQL-style range string, checked
// in order so "last 30 minutes" is tested before the generic fallback.
var timeRangeMarkers = []struct {
	phrase string
	value  string
}{
	{"last hour", "1h"},
	{"past hour", "1h"},
	{"last 30 minutes", "30m"},
	{"last 15 minutes", "15m"},
	{"last 5 minutes", "5m"},
	{"last day", "1d"},
	{"past day", "1d"},
	{"last week", "7d"},
}

const defaultTimeRange = "1h"

// Translation is the outcome of translating one natural-language query.
type Translation struct {
	Success    bool
	PromQL     string
	Template   string
	Category   string
	TimeRange  string
	Parameters map[string]string
	Error      string
}

// Translator converts natural-language queries into PromQL, matching
// templates first and falling back to a small keyword heuristic.
type Translator struct {
	// Cache, when set, fronts Translate with a normalized-query lookup.
	// Nil by default; callers without Redis get direct translation.
	Cache TemplateCache

	mu        sync.RWMutex
	templates []template
}

// NewTranslator returns a Translator seeded with the built-in template
// table. Reload/Watch replace that table wholesale from a YAML file.
func NewTranslator() *Translator {
	return &Translator{templates: templates}
}

// WithCache attaches cache to the Translator and returns it for chaining.
func (t *Translator) WithCache(cache TemplateCache) *Translator {
	t.Cache = cache
	return t
}

func (t *Translator) currentTemplates() []template {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.templates
}

// TranslateCached behaves like Translate but consults t.Cache first and
// populates it on a miss. Callers with no cache configured get the same
// behavior as calling Translate directly.
func (t *Translator) TranslateCached(ctx context.Context, query string) Translation {
	if t.Cache == nil {
		return t.Translate(query)
	}
	if cached, ok := t.Cache.Get(ctx, query); ok {
		metrics.RecordQueryTranslated("cache_hit")
		return cached
	}
	result := t.Translate(query)
	t.Cache.Set(ctx, query, result)
	return result
}

// Translate attempts each template in order, returning the first match; if
// none match it falls back to Translator's keyword heuristic, and finally
// to a translation failure.
func (t *Translator) Translate(query string) Translation {
	lower := strings.ToLower(query)

	for _, tmpl := range t.currentTemplates() {
		m := tmpl.pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if tmpl.paramName != "" && len(m) < 2 {
			metrics.RecordQueryTranslated("error")
			return Translation{
				Success: false,
				Error:   fmt.Sprintf("template %q matched but has no capture group for %s", tmpl.description, tmpl.paramName),
			}
		}
		param := ""
		if len(m) > 1 {
			param = m[1]
		}
		metrics.RecordQueryTranslated("template")
		return Translation{
			Success:    true,
			PromQL:     fmt.Sprintf(tmpl.promqlFmt, param),
			Template:   tmpl.description,
			Category:   tmpl.category,
			TimeRange:  extractTimeRange(lower),
			Parameters: map[string]string{tmpl.paramName: param},
		}
	}

	if promql := constructFromKeywords(lower); promql != "" {
		metrics.RecordQueryTranslated("fallback")
		return Translation{
			Success:   true,
			PromQL:    promql,
			Template:  "keyword-based",
			Category:  "generic",
			TimeRange: extractTimeRange(lower),
		}
	}

	metrics.RecordQueryTranslated("error")
	return Translation{
		Success: false,
		Error:   "could not translate query; please provide more specific information",
	}
}

// extractTimeRange matches the first known phrase in query, defaulting to
// defaultTimeRange.
func extractTimeRange(lowerQuery string) string {
	for _, marker := range timeRangeMarkers {
		if strings.Contains(lowerQuery, marker.phrase) {
			return marker.value
		}
	}
	return defaultTimeRange
}

// constructFromKeywords is the last-resort heuristic when no template
// matches.
func constructFromKeywords(lowerQuery string) string {
	switch {
	case strings.Contains(lowerQuery, "memory") && strings.Contains(lowerQuery, "pod"):
		return "container_memory_usage_bytes"
	case strings.Contains(lowerQuery, "cpu") && strings.Contains(lowerQuery, "pod"):
		return "rate(container_cpu_usage_seconds_total[5m])"
	case strings.Contains(lowerQuery, "request"):
		return "rate(http_requests_total[5m])"
	default:
		return ""
	}
}

// TemplateInfo is the public shape of ListTemplates, used by the gateway's
// GET /api/v1/templates route.
type TemplateInfo struct {
	Description string
	Category    string
	Example     string
}

// ListTemplates returns every registered translation template with a
// rendered example query.
func (t *Translator) ListTemplates() []TemplateInfo {
	current := t.currentTemplates()
	infos := make([]TemplateInfo, 0, len(current))
	for _, tmpl := range current {
		infos = append(infos, TemplateInfo{
			Description: tmpl.description,
			Category:    tmpl.category,
			Example:     exampleFor(tmpl),
		})
	}
	return infos
}

func exampleFor(tmpl template) string {
	switch tmpl.paramName {
	case "pod_name":
		return fmt.Sprintf("%s pod my-pod-name", tmpl.category)
	case "namespace":
		return fmt.Sprintf("%s namespace default", tmpl.category)
	case "service_name":
		return fmt.Sprintf("%s service my-service", tmpl.category)
	case "node_name":
		return fmt.Sprintf("%s node node-1", tmpl.category)
	default:
		return tmpl.description
	}
}

// Suggest returns up to 5 related queries keyed on query's dominant
// keyword.
func (t *Translator) Suggest(query string) []string {
	lower := strings.ToLower(query)

	var suggestions []string
	switch {
	case strings.Contains(lower, "memory"):
		suggestions = []string{
			"Show me memory usage trend over the last day",
			"Compare memory usage across all pods",
			"Detect memory leaks in the application",
		}
	case strings.Contains(lower, "cpu"):
		suggestions = []string{
			"Show me CPU throttling events",
			"Compare CPU usage across all pods",
			"Show me CPU usage spikes",
		}
	case strings.Contains(lower, "latency") || strings.Contains(lower, "request"):
		suggestions = []string{
			"Show me error rate for the service",
			"Compare latency across services",
			"Show me slow requests",
		}
	}

	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

// templateSpec is the YAML-serializable shape of a template, used by
// LoadTemplatesFile. The regex pattern is stored as plain text and compiled
// on load.
type templateSpec struct {
	Pattern     string `yaml:"pattern"`
	PromQLFmt   string `yaml:"promql_format"`
	ParamName   string `yaml:"param_name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

type templateFile struct {
	Templates []templateSpec `yaml:"templates"`
}

// LoadTemplatesFile reads and compiles a template table from path. An
// empty or malformed file, or one with an unparsable regex, is an error.
func LoadTemplatesFile(path string) ([]template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}
	var doc templateFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing template file: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("template file %s defines no templates", path)
	}

	compiled := make([]template, 0, len(doc.Templates))
	for _, entry := range doc.Templates {
		pattern, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", entry.Pattern, err)
		}
		compiled = append(compiled, template{
			pattern:     pattern,
			promqlFmt:   entry.PromQLFmt,
			paramName:   entry.ParamName,
			description: entry.Description,
			category:    entry.Category,
		})
	}
	return compiled, nil
}

// Reload replaces the Translator's template table with the one parsed from
// path, leaving the existing table untouched on error.
func (t *Translator) Reload(path string) error {
	loaded, err := LoadTemplatesFile(path)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.templates = loaded
	t.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watcher on path's directory and calls Reload
// whenever path itself is written, mirroring workflow.Registry.Watch so an
// operator can add a query template without restarting the gateway. It
// runs until ctx is canceled.
func (t *Translator) Watch(ctx context.Context, path string, log *logrus.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting template file watcher: %w", err)
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
				if err := t.Reload(path); err != nil {
					log.WithError(err).Warn("query template reload failed, keeping previous table")
					continue
				}
				log.Info("query templates reloaded from disk")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("template file watcher error")
			}
		}
	}()
	return nil
}
