package incident

import "time"

// Finding is one step's recorded outcome, appended to Context.Findings in
// execution order.
type Finding struct {
	Step   string
	Result map[string]interface{}
	Time   time.Time
}

// Context is the mutable per-incident bag threaded through every step
// handler. It carries the scratch fields later steps read back by name
// (pod_name, namespace, ...) plus the accumulating findings, metrics, logs,
// and recommendations.
type Context struct {
	IncidentID   string
	WorkflowName string
	Event        *Event
	StartTime    time.Time
	EndTime      time.Time

	Findings        []Finding
	Metrics         map[string]map[string]interface{}
	Logs            []string
	Recommendations []string

	// Scratch fields populated by identify_*/collect_*/analyze_* steps and
	// read back verbatim by later steps.
	PodName        string
	Namespace      string
	ServiceName    string
	NodeName       string
	OOMEvents      []map[string]interface{}
	ResourceLimits map[string]interface{}
	PodsOnNode     []map[string]interface{}
	Traces         []map[string]interface{}
	PodEvents      []map[string]interface{}
	ErrorLogs      []string

	RootCause string
	Failed    bool
	Error     string
}

// NewContext initializes a Context for incidentID/workflowName/event, ready
// for the Step Executor to run steps against.
func NewContext(incidentID, workflowName string, event *Event) *Context {
	return &Context{
		IncidentID:   incidentID,
		WorkflowName: workflowName,
		Event:        event,
		StartTime:    time.Now().UTC(),
		Metrics:      map[string]map[string]interface{}{},
	}
}

// RecordFinding appends a step's result to Findings, stamping it with the
// current time, preserving execution order.
func (c *Context) RecordFinding(step string, result map[string]interface{}) {
	c.Findings = append(c.Findings, Finding{Step: step, Result: result, Time: time.Now().UTC()})
}

// SetMetrics stores a collected metrics block under category (e.g.
// "memory", "cpu") for the collect_*_metrics steps.
func (c *Context) SetMetrics(category string, block map[string]interface{}) {
	c.Metrics[category] = block
}

// Duration returns the wall-clock span between StartTime and EndTime. Call
// only after Finish.
func (c *Context) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

// Finish stamps EndTime, called once the workflow (and Reasoner) complete.
func (c *Context) Finish() {
	c.EndTime = time.Now().UTC()
}

// FindingHasKey reports whether any finding's result map contains key set
// to value true, used by the Reasoner's "any finding contains
// oom_kill_detected = true"-style rules.
func (c *Context) FindingHasKey(key string) bool {
	for _, f := range c.Findings {
		if v, ok := f.Result[key]; ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// FindingHasNonNilKey reports whether any finding's result map contains key
// set to a non-nil value, used for presence checks like "bottleneck
// present".
func (c *Context) FindingHasNonNilKey(key string) bool {
	for _, f := range c.Findings {
		if v, ok := f.Result[key]; ok && v != nil {
			return true
		}
	}
	return false
}
