// Package metrics exposes the Prometheus self-instrumentation shared by the
// incident orchestrator and the metrics query gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAcceptedTotal counts alarm events accepted by the intake.
	EventsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_accepted_total",
		Help: "Total number of alarm events accepted by the intake.",
	})

	// IncidentsCompletedTotal counts incidents that finished a workflow,
	// labeled by workflow name.
	IncidentsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidents_completed_total",
		Help: "Total number of incidents that completed a workflow, by workflow name.",
	}, []string{"workflow"})

	// StepDuration observes how long a single step handler takes to run.
	StepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "step_duration_seconds",
		Help:    "Duration of a single workflow step execution.",
		Buckets: prometheus.DefBuckets,
	})

	// WorkflowDuration observes the total time to run a workflow end to end.
	WorkflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "workflow_duration_seconds",
		Help:    "Total duration of a workflow execution.",
		Buckets: prometheus.DefBuckets,
	})

	// EventsFilteredTotal counts events dropped before dispatch, labeled by reason.
	EventsFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_filtered_total",
		Help: "Total number of events filtered out before dispatch, by reason.",
	}, []string{"reason"})

	// IncidentExecutionErrorsTotal counts failed incident handlers, labeled by
	// workflow and error type.
	IncidentExecutionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incident_execution_errors_total",
		Help: "Total number of incidents that failed, by workflow and error type.",
	}, []string{"workflow", "error_type"})

	// QueriesTranslatedTotal counts NL->PromQL translations, labeled by outcome
	// (template/fallback/cache_hit/error).
	QueriesTranslatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queries_translated_total",
		Help: "Total number of natural-language queries translated, by outcome.",
	}, []string{"outcome"})

	// QueryExecutionDuration observes how long a signed metrics-backend query takes.
	QueryExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "query_execution_duration_seconds",
		Help:    "Duration of a signed range-query against the metrics backend.",
		Buckets: prometheus.DefBuckets,
	})

	// ClusterAPICallsTotal counts cluster-adapter calls, labeled by operation.
	ClusterAPICallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cluster_api_calls_total",
		Help: "Total number of cluster adapter calls, by operation.",
	}, []string{"operation"})

	// IncidentsInFlight reports the current number of concurrently running incident handlers.
	IncidentsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "incidents_in_flight",
		Help: "Current number of concurrently executing incident handlers.",
	})

	// GatewayRequestsTotal counts inbound HTTP requests to the query gateway, labeled by outcome.
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of inbound query-gateway HTTP requests, by outcome.",
	}, []string{"outcome"})

	// QueryCacheLookupsTotal counts range-query cache lookups, labeled by
	// outcome (hit/miss/error).
	QueryCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_lookups_total",
		Help: "Total number of range-query cache lookups, by outcome.",
	}, []string{"outcome"})
)

// RecordEventAccepted increments the accepted-events counter.
func RecordEventAccepted() {
	EventsAcceptedTotal.Inc()
}

// RecordIncidentCompleted records one completed incident for workflow and its duration.
func RecordIncidentCompleted(workflow string, duration time.Duration) {
	IncidentsCompletedTotal.WithLabelValues(workflow).Inc()
	WorkflowDuration.Observe(duration.Seconds())
}

// RecordStepDuration records one step-execution duration observation.
func RecordStepDuration(duration time.Duration) {
	StepDuration.Observe(duration.Seconds())
}

// RecordQueryExecution records one query-execution duration observation.
func RecordQueryExecution(duration time.Duration) {
	QueryExecutionDuration.Observe(duration.Seconds())
}

// RecordEventFiltered increments the filtered-events counter for reason.
func RecordEventFiltered(reason string) {
	EventsFilteredTotal.WithLabelValues(reason).Inc()
}

// RecordIncidentError increments the incident-execution-errors counter.
func RecordIncidentError(workflow, errorType string) {
	IncidentExecutionErrorsTotal.WithLabelValues(workflow, errorType).Inc()
}

// RecordQueryTranslated increments the query-translation counter for outcome.
func RecordQueryTranslated(outcome string) {
	QueriesTranslatedTotal.WithLabelValues(outcome).Inc()
}

// RecordClusterAPICall increments the cluster-adapter call counter for operation.
func RecordClusterAPICall(operation string) {
	ClusterAPICallsTotal.WithLabelValues(operation).Inc()
}

// SetIncidentsInFlight sets the in-flight-incidents gauge to an absolute value.
func SetIncidentsInFlight(n float64) {
	IncidentsInFlight.Set(n)
}

// IncrementIncidentsInFlight increments the in-flight-incidents gauge.
func IncrementIncidentsInFlight() {
	IncidentsInFlight.Inc()
}

// DecrementIncidentsInFlight decrements the in-flight-incidents gauge.
func DecrementIncidentsInFlight() {
	IncidentsInFlight.Dec()
}

// RecordGatewayRequest increments the gateway request counter for outcome.
func RecordGatewayRequest(outcome string) {
	GatewayRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordQueryCacheLookup increments the range-query cache lookup counter for outcome.
func RecordQueryCacheLookup(outcome string) {
	QueryCacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// Timer measures elapsed wall-clock time from creation to a Record* call.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer was created.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordIncidentCompleted records the elapsed time as a completed incident for workflow.
func (t *Timer) RecordIncidentCompleted(workflow string) {
	RecordIncidentCompleted(workflow, t.Elapsed())
}

// RecordQueryExecution records the elapsed time as a query-execution duration.
func (t *Timer) RecordQueryExecution() {
	RecordQueryExecution(t.Elapsed())
}
