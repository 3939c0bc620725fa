package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestRecordEventAccepted(t *testing.T) {
	initial := testutil.ToFloat64(EventsAcceptedTotal)

	RecordEventAccepted()
	after := testutil.ToFloat64(EventsAcceptedTotal)
	assert.Equal(t, initial+1.0, after)

	RecordEventAccepted()
	final := testutil.ToFloat64(EventsAcceptedTotal)
	assert.Equal(t, initial+2.0, final)
}

func TestRecordIncidentCompleted(t *testing.T) {
	workflow := "test_memory_leak_investigation"
	duration := 500 * time.Millisecond

	initialCounter := testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(workflow))

	RecordIncidentCompleted(workflow, duration)

	finalCounter := testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(workflow))
	assert.Equal(t, initialCounter+1.0, finalCounter)
}

func TestRecordQueryExecution(t *testing.T) {
	duration := 2 * time.Second

	RecordQueryExecution(duration)

	metric := &dto.Metric{}
	QueryExecutionDuration.Write(metric)

	assert.True(t, metric.GetHistogram().GetSampleCount() > 0, "Histogram should have recorded samples")
}

func TestRecordEventFiltered(t *testing.T) {
	reason := "test_low_priority"

	initial := testutil.ToFloat64(EventsFilteredTotal.WithLabelValues(reason))
	RecordEventFiltered(reason)
	final := testutil.ToFloat64(EventsFilteredTotal.WithLabelValues(reason))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordIncidentError(t *testing.T) {
	workflow := "test_pod_crash_investigation"
	errorType := "step_panic"

	initial := testutil.ToFloat64(IncidentExecutionErrorsTotal.WithLabelValues(workflow, errorType))
	RecordIncidentError(workflow, errorType)
	final := testutil.ToFloat64(IncidentExecutionErrorsTotal.WithLabelValues(workflow, errorType))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordQueryTranslated(t *testing.T) {
	outcome := "test_template"

	initial := testutil.ToFloat64(QueriesTranslatedTotal.WithLabelValues(outcome))
	RecordQueryTranslated(outcome)
	final := testutil.ToFloat64(QueriesTranslatedTotal.WithLabelValues(outcome))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordClusterAPICall(t *testing.T) {
	operation := "test_get_pod_events"

	initial := testutil.ToFloat64(ClusterAPICallsTotal.WithLabelValues(operation))
	RecordClusterAPICall(operation)
	final := testutil.ToFloat64(ClusterAPICallsTotal.WithLabelValues(operation))
	assert.Equal(t, initial+1.0, final)
}

func TestIncidentsInFlightGauge(t *testing.T) {
	initial := testutil.ToFloat64(IncidentsInFlight)

	IncrementIncidentsInFlight()
	value := testutil.ToFloat64(IncidentsInFlight)
	assert.Equal(t, initial+1.0, value)

	IncrementIncidentsInFlight()
	value = testutil.ToFloat64(IncidentsInFlight)
	assert.Equal(t, initial+2.0, value)

	DecrementIncidentsInFlight()
	value = testutil.ToFloat64(IncidentsInFlight)
	assert.Equal(t, initial+1.0, value)

	DecrementIncidentsInFlight()
	value = testutil.ToFloat64(IncidentsInFlight)
	assert.Equal(t, initial, value)
}

func TestSetIncidentsInFlight(t *testing.T) {
	SetIncidentsInFlight(5.0)
	assert.Equal(t, 5.0, testutil.ToFloat64(IncidentsInFlight))

	SetIncidentsInFlight(3.0)
	assert.Equal(t, 3.0, testutil.ToFloat64(IncidentsInFlight))
}

func TestRecordGatewayRequest(t *testing.T) {
	initialSuccess := testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("success"))
	initialError := testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("error"))

	RecordGatewayRequest("success")
	finalSuccess := testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("success"))
	assert.Equal(t, initialSuccess+1.0, finalSuccess)

	RecordGatewayRequest("error")
	finalError := testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("error"))
	assert.Equal(t, initialError+1.0, finalError)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()

	assert.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())

	time.Sleep(10 * time.Millisecond)

	elapsed := timer.Elapsed()
	assert.True(t, elapsed >= 10*time.Millisecond, "Elapsed time should be at least 10ms")
	assert.True(t, elapsed < 200*time.Millisecond, "Elapsed time should be reasonably small")
}

func TestTimerRecordIncidentCompleted(t *testing.T) {
	timer := NewTimer()
	workflow := "test_timer_workflow"

	initialCounter := testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(workflow))

	time.Sleep(10 * time.Millisecond)
	timer.RecordIncidentCompleted(workflow)

	finalCounter := testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(workflow))
	assert.Equal(t, initialCounter+1.0, finalCounter)
}

func TestTimerRecordQueryExecution(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)
	timer.RecordQueryExecution()

	metric := &dto.Metric{}
	QueryExecutionDuration.Write(metric)
	assert.True(t, metric.GetHistogram().GetSampleCount() > 0, "Histogram should have recorded samples")
}

func TestMultipleIncidents(t *testing.T) {
	workflows := []string{"test_memory_leak", "test_high_cpu", "test_node_pressure"}

	initialValues := make(map[string]float64)
	for _, w := range workflows {
		initialValues[w] = testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(w))
	}

	for _, w := range workflows {
		RecordIncidentCompleted(w, 100*time.Millisecond)
	}

	for _, w := range workflows {
		finalValue := testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(w))
		assert.Equal(t, initialValues[w]+1.0, finalValue, "workflow %s should have increased by 1", w)
	}
}

func TestMetricsIntegration(t *testing.T) {
	uniqueWorkflow := "test_integration_workflow"
	outcome := "test_integration_template"

	initialEvents := testutil.ToFloat64(EventsAcceptedTotal)
	initialIncidents := testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(uniqueWorkflow))
	initialTranslations := testutil.ToFloat64(QueriesTranslatedTotal.WithLabelValues(outcome))
	initialGateway := testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("success"))
	initialInFlight := testutil.ToFloat64(IncidentsInFlight)

	RecordGatewayRequest("success")

	numEvents := 3
	for i := 0; i < numEvents; i++ {
		RecordEventAccepted()
		RecordQueryTranslated(outcome)
		RecordQueryExecution(500 * time.Millisecond)

		IncrementIncidentsInFlight()
		RecordIncidentCompleted(uniqueWorkflow, 200*time.Millisecond)
		DecrementIncidentsInFlight()
	}

	assert.Equal(t, initialEvents+float64(numEvents), testutil.ToFloat64(EventsAcceptedTotal))
	assert.Equal(t, initialIncidents+float64(numEvents), testutil.ToFloat64(IncidentsCompletedTotal.WithLabelValues(uniqueWorkflow)))
	assert.Equal(t, initialTranslations+float64(numEvents), testutil.ToFloat64(QueriesTranslatedTotal.WithLabelValues(outcome)))
	assert.Equal(t, initialGateway+1.0, testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("success")))
	assert.Equal(t, initialInFlight, testutil.ToFloat64(IncidentsInFlight))
}

func TestMetricsNaming(t *testing.T) {
	metricNames := []string{
		"events_accepted_total",
		"incidents_completed_total",
		"step_duration_seconds",
		"workflow_duration_seconds",
		"events_filtered_total",
		"incident_execution_errors_total",
		"queries_translated_total",
		"query_execution_duration_seconds",
		"cluster_api_calls_total",
		"incidents_in_flight",
		"gateway_requests_total",
	}

	for _, name := range metricNames {
		assert.False(t, strings.Contains(name, "-"), "metric name %s should not contain hyphens", name)
		assert.False(t, strings.Contains(name, " "), "metric name %s should not contain spaces", name)

		if strings.Contains(name, "duration") {
			assert.True(t, strings.HasSuffix(name, "_seconds"), "duration metric %s should end with _seconds", name)
		}

		if strings.Contains(name, "accepted") || strings.Contains(name, "completed") ||
			strings.Contains(name, "filtered") || strings.Contains(name, "errors") ||
			strings.Contains(name, "translated") || strings.Contains(name, "calls") ||
			strings.Contains(name, "requests") {
			assert.True(t, strings.HasSuffix(name, "_total"), "counter metric %s should end with _total", name)
		}
	}
}
