package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nimbusops/opswatch/pkg/adapters"
)

type fakeSigner struct {
	calls int
	err   error
}

func (f *fakeSigner) Sign(ctx context.Context, req adapters.SignableRequest, service, region string) error {
	f.calls++
	req.Headers["Authorization"] = []string{"fake-signature"}
	return f.err
}

const rangeResponseBody = `{
	"status": "success",
	"data": {
		"resultType": "matrix",
		"result": [
			{"metric": {"pod": "my-pod"}, "values": [[1000, "10"], [1010, "20"], [1020, "30"], [1030, "40"]]}
		]
	}
}`

func TestExecutorQueryRangeParsesResultAndSigns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "fake-signature" {
			t.Error("expected the signed Authorization header to reach the server")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(rangeResponseBody))
	}))
	defer srv.Close()

	signer := &fakeSigner{}
	ex := NewExecutor(srv.URL, signer, "aps", "us-east-1", nil)

	result, err := ex.QueryRange(context.Background(), `sum(rate(http_requests_total[5m]))`, "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signer.calls != 1 {
		t.Errorf("expected the signer to be called once, got %d", signer.calls)
	}
	if result.Current != 40 {
		t.Errorf("got current %v, want 40", result.Current)
	}
	if result.Trend != "increasing" {
		t.Errorf("got trend %q, want increasing", result.Trend)
	}
	if result.SeriesCount != 1 {
		t.Errorf("got series count %d, want 1", result.SeriesCount)
	}
}

func TestExecutorQueryRangeParsesInstantVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[
			{"metric":{"pod":"a"},"value":[1000,"12"]},
			{"metric":{"pod":"b"},"value":[1000,"48"]}
		]}}`))
	}))
	defer srv.Close()

	ex := NewExecutor(srv.URL, nil, "aps", "us-east-1", nil)
	result, err := ex.QueryRange(context.Background(), "up", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Current != 12 {
		t.Errorf("got current %v, want the first series' value 12", result.Current)
	}
	if result.Min != 12 || result.Max != 48 || result.Average != 30 {
		t.Errorf("got min/max/avg %v/%v/%v, want 12/48/30", result.Min, result.Max, result.Average)
	}
	if result.SeriesCount != 2 {
		t.Errorf("got series count %d, want 2", result.SeriesCount)
	}
}

func TestExecutorQueryRangeEmptyResultIsUnknownTrend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"resultType":"matrix","result":[]}}`))
	}))
	defer srv.Close()

	ex := NewExecutor(srv.URL, nil, "aps", "us-east-1", nil)
	result, err := ex.QueryRange(context.Background(), "up", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Trend != "unknown" {
		t.Errorf("got trend %q, want unknown for an empty result", result.Trend)
	}
}

func TestExecutorQueryRangeNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	ex := NewExecutor(srv.URL, nil, "aps", "us-east-1", nil)
	if _, err := ex.QueryRange(context.Background(), "up", "1h"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestExecutorCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex := NewExecutor(srv.URL, nil, "aps", "us-east-1", &http.Client{Timeout: 2 * time.Second})

	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = ex.QueryRange(context.Background(), "up", "1h")
	}
	if lastErr == nil {
		t.Fatal("expected an error once the circuit breaker opens")
	}
}

func TestExecutorDiscoverMetricsReturnsLabelValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/label/__name__/values" {
			t.Errorf("got path %q, want the label values endpoint", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "fake-signature" {
			t.Error("expected the signed Authorization header to reach the server")
		}
		w.Write([]byte(`{"status":"success","data":["container_memory_usage_bytes","http_requests_total"]}`))
	}))
	defer srv.Close()

	signer := &fakeSigner{}
	ex := NewExecutor(srv.URL, signer, "aps", "us-east-1", nil)

	names, err := ex.DiscoverMetrics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"container_memory_usage_bytes", "http_requests_total"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("got %v, want %v", names, want)
	}
}

func TestExecutorDiscoverMetricsNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := NewExecutor(srv.URL, nil, "aps", "us-east-1", nil)
	if _, err := ex.DiscoverMetrics(context.Background()); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestParseTimeRangeDefaults(t *testing.T) {
	cases := map[string]time.Duration{
		"1h":      time.Hour,
		"30m":     30 * time.Minute,
		"7d":      7 * 24 * time.Hour,
		"2w":      14 * 24 * time.Hour,
		"garbage": time.Hour,
		"":        time.Hour,
	}
	for in, want := range cases {
		if got := parseTimeRange(in); got != want {
			t.Errorf("parseTimeRange(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCalculateTrend(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   string
	}{
		{"increasing", []float64{10, 10, 30, 30}, "increasing"},
		{"decreasing", []float64{30, 30, 10, 10}, "decreasing"},
		{"stable", []float64{20, 21, 19, 20}, "stable"},
		{"too few samples", []float64{5}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := calculateTrend(tc.values); got != tc.want {
				t.Errorf("calculateTrend(%v) = %q, want %q", tc.values, got, tc.want)
			}
		})
	}
}
