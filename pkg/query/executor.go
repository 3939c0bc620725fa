package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/metrics"
	sharederrors "github.com/nimbusops/opswatch/pkg/shared/errors"
	sharedmath "github.com/nimbusops/opswatch/pkg/shared/math"
)

// timeRangeUnit maps a trailing letter to its time.Duration multiplier
// for "1h", "30m", "1d", "7d" style range strings.
var timeRangeUnit = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// parseTimeRange parses strings like "1h", "30m", "7d" into a duration,
// defaulting to one hour on any parse failure.
func parseTimeRange(s string) time.Duration {
	if len(s) < 2 {
		return time.Hour
	}
	unit, ok := timeRangeUnit[s[len(s)-1]]
	if !ok {
		return time.Hour
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * unit
}

// Executor runs a translated PromQL query against a remote Prometheus-
// compatible range-query endpoint, signing every outbound request through
// a pluggable RequestSigner and guarding calls with a circuit breaker.
type Executor struct {
	baseURL string
	signer  adapters.RequestSigner
	service string
	region  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewExecutor returns an Executor that queries baseURL's /api/v1/query_range
// endpoint, signing requests for service/region via signer.
func NewExecutor(baseURL string, signer adapters.RequestSigner, service, region string, client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prometheus-query-executor",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Executor{baseURL: baseURL, signer: signer, service: service, region: region, client: client, breaker: breaker}
}

// rangeResponse mirrors Prometheus's query JSON response shape. Matrix
// series carry "values"; instant vectors carry a single "value".
type rangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]interface{}  `json:"values"`
			Value  [2]interface{}    `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// QueryRange executes promql over timeRange (e.g. "1h"), returning the
// normalized MetricsResult. Transient transport failures are retried at
// most once before counting against the breaker.
func (ex *Executor) QueryRange(ctx context.Context, promql, timeRange string) (adapters.MetricsResult, error) {
	timer := metrics.NewTimer()
	defer timer.RecordQueryExecution()

	out, err := ex.breaker.Execute(func() (interface{}, error) {
		result, err := ex.doQueryRange(ctx, promql, timeRange)
		if err != nil && sharederrors.IsRetryable(err) {
			result, err = ex.doQueryRange(ctx, promql, timeRange)
		}
		return result, err
	})
	if err != nil {
		return adapters.MetricsResult{}, err
	}
	return out.(adapters.MetricsResult), nil
}

func (ex *Executor) doQueryRange(ctx context.Context, promql, timeRange string) (adapters.MetricsResult, error) {
	end := time.Now().UTC()
	start := end.Add(-parseTimeRange(timeRange))

	u, err := url.Parse(ex.baseURL + "/api/v1/query_range")
	if err != nil {
		return adapters.MetricsResult{}, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("query", promql)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", "15s")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return adapters.MetricsResult{}, err
	}

	if ex.signer != nil {
		signable := adapters.SignableRequest{Method: http.MethodGet, URL: u.String(), Headers: map[string][]string{}}
		if err := ex.signer.Sign(ctx, signable, ex.service, ex.region); err != nil {
			return adapters.MetricsResult{}, fmt.Errorf("signing request: %w", err)
		}
		for k, vs := range signable.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := ex.client.Do(req)
	if err != nil {
		return adapters.MetricsResult{}, sharederrors.NetworkError("execute range query", ex.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapters.MetricsResult{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return adapters.MetricsResult{}, fmt.Errorf("query range failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed rangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return adapters.MetricsResult{}, fmt.Errorf("parsing response: %w", err)
	}
	return parseRangeResult(parsed), nil
}

// parseRangeResult flattens every series' values into one slice and derives
// current/min/max/average/trend. Instant-vector responses reduce the same
// way, with the first series' sample as the current value.
func parseRangeResult(resp rangeResponse) adapters.MetricsResult {
	var allValues []float64
	for _, series := range resp.Data.Result {
		samples := series.Values
		if resp.Data.ResultType == "vector" {
			samples = [][2]interface{}{series.Value}
		}
		for _, v := range samples {
			s, ok := v[1].(string)
			if !ok {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				continue
			}
			allValues = append(allValues, f)
		}
	}

	if len(allValues) == 0 {
		return adapters.MetricsResult{Trend: "unknown", SeriesCount: len(resp.Data.Result)}
	}

	current := allValues[len(allValues)-1]
	if resp.Data.ResultType == "vector" {
		current = allValues[0]
	}

	return adapters.MetricsResult{
		Current:     current,
		Min:         sharedmath.Min(allValues),
		Max:         sharedmath.Max(allValues),
		Average:     sharedmath.Mean(allValues),
		Trend:       calculateTrend(allValues),
		SeriesCount: len(resp.Data.Result),
	}
}

// labelValuesResponse mirrors Prometheus's /api/v1/label/<name>/values
// response shape.
type labelValuesResponse struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
}

// DiscoverMetrics lists known metric names by querying the backend's
// __name__ label values, signed the same way as QueryRange.
func (ex *Executor) DiscoverMetrics(ctx context.Context) ([]string, error) {
	out, err := ex.breaker.Execute(func() (interface{}, error) {
		return ex.doDiscoverMetrics(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

func (ex *Executor) doDiscoverMetrics(ctx context.Context) ([]string, error) {
	u, err := url.Parse(ex.baseURL + "/api/v1/label/__name__/values")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	if ex.signer != nil {
		signable := adapters.SignableRequest{Method: http.MethodGet, URL: u.String(), Headers: map[string][]string{}}
		if err := ex.signer.Sign(ctx, signable, ex.service, ex.region); err != nil {
			return nil, fmt.Errorf("signing request: %w", err)
		}
		for k, vs := range signable.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := ex.client.Do(req)
	if err != nil {
		return nil, sharederrors.NetworkError("discover metrics", ex.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("label values failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed labelValuesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return parsed.Data, nil
}

// calculateTrend compares the mean of the first half of values against the
// second half: >1.1x increasing, <0.9x decreasing, else stable.
func calculateTrend(values []float64) string {
	if len(values) < 2 {
		return "unknown"
	}
	mid := len(values) / 2
	firstHalf := sharedmath.Mean(values[:mid])
	secondHalf := sharedmath.Mean(values[mid:])

	switch {
	case secondHalf > firstHalf*1.1:
		return "increasing"
	case secondHalf < firstHalf*0.9:
		return "decreasing"
	default:
		return "stable"
	}
}
