package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/xray"

	"github.com/nimbusops/opswatch/pkg/metrics"
)

// XRayTraceAdapter is the TraceAdapter implementation backed by AWS X-Ray.
type XRayTraceAdapter struct {
	client       *xray.Client
	periodWindow time.Duration
}

// NewXRayTraceAdapter returns an XRayTraceAdapter scanning the trailing
// periodWindow for every call (default one hour).
func NewXRayTraceAdapter(client *xray.Client, periodWindow time.Duration) *XRayTraceAdapter {
	if periodWindow <= 0 {
		periodWindow = time.Hour
	}
	return &XRayTraceAdapter{client: client, periodWindow: periodWindow}
}

var _ TraceAdapter = (*XRayTraceAdapter)(nil)

// segment is the subset of a trace segment document the bottleneck
// computation needs.
type segment struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

func (a *XRayTraceAdapter) GetSlowTraces(ctx context.Context, serviceName string, thresholdMS float64, limit int) ([]Trace, error) {
	metrics.RecordClusterAPICall("xray_get_slow_traces")
	end := time.Now().UTC()
	start := end.Add(-a.periodWindow)

	filter := fmt.Sprintf("duration >= %g", thresholdMS/1000)
	summaries, err := a.client.GetTraceSummaries(ctx, &xray.GetTraceSummariesInput{
		StartTime:        aws.Time(start),
		EndTime:          aws.Time(end),
		FilterExpression: aws.String(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("getting trace summaries: %w", err)
	}

	if limit <= 0 || limit > 10 {
		limit = 10
	}

	var traces []Trace
	for i, s := range summaries.TraceSummaries {
		if i >= limit {
			break
		}
		traceID := aws.ToString(s.Id)
		segments := a.traceSegments(ctx, traceID)
		bottleneck := identifyBottleneck(segments)

		traces = append(traces, Trace{
			ID:          traceID,
			DurationMS:  durationSecondsToMS(s.Duration),
			Bottleneck:  bottleneck,
			SegmentName: bottleneck,
		})
	}
	return traces, nil
}

func (a *XRayTraceAdapter) traceSegments(ctx context.Context, traceID string) []segment {
	out, err := a.client.BatchGetTraces(ctx, &xray.BatchGetTracesInput{TraceIds: []string{traceID}})
	if err != nil || len(out.Traces) == 0 {
		return nil
	}

	var segments []segment
	for _, raw := range out.Traces[0].Segments {
		if raw.Document == nil {
			continue
		}
		var seg segment
		if err := json.Unmarshal([]byte(*raw.Document), &seg); err != nil {
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}

// identifyBottleneck returns the slowest segment's name (longest
// end_time - start_time).
func identifyBottleneck(segments []segment) string {
	if len(segments) == 0 {
		return ""
	}
	slowest := segments[0]
	for _, s := range segments[1:] {
		if (s.EndTime - s.StartTime) > (slowest.EndTime - slowest.StartTime) {
			slowest = s
		}
	}
	return slowest.Name
}

func durationSecondsToMS(d *float64) float64 {
	if d == nil {
		return 0
	}
	return *d * 1000
}

func (a *XRayTraceAdapter) GetServiceMap(ctx context.Context, serviceName string) (map[string]interface{}, error) {
	metrics.RecordClusterAPICall("xray_get_service_map")
	end := time.Now().UTC()
	start := end.Add(-a.periodWindow)

	resp, err := a.client.GetServiceGraph(ctx, &xray.GetServiceGraphInput{
		StartTime: aws.Time(start),
		EndTime:   aws.Time(end),
	})
	if err != nil {
		return nil, fmt.Errorf("getting service graph: %w", err)
	}

	var dependencies []map[string]interface{}
	for _, svc := range resp.Services {
		for _, edge := range svc.Edges {
			if edge.ReferenceId == nil {
				continue
			}
			dependencies = append(dependencies, map[string]interface{}{
				"name": aws.ToInt32(edge.ReferenceId),
			})
		}
	}

	return map[string]interface{}{
		"service":      serviceName,
		"dependencies": dependencies,
	}, nil
}
