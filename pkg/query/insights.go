package query

import (
	"fmt"
	"strings"

	"github.com/nimbusops/opswatch/pkg/adapters"
)

// InsightGenerator produces human-readable insights from a MetricsResult.
// The emoji-prefixed threshold strings are stable identifiers chat
// consumers and alert filters match on.
type InsightGenerator struct{}

// NewInsightGenerator returns an InsightGenerator. It carries no state:
// every insight is a pure function of its inputs.
func NewInsightGenerator() *InsightGenerator {
	return &InsightGenerator{}
}

// Generate returns an ordered list of insight strings for promql's result:
// current value, trend, variability, thresholds, series count, then the
// PromQL itself for reference.
func (g *InsightGenerator) Generate(nlQuery, promql string, result adapters.MetricsResult) []string {
	var insights []string

	if result.Current > 0 {
		insights = append(insights, fmt.Sprintf("Current value: %.2f", result.Current))
	}

	switch result.Trend {
	case "increasing":
		insights = append(insights, "⚠️ Metric is increasing over time - monitor closely")
	case "decreasing":
		insights = append(insights, "✅ Metric is decreasing - situation improving")
	case "stable":
		insights = append(insights, "ℹ️ Metric is stable")
	}

	if result.Max > 0 && result.Min >= 0 {
		variation := (result.Max - result.Min) / result.Max * 100
		if variation > 50 {
			insights = append(insights, fmt.Sprintf("High variability detected: %.1f%% variation between min and max", variation))
		}
	}

	insights = append(insights, checkThresholds(nlQuery, result.Current)...)

	if result.SeriesCount > 10 {
		insights = append(insights, fmt.Sprintf("High cardinality: %d time series returned", result.SeriesCount))
	}

	insights = append(insights, fmt.Sprintf("PromQL: `%s`", promql))
	return insights
}

// checkThresholds flags common threshold violations by keyword in the
// submitted natural-language query (percentages for memory/CPU/error rate,
// milliseconds for latency).
func checkThresholds(nlQuery string, current float64) []string {
	lower := strings.ToLower(nlQuery)
	var insights []string

	if strings.Contains(lower, "memory") {
		switch {
		case current > 90:
			insights = append(insights, "🔴 CRITICAL: Memory usage > 90% - OOMKill risk")
		case current > 80:
			insights = append(insights, "🟠 WARNING: Memory usage > 80%")
		case current > 70:
			insights = append(insights, "🟡 CAUTION: Memory usage > 70%")
		}
	}

	if strings.Contains(lower, "cpu") {
		switch {
		case current > 85:
			insights = append(insights, "🔴 CRITICAL: CPU usage > 85% - throttling likely")
		case current > 70:
			insights = append(insights, "🟠 WARNING: CPU usage > 70%")
		}
	}

	if strings.Contains(lower, "latency") || strings.Contains(lower, "duration") {
		switch {
		case current > 3000:
			insights = append(insights, "🔴 CRITICAL: Latency > 3s - user experience severely impacted")
		case current > 1000:
			insights = append(insights, "🟠 WARNING: Latency > 1s - user experience degraded")
		case current > 500:
			insights = append(insights, "🟡 CAUTION: Latency > 500ms")
		}
	}

	if strings.Contains(lower, "error") {
		switch {
		case current > 5:
			insights = append(insights, "🔴 CRITICAL: Error rate > 5%")
		case current > 1:
			insights = append(insights, "🟠 WARNING: Error rate > 1%")
		}
	}

	return insights
}
