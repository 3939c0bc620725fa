package adapters

import (
	"context"

	sharederrors "github.com/nimbusops/opswatch/pkg/shared/errors"
)

// PromQLMetricsAdapter satisfies MetricsAdapter by translating a natural-
// language query to PromQL and executing it, bridging the Step Executor's
// collect_*_metrics handlers to the query-gateway pipeline.
type PromQLMetricsAdapter struct {
	translate func(nlQuery string) (promql, timeRange string, ok bool, translateErr string)
	execute   func(ctx context.Context, promql, timeRange string) (MetricsResult, error)
}

// NewPromQLMetricsAdapter wires translate and execute, kept as plain
// function values rather than concrete *query.Translator/*query.Executor
// types so this package never imports pkg/query (pkg/query imports this
// package for MetricsResult/RequestSigner).
func NewPromQLMetricsAdapter(
	translate func(nlQuery string) (promql, timeRange string, ok bool, translateErr string),
	execute func(ctx context.Context, promql, timeRange string) (MetricsResult, error),
) *PromQLMetricsAdapter {
	return &PromQLMetricsAdapter{translate: translate, execute: execute}
}

var _ MetricsAdapter = (*PromQLMetricsAdapter)(nil)

func (a *PromQLMetricsAdapter) Query(ctx context.Context, nlQuery string) (MetricsResult, error) {
	promql, timeRange, ok, translateErr := a.translate(nlQuery)
	if !ok {
		return MetricsResult{}, sharederrors.ValidationError("query", translateErr)
	}
	return a.execute(ctx, promql, timeRange)
}
