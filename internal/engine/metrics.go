package engine

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("molecule.engine")

// Metrics for history operations.
var (
	commitsTotal     metric.Int64Counter
	undoTotal        metric.Int64Counter
	redoTotal        metric.Int64Counter
	executeFailures  metric.Int64Counter
	blueprintChanges metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commitsTotal, err = meter.Int64Counter(
			"graph_commits_total",
			metric.WithDescription("Total number of committed blueprints"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		undoTotal, err = meter.Int64Counter(
			"graph_undo_total",
			metric.WithDescription("Total number of undo operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		redoTotal, err = meter.Int64Counter(
			"graph_redo_total",
			metric.WithDescription("Total number of redo operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		executeFailures, err = meter.Int64Counter(
			"graph_execute_failures_total",
			metric.WithDescription("Total number of builder executions rejected by validation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		blueprintChanges, err = meter.Int64Histogram(
			"graph_blueprint_changes",
			metric.WithDescription("Number of individual changes per applied blueprint"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordHistory records one commit, undo or redo.
func recordHistory(ctx context.Context, kind EventKind, changes int) {
	if err := initMetrics(); err != nil {
		return
	}

	switch kind {
	case EventCommit:
		commitsTotal.Add(ctx, 1)
	case EventUndo:
		undoTotal.Add(ctx, 1)
	case EventRedo:
		redoTotal.Add(ctx, 1)
	}
	blueprintChanges.Record(ctx, int64(changes), metric.WithAttributes(attribute.String("kind", kind.String())))
}

// RecordExecuteFailure counts a builder execution rejected by validation.
// errorCount is the number of atomic errors reported.
func RecordExecuteFailure(ctx context.Context, errorCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	executeFailures.Add(ctx, 1, metric.WithAttributes(attribute.Int("errors", errorCount)))
}
