package eventsourcing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/terraskye/formations"
)

var (
	meter = otel.Meter(instrumentationName)

	AggregatesLoaded, _ = meter.Int64Counter(
		"eventsourcing.aggregates.loaded",
		metric.WithDescription("Number of aggregates rehydrated from the event store"),
		metric.WithUnit("{aggregate}"),
	)

	EventsFolded, _ = meter.Int64Histogram(
		"eventsourcing.events.folded",
		metric.WithDescription("Number of events folded into a single projection"),
		metric.WithUnit("{event}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500, 1000),
	)

	ConcurrencyConflicts, _ = meter.Int64Counter(
		"eventsourcing.concurrency.conflicts",
		metric.WithDescription("Number of concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)
)
