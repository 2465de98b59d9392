package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/terraskye/formations/otel"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	AttrAggregateID = attribute.Key("eventsourcing.aggregate.id")

	AttrEventType  = attribute.Key("eventsourcing.event.type")
	AttrEventID    = attribute.Key("eventsourcing.event.id")
	AttrEventCount = attribute.Key("eventsourcing.events.count")

	AttrExpectedRevision = attribute.Key("eventsourcing.stream.expected_revision")
	AttrStreamVersion    = attribute.Key("eventsourcing.stream.version")

	AttrOperation = attribute.Key("eventsourcing.operation")
	AttrErrorType = attribute.Key("eventsourcing.error.type")
)

type instruments struct {
	eventsAppended   metric.Int64Counter
	eventsLoaded     metric.Int64Counter
	storeDuration    metric.Float64Histogram
	storeErrors      metric.Int64Counter
	revisionConflict metric.Int64Counter
}

func newInstruments(meter metric.Meter) instruments {
	var in instruments

	in.eventsAppended, _ = meter.Int64Counter(
		"eventsourcing.events.appended",
		metric.WithDescription("Number of events appended to the event store"),
		metric.WithUnit("{event}"),
	)

	in.eventsLoaded, _ = meter.Int64Counter(
		"eventsourcing.events.loaded",
		metric.WithDescription("Number of events loaded from the event store"),
		metric.WithUnit("{event}"),
	)

	in.storeDuration, _ = meter.Float64Histogram(
		"eventsourcing.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	in.storeErrors, _ = meter.Int64Counter(
		"eventsourcing.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	in.revisionConflict, _ = meter.Int64Counter(
		"eventsourcing.eventstore.revision_conflicts",
		metric.WithDescription("Number of appends rejected by a revision check"),
		metric.WithUnit("{conflict}"),
	)

	return in
}
