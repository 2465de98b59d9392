package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	es "github.com/terraskye/formations"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ es.EventStore = (*TelemetryStore)(nil)

// TelemetryStore traces and measures every call to the wrapped store.
type TelemetryStore struct {
	next   es.EventStore
	tracer trace.Tracer
	attrs  []attribute.KeyValue
	in     instruments
}

func (t *TelemetryStore) Append(ctx context.Context, event es.Event) error {
	attrs := []attribute.KeyValue{AttrOperation.String("append")}
	if event != nil {
		attrs = append(attrs,
			AttrAggregateID.String(event.AggregateID()),
			AttrEventType.String(string(event.Kind())),
			AttrEventID.String(event.EventID().String()),
		)
	}

	ctx, span := t.start(ctx, "EventStore.Append", attrs...)
	defer span.End()

	start := time.Now()
	err := t.next.Append(ctx, event)
	t.record(ctx, span, "append", start, err)

	if err == nil {
		t.in.eventsAppended.Add(ctx, 1)
	}
	return err
}

func (t *TelemetryStore) AppendStream(ctx context.Context, aggregateID string, events []es.Event, expected es.StreamState) (es.AppendResult, error) {
	ctx, span := t.start(ctx, "EventStore.AppendStream",
		AttrOperation.String("append_stream"),
		AttrAggregateID.String(aggregateID),
		AttrEventCount.Int(len(events)),
		AttrExpectedRevision.String(fmt.Sprint(expected)),
	)
	defer span.End()

	start := time.Now()
	result, err := t.next.AppendStream(ctx, aggregateID, events, expected)
	t.record(ctx, span, "append_stream", start, err)

	if err != nil {
		var conflict *es.StreamRevisionConflictError
		if errors.As(err, &conflict) {
			t.in.revisionConflict.Add(ctx, 1, metric.WithAttributes(AttrAggregateID.String(aggregateID)))
		}
		return result, err
	}

	span.SetAttributes(AttrStreamVersion.Int64(int64(result.NextExpectedVersion)))
	t.in.eventsAppended.Add(ctx, int64(len(events)))
	return result, nil
}

func (t *TelemetryStore) ListAll(ctx context.Context) ([]es.Event, error) {
	ctx, span := t.start(ctx, "EventStore.ListAll", AttrOperation.String("list_all"))
	defer span.End()

	start := time.Now()
	events, err := t.next.ListAll(ctx)
	t.record(ctx, span, "list_all", start, err)

	if err == nil {
		span.SetAttributes(AttrEventCount.Int(len(events)))
		t.in.eventsLoaded.Add(ctx, int64(len(events)))
	}
	return events, err
}

// Close just forwards
func (t *TelemetryStore) Close() error {
	return t.next.Close()
}

func (t *TelemetryStore) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.attrs...),
		trace.WithAttributes(attrs...),
	)
}

func (t *TelemetryStore) record(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	opAttr := metric.WithAttributes(AttrOperation.String(op))
	t.in.storeDuration.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)

	if err != nil {
		t.in.storeErrors.Add(ctx, 1, opAttr, metric.WithAttributes(AttrErrorType.String(fmt.Sprintf("%T", err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// WithEventStoreTelemetry wraps next with tracing and metrics.
func WithEventStoreTelemetry(next es.EventStore, options ...Option) es.EventStore {
	cfg := newConfig(options)
	return &TelemetryStore{
		next:   next,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
		attrs:  cfg.Attributes,
		in:     newInstruments(cfg.MeterProvider.Meter(instrumentationName)),
	}
}
