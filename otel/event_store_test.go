package otel_test

import (
	"context"
	"errors"
	"testing"

	es "github.com/terraskye/formations"
	"github.com/terraskye/formations/eventstore/memory"
	"github.com/terraskye/formations/fixtures"
	esotel "github.com/terraskye/formations/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type telemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newInstrumentedStore(t *testing.T, next es.EventStore, extra ...esotel.Option) (es.EventStore, telemetry) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	opts := append([]esotel.Option{esotel.WithTracerProvider(tp), esotel.WithMeterProvider(mp)}, extra...)
	return esotel.WithEventStoreTelemetry(next, opts...), telemetry{spans: spans, reader: reader}
}

func (tm telemetry) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := tm.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func attr(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTelemetryStore_Append(t *testing.T) {
	ctx := context.Background()
	store, tm := newInstrumentedStore(t, memory.NewMemoryStore(fixtures.DecodeTestEvent),
		esotel.WithAttributes(attribute.String("service", "formations")))

	ev := fixtures.NewTestEvent().WithID("f-1").Build()
	if err := store.Append(ctx, ev); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	ended := tm.spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	span := ended[0]
	if span.Name() != "EventStore.Append" {
		t.Errorf("span name = %q, want EventStore.Append", span.Name())
	}
	if span.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", span.SpanKind())
	}
	if v, _ := attr(span.Attributes(), esotel.AttrAggregateID); v.AsString() != "f-1" {
		t.Errorf("aggregate id attribute = %q, want f-1", v.AsString())
	}
	if v, _ := attr(span.Attributes(), esotel.AttrEventType); v.AsString() != string(fixtures.KindTestEvent) {
		t.Errorf("event type attribute = %q", v.AsString())
	}
	if v, _ := attr(span.Attributes(), "service"); v.AsString() != "formations" {
		t.Errorf("default attribute missing, got %q", v.AsString())
	}
	if span.Status().Code == codes.Error {
		t.Error("successful append marked as error")
	}

	if got := tm.counter(t, "eventsourcing.events.appended"); got != 1 {
		t.Errorf("events.appended = %d, want 1", got)
	}
}

func TestTelemetryStore_AppendStreamConflict(t *testing.T) {
	ctx := context.Background()
	store, tm := newInstrumentedStore(t, memory.NewMemoryStore(fixtures.DecodeTestEvent))

	batch := []es.Event{
		fixtures.NewTestEvent().WithID("f-1").Build(),
		fixtures.NewTestEvent().WithID("f-1").Build(),
	}
	if _, err := store.AppendStream(ctx, "f-1", batch, es.NoStream{}); err != nil {
		t.Fatalf("AppendStream() error = %v", err)
	}

	_, err := store.AppendStream(ctx, "f-1", batch[:1], es.Revision(1))
	var conflict *es.StreamRevisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StreamRevisionConflictError, got %v", err)
	}

	ended := tm.spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if v, _ := attr(ended[0].Attributes(), esotel.AttrStreamVersion); v.AsInt64() != 2 {
		t.Errorf("stream version attribute = %d, want 2", v.AsInt64())
	}
	failed := ended[1]
	if failed.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", failed.Status().Code)
	}
	if v, _ := attr(failed.Attributes(), esotel.AttrExpectedRevision); v.AsString() != "1" {
		t.Errorf("expected revision attribute = %q, want 1", v.AsString())
	}
	if len(failed.Events()) == 0 {
		t.Error("expected the error to be recorded on the span")
	}

	if got := tm.counter(t, "eventsourcing.events.appended"); got != 2 {
		t.Errorf("events.appended = %d, want 2", got)
	}
	if got := tm.counter(t, "eventsourcing.eventstore.revision_conflicts"); got != 1 {
		t.Errorf("revision_conflicts = %d, want 1", got)
	}
	if got := tm.counter(t, "eventsourcing.eventstore.errors"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestTelemetryStore_ListAll(t *testing.T) {
	ctx := context.Background()
	spy := fixtures.NewStoreSpy().WithEvents(
		fixtures.NewTestEvent().Build(),
		fixtures.NewTestEvent().Build(),
	)
	store, tm := newInstrumentedStore(t, spy)

	events, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if got := tm.counter(t, "eventsourcing.events.loaded"); got != 2 {
		t.Errorf("events.loaded = %d, want 2", got)
	}

	spy.FailOnList(errors.New("unavailable"))
	if _, err := store.ListAll(ctx); err == nil {
		t.Fatal("expected the list error to be returned")
	}
	ended := tm.spans.Ended()
	if got := ended[len(ended)-1].Status().Code; got != codes.Error {
		t.Errorf("status = %v, want error", got)
	}
}

func TestTelemetryStore_Close(t *testing.T) {
	spy := fixtures.NewStoreSpy()
	store, _ := newInstrumentedStore(t, spy)

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if spy.CloseCalls != 1 {
		t.Errorf("CloseCalls = %d, want 1", spy.CloseCalls)
	}
}
