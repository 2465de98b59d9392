package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// config holds the options for instrumenting an event store.
type config struct {
	// TracerProvider creates the tracer for store spans. Defaults to the
	// global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider creates the meter for store metrics. Defaults to the
	// global provider.
	MeterProvider metric.MeterProvider

	// Attributes holds the default attributes for each span created by this middleware.
	Attributes []attribute.KeyValue
}

func newConfig(options []Option) config {
	cfg := config{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range options {
		o.apply(&cfg)
	}
	return cfg
}

// Option configures the instrumentation.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

// WithTracerProvider sets the provider the store tracer is taken from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return optionFunc(func(o *config) {
		o.TracerProvider = tp
	})
}

// WithMeterProvider sets the provider the store meter is taken from.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return optionFunc(func(o *config) {
		o.MeterProvider = mp
	})
}

// WithAttributes sets the default attributes for the spans created by the store.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.Attributes = attrs
	})
}
