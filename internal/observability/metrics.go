package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Recorder records engine metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	meterProvider   *metric.MeterProvider
	classifications otelmetric.Int64Counter
	llmLatency      otelmetric.Float64Histogram
	transitions     otelmetric.Int64Counter
	decisions       otelmetric.Int64Counter
	escalations     otelmetric.Int64Counter
}

// NewPrometheus registers a Prometheus exporter as the global meter provider.
// Serve promhttp.Handler() to expose the metrics.
func NewPrometheus(serviceName string) (*Recorder, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	r, err := New(provider.Meter(serviceName))
	if err != nil {
		return nil, err
	}
	r.meterProvider = provider
	return r, nil
}

// NewNoop returns a recorder backed by the no-op meter.
func NewNoop() *Recorder {
	r, _ := New(noop.NewMeterProvider().Meter("noop"))
	return r
}

// New creates the instruments on meter.
func New(meter otelmetric.Meter) (*Recorder, error) {
	var (
		r   Recorder
		err error
	)
	if r.classifications, err = meter.Int64Counter(
		"loan.classifications",
		otelmetric.WithDescription("Classified messages by source and intent"),
	); err != nil {
		return nil, err
	}
	if r.llmLatency, err = meter.Float64Histogram(
		"loan.llm.duration",
		otelmetric.WithDescription("Language model call duration"),
		otelmetric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if r.transitions, err = meter.Int64Counter(
		"loan.stage.transitions",
		otelmetric.WithDescription("Stage transitions"),
	); err != nil {
		return nil, err
	}
	if r.decisions, err = meter.Int64Counter(
		"loan.underwriting.decisions",
		otelmetric.WithDescription("Underwriting decisions by outcome"),
	); err != nil {
		return nil, err
	}
	if r.escalations, err = meter.Int64Counter(
		"loan.escalations",
		otelmetric.WithDescription("Applications handed to a relationship manager"),
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Recorder) RecordClassification(ctx context.Context, source, intent, fallbackReason string) {
	if r == nil || r.classifications == nil {
		return
	}
	r.classifications.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("source", source),
		attribute.String("intent", intent),
		attribute.String("fallback_reason", fallbackReason),
	))
}

func (r *Recorder) RecordLLMCall(ctx context.Context, d time.Duration, outcome string) {
	if r == nil || r.llmLatency == nil {
		return
	}
	r.llmLatency.Record(ctx, float64(d.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) RecordTransition(ctx context.Context, from, to string) {
	if r == nil || r.transitions == nil || from == to {
		return
	}
	r.transitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (r *Recorder) RecordDecision(ctx context.Context, decision, reason string) {
	if r == nil || r.decisions == nil {
		return
	}
	r.decisions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("reason", reason),
	))
}

func (r *Recorder) RecordEscalation(ctx context.Context, reason string) {
	if r == nil || r.escalations == nil {
		return
	}
	r.escalations.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

// Shutdown flushes and stops the meter provider if this recorder owns one.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.meterProvider == nil {
		return nil
	}
	return r.meterProvider.Shutdown(ctx)
}
