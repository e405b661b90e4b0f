// Package observability provides OpenTelemetry tracing for the write path.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InsertBatchSpan is the name of the span around one bulk insert call.
const InsertBatchSpan = "tablewriter.insert_batch"

const instrumentationName = "github.com/ajitpratap0/tablewriter"

var (
	tracerMu sync.RWMutex
	tracer   trace.Tracer
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	ServiceName    string        `yaml:"service_name" json:"service_name"`
	ServiceVersion string        `yaml:"service_version" json:"service_version"`
	Environment    string        `yaml:"environment" json:"environment"`
	SamplingRate   float64       `yaml:"sampling_rate" json:"sampling_rate"`
	ExporterType   string        `yaml:"exporter" json:"exporter"` // "stdout" or "none"
	BatchTimeout   time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	MaxExportBatch int           `yaml:"max_export_batch" json:"max_export_batch"`
	MaxQueueSize   int           `yaml:"max_queue_size" json:"max_queue_size"`
}

// Tracer returns the installed tracer, or the global provider's tracer
// when InitTracing has not run.
func Tracer() trace.Tracer {
	tracerMu.RLock()
	t := tracer
	tracerMu.RUnlock()
	if t != nil {
		return t
	}
	return otel.Tracer(instrumentationName)
}

func setTracer(t trace.Tracer) {
	tracerMu.Lock()
	tracer = t
	tracerMu.Unlock()
}

// BatchAttrs describes one bulk insert.
type BatchAttrs struct {
	Table  string
	Worker int
	Rows   int
}

// TraceBatch runs fn inside an insert span and records its outcome.
func TraceBatch(ctx context.Context, attrs BatchAttrs, fn func(ctx context.Context) (int, error)) (int, error) {
	ctx, span := Tracer().Start(ctx, InsertBatchSpan, trace.WithAttributes(
		attribute.String("table", attrs.Table),
		attribute.Int("worker", attrs.Worker),
		attribute.Int("batch.rows", attrs.Rows),
	))
	defer span.End()

	accepted, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return accepted, err
	}
	span.SetAttributes(attribute.Int("batch.accepted", accepted))
	span.SetStatus(codes.Ok, "")
	return accepted, nil
}

// InjectContext writes the trace context of ctx into headers.
func InjectContext(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractContext returns ctx carrying the trace context found in headers.
func ExtractContext(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
