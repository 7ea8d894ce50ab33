// Package observability provides OpenTelemetry tracing for mnistsql
package observability

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/mnistsql"

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	BatchTimeout   time.Duration
	// Writer receives exported spans; stdout when nil
	Writer      io.Writer
	PrettyPrint bool
}

// Tracer returns a tracer from the global provider. Until Initialize
// installs a provider this is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StoreTracer traces storage operations against one table.
type StoreTracer struct {
	dialect string
	table   string
	tracer  trace.Tracer
}

// NewStoreTracer creates a tracer for operations on table. A nil tracer
// uses the global one.
func NewStoreTracer(tracer trace.Tracer, dialect, table string) *StoreTracer {
	if tracer == nil {
		tracer = Tracer()
	}
	return &StoreTracer{dialect: dialect, table: table, tracer: tracer}
}

// StartSpan starts a span named "store.<operation>" carrying the dialect and
// table attributes.
func (st *StoreTracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", st.dialect),
		attribute.String("db.sql.table", st.table),
	)
	return st.tracer.Start(ctx, "store."+operation, trace.WithAttributes(attrs...))
}

// TraceBatch wraps one bulk insert of size rows for label.
func (st *StoreTracer) TraceBatch(ctx context.Context, label, batch, size int, fn func(ctx context.Context) error) error {
	ctx, span := st.StartSpan(ctx, "insert_batch",
		attribute.Int("digit.label", label),
		attribute.Int("batch.index", batch),
		attribute.Int("batch.size", size),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	if duration > 0 {
		span.SetAttributes(attribute.Float64("batch.throughput", float64(size)/duration.Seconds()))
	}
	return nil
}

// End finishes span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
