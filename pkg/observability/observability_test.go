package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recorderTracer(t *testing.T) (*tracetest.SpanRecorder, *StoreTracer) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, NewStoreTracer(tp.Tracer("test"), "sqlite", "MNISTImages")
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTraceBatchSuccess(t *testing.T) {
	rec, st := recorderTracer(t)

	called := false
	err := st.TraceBatch(context.Background(), 3, 1, 500, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.insert_batch", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	v, ok := attr(spans[0], "digit.label")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
	v, ok = attr(spans[0], "db.sql.table")
	require.True(t, ok)
	assert.Equal(t, "MNISTImages", v.AsString())
}

func TestTraceBatchFailure(t *testing.T) {
	rec, st := recorderTracer(t)

	boom := errors.New("deadlock victim")
	err := st.TraceBatch(context.Background(), 0, 2, 10, func(context.Context) error { return boom })
	assert.Equal(t, boom, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "deadlock victim", spans[0].Status().Description)
}

func TestInitializeDisabledIsNoop(t *testing.T) {
	shutdown, err := Initialize(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitializeExportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Writer = &buf

	shutdown, err := Initialize(cfg)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "unit")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"unit"`)
}
