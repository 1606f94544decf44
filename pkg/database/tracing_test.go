package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestQueryTracer_Span(t *testing.T) {
	exporter := setupTestTracer(t)
	qt := NewQueryTracer(0, nil)

	ctx := qt.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL:  "SELECT id FROM users WHERE email = $1",
		Args: []any{"a@x.com"},
	})
	qt.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.SELECT", spans[0].Name)
	for _, a := range spans[0].Attributes {
		assert.NotContains(t, a.Value.Emit(), "a@x.com")
	}
}

func TestQueryTracer_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	qt := NewQueryTracer(0, nil)

	ctx := qt.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "UPDATE users SET name = $2"})
	qt.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("deadlock detected")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestQueryTracer_NoRowsIsNotAnError(t *testing.T) {
	exporter := setupTestTracer(t)
	qt := NewQueryTracer(0, nil)

	ctx := qt.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	qt.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: pgx.ErrNoRows})

	assert.NotEqual(t, codes.Error, exporter.GetSpans()[0].Status.Code)
}

func TestQueryTracer_SlowQueryWarning(t *testing.T) {
	setupTestTracer(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	qt := NewQueryTracer(1, logger)

	ctx := qt.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT pg_sleep(1)"})
	qt.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	assert.Contains(t, buf.String(), "slow query detected")
}

func TestQueryTracer_EndWithoutStart(t *testing.T) {
	qt := NewQueryTracer(0, nil)
	assert.NotPanics(t, func() {
		qt.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	})
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "UPDATE", operationName("\n\t\tupdate users set x = 1"))
	assert.Equal(t, "UNKNOWN", operationName("   "))
}
