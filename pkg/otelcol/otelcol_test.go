package otelcol

import (
	"context"
	"testing"

	"pagewatch/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider(t *testing.T) {
	cfg := &config.Config{AppName: "pagewatch", AppEnv: "test"}
	exporter := tracetest.NewInMemoryExporter()

	tp, err := NewTracerProvider(cfg, exporter)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "watch.Execute")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "watch.Execute", spans[0].Name)

	var name string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			name = kv.Value.AsString()
		}
	}
	require.Equal(t, "pagewatch", name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

