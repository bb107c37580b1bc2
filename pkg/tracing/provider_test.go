package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/tracing/exporters"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() { SetTracer(nil) })

	shutdown, err := Setup(context.Background(), Config{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, GetTraceID(context.Background()))

	_, err = Setup(context.Background(), Config{Exporter: "jaeger"})
	assert.Error(t, err)

	_, err = Setup(context.Background(), Config{Exporter: "otlp", OTLP: exporters.OTLPConfig{Protocol: "thrift"}})
	assert.ErrorIs(t, err, exporters.ErrUnsupportedProtocol)
}

func TestSetup_Console(t *testing.T) {
	t.Cleanup(func() { SetTracer(nil) })

	shutdown, err := Setup(context.Background(), Config{Exporter: "console", ServiceName: "clover-test"})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "tracing.Test")
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()
	require.NoError(t, shutdown(context.Background()))
}
