package trace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/macropower/sopsgate/pkg/trace"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewProvider(exporter, "v1.2.3")

	_, span := tp.Tracer("test").Start(context.Background(), "encrypt")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "encrypt", spans[0].Name)

	attrs := spans[0].Resource.Attributes()
	assert.Contains(t, attrs, attribute.String("service.name", trace.ServiceName))
	assert.Contains(t, attrs, attribute.String("service.version", "v1.2.3"))

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSetup_NoEndpoint(t *testing.T) {
	t.Parallel()

	_, err := trace.Setup(context.Background(), "", "dev")
	require.ErrorIs(t, err, trace.ErrNoEndpoint)
}
