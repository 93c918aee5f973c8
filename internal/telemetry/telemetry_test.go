package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTelemetry_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := InitTelemetry(context.Background(), Options{ServiceName: "tourctl", Version: "dev"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestGetMetrics_Singleton(t *testing.T) {
	m1 := GetMetrics()
	m2 := GetMetrics()

	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
	assert.NotNil(t, m1.RequestsTotal)
	assert.NotNil(t, m1.RefreshAttemptsTotal)
	assert.NotNil(t, m1.CacheRollbacksTotal)
}
