package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ObservabilityFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.False(t, cfg.Observability.OtelEnabled)
	assert.Equal(t, 0.5, cfg.Observability.SamplingRatio)
	assert.Equal(t, "collector:4317", cfg.Observability.OTLPEndpoint)
	assert.Equal(t, "grpc", cfg.Observability.OTLPProtocol)
}

func TestLoad_RejectsMalformedSamplingRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "often")

	_, err := Load()
	assert.Error(t, err)
}
