package observability

import (
	"testing"

	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDerivesComponentConfigs(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("LOG_FORMAT", "Console")

	cfg := LoadConfig(config.Config{
		Environment:  "development",
		AppVersion:   " 1.4.0 ",
		LogLevel:     "info",
		OTLPEnabled:  true,
		OTLPEndpoint: " collector:4317 ",
		OTLPProtocol: "grpc",
	})
	assert.Equal(t, "ledgerbook", cfg.ServiceName)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)

	lc := cfg.Logger()
	assert.True(t, lc.IncludeStackOnError)
	assert.Equal(t, "1.4.0", lc.Version)

	tc := cfg.Tracing()
	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector:4317", tc.ExporterEndpoint)

	mc := cfg.Metrics()
	assert.Equal(t, tc.ExporterEndpoint, mc.ExporterEndpoint)
	assert.Equal(t, "ledgerbook", mc.ServiceName)
}

func TestDebugFollowsLevelOrEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "local"}.Debug())
}
