package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"student-records/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMeterProvider_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider, err := InitMeterProvider(context.Background(), config.TelemetryConfig{}, "student-records", "test", logger)
	require.NoError(t, err)
	assert.Nil(t, provider)

	assert.NoError(t, Shutdown(context.Background(), provider, logger))
}

func TestInitMeterProvider_Enabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", IntervalSeconds: 60}

	// the gRPC exporter dials lazily, so no collector is needed
	provider, err := InitMeterProvider(context.Background(), cfg, "student-records", "test", logger)
	require.NoError(t, err)
	require.NotNil(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = Shutdown(ctx, provider, logger)
}
