package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMeter(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return m, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)

			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}

			return total
		}
	}

	return 0
}

func TestMetrics(t *testing.T) {
	m, reader := setupTestMeter(t)
	ctx := context.Background()

	m.TableDecoded(ctx, "1", 100, time.Millisecond)
	m.TableDecoded(ctx, "5/33", 50, time.Millisecond)
	m.TableSkipped(ctx, "unrecognized", 30)
	m.TableWritten(ctx, "1", 120)
	m.Spilled(ctx, "s2", 64)
	m.Hydrated(ctx)

	require.Equal(t, int64(2), sumOf(t, reader, metricTablesDecoded))
	require.Equal(t, int64(1), sumOf(t, reader, metricTablesSkipped))
	require.Equal(t, int64(180), sumOf(t, reader, metricBytesRead))
	require.Equal(t, int64(120), sumOf(t, reader, metricBytesWritten))
	require.Equal(t, int64(64), sumOf(t, reader, metricSpilledBytes))
	require.Equal(t, int64(1), sumOf(t, reader, metricHydrations))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	require.NotPanics(t, func() {
		m.TableDecoded(ctx, "1", 1, time.Second)
		m.TableSkipped(ctx, "x", 1)
		m.TableWritten(ctx, "1", 1)
		m.Spilled(ctx, "none", 1)
		m.Hydrated(ctx)
	})
	require.NotNil(t, Global())
}

func TestNewLogger(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger("warn", LogFormatJSON, &buf)
		require.NoError(t, err)

		logger.Info("hidden")
		logger.Warn("skipped table", "table", "OUGV1")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		require.Equal(t, "skipped table", rec["msg"])
		require.Equal(t, "OUGV1", rec["table"])
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger("DEBUG", "", &buf)
		require.NoError(t, err)
		logger.Debug("spill", "bytes", 10)
		require.Contains(t, buf.String(), "msg=spill")
	})

	t.Run("BadLevel", func(t *testing.T) {
		_, err := NewLogger("loud", LogFormatText, &bytes.Buffer{})
		require.Error(t, err)
	})

	t.Run("BadFormat", func(t *testing.T) {
		_, err := NewLogger("info", "xml", &bytes.Buffer{})
		require.Error(t, err)
	})

	require.NotNil(t, Discard())
}
