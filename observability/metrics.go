// Package observability provides the OpenTelemetry metric instruments and slog
// loggers shared by readers, writers and stores.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope of every instrument.
const ScopeName = "github.com/arloliu/op2"

const (
	metricTablesDecoded  = "op2.tables.decoded"
	metricTablesSkipped  = "op2.tables.skipped"
	metricTablesWritten  = "op2.tables.written"
	metricBytesRead      = "op2.bytes.read"
	metricBytesWritten   = "op2.bytes.written"
	metricDecodeDuration = "op2.decode.duration.seconds"
	metricSpills         = "op2.store.spills"
	metricSpilledBytes   = "op2.store.spilled.bytes"
	metricHydrations     = "op2.store.hydrations"

	attrCategory = "category"
	attrReason   = "reason"
	attrCodec    = "codec"
)

// decodeBucketBoundaries covers 10µs to 10s, from tiny summary tables to
// multi-gigabyte result blocks.
var decodeBucketBoundaries = []float64{0.00001, 0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// Metrics holds the instruments of one reader, writer or store. A nil *Metrics
// records nothing.
type Metrics struct {
	tablesDecoded  metric.Int64Counter
	tablesSkipped  metric.Int64Counter
	tablesWritten  metric.Int64Counter
	bytesRead      metric.Int64Counter
	bytesWritten   metric.Int64Counter
	decodeDuration metric.Float64Histogram
	spills         metric.Int64Counter
	spilledBytes   metric.Int64Counter
	hydrations     metric.Int64Counter
}

// NewMetrics creates the instruments from the given meter.
func NewMetrics(mt metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.tablesDecoded, metricTablesDecoded, "Tables decoded from archives", "{table}"},
		{&m.tablesSkipped, metricTablesSkipped, "Tables skipped with a diagnostic", "{table}"},
		{&m.tablesWritten, metricTablesWritten, "Tables written to archives", "{table}"},
		{&m.bytesRead, metricBytesRead, "Archive bytes consumed", "By"},
		{&m.bytesWritten, metricBytesWritten, "Archive bytes produced", "By"},
		{&m.spills, metricSpills, "Tables moved to secondary storage", "{table}"},
		{&m.spilledBytes, metricSpilledBytes, "Compressed bytes written to the spill file", "By"},
		{&m.hydrations, metricHydrations, "Tables re-hydrated from secondary storage", "{table}"},
	}
	for _, c := range counters {
		*c.dst, err = mt.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	m.decodeDuration, err = mt.Float64Histogram(metricDecodeDuration,
		metric.WithDescription("Table decode duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDecodeDuration, err)
	}

	return &m, nil
}

// Global returns instruments from the global meter provider, which records
// nothing until the application installs a provider. Returns nil if the
// instruments cannot be created.
func Global() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider().Meter(ScopeName))
	if err != nil {
		return nil
	}

	return m
}

// TableDecoded records one decoded table.
func (m *Metrics) TableDecoded(ctx context.Context, category string, bytes int64, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrCategory, category))
	m.tablesDecoded.Add(ctx, 1, attrs)
	m.bytesRead.Add(ctx, bytes)
	m.decodeDuration.Record(ctx, took.Seconds(), attrs)
}

// TableSkipped records one skipped table and the kind of reason.
func (m *Metrics) TableSkipped(ctx context.Context, reason string, bytes int64) {
	if m == nil {
		return
	}
	m.tablesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
	m.bytesRead.Add(ctx, bytes)
}

// TableWritten records one table written to an archive.
func (m *Metrics) TableWritten(ctx context.Context, category string, bytes int64) {
	if m == nil {
		return
	}
	m.tablesWritten.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCategory, category)))
	m.bytesWritten.Add(ctx, bytes)
}

// Spilled records one table moved to secondary storage.
func (m *Metrics) Spilled(ctx context.Context, codec string, compressedBytes int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrCodec, codec))
	m.spills.Add(ctx, 1, attrs)
	m.spilledBytes.Add(ctx, compressedBytes, attrs)
}

// Hydrated records one table read back from secondary storage.
func (m *Metrics) Hydrated(ctx context.Context) {
	if m == nil {
		return
	}
	m.hydrations.Add(ctx, 1)
}
