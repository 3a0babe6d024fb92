package archive

import (
	"errors"
	"log/slog"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/geometry"
	"github.com/arloliu/op2/internal/options"
	"github.com/arloliu/op2/observability"
	"github.com/arloliu/op2/table"
)

type readConfig struct {
	byteOrder    endian.EndianEngine
	precision    format.Precision
	registry     *table.Registry
	logger       *slog.Logger
	metrics      *observability.Metrics
	workers      int
	geometry     *geometry.Index
	maxFrameSize int
}

func defaultReadConfig() readConfig {
	return readConfig{
		registry: table.DefaultRegistry(),
		logger:   observability.Discard(),
		metrics:  observability.Global(),
		workers:  1,
	}
}

// ReadOption configures a Reader.
type ReadOption = options.Option[*readConfig]

// WithByteOrder overrides byte order detection. A nil engine restores detection.
func WithByteOrder(engine endian.EndianEngine) ReadOption {
	return options.NoError(func(c *readConfig) {
		c.byteOrder = engine
	})
}

// WithPrecision overrides the precision declared by the archive preamble.
// The zero value restores the declared precision.
func WithPrecision(p format.Precision) ReadOption {
	return options.Named("precision", func(c *readConfig) error {
		if p != 0 && !p.IsValid() {
			return errors.New("unknown precision")
		}
		c.precision = p

		return nil
	})
}

// WithRegistry sets the codec registry. The default is table.DefaultRegistry().
func WithRegistry(r *table.Registry) ReadOption {
	return options.Named("registry", func(c *readConfig) error {
		if r == nil {
			return errors.New("must not be nil")
		}
		c.registry = r

		return nil
	})
}

// WithLogger sets the logger. Skipped tables are logged at warn level.
func WithLogger(logger *slog.Logger) ReadOption {
	return options.NoError(func(c *readConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.Metrics) ReadOption {
	return options.NoError(func(c *readConfig) {
		c.metrics = m
	})
}

// WithWorkers sets how many tables ReadInto decodes concurrently. Tables are
// still merged in archive order.
func WithWorkers(n int) ReadOption {
	return options.Named("workers", func(c *readConfig) error {
		if n < 1 {
			return errors.New("must be positive")
		}
		c.workers = n

		return nil
	})
}

// WithGeometry adds the geometry tables read by ReadInto to idx, which may
// already hold definitions from another source.
func WithGeometry(idx *geometry.Index) ReadOption {
	return options.NoError(func(c *readConfig) {
		c.geometry = idx
	})
}

// WithMaxFrameSize limits the payload size of a single frame.
func WithMaxFrameSize(n int) ReadOption {
	return options.Named("max frame size", func(c *readConfig) error {
		if n < 1 {
			return errors.New("must be positive")
		}
		c.maxFrameSize = n

		return nil
	})
}

type writeConfig struct {
	byteOrder endian.EndianEngine
	precision format.Precision
	label     *string
	terminate *bool
	canonical bool
	registry  *table.Registry
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func defaultWriteConfig() writeConfig {
	return writeConfig{
		registry: table.DefaultRegistry(),
		logger:   observability.Discard(),
		metrics:  observability.Global(),
	}
}

// WriteOption configures a Writer.
type WriteOption = options.Option[*writeConfig]

// WithOutputByteOrder sets the byte order of the written archive. The default
// is the byte order the store was read with, or little endian.
func WithOutputByteOrder(engine endian.EndianEngine) WriteOption {
	return options.NoError(func(c *writeConfig) {
		c.byteOrder = engine
	})
}

// WithOutputPrecision sets the archive precision. Every table must have been
// decoded with the same precision. The default is the precision of the
// source archive, or of the first table.
func WithOutputPrecision(p format.Precision) WriteOption {
	return options.Named("precision", func(c *writeConfig) error {
		if !p.IsValid() {
			return errors.New("unknown precision")
		}
		c.precision = p

		return nil
	})
}

// WithLabel sets the tape label.
func WithLabel(label string) WriteOption {
	return options.Named("label", func(c *writeConfig) error {
		if len(label) > 28 {
			return errors.New("longer than 28 bytes")
		}
		c.label = &label

		return nil
	})
}

// WithTerminator controls whether the end-of-archive sentinel is written. The
// default follows the source archive, or writes it for stores not read from
// an archive.
func WithTerminator(on bool) WriteOption {
	return options.NoError(func(c *writeConfig) {
		c.terminate = &on
	})
}

// WithCanonicalOrder writes geometry tables first, then one table per key in
// sorted key order, with merged steps coalesced into a single table.
func WithCanonicalOrder() WriteOption {
	return options.NoError(func(c *writeConfig) {
		c.canonical = true
	})
}

// WithWriteRegistry sets the codec registry used to encode tables.
func WithWriteRegistry(r *table.Registry) WriteOption {
	return options.Named("registry", func(c *writeConfig) error {
		if r == nil {
			return errors.New("must not be nil")
		}
		c.registry = r

		return nil
	})
}

// WithWriteLogger sets the logger.
func WithWriteLogger(logger *slog.Logger) WriteOption {
	return options.NoError(func(c *writeConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithWriteMetrics sets the metric instruments.
func WithWriteMetrics(m *observability.Metrics) WriteOption {
	return options.NoError(func(c *writeConfig) {
		c.metrics = m
	})
}
