package store

import (
	"errors"
	"log/slog"

	"github.com/arloliu/op2/compress"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/options"
	"github.com/arloliu/op2/observability"
)

// DefaultCacheSize is the number of re-hydrated tables kept in memory.
const DefaultCacheSize = 8

type config struct {
	threshold   int64
	path        string
	compression format.CompressionType
	cacheSize   int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option configures a Store.
type Option = options.Option[*config]

// WithSpillThreshold enables automatic spilling: after every merge, the largest
// in-memory tables are moved to the side file until the in-memory footprint is
// at most bytes. Zero disables automatic spilling.
func WithSpillThreshold(bytes int64) Option {
	return options.Named("spill threshold", func(c *config) error {
		if bytes < 0 {
			return errors.New("must not be negative")
		}
		c.threshold = bytes

		return nil
	})
}

// WithSpillPath sets the side file path. An existing file is truncated. When no
// path is set, a temporary file in the system temporary directory is used.
func WithSpillPath(path string) Option {
	return options.NoError(func(c *config) {
		c.path = path
	})
}

// WithSpillCompression sets the codec used for side file entries. The default
// is S2.
func WithSpillCompression(ct format.CompressionType) Option {
	return options.Named("spill compression", func(c *config) error {
		if _, err := compress.Lookup(ct); err != nil {
			return err
		}
		c.compression = ct

		return nil
	})
}

// WithCacheSize sets how many re-hydrated tables are kept in memory.
func WithCacheSize(n int) Option {
	return options.Named("cache size", func(c *config) error {
		if n < 1 {
			return errors.New("must be positive")
		}
		c.cacheSize = n

		return nil
	})
}

// WithLogger sets the logger. The default discards every record.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMetrics sets the metric instruments. The default uses the global meter
// provider.
func WithMetrics(m *observability.Metrics) Option {
	return options.NoError(func(c *config) {
		c.metrics = m
	})
}
