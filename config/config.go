// Package config loads op2 settings from a YAML file and OP2_ environment
// variables and turns them into reader, store and writer options.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/arloliu/op2/archive"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/observability"
	"github.com/arloliu/op2/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers    = errors.New("read workers must be positive")
	ErrInvalidSize       = errors.New("invalid size")
	ErrInvalidCacheSize  = errors.New("store cache size must be positive")
	ErrInvalidTerminator = errors.New("write terminator must be auto, on or off")
	ErrInvalidLabel      = errors.New("write label is longer than 28 bytes")
	ErrInvalidOutput     = errors.New("logging output must be stdout, stderr or a file path")
)

// Default configuration values.
const (
	DefaultByteOrder      = "auto"
	DefaultPrecision      = "auto"
	DefaultWorkers        = 1
	DefaultMaxFrameSize   = ""
	DefaultSpillThreshold = "0"
	DefaultCompression    = "s2"
	DefaultCacheSize      = store.DefaultCacheSize
	DefaultTerminator     = "auto"
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = observability.LogFormatText
	DefaultLogOutput      = "stderr"

	envPrefix = "OP2"
)

// Config holds all op2 settings.
type Config struct {
	Read    ReadConfig    `mapstructure:"read"`
	Store   StoreConfig   `mapstructure:"store"`
	Write   WriteConfig   `mapstructure:"write"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ReadConfig holds reader settings.
type ReadConfig struct {
	// ByteOrder is auto, little or big.
	ByteOrder string `mapstructure:"byte_order"`
	// Precision is auto, single or double.
	Precision    string `mapstructure:"precision"`
	Workers      int    `mapstructure:"workers"`
	MaxFrameSize string `mapstructure:"max_frame_size"`
}

// StoreConfig holds result store settings.
type StoreConfig struct {
	// SpillThreshold is a size such as "512MiB"; 0 disables automatic spilling.
	SpillThreshold string `mapstructure:"spill_threshold"`
	SpillPath      string `mapstructure:"spill_path"`
	Compression    string `mapstructure:"compression"`
	CacheSize      int    `mapstructure:"cache_size"`
}

// WriteConfig holds writer settings. Empty and auto values keep the attributes
// of the source archive.
type WriteConfig struct {
	ByteOrder  string `mapstructure:"byte_order"`
	Precision  string `mapstructure:"precision"`
	Label      string `mapstructure:"label"`
	Terminator string `mapstructure:"terminator"`
	Canonical  bool   `mapstructure:"canonical"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadConfig loads configuration from file and environment variables.
//
// With an empty path, op2.yaml is looked up in the working directory and in
// $HOME/.config/op2; a missing file is not an error. Every key can be set from
// the environment, e.g. OP2_STORE_SPILL_THRESHOLD=2GiB.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("op2")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/op2")
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("read.byte_order", DefaultByteOrder)
	v.SetDefault("read.precision", DefaultPrecision)
	v.SetDefault("read.workers", DefaultWorkers)
	v.SetDefault("read.max_frame_size", DefaultMaxFrameSize)

	v.SetDefault("store.spill_threshold", DefaultSpillThreshold)
	v.SetDefault("store.spill_path", "")
	v.SetDefault("store.compression", DefaultCompression)
	v.SetDefault("store.cache_size", DefaultCacheSize)

	v.SetDefault("write.byte_order", DefaultByteOrder)
	v.SetDefault("write.precision", DefaultPrecision)
	v.SetDefault("write.label", "")
	v.SetDefault("write.terminator", DefaultTerminator)
	v.SetDefault("write.canonical", false)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.output", DefaultLogOutput)
}

func validateConfig(cfg *Config) error {
	if _, err := endian.Parse(cfg.Read.ByteOrder); err != nil {
		return err
	}
	if _, err := parsePrecision(cfg.Read.Precision); err != nil {
		return err
	}
	if cfg.Read.Workers < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Read.Workers)
	}
	if _, err := parseSize(cfg.Read.MaxFrameSize); err != nil {
		return err
	}

	if _, err := parseSize(cfg.Store.SpillThreshold); err != nil {
		return err
	}
	if _, err := format.ParseCompression(cfg.Store.Compression); err != nil {
		return err
	}
	if cfg.Store.CacheSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, cfg.Store.CacheSize)
	}

	if _, err := endian.Parse(cfg.Write.ByteOrder); err != nil {
		return err
	}
	if _, err := parsePrecision(cfg.Write.Precision); err != nil {
		return err
	}
	if _, err := parseTerminator(cfg.Write.Terminator); err != nil {
		return err
	}
	if len(cfg.Write.Label) > 28 {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, cfg.Write.Label)
	}

	if _, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, io.Discard); err != nil {
		return err
	}
	if cfg.Logging.Output == "" {
		return ErrInvalidOutput
	}

	return nil
}

// parsePrecision returns 0 for auto.
func parsePrecision(s string) (format.Precision, error) {
	if s == "" || strings.EqualFold(s, "auto") {
		return 0, nil
	}

	return format.ParsePrecision(strings.ToLower(s))
}

// parseSize parses a human readable size such as "64MiB". Empty means 0.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSize, s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidSize, s)
	}

	return int64(n), nil //nolint:gosec // bounded above
}

// parseTerminator returns nil for auto.
func parseTerminator(s string) (*bool, error) {
	on, off := true, false
	switch strings.ToLower(s) {
	case "", "auto":
		return nil, nil
	case "on", "true", "yes":
		return &on, nil
	case "off", "false", "no":
		return &off, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTerminator, s)
	}
}

// Logger builds the configured logger. The returned close function releases a
// log file and must be called once logging is done.
func (c *Config) Logger() (*slog.Logger, func() error, error) {
	var (
		w       io.Writer
		closeFn = func() error { return nil }
	)
	switch c.Logging.Output {
	case "stdout":
		w = os.Stdout
	case "stderr", "":
		w = os.Stderr
	default:
		f, err := os.OpenFile(c.Logging.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
		}
		w = f
		closeFn = f.Close
	}

	logger, err := observability.NewLogger(c.Logging.Level, c.Logging.Format, w)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	return logger, closeFn, nil
}

// ReadOptions converts the read settings into archive read options.
func (c *Config) ReadOptions(logger *slog.Logger) ([]archive.ReadOption, error) {
	engine, err := endian.Parse(c.Read.ByteOrder)
	if err != nil {
		return nil, err
	}
	precision, err := parsePrecision(c.Read.Precision)
	if err != nil {
		return nil, err
	}
	maxFrame, err := parseSize(c.Read.MaxFrameSize)
	if err != nil {
		return nil, err
	}

	opts := []archive.ReadOption{
		archive.WithByteOrder(engine),
		archive.WithPrecision(precision),
		archive.WithWorkers(c.Read.Workers),
		archive.WithLogger(logger),
	}
	if maxFrame > 0 {
		if maxFrame > math.MaxInt32 {
			maxFrame = math.MaxInt32
		}
		opts = append(opts, archive.WithMaxFrameSize(int(maxFrame)))
	}

	return opts, nil
}

// StoreOptions converts the store settings into store options.
func (c *Config) StoreOptions(logger *slog.Logger) ([]store.Option, error) {
	threshold, err := parseSize(c.Store.SpillThreshold)
	if err != nil {
		return nil, err
	}
	ct, err := format.ParseCompression(c.Store.Compression)
	if err != nil {
		return nil, err
	}

	opts := []store.Option{
		store.WithSpillThreshold(threshold),
		store.WithSpillCompression(ct),
		store.WithCacheSize(c.Store.CacheSize),
		store.WithLogger(logger),
	}
	if c.Store.SpillPath != "" {
		opts = append(opts, store.WithSpillPath(c.Store.SpillPath))
	}

	return opts, nil
}

// WriteOptions converts the write settings into archive write options.
func (c *Config) WriteOptions(logger *slog.Logger) ([]archive.WriteOption, error) {
	engine, err := endian.Parse(c.Write.ByteOrder)
	if err != nil {
		return nil, err
	}
	precision, err := parsePrecision(c.Write.Precision)
	if err != nil {
		return nil, err
	}
	terminate, err := parseTerminator(c.Write.Terminator)
	if err != nil {
		return nil, err
	}

	opts := []archive.WriteOption{
		archive.WithOutputByteOrder(engine),
		archive.WithWriteLogger(logger),
	}
	if precision != 0 {
		opts = append(opts, archive.WithOutputPrecision(precision))
	}
	if c.Write.Label != "" {
		opts = append(opts, archive.WithLabel(c.Write.Label))
	}
	if terminate != nil {
		opts = append(opts, archive.WithTerminator(*terminate))
	}
	if c.Write.Canonical {
		opts = append(opts, archive.WithCanonicalOrder())
	}

	return opts, nil
}
