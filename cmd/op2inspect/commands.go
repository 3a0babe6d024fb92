package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/arloliu/op2/archive"
	"github.com/arloliu/op2/config"
	"github.com/arloliu/op2/geometry"
	"github.com/arloliu/op2/store"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	configFlag   = "config"
	verboseFlag  = "verbose"
	noColorFlag  = "no-color"
	workersFlag  = "workers"
	spillFlag    = "spill-threshold"
	canonFlag    = "canonical"
	orderFlag    = "byte-order"
	precFlag     = "precision"
	noTermFlag   = "no-terminator"
	strictFlag   = "strict"
	archiveArgs  = 1
	copyArgCount = 2
)

// ErrSkippedTables is returned by --strict commands when tables were skipped.
var ErrSkippedTables = errors.New("archive has skipped tables")

// app holds the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	verbose    bool
	noColor    bool
	workers    int
	spill      string

	out      io.Writer
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "op2inspect",
		Short: "Inspect and copy finite-element result archives",
		Long: `op2inspect reads result archives and reports what they hold.

Commands:
  summary   Archive attributes, table counts and skipped tables
  tables    One line per decoded table
  geometry  Node, element and coordinate system counts
  copy      Read an archive and write it back, optionally re-encoded`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}

			return nil
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, configFlag, "", "config file (default op2.yaml in . or ~/.config/op2)")
	flags.BoolVarP(&a.verbose, verboseFlag, "v", false, "log at debug level")
	flags.BoolVar(&a.noColor, noColorFlag, false, "disable colored output")
	flags.IntVar(&a.workers, workersFlag, 0, "tables decoded concurrently (overrides config)")
	flags.StringVar(&a.spill, spillFlag, "", "spill tables to disk above this in-memory size, e.g. 512MiB (overrides config)")

	root.AddCommand(a.summaryCommand(), a.tablesCommand(), a.geometryCommand(), a.copyCommand())

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if a.workers > 0 {
		cfg.Read.Workers = a.workers
	}
	if a.spill != "" {
		cfg.Store.SpillThreshold = a.spill
	}

	logger, closeLog, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closeLog = cfg, logger, closeLog

	if a.noColor {
		color.NoColor = true //nolint:reassign // library switch for colored output
	}
	a.out = cmd.OutOrStdout()

	return nil
}

// open reads the archive at path into a new store configured from a.cfg.
func (a *app) open(ctx context.Context, path string, extra ...archive.ReadOption) (*store.Store, archive.Summary, error) {
	storeOpts, err := a.cfg.StoreOptions(a.logger)
	if err != nil {
		return nil, archive.Summary{}, err
	}
	readOpts, err := a.cfg.ReadOptions(a.logger)
	if err != nil {
		return nil, archive.Summary{}, err
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return nil, archive.Summary{}, err
	}

	sum, err := archive.ReadFile(ctx, path, st, append(readOpts, extra...)...)
	if err != nil {
		_ = st.Close()
		return nil, sum, fmt.Errorf("read %s: %w", path, err)
	}

	return st, sum, nil
}

func (a *app) summaryCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "summary <archive>",
		Short: "Show archive attributes and skipped tables",
		Args:  cobra.ExactArgs(archiveArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, sum, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			renderSummary(a.out, args[0], sum, st.Stats())
			renderDiagnostics(a.out, sum.Diagnostics)

			if strict && sum.Skipped() > 0 {
				return fmt.Errorf("%w: %d", ErrSkippedTables, sum.Skipped())
			}

			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, strictFlag, false, "fail when any table was skipped")

	return cmd
}

func (a *app) tablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <archive>",
		Short: "List decoded tables",
		Args:  cobra.ExactArgs(archiveArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, sum, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			renderTables(a.out, sum.Tables)
			renderDiagnostics(a.out, sum.Diagnostics)

			return nil
		},
	}
}

func (a *app) geometryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry <archive>",
		Short: "Count nodes, elements and coordinate systems",
		Args:  cobra.ExactArgs(archiveArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx := geometry.New()
			st, _, err := a.open(cmd.Context(), args[0], archive.WithGeometry(idx))
			if err != nil {
				return err
			}
			defer st.Close()

			nodes, elements, coords := idx.Counts()
			renderGeometry(a.out, nodes, elements, coords)

			return nil
		},
	}
}

func (a *app) copyCommand() *cobra.Command {
	var (
		canonical    bool
		byteOrder    string
		precision    string
		noTerminator bool
	)

	cmd := &cobra.Command{
		Use:   "copy <in> <out>",
		Short: "Read an archive and write it back",
		Long: `copy reads every table of <in> and writes them to <out>.

Without flags the output is identical to the input minus any skipped tables.
--canonical writes geometry first and one table per key in sorted order.`,
		Args: cobra.ExactArgs(copyArgCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			if canonical {
				a.cfg.Write.Canonical = true
			}
			if byteOrder != "" {
				a.cfg.Write.ByteOrder = byteOrder
			}
			if precision != "" {
				a.cfg.Write.Precision = precision
			}
			if noTerminator {
				a.cfg.Write.Terminator = "off"
			}
			writeOpts, err := a.cfg.WriteOptions(a.logger)
			if err != nil {
				return err
			}

			st, sum, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := archive.WriteFile(cmd.Context(), args[1], st, writeOpts...)
			if err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}

			fmt.Fprintf(a.out, "wrote %s (%s, %d tables)\n", args[1], humanize.IBytes(uint64(n)), len(sum.Tables)) //nolint:gosec // n is a byte count
			if sum.Skipped() > 0 {
				color.New(color.FgYellow).Fprintf(a.out, "dropped %d skipped tables\n", sum.Skipped())
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&canonical, canonFlag, false, "write in canonical order")
	flags.StringVar(&byteOrder, orderFlag, "", "output byte order: little or big")
	flags.StringVar(&precision, precFlag, "", "output precision: single or double")
	flags.BoolVar(&noTerminator, noTermFlag, false, "omit the end-of-archive sentinel")

	return cmd
}
