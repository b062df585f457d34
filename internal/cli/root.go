// Package cli implements the cobra command tree for filefilter.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/filefilter/internal/config"
	"github.com/hupe1980/filefilter/internal/filter"
	"github.com/hupe1980/filefilter/internal/inputs"
	"github.com/hupe1980/filefilter/internal/logging"
)

// Process exit codes besides those propagated from failing filters.
const (
	ExitFailure      = 1
	ExitUsage        = 2
	ExitStartFailure = 127
	ExitInterrupted  = 130
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it on the process arguments, and
// returns the exit code. SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// run is Execute with explicit arguments and streams.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	expanded, err := inputs.ExpandArgFiles(args)
	if err != nil {
		reportError(stderr, err)
		return ExitUsage
	}

	cmd := NewRootCommand()
	cmd.SetArgs(normalizeArgs(expanded))
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return ExitFailure
	}

	return 0
}

// reportError writes err to w. For a failed filter the captured standard
// error follows the message verbatim.
func reportError(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "filefilter: %v\n", err)

	var filterErr *filter.ExitError
	if errors.As(err, &filterErr) && len(filterErr.Stderr) > 0 {
		_, _ = w.Write(filterErr.Stderr)

		if !bytes.HasSuffix(filterErr.Stderr, []byte("\n")) {
			_, _ = fmt.Fprintln(w)
		}
	}
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "filefilter",
		Short: "Run files through a chain of filter programs",
		Long: `filefilter pipes a file through an ordered chain of external filter
programs and replaces the file's content with the result of the last one.

Each filter reads standard input and writes standard output. A file is
only rewritten when every filter in the chain succeeded; on failure it is
left untouched and filefilter exits with the failing filter's exit code.
Without --input, standard input is filtered to standard output.

Filters are looked up in --filterdir first, then in $PATH.`,
		Example: `  filefilter -f strip-trailing-space -f normalize-eol -i README.md
  filefilter -f upper reverse -i notes.txt todo.txt
  filefilter --chain cleanup.yaml -i 'docs/**/*.md'
  echo hello | filefilter -f upper
  filefilter @args.txt`,
		Args:          noPositionalArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}

			logger := logging.WithRunID(logging.SetupWithWriter(cfg, cmd.ErrOrStderr()))

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("configFile", cfg.ConfigFile),
				slog.String("workdir", cfg.EffectiveWorkDir()),
				slog.String("filterdir", cfg.FilterDir),
				slog.String("caller", cfg.Caller),
				slog.Int("jobs", cfg.Jobs),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFilters(cmd, opts)
		},
	}

	registerFilterFlags(cmd, &opts.chainOptions)
	registerInputFlags(cmd, &opts.chainOptions)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print a diff of the changes instead of writing files")

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .filefilter.yaml)")
	registerEngineFlags(pf)
	pf.String("log-level", config.LogLevelInfo, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	cmd.AddCommand(
		newCheckCommand(),
		newWatchCommand(),
		newConfigCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	return cmd
}

// noPositionalArgs rejects stray arguments with a usage exit code.
func noPositionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}

	return &ExitError{
		Code: ExitUsage,
		Err:  fmt.Errorf("unexpected argument %q for %q (files are given with --input)", args[0], cmd.CommandPath()),
	}
}
