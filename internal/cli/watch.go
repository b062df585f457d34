package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/filefilter/internal/chain"
	"github.com/hupe1980/filefilter/internal/config"
	"github.com/hupe1980/filefilter/internal/inputs"
	"github.com/hupe1980/filefilter/internal/logging"
	"github.com/hupe1980/filefilter/internal/output"
	"github.com/hupe1980/filefilter/internal/watch"
)

type watchOptions struct {
	chainOptions

	debounce time.Duration
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Filter files again whenever they change",
		Long: `Watch filters every input once, then runs the chain on a file again
each time its content changes, until interrupted.

Changes are debounced per file. The chain's own rewrite of a file does
not trigger another run. A failing filter is reported and the file is
left as it was; watching continues.`,
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	registerFilterFlags(cmd, &opts.chainOptions)
	registerInputFlags(cmd, &opts.chainOptions)
	cmd.Flags().DurationVar(&opts.debounce, "debounce", watch.DefaultOptions().Debounce, "quiet period before a changed file is filtered")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	specs, err := opts.specs(cfg.Caller)
	if err != nil {
		return err
	}

	if len(opts.inputs) == 0 {
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("watch needs at least one --input")}
	}

	paths, err := inputs.Expand(opts.inputs)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	diag := output.NewSyncWriter(cmd.ErrOrStderr())

	// Every run gets its own scratch directory so a long session does not
	// pile up temp files.
	runFn := func(runCtx context.Context, path string) error {
		return withChain(cfg, logger, specs, diag, func(c *chain.Chain) error {
			return c.ApplyToFile(runCtx, path)
		})
	}

	wopts := watch.DefaultOptions()
	wopts.Paths = paths
	wopts.Debounce = opts.debounce
	wopts.Logger = logger
	wopts.Out = diag

	if err := watch.Run(ctx, wopts, runFn); err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	return nil
}
