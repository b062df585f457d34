package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/filefilter/internal/chain"
	"github.com/hupe1980/filefilter/internal/config"
	"github.com/hupe1980/filefilter/internal/diff"
	"github.com/hupe1980/filefilter/internal/filter"
	"github.com/hupe1980/filefilter/internal/inputs"
	"github.com/hupe1980/filefilter/internal/logging"
	"github.com/hupe1980/filefilter/internal/output"
	"github.com/hupe1980/filefilter/internal/progress"
)

type runOptions struct {
	chainOptions

	dryRun bool
}

// runFilters is the root command: it filters every input in place, or
// standard input to standard output when there are none.
func runFilters(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	specs, err := opts.specs(cfg.Caller)
	if err != nil {
		return err
	}

	paths, err := inputs.Expand(opts.inputs)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	diag := output.NewSyncWriter(cmd.ErrOrStderr())

	err = withChain(cfg, logger, specs, diag, func(c *chain.Chain) error {
		switch {
		case len(paths) == 0:
			return c.RunStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		case opts.dryRun:
			out := cmd.OutOrStdout()
			return previewFiles(ctx, c, paths, out, diff.ColorEnabled(out, cfg.NoColor))
		default:
			return applyFiles(ctx, c, paths, cfg.Jobs)
		}
	})

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &ExitError{Code: ExitInterrupted, Err: fmt.Errorf("interrupted: %w", err)}
	}

	return classify(err)
}

// withChain builds a chain over a fresh scratch directory, calls fn, and
// removes the scratch directory again whatever fn returns.
func withChain(
	cfg *config.Config,
	logger *slog.Logger,
	specs []filter.Spec,
	diag io.Writer,
	fn func(*chain.Chain) error,
) (err error) {
	scratch, err := chain.NewScratch(cfg.EffectiveWorkDir())
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := scratch.Close(); closeErr != nil {
			logger.Warn("removing scratch directory",
				slog.String("path", scratch.Dir()),
				slog.String("error", closeErr.Error()),
			)

			if err == nil {
				err = closeErr
			}
		}
	}()

	chainOpts := []chain.Option{
		chain.WithDiagnostics(diag),
		chain.WithLogger(logger),
		chain.WithLocking(cfg.Lock),
		chain.WithTimeout(cfg.Timeout),
	}

	if cfg.Progress {
		chainOpts = append(chainOpts, chain.WithObservers(progress.NewReporter(diag)))
	}

	c := chain.New(specs, scratch, filter.EnvSearchPath(cfg.FilterDir), chainOpts...)

	logger.Debug("chain ready",
		slog.Int("stages", c.Len()),
		slog.String("scratch", scratch.Dir()),
	)

	return fn(c)
}

// applyFiles filters paths in place, up to jobs at a time. The first
// failure cancels the files in flight and no further file is started.
func applyFiles(ctx context.Context, c *chain.Chain, paths []string, jobs int) error {
	if jobs <= 1 {
		for _, p := range paths {
			if err := c.ApplyToFile(ctx, p); err != nil {
				return err
			}
		}

		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			return c.ApplyToFile(gctx, p)
		})
	}

	return g.Wait()
}

// previewFiles writes a unified diff of what the chain would change in
// every path to w. No file is modified.
func previewFiles(ctx context.Context, c *chain.Chain, paths []string, w io.Writer, color bool) error {
	for _, p := range paths {
		before, after, err := c.Preview(ctx, p)
		if err != nil {
			return err
		}

		res, err := diff.Compute(before, after, diff.DefaultOptions(filepath.ToSlash(p)))
		if err != nil {
			return err
		}

		diff.Write(w, res, color)
	}

	return nil
}

// classify maps an engine error to the process exit code: a failed filter
// propagates its own code, a filter that could not start yields
// ExitStartFailure.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	var filterErr *filter.ExitError
	if errors.As(err, &filterErr) {
		code := filterErr.Code
		if code <= 0 {
			// Killed by a signal or timeout.
			code = ExitFailure
		}

		return &ExitError{Code: code, Err: err}
	}

	var startErr *filter.StartError
	if errors.As(err, &startErr) {
		return &ExitError{Code: ExitStartFailure, Err: err}
	}

	return &ExitError{Code: ExitFailure, Err: err}
}
