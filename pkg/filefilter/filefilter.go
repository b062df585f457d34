// Package filefilter provides a public Go API for running files and
// streams through chains of external filter programs.
//
// A filter is any program that reads standard input and writes standard
// output. A file is rewritten only when every filter of the chain
// succeeded; otherwise it keeps its original content.
//
// Basic usage:
//
//	err := filefilter.ApplyToFile(ctx, "notes.txt", []string{"strip-trailing-space", "normalize-eol"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// With options:
//
//	err := filefilter.Filter(ctx, os.Stdin, os.Stdout, []string{"upper.py"},
//	    filefilter.WithCaller("python3"),
//	    filefilter.WithFilterDir("./filters"),
//	)
package filefilter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/filefilter/internal/chain"
	"github.com/hupe1980/filefilter/internal/filter"
	"github.com/hupe1980/filefilter/internal/progress"
)

// ExitError reports a filter that exited with a non-zero status. It
// carries the filter's exit code and captured standard error.
type ExitError = filter.ExitError

// StartError reports a filter that could not be started.
type StartError = filter.StartError

// ErrNoFilters is returned when a chain has no filters.
var ErrNoFilters = errors.New("filefilter: no filters given")

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures a filter run.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	caller    string
	filterDir string
	workDir   string
	timeout   time.Duration
	lock      bool
	stderr    io.Writer
	progress  io.Writer
	logger    *slog.Logger
}

// WithCaller runs every filter as "caller filter", e.g. through an
// interpreter.
func WithCaller(caller string) Option { return func(o *options) { o.caller = caller } }

// WithFilterDir sets directories, separated like $PATH, searched for
// filters before $PATH.
func WithFilterDir(dir string) Option { return func(o *options) { o.filterDir = dir } }

// WithWorkDir sets the parent of the scratch directory (default: ".").
func WithWorkDir(dir string) Option { return func(o *options) { o.workDir = dir } }

// WithTimeout kills any single filter running longer than d.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithLock holds an advisory lock on each file while it is filtered.
func WithLock() Option { return func(o *options) { o.lock = true } }

// WithStderr sets where the standard error of successful filters goes
// (default: discarded).
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

// WithProgress writes one "<source>: <filters...>" line per source to w.
func WithProgress(w io.Writer) Option { return func(o *options) { o.progress = w } }

// WithLogger sets a logger for debug output.
func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// ApplyToFile filters the file at path in place.
func ApplyToFile(ctx context.Context, path string, filters []string, opts ...Option) error {
	return ApplyToFiles(ctx, []string{path}, filters, opts...)
}

// ApplyToFiles filters every path in place, in order. It stops at the
// first failure; files after it are not touched.
func ApplyToFiles(ctx context.Context, paths []string, filters []string, opts ...Option) error {
	return run(filters, opts, func(c *chain.Chain) error {
		for _, p := range paths {
			if err := c.ApplyToFile(ctx, p); err != nil {
				return err
			}
		}

		return nil
	})
}

// Filter runs r through the chain and copies the result to w. Nothing is
// written to w when a filter fails.
func Filter(ctx context.Context, r io.Reader, w io.Writer, filters []string, opts ...Option) error {
	return run(filters, opts, func(c *chain.Chain) error {
		return c.RunStdio(ctx, r, w)
	})
}

// Preview returns the content of the file at path and what the chain
// would turn it into, without modifying the file.
func Preview(ctx context.Context, path string, filters []string, opts ...Option) (before, after []byte, err error) {
	err = run(filters, opts, func(c *chain.Chain) error {
		var runErr error

		before, after, runErr = c.Preview(ctx, path)

		return runErr
	})

	return before, after, err
}

// run builds a chain over a fresh scratch directory and removes it again
// after fn.
func run(filters []string, opts []Option, fn func(*chain.Chain) error) (err error) {
	if len(filters) == 0 {
		return ErrNoFilters
	}

	o := &options{
		workDir: ".",
		stderr:  io.Discard,
		logger:  discardLogger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	scratch, err := chain.NewScratch(o.workDir)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := scratch.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	chainOpts := []chain.Option{
		chain.WithDiagnostics(o.stderr),
		chain.WithLogger(o.logger),
		chain.WithLocking(o.lock),
		chain.WithTimeout(o.timeout),
	}

	if o.progress != nil {
		chainOpts = append(chainOpts, chain.WithObservers(progress.NewReporter(o.progress)))
	}

	specs := filter.NewSpecs(o.caller, filters)

	return fn(chain.New(specs, scratch, filter.EnvSearchPath(o.filterDir), chainOpts...))
}
