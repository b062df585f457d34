package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/hupe1980/filefilter/internal/filter"
)

// StdinIdentity names the standard-input source in temp-file names and
// progress output.
const StdinIdentity = "STDIN"

// ErrLocked is returned by ApplyToFile when locking is enabled and another
// process holds the lock on the target.
var ErrLocked = errors.New("file is locked by another process")

// Chain applies an ordered list of filters to a source.
type Chain struct {
	specs     []filter.Spec
	invokers  []*filter.Invoker
	scratch   *Scratch
	observers []Observer
	diag      io.Writer
	logger    *slog.Logger
	lock      bool
	timeout   time.Duration
}

// Option configures a Chain.
type Option func(*Chain)

// WithObservers appends observers, notified in registration order.
func WithObservers(obs ...Observer) Option {
	return func(c *Chain) {
		c.observers = append(c.observers, obs...)
	}
}

// WithDiagnostics sets the writer receiving the standard error of filters
// that succeed. Defaults to os.Stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(c *Chain) {
		c.diag = w
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithLocking makes ApplyToFile hold an advisory exclusive lock on the
// target while it is filtered.
func WithLocking(enabled bool) Option {
	return func(c *Chain) {
		c.lock = enabled
	}
}

// WithTimeout bounds every single stage to d. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Chain) {
		c.timeout = d
	}
}

// New creates a Chain running specs in order. Intermediate files go to
// scratch and executables are resolved through sp.
func New(specs []filter.Spec, scratch *Scratch, sp filter.SearchPath, opts ...Option) *Chain {
	c := &Chain{
		specs:   append([]filter.Spec(nil), specs...),
		scratch: scratch,
		diag:    os.Stderr,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.invokers = make([]*filter.Invoker, 0, len(c.specs))
	for _, s := range c.specs {
		c.invokers = append(c.invokers, filter.NewInvoker(s, sp,
			filter.WithDiagnostics(c.diag),
			filter.WithLogger(c.logger),
			filter.WithTimeout(c.timeout),
		))
	}

	return c
}

// Filters returns a copy of the filter list in execution order.
func (c *Chain) Filters() []filter.Spec {
	return append([]filter.Spec(nil), c.specs...)
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	return len(c.specs)
}

// RunOnStream runs every stage over in and returns the final output,
// positioned at the start. The caller owns the returned stream and must
// close it. identity only names temp files and progress output.
//
// With no stages the result is in itself, rewound to the start when in is
// an io.Seeker.
func (c *Chain) RunOnStream(ctx context.Context, identity string, in io.Reader) (io.ReadCloser, error) {
	if len(c.invokers) == 0 {
		if sk, ok := in.(io.Seeker); ok {
			if _, err := sk.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewinding %s: %w", identity, err)
			}
		}
	}

	return c.run(ctx, identity, in)
}

func (c *Chain) run(ctx context.Context, identity string, src io.Reader) (io.ReadCloser, error) {
	if len(c.invokers) == 0 {
		return io.NopCloser(src), nil
	}

	var (
		input io.Reader = src
		prev  *os.File
	)

	for i, inv := range c.invokers {
		spec := inv.Spec()

		out, err := c.scratch.CreateTemp(TempPrefix(identity, spec.Path))
		if err != nil {
			c.closeTemp(prev)
			return nil, err
		}

		for _, o := range c.observers {
			o.StageStarted(identity, src, spec, out)
		}

		c.logger.Debug("running stage",
			slog.String("source", identity),
			slog.Int("stage", i+1),
			slog.String("filter", spec.String()),
			slog.String("temp", out.Name()),
		)

		if err := inv.Run(ctx, input, out); err != nil {
			// Temp files themselves go away with the scratch directory.
			c.closeTemp(out)
			c.closeTemp(prev)

			return nil, fmt.Errorf("%s: stage %d: %w", identity, i+1, err)
		}

		c.closeTemp(prev)

		if _, err := out.Seek(0, io.SeekStart); err != nil {
			c.closeTemp(out)
			return nil, fmt.Errorf("rewinding %s: %w", out.Name(), err)
		}

		prev = out
		input = out
	}

	return prev, nil
}

// ApplyToFile filters the file at path in place. The file is opened once
// for reading and writing; its content is replaced only after every stage
// succeeded. On failure it is left untouched.
//
// The rewrite itself is not crash-safe: a crash while copying the result
// back leaves a partially written file.
func (c *Chain) ApplyToFile(ctx context.Context, path string) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
		}
	}()

	if c.lock {
		unlock, lockErr := lockFile(path)
		if lockErr != nil {
			return lockErr
		}
		defer unlock()
	}

	c.fileStarted(path, f)
	defer func() { c.fileFinished(path, err) }()

	if len(c.invokers) == 0 {
		return nil
	}

	result, err := c.run(ctx, path, f)
	if err != nil {
		return err
	}
	defer result.Close()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating %s: %w", path, err)
	}

	if _, err := io.Copy(f, result); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	closed = true
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	return nil
}

// RunStdio filters in once and copies the result to out.
func (c *Chain) RunStdio(ctx context.Context, in io.Reader, out io.Writer) (err error) {
	c.fileStarted(StdinIdentity, in)
	defer func() { c.fileFinished(StdinIdentity, err) }()

	result, err := c.run(ctx, StdinIdentity, in)
	if err != nil {
		return err
	}
	defer result.Close()

	if _, err := io.Copy(out, result); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	return nil
}

// Preview runs the chain over the file at path without modifying it and
// returns the original and the filtered content.
func (c *Chain) Preview(ctx context.Context, path string) (before, after []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	before, err = io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("rewinding %s: %w", path, err)
	}

	c.fileStarted(path, f)
	defer func() { c.fileFinished(path, err) }()

	result, err := c.run(ctx, path, f)
	if err != nil {
		return nil, nil, err
	}
	defer result.Close()

	after, err = io.ReadAll(result)
	if err != nil {
		return nil, nil, fmt.Errorf("reading filtered %s: %w", path, err)
	}

	return before, after, nil
}

func (c *Chain) fileStarted(identity string, src io.Reader) {
	for _, o := range c.observers {
		o.FileStarted(identity, src)
	}
}

func (c *Chain) fileFinished(identity string, err error) {
	for _, o := range c.observers {
		if ff, ok := o.(FileFinisher); ok {
			ff.FileFinished(identity, err)
		}
	}
}

func (c *Chain) closeTemp(f *os.File) {
	if f == nil {
		return
	}

	if err := f.Close(); err != nil {
		c.logger.Debug("closing temp file", slog.String("path", f.Name()), slog.String("error", err.Error()))
	}
}

// lockFile takes a non-blocking advisory lock on path.
func lockFile(path string) (func(), error) {
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if !locked {
		return nil, fmt.Errorf("locking %s: %w", path, ErrLocked)
	}

	return func() { _ = fl.Unlock() }, nil
}
