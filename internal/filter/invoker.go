package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Invoker runs one filter program.
type Invoker struct {
	spec    Spec
	path    SearchPath
	diag    io.Writer
	logger  *slog.Logger
	timeout time.Duration
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithDiagnostics sets the writer that receives the filter's standard
// error after a successful run. Defaults to os.Stderr.
func WithDiagnostics(w io.Writer) InvokerOption {
	return func(inv *Invoker) {
		inv.diag = w
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

// WithTimeout kills the filter when it runs longer than d. Zero disables
// the limit.
func WithTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		inv.timeout = d
	}
}

// NewInvoker creates an Invoker for spec resolving executables through sp.
func NewInvoker(spec Spec, sp SearchPath, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		spec:   spec,
		path:   sp,
		diag:   os.Stderr,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(inv)
	}

	if inv.diag == nil {
		inv.diag = io.Discard
	}

	return inv
}

// Spec returns the filter this invoker runs.
func (inv *Invoker) Spec() Spec {
	return inv.spec
}

// Command builds the argument list with argv[0] resolved through the
// search path. With a caller the filter script is resolved too when the
// search path holds a file of that name; otherwise it is passed verbatim.
func (inv *Invoker) Command() ([]string, error) {
	if inv.spec.Caller == "" {
		exe, err := inv.path.Lookup(inv.spec.Path)
		if err != nil {
			return nil, err
		}

		return []string{exe}, nil
	}

	exe, err := inv.path.Lookup(inv.spec.Caller)
	if err != nil {
		return nil, err
	}

	script := inv.spec.Path
	if p, ok := inv.path.Find(script); ok {
		script = p
	}

	return []string{exe, script}, nil
}

// Run executes the filter with in wired to its standard input and out to
// its standard output, and blocks until it exits. in is read from its
// current position. The filter's standard error is captured: on success
// it is forwarded to the diagnostics writer, on failure it is returned in
// an *ExitError. A filter that cannot be started yields a *StartError.
//
// The process is killed when ctx is cancelled or the configured timeout
// elapses.
func (inv *Invoker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	args, err := inv.Command()
	if err != nil {
		return &StartError{Spec: inv.spec, Err: err}
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // running user-named filters is the job
	cmd.Env = inv.path.Environ(os.Environ())
	cmd.Stdin = in
	cmd.Stdout = out

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return &StartError{Spec: inv.spec, Err: err}
	}

	err = cmd.Wait()

	inv.logger.Debug("filter finished",
		slog.String("filter", inv.spec.String()),
		slog.String("exe", args[0]),
		slog.Duration("duration", time.Since(start)),
		slog.Int("stderrBytes", stderr.Len()),
	)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				fmt.Fprintf(&stderr, "killed after %s timeout\n", inv.timeout)
			}

			return &ExitError{
				Spec:   inv.spec,
				Code:   exitErr.ExitCode(),
				Stderr: stderr.Bytes(),
			}
		}

		// Wait failed copying a non-file stream; the process itself may
		// have exited cleanly but its output is incomplete.
		return &ExitError{Spec: inv.spec, Code: -1, Stderr: append(stderr.Bytes(), []byte(err.Error()+"\n")...)}
	}

	if stderr.Len() > 0 {
		if _, werr := inv.diag.Write(stderr.Bytes()); werr != nil {
			inv.logger.Debug("forwarding filter stderr failed", slog.String("error", werr.Error()))
		}
	}

	return nil
}
