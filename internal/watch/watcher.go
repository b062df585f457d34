package watch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunFunc filters a single file. It is never called concurrently.
type RunFunc func(ctx context.Context, path string) error

// Options configures the watch behaviour.
type Options struct {
	// Paths are the files to filter and watch.
	Paths []string

	// Debounce is the quiet period on a file before it is filtered again.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 300 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// ErrNoPaths is returned by Run when there is nothing to watch.
var ErrNoPaths = errors.New("no files to watch")

type digest = [sha256.Size]byte

// session holds the state of one Run call.
type session struct {
	opts  Options
	runFn RunFunc

	// mu serializes runs and guards sums.
	mu   sync.Mutex
	sums map[string]digest
}

// Run filters every path once, then re-filters a path each time its
// content changes. It blocks until ctx is cancelled or SIGINT/SIGTERM is
// received. A failing run is reported and watching continues.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if len(opts.Paths) == 0 {
		return ErrNoPaths
	}

	s := &session{
		opts:  opts,
		runFn: runFn,
		sums:  make(map[string]digest, len(opts.Paths)),
	}

	targets, dirs, err := resolve(opts.Paths)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files by rename, which drops a watch on the
	// file itself, so the parent directories are watched instead.
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %q: %w", dir, err)
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %d file(s) (debounce=%s)\n", len(targets.paths), opts.Debounce)

	for _, path := range targets.paths {
		if sigCtx.Err() != nil {
			break
		}

		s.run(sigCtx, path, true)
	}

	debouncer := NewDebouncer(opts.Debounce, func(path string) {
		s.run(sigCtx, path, false)
	})
	defer debouncer.Stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "shutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) {
				continue
			}

			if !targets.has(event.Name) {
				continue
			}

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// run filters path unless its content matches the digest recorded after
// the previous run. The initial pass always runs.
func (s *session) run(ctx context.Context, path string, initial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	sum, err := fileDigest(path)
	if err != nil {
		s.opts.Logger.Debug("skipping unreadable file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if prev, ok := s.sums[path]; ok && !initial && prev == sum {
		s.opts.Logger.Debug("content unchanged, skipping", slog.String("path", path))
		return
	}

	now := time.Now().Format("15:04:05")

	if runErr := s.runFn(ctx, path); runErr != nil {
		fmt.Fprintf(s.opts.Out, "[%s] %s → ERROR: %v\n", now, path, runErr)
	} else {
		fmt.Fprintf(s.opts.Out, "[%s] %s → OK\n", now, path)
	}

	// Record what is on disk now, so the chain's own write does not
	// trigger another run. After a failure the file is untouched.
	if after, err := fileDigest(path); err == nil {
		s.sums[path] = after
	}
}

// targetSet holds the watched files as absolute paths.
type targetSet struct {
	paths []string // sorted, unique
	index map[string]struct{}
}

func (t targetSet) has(path string) bool {
	_, ok := t.index[path]
	return ok
}

// resolve returns the absolute target set and the sorted unique parent
// directories to watch.
func resolve(paths []string) (targetSet, []string, error) {
	targets := targetSet{index: make(map[string]struct{}, len(paths))}
	dirSet := make(map[string]struct{})

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return targetSet{}, nil, fmt.Errorf("resolving %q: %w", p, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return targetSet{}, nil, fmt.Errorf("watching %q: %w", p, err)
		}

		if info.IsDir() {
			return targetSet{}, nil, fmt.Errorf("watching %q: is a directory", p)
		}

		if _, seen := targets.index[abs]; !seen {
			targets.index[abs] = struct{}{}
			targets.paths = append(targets.paths, abs)
		}

		dirSet[filepath.Dir(abs)] = struct{}{}
	}

	sort.Strings(targets.paths)

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}

	sort.Strings(dirs)

	return targets, dirs, nil
}

func fileDigest(path string) (digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return digest{}, err
	}

	var sum digest
	copy(sum[:], h.Sum(nil))

	return sum, nil
}

// isRelevant reports whether event may have changed a file's content.
func isRelevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
