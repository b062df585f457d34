// Package testsupport provides helpers shared by package tests: filter
// programs backed by the test binary itself, and file fixtures.
package testsupport

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
)

// Environment variables understood by RunFilterIfRequested.
const (
	envMode   = "FF_TEST_FILTER"
	envArg    = "FF_TEST_FILTER_ARG"
	envCode   = "FF_TEST_FILTER_CODE"
	envStderr = "FF_TEST_FILTER_STDERR"
)

// Filter modes implemented by the test binary.
const (
	ModeCat     = "cat"
	ModeUpper   = "upper"
	ModeReverse = "reverse"
	ModeAppend  = "append"
	ModeNoisy   = "noisy"
	ModeFail    = "fail"
	ModeEnv     = "env"
	ModeSleep   = "sleep"
)

// RunFilterIfRequested turns the current process into a filter when the
// test binary was started by one of the scripts written by WriteFilter.
// Call it first thing in TestMain; it does not return in that case.
func RunFilterIfRequested() {
	mode := os.Getenv(envMode)
	if mode == "" {
		return
	}

	os.Exit(runFilter(mode, os.Getenv(envArg), os.Stdin, os.Stdout, os.Stderr))
}

func runFilter(mode, arg string, in io.Reader, out, errOut io.Writer) int {
	data, err := io.ReadAll(in)
	if err != nil {
		fmt.Fprintf(errOut, "read stdin: %v\n", err)
		return 70
	}

	switch mode {
	case ModeCat:
	case ModeUpper:
		data = bytes.ToUpper(data)
	case ModeReverse:
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	case ModeAppend:
		data = append(data, arg...)
	case ModeNoisy:
		fmt.Fprint(errOut, arg)
	case ModeEnv:
		data = []byte(os.Getenv(arg))
	case ModeSleep:
		n, _ := strconv.Atoi(arg)
		time.Sleep(time.Duration(n) * time.Second)
	case ModeFail:
		fmt.Fprint(errOut, os.Getenv(envStderr))

		code, convErr := strconv.Atoi(os.Getenv(envCode))
		if convErr != nil || code == 0 {
			code = 1
		}

		// Emit partial output to prove callers never use it.
		_, _ = out.Write([]byte("partial"))

		return code
	default:
		fmt.Fprintf(errOut, "unknown test filter mode %q\n", mode)
		return 70
	}

	if _, err := out.Write(data); err != nil {
		fmt.Fprintf(errOut, "write stdout: %v\n", err)
		return 70
	}

	return 0
}

// FilterOption configures a filter script written by WriteFilter.
type FilterOption func(*filterScript)

type filterScript struct {
	arg    string
	code   int
	stderr string
}

// WithArg sets the mode argument (suffix for append, message for noisy,
// variable name for env, seconds for sleep).
func WithArg(arg string) FilterOption {
	return func(s *filterScript) { s.arg = arg }
}

// WithExitCode sets the exit code of a ModeFail filter.
func WithExitCode(code int) FilterOption {
	return func(s *filterScript) { s.code = code }
}

// WithStderr sets the standard error output of a ModeFail filter.
func WithStderr(msg string) FilterOption {
	return func(s *filterScript) { s.stderr = msg }
}

// SkipIfNoShell skips tests that need /bin/sh filter scripts.
func SkipIfNoShell(t testing.TB) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("filter scripts require /bin/sh")
	}
}

// WriteFilter writes an executable script called name into dir that runs
// the test binary in the given mode, and returns its path. The package's
// TestMain must call RunFilterIfRequested.
func WriteFilter(t testing.TB, dir, name, mode string, opts ...FilterOption) string {
	t.Helper()
	SkipIfNoShell(t)

	s := &filterScript{}
	for _, opt := range opts {
		opt(s)
	}

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locating test binary: %v", err)
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "%s=%s %s=%s %s=%d %s=%s exec %s\n",
		envMode, shellQuote(mode),
		envArg, shellQuote(s.arg),
		envCode, s.code,
		envStderr, shellQuote(s.stderr),
		shellQuote(exe),
	)

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(b.String()), 0o755); err != nil { //nolint:gosec // must be executable
		t.Fatalf("writing filter %s: %v", p, err)
	}

	return p
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", p, err)
	}

	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}

	return p
}

// ReadFile returns the content of p as a string.
func ReadFile(t testing.TB, p string) string {
	t.Helper()

	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("reading %s: %v", p, err)
	}

	return string(data)
}

// DirEntries returns the names in dir, or nil when dir does not exist.
func DirEntries(t testing.TB, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		t.Fatalf("reading dir %s: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
