// Package diff renders the change a filter chain would make to a file as a
// unified diff, for dry runs.
package diff

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pmezard/go-difflib/difflib"
)

// Result holds the result of a unified diff computation.
type Result struct {
	Unified        string
	HasDifferences bool
	Binary         bool
	OldLabel       string
	NewLabel       string
}

// Options configures diff computation.
type Options struct {
	OldLabel string
	NewLabel string
	Context  int
}

// DefaultOptions returns git-style labels for path and three lines of
// context.
func DefaultOptions(path string) Options {
	return Options{
		OldLabel: "a/" + path,
		NewLabel: "b/" + path,
		Context:  3,
	}
}

// Compute computes a unified diff between before and after. Content with
// NUL bytes is treated as binary and only compared for equality.
func Compute(before, after []byte, opts Options) (*Result, error) {
	res := &Result{
		OldLabel: opts.OldLabel,
		NewLabel: opts.NewLabel,
	}

	if isBinary(before) || isBinary(after) {
		res.Binary = true
		res.HasDifferences = !bytes.Equal(before, after)

		return res, nil
	}

	ud := difflib.UnifiedDiff{
		A:        splitLines(string(before)),
		B:        splitLines(string(after)),
		FromFile: opts.OldLabel,
		ToFile:   opts.NewLabel,
		Context:  opts.Context,
	}

	unified, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}

	res.Unified = unified
	res.HasDifferences = unified != ""

	return res, nil
}

// Write writes a formatted diff to w with optional ANSI colors. Nothing is
// written when there are no differences.
func Write(w io.Writer, res *Result, color bool) {
	if !res.HasDifferences {
		return
	}

	if res.Binary {
		_, _ = fmt.Fprintf(w, "Binary files %s and %s differ\n", res.OldLabel, res.NewLabel)
		return
	}

	for _, line := range strings.SplitAfter(res.Unified, "\n") {
		if line == "" {
			continue
		}

		if color {
			writeColorLine(w, line)
		} else {
			_, _ = io.WriteString(w, line)
		}
	}
}

// ColorEnabled reports whether diffs written to w should be colored: w must
// be a terminal and noColor unset.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeColorLine writes a single diff line with ANSI color codes.
func writeColorLine(w io.Writer, line string) {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	body := strings.TrimSuffix(line, "\n")

	switch {
	case strings.HasPrefix(body, "---"), strings.HasPrefix(body, "+++"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", bold, body, reset)
	case strings.HasPrefix(body, "@@"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", cyan, body, reset)
	case strings.HasPrefix(body, "-"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", red, body, reset)
	case strings.HasPrefix(body, "+"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", green, body, reset)
	default:
		_, _ = fmt.Fprintln(w, body)
	}
}

// noNewline marks a final line without a line terminator, as git does.
const noNewline = "\n\\ No newline at end of file\n"

// splitLines splits s into newline-terminated lines for difflib.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	if last := lines[len(lines)-1]; last == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] = last + noNewline
	}

	return lines
}

func isBinary(b []byte) bool {
	return bytes.IndexByte(b, 0) >= 0
}
