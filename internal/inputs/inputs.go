// Package inputs turns command-line input arguments into the list of
// files to filter.
package inputs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ArgFilePrefix marks an argument naming a file of further arguments.
const ArgFilePrefix = "@"

// maxArgFileDepth bounds nested @file references.
const maxArgFileDepth = 8

// ErrNoMatch is returned when a glob pattern matches no file.
var ErrNoMatch = errors.New("no files match pattern")

// ExpandArgFiles replaces every "@path" argument by the lines of path,
// one argument per non-empty line. Lines may themselves be @file
// references. A lone "@" is kept as is.
func ExpandArgFiles(args []string) ([]string, error) {
	return expandArgFiles(args, 0)
}

func expandArgFiles(args []string, depth int) ([]string, error) {
	out := make([]string, 0, len(args))

	for _, arg := range args {
		if !strings.HasPrefix(arg, ArgFilePrefix) || arg == ArgFilePrefix {
			out = append(out, arg)
			continue
		}

		if depth >= maxArgFileDepth {
			return nil, fmt.Errorf("argument file %s: nested too deeply", arg)
		}

		lines, err := readLines(strings.TrimPrefix(arg, ArgFilePrefix))
		if err != nil {
			return nil, err
		}

		nested, err := expandArgFiles(lines, depth+1)
		if err != nil {
			return nil, err
		}

		out = append(out, nested...)
	}

	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading argument file: %w", err)
	}
	defer f.Close()

	var lines []string

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading argument file %s: %w", path, err)
	}

	return lines, nil
}

// Expand resolves input arguments to file paths. An argument naming an
// existing path is used verbatim; otherwise, if it contains glob
// metacharacters, it is expanded with doublestar ("**" matches across
// directories) to the regular files it matches, in lexical order. The
// result keeps the first occurrence of every path.
func Expand(args []string) ([]string, error) {
	var out []string

	seen := make(map[string]bool)

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if _, err := os.Lstat(arg); err == nil || !IsPattern(arg) {
			add(arg)
			continue
		}

		if !doublestar.ValidatePathPattern(arg) {
			return nil, fmt.Errorf("invalid glob pattern %q", arg)
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("%w %q", ErrNoMatch, arg)
		}

		for _, m := range matches {
			add(m)
		}
	}

	return out, nil
}

// IsPattern reports whether s contains glob metacharacters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
