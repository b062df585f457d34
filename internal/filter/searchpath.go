package filter

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when an executable cannot be located on the
// search path.
var ErrNotFound = errors.New("executable file not found in search path")

// SearchPath is an immutable, ordered list of directories used to resolve
// filter executables. It is built once at startup and handed to every
// Invoker; the process environment is never modified.
type SearchPath struct {
	dirs []string
}

// NewSearchPath returns a SearchPath made of the entries of filterDir
// (os.PathListSeparator separated) followed by the entries of inherited,
// which is usually the value of $PATH. Duplicate and empty entries are
// dropped, keeping the first occurrence.
func NewSearchPath(filterDir, inherited string) SearchPath {
	var dirs []string

	seen := make(map[string]bool)

	for _, list := range []string{filterDir, inherited} {
		for _, d := range filepath.SplitList(list) {
			if d == "" || seen[d] {
				continue
			}

			seen[d] = true
			dirs = append(dirs, d)
		}
	}

	return SearchPath{dirs: dirs}
}

// EnvSearchPath returns NewSearchPath(filterDir, $PATH).
func EnvSearchPath(filterDir string) SearchPath {
	return NewSearchPath(filterDir, os.Getenv("PATH"))
}

// Dirs returns a copy of the directories in search order.
func (sp SearchPath) Dirs() []string {
	return append([]string(nil), sp.dirs...)
}

// String returns the search path joined with os.PathListSeparator, in the
// format of $PATH.
func (sp SearchPath) String() string {
	return strings.Join(sp.dirs, string(os.PathListSeparator))
}

// Lookup resolves name to an executable. Names containing a path separator
// are checked as given; bare names are searched in each directory in order.
func (sp SearchPath) Lookup(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty executable name: %w", ErrNotFound)
	}

	if hasSeparator(name) {
		p, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}

		return p, nil
	}

	for _, dir := range sp.dirs {
		// Joining keeps a separator in the candidate, so LookPath checks
		// the file directly instead of consulting $PATH.
		if p, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Find returns the first regular file called name in the search path,
// executable or not. It is used to locate filter scripts that are run
// through a caller. Names containing a separator are returned unchanged.
func (sp SearchPath) Find(name string) (string, bool) {
	if name == "" {
		return "", false
	}

	if hasSeparator(name) {
		return name, true
	}

	for _, dir := range sp.dirs {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}

	return "", false
}

// Environ returns env with PATH replaced by the search path.
func (sp SearchPath) Environ(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if isPathVar(kv) {
			continue
		}

		out = append(out, kv)
	}

	return append(out, "PATH="+sp.String())
}

func isPathVar(kv string) bool {
	k, _, ok := strings.Cut(kv, "=")
	if !ok {
		return false
	}

	if os.PathSeparator == '\\' {
		return strings.EqualFold(k, "PATH")
	}

	return k == "PATH"
}

func hasSeparator(name string) bool {
	return strings.ContainsRune(name, '/') || strings.ContainsRune(name, os.PathSeparator)
}
