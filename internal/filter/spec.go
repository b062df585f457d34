package filter

import (
	"path/filepath"
	"strings"
)

// Spec identifies one external filter program.
type Spec struct {
	// Path is the filter executable, either a bare name resolved through
	// the search path or a path containing a separator.
	Path string

	// Caller is an optional program that runs the filter, e.g. an
	// interpreter invoked as `caller path`. Empty means run Path directly.
	Caller string
}

// NewSpecs builds one Spec per filter path, all sharing caller.
func NewSpecs(caller string, paths []string) []Spec {
	specs := make([]Spec, 0, len(paths))
	for _, p := range paths {
		specs = append(specs, Spec{Path: p, Caller: caller})
	}

	return specs
}

// Name returns the base name of the filter path.
func (s Spec) Name() string {
	return filepath.Base(s.Path)
}

// Stem returns the filter name without its extension.
func (s Spec) Stem() string {
	return Stem(s.Path)
}

// Args returns the process argument list, without search-path resolution.
func (s Spec) Args() []string {
	if s.Caller != "" {
		return []string{s.Caller, s.Path}
	}

	return []string{s.Path}
}

// String returns the command line the filter runs as.
func (s Spec) String() string {
	return strings.Join(s.Args(), " ")
}

// Stem returns the final element of p without its extension.
func Stem(p string) string {
	base := filepath.Base(p)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}

	return base
}
