// Package chainfile loads reusable filter chain definitions.
//
// A chain file lists filters in execution order and may pin the filefilter
// versions it works with:
//
//	requires: ">= 1.0"
//	filters:
//	  - strip-trailing-space
//	  - normalize-eol
//
// YAML (.yaml, .yml), JSON (.json) and TOML (.toml) are supported.
package chainfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/filefilter/internal/version"
)

// ErrUnsupportedFormat is returned for chain files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported chain file format")

// File is a parsed chain file.
type File struct {
	// Requires is an optional semantic version constraint on filefilter.
	Requires string `json:"requires,omitempty" toml:"requires,omitempty"`

	// Filters are filter paths in execution order.
	Filters []string `json:"filters" toml:"filters"`
}

// Load reads and validates the chain file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chain file: %w", err)
	}

	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("chain file %s: %w", path, err)
	}

	return f, nil
}

// Parse decodes data in the format named by ext and validates it.
func Parse(data []byte, ext string) (*File, error) {
	var f File

	switch strings.ToLower(ext) {
	case ".yaml", ".yml", ".json":
		if err := sigsyaml.Unmarshal(data, &f, sigsyaml.DisallowUnknownFields); err != nil {
			return nil, fmt.Errorf("parsing: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w %q (want .yaml, .yml, .json or .toml)", ErrUnsupportedFormat, ext)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Validate checks filter entries and the version constraint.
func (f *File) Validate() error {
	for i, p := range f.Filters {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("filters[%d]: must not be empty", i)
		}
	}

	if f.Requires == "" {
		return nil
	}

	ok, err := version.Satisfies(f.Requires)
	if err != nil {
		return fmt.Errorf("requires: %w", err)
	}

	if !ok {
		return fmt.Errorf("requires filefilter %s, running %s", f.Requires, version.GetInfo().Version)
	}

	return nil
}
