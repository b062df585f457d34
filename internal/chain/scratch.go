package chain

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/filefilter/internal/filter"
)

// ScratchPrefix is the name prefix of every scratch directory.
const ScratchPrefix = "filefilter_"

// Scratch is a directory holding the intermediate files of one tool
// invocation. It is created fresh by NewScratch and removed, with
// everything in it, by Close.
type Scratch struct {
	dir      string
	once     sync.Once
	closeErr error
}

// NewScratch creates a new scratch directory below parent. An empty
// parent means the current directory.
func NewScratch(parent string) (*Scratch, error) {
	if parent == "" {
		parent = "."
	}

	dir, err := os.MkdirTemp(parent, ScratchPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory in %s: %w", parent, err)
	}

	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string {
	return s.dir
}

// CreateTemp creates a new file in the scratch directory whose name starts
// with prefix. Uniqueness is guaranteed by os.CreateTemp.
func (s *Scratch) CreateTemp(prefix string) (*os.File, error) {
	f, err := os.CreateTemp(s.dir, sanitizePrefix(prefix)+"*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file in %s: %w", s.dir, err)
	}

	return f, nil
}

// Close removes the scratch directory recursively. Only the first call
// does any work; later calls return the first result.
func (s *Scratch) Close() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.closeErr = fmt.Errorf("removing scratch directory %s: %w", s.dir, err)
		}
	})

	return s.closeErr
}

// TempPrefix returns the temp-file prefix for a stage: the stem of the
// source identity and the stem of the filter, each followed by '_'.
func TempPrefix(identity, filterPath string) string {
	return filter.Stem(identity) + "_" + filter.Stem(filterPath) + "_"
}

// sanitizePrefix drops path separators, which os.CreateTemp rejects.
func sanitizePrefix(prefix string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator || r == '*' {
			return '-'
		}

		return r
	}, prefix)
}
