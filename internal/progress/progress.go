// Package progress renders one human-readable line per filtered source:
//
//	<identity>: <filter1> <filter2> ...
//
// listing the filters that completed. The Reporter is a chain.Observer;
// all state lives in the Reporter value.
package progress

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/filefilter/internal/filter"
)

// Reporter collects stage names per source and writes the line once the
// source is finished. It is safe for concurrent sources.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	pending map[string]*line
}

type line struct {
	done    []string
	running string
}

// NewReporter creates a Reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		out:     out,
		pending: make(map[string]*line),
	}
}

// FileStarted starts a new line for identity.
func (r *Reporter) FileStarted(identity string, _ io.Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[identity] = &line{}
}

// StageStarted marks the previous stage of identity as completed and
// remembers the one about to run.
func (r *Reporter) StageStarted(identity string, _ io.Reader, spec filter.Spec, _ *os.File) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.lineFor(identity)
	if l.running != "" {
		l.done = append(l.done, l.running)
	}

	l.running = spec.Name()
}

// FileFinished writes the line for identity. The last stage counts as
// completed only when err is nil.
func (r *Reporter) FileFinished(identity string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.lineFor(identity)
	delete(r.pending, identity)

	if err == nil && l.running != "" {
		l.done = append(l.done, l.running)
	}

	var b strings.Builder
	b.WriteString(identity)
	b.WriteString(":")

	for _, name := range l.done {
		b.WriteString(" ")
		b.WriteString(name)
	}

	b.WriteString("\n")

	_, _ = io.WriteString(r.out, b.String())
}

func (r *Reporter) lineFor(identity string) *line {
	l, ok := r.pending[identity]
	if !ok {
		l = &line{}
		r.pending[identity] = l
	}

	return l
}
