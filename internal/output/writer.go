package output

import (
	"io"
	"sync"
)

// SyncWriter is an io.Writer that serializes calls to an underlying
// writer. Each Write reaches the underlying writer in one piece.
type SyncWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewSyncWriter wraps w. If w is nil, output is discarded.
func NewSyncWriter(w io.Writer) *SyncWriter {
	if w == nil {
		w = io.Discard
	}

	return &SyncWriter{out: w}
}

// Write writes p to the underlying writer while holding the lock.
func (sw *SyncWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	return sw.out.Write(p)
}
