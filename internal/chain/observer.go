package chain

import (
	"io"
	"os"

	"github.com/hupe1980/filefilter/internal/filter"
)

// Observer receives synchronous notifications while a chain runs.
// Observers must not modify the streams they are handed; they exist for
// progress reporting only.
type Observer interface {
	// FileStarted fires once per source before any stage runs.
	FileStarted(identity string, src io.Reader)

	// StageStarted fires immediately before a stage's filter is invoked.
	StageStarted(identity string, src io.Reader, spec filter.Spec, out *os.File)
}

// FileFinisher is implemented by observers that also want to know when a
// source is done. err is nil on success.
type FileFinisher interface {
	FileFinished(identity string, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnFileStart  func(identity string, src io.Reader)
	OnStageStart func(identity string, src io.Reader, spec filter.Spec, out *os.File)
	OnFileFinish func(identity string, err error)
}

// FileStarted implements Observer.
func (o ObserverFuncs) FileStarted(identity string, src io.Reader) {
	if o.OnFileStart != nil {
		o.OnFileStart(identity, src)
	}
}

// StageStarted implements Observer.
func (o ObserverFuncs) StageStarted(identity string, src io.Reader, spec filter.Spec, out *os.File) {
	if o.OnStageStart != nil {
		o.OnStageStart(identity, src, spec, out)
	}
}

// FileFinished implements FileFinisher.
func (o ObserverFuncs) FileFinished(identity string, err error) {
	if o.OnFileFinish != nil {
		o.OnFileFinish(identity, err)
	}
}
