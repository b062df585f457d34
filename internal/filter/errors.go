package filter

import (
	"fmt"
)

// Failure is a filter run that did not succeed. It has exactly two
// implementations: *ExitError and *StartError.
type Failure interface {
	error
	// Filter returns the filter that failed.
	Filter() Spec
	failure()
}

// ExitError reports a filter that ran and exited with a non-zero status.
type ExitError struct {
	Spec Spec
	// Code is the exit status. It is -1 when the process was killed by a
	// signal.
	Code int
	// Stderr holds everything the filter wrote to its standard error.
	Stderr []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("filter %q failed with exit code %d", e.Spec.Name(), e.Code)
}

// Filter returns the filter that failed.
func (e *ExitError) Filter() Spec { return e.Spec }

func (*ExitError) failure() {}

// StartError reports a filter that could not be started at all, for
// example because the executable does not exist or is not executable.
type StartError struct {
	Spec Spec
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("filter %q could not be started: %v", e.Spec.Name(), e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Filter returns the filter that failed.
func (e *StartError) Filter() Spec { return e.Spec }

func (*StartError) failure() {}
