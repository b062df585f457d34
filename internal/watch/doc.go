// Package watch re-runs a filter chain on input files whenever they change.
// Events are debounced per path and a file whose content is unchanged since
// the last run, including the chain's own rewrite of it, is skipped.
package watch
