// Package chain drives an ordered sequence of external filters over one
// logical input.
//
// Every stage writes to a fresh temporary file in a [Scratch] directory,
// which then becomes the input of the next stage. [Chain.ApplyToFile]
// rewrites the target only after the whole chain succeeded, so a failing
// stage never leaves a half-filtered file behind. [Observer] values receive
// synchronous notifications for progress reporting.
package chain
