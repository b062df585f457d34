// Package filter runs a single external filter program: an executable that
// reads bytes on standard input and writes transformed bytes on standard
// output.
//
// A [Spec] names the program and an optional caller (interpreter). An
// [Invoker] resolves the program against an immutable [SearchPath], runs it
// with the given input and output streams, and reports the outcome as nil
// or as one of the two [Failure] variants, [ExitError] and [StartError].
package filter
