// Package output renders command reports and guards shared writers.
//
//   - Writers (writer.go): [SyncWriter] serializes writes from concurrently
//     filtered files so progress lines and forwarded diagnostics never
//     interleave.
//
//   - Reports (report.go): a [Report] is a small table of strings, rendered
//     through a [Registry] of named formats: table (go-pretty), json and
//     yaml.
package output
