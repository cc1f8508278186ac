// Package monitoring provides the process-wide diagnostic logger used by the
// ingest and feature pipeline packages.
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Chunkf logs a message prefixed with the bounds of the chunk being processed,
// so a failed chunk can be replayed from the log line alone.
func Chunkf(start, end time.Time, format string, v ...interface{}) {
	args := append([]interface{}{start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)}, v...)
	Logf("chunk [%s, %s]: "+format, args...)
}
