// Package monitoring holds the package-level diagnostic logger shared by
// the receive path. Datagram-rate diagnostics can be noisy, so tests and
// embedding applications may redirect or mute it.
package monitoring

import "log"

// Logf is the diagnostic logger. It defaults to log.Printf but may be
// replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
