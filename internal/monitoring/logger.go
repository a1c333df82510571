// Package monitoring provides the diagnostic logging seam shared by the
// streaming components. Frame fan-out code logs drops and throughput at
// camera rates, so tests redirect or mute it rather than capture stdout.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. Defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Quiet mutes the logger and returns a function restoring the previous one.
func Quiet() (restore func()) {
	previous := Logf
	SetLogger(nil)
	return func() { Logf = previous }
}
