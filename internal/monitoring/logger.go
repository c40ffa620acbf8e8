// Package monitoring holds the process-wide diagnostic logger and the
// Prometheus metrics exported by a tracking session.
package monitoring

import "log"

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

// Component returns a logger that prefixes every line with "[name] ".
// The returned func resolves Logf at call time, so a later SetLogger
// still takes effect.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// PrintfLogger adapts Logf to libraries that expect a Printf/Verbose
// logger (golang-migrate's migrate.Logger).
type PrintfLogger struct {
	Prefix string
	Debug  bool
}

func (l PrintfLogger) Printf(format string, v ...interface{}) {
	Logf(l.Prefix+format, v...)
}

func (l PrintfLogger) Verbose() bool {
	return l.Debug
}
