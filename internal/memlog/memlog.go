// Package memlog is the shared structured-logging collaborator: every
// package that needs to log constructs its logger here rather than reaching
// for the stdlib log package or inventing its own sink.
package memlog

import "go.uber.org/zap"

// New builds a production zap.Logger (JSON encoding, info level) named for
// the calling component.
func New(component string) *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		// zap's production config only fails on an unwritable sink; fall back
		// to a no-op logger rather than let an observability failure abort
		// startup.
		logger = zap.NewNop()
	}
	return logger.Named(component)
}

// Nop returns a logger that discards everything, for tests that don't want
// log output asserted or printed.
func Nop() *zap.Logger {
	return zap.NewNop()
}
