// Package logging builds the process logger.
package logging

import "go.uber.org/zap"

// New returns a development logger (console, debug level) when debug is set
// and a production logger (JSON, info level) otherwise.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
