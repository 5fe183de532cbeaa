// Package utils holds small helpers shared across matome packages.
package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger named for this service. When debug is true it
// uses the development config (human-readable, debug level); otherwise the
// production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Named("matome"), nil
}
