// Package logging constructs the zap loggers shared across components:
// one base logger per process, named sub-loggers per component via With.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide base logger. Pass debug=true for development
// console output; otherwise json-encoded production output at info level.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Named returns a child logger tagged with component, e.g. Named(base,
// "orchestrator").
func Named(base *zap.Logger, component string) *zap.Logger {
	return base.With(zap.String("component", component))
}

// Nop returns a logger that discards everything, used when a component is
// constructed without an explicit logger (tests, one-off CLI subcommands).
func Nop() *zap.Logger {
	return zap.NewNop()
}
