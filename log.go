package photesthesis

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the driver's diagnostic logger: a no-op below
// verbosity 1, a console development logger at 1, and debug-level
// output at 2 and above.
func newLogger(verbose uint64) *zap.Logger {
	if verbose == 0 {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	if verbose == 1 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
