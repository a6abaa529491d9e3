// Package observability provides the shared CLI logger.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide structured logger. It is a no-op until
// InitCLILogger runs, so library code can log unconditionally.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for terminal output on stderr.
// Stdout stays reserved for command output. Verbose enables debug
// level.
func InitCLILogger(component string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)

	CLILogger = zap.New(core).Named(component)
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	_ = CLILogger.Sync()
}
