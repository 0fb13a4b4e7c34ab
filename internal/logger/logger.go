// Package logger provides verbose logging for the Legisync CLI.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to help users follow the fetch pipeline.
//
// The package wraps a zap logger behind printf-style helpers so call
// sites stay terse. Warnings and errors are always emitted; info and
// debug lines only appear in verbose mode.
package logger

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	level             = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	log               = build(os.Stderr)
)

// build constructs the zap logger writing to w. Console encoding keeps the
// output readable on a terminal; timestamps are short because the CLI runs
// are short-lived.
func build(w io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core).Sugar()
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.WarnLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	log = build(w)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debugf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debugf("=== %s ===", name)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Infof(format, args...)
}

// Warn prints a warning message. Warnings are always emitted.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Warnf(format, args...)
}

// Error prints an error message. Errors are always emitted.
func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Errorf(format, args...)
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = log.Sync()
}
