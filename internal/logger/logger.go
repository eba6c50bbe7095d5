package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.SugaredLogger
	level  zap.AtomicLevel
)

// Initialize sets up the logger with the specified level, writing to stdout
func Initialize(logLevel string) {
	InitializeWithWriter(logLevel, os.Stdout)
}

// InitializeWithWriter sets up the logger with the specified level and
// output. Transports that own stdout (stdio) must pass os.Stderr so protocol
// bytes stay clean.
func InitializeWithWriter(logLevel string, w *os.File) {
	mu.Lock()
	defer mu.Unlock()

	level = zap.NewAtomicLevelAt(parseLevel(logLevel))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(w),
		level,
	)
	logger = zap.New(core).Sugar()
}

// parseLevel maps a level string to a zap level
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "notice":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "critical", "alert", "emergency":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel adjusts the minimum level at runtime (logging/setLevel)
func SetLevel(logLevel string) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return
	}
	level.SetLevel(parseLevel(logLevel))
}

// ensureInitialized makes sure the logger is initialized
func ensureInitialized() *zap.SugaredLogger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l != nil {
		return l
	}

	InitializeWithWriter("info", os.Stderr)

	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	ensureInitialized().Debugf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	ensureInitialized().Infof(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	ensureInitialized().Warnf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	ensureInitialized().Errorf(format, v...)
}

// With returns a structured logger carrying the given key/value fields
func With(args ...interface{}) *zap.SugaredLogger {
	return ensureInitialized().With(args...)
}

// Sync flushes buffered log entries
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		// Sync on stderr/stdout returns an error on some platforms; ignore it.
		_ = logger.Sync()
	}
}

// Printf-style helper kept for call sites that assemble messages first
func Logf(lvl string, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	switch strings.ToLower(lvl) {
	case "debug":
		Debug("%s", msg)
	case "warn", "warning":
		Warn("%s", msg)
	case "error":
		Error("%s", msg)
	default:
		Info("%s", msg)
	}
}
