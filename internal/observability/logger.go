// File: internal/observability/logger.go
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/opera-farm/internal/config"
)

// Field keys shared by the run loggers and the log file reader.
const (
	ProfileKey = "profile_id"
	RunKey     = "run_id"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const ansiReset = "\x1b[0m"

var ansiColors = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// palette holds the escape sequence of every colored level. Levels without
// a known color name print plain.
type palette map[zapcore.Level]string

func newPalette(c config.ColorConfig) palette {
	names := map[zapcore.Level]string{
		zapcore.DebugLevel:  c.Debug,
		zapcore.InfoLevel:   c.Info,
		zapcore.WarnLevel:   c.Warn,
		zapcore.ErrorLevel:  c.Error,
		zapcore.DPanicLevel: c.DPanic,
		zapcore.PanicLevel:  c.Panic,
		zapcore.FatalLevel:  c.Fatal,
	}
	p := palette{}
	for level, name := range names {
		if seq, ok := ansiColors[strings.ToLower(strings.TrimSpace(name))]; ok {
			p[level] = seq
		}
	}
	return p
}

func (p palette) encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	name := level.CapitalString()
	if seq, ok := p[level]; ok {
		name = seq + name + ansiReset
	}
	enc.AppendString(name)
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}

// consoleEncoder is single line and colored for "console", JSON otherwise.
func consoleEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	if cfg.Format != "console" {
		return zapcore.NewJSONEncoder(baseEncoderConfig())
	}
	ec := baseEncoderConfig()
	ec.EncodeLevel = newPalette(cfg.Colors).encodeLevel
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// fileCore writes JSON lines to a rotated file. Tail reads them back, so the
// encoding does not follow logger.format.
func fileCore(cfg config.LoggerConfig, level zapcore.LevelEnabler) zapcore.Core {
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(baseEncoderConfig()), sink, level)
}

// Build assembles a logger from cfg without installing it globally. An
// unparsable level falls back to info.
func Build(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder(cfg), console, level)}
	if cfg.LogFile != "" {
		cores = append(cores, fileCore(cfg, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.DPanicLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// Initialize installs the global logger. Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		logger := Build(cfg, console)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes the global logger with console output on stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the global logger so tests can initialize it again.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

// GetLogger returns the global logger, or a development logger named
// "fallback" before Initialize.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// ForProfile returns a child logger whose entries are keyed by profile.
func ForProfile(logger *zap.Logger, profileID string) *zap.Logger {
	return logger.With(zap.String(ProfileKey, profileID))
}

// ForRun is ForProfile plus the run identifier.
func ForRun(logger *zap.Logger, profileID, runID string) *zap.Logger {
	return logger.With(zap.String(ProfileKey, profileID), zap.String(RunKey, runID))
}

// Sync flushes buffered entries. Call it before exiting.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !terminalSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// terminalSyncError reports errors from fsync on a terminal or pipe, which
// cannot be synced.
func terminalSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EBADF)
}
