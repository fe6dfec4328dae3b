package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// kstoreLogger implements the ILogger interface on top of a slog handler
type kstoreLogger struct {
	name   string
	level  logger.LogLevel
	logger *slog.Logger
}

func (l *kstoreLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *kstoreLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log(slog.LevelDebug, format, args...)
	}
}

func (l *kstoreLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log(slog.LevelInfo, format, args...)
	}
}

func (l *kstoreLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log(slog.LevelWarn, format, args...)
	}
}

func (l *kstoreLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log(slog.LevelError, format, args...)
	}
}

func (l *kstoreLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.level >= logger.CRITICAL {
		l.log(slog.LevelError, "%s", msg)
	}
	panic(msg)
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *kstoreLogger) log(level slog.Level, format string, args ...interface{}) {
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...), "pkg", l.name)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// logOutput is where all loggers created by CreateLogger write to
var logOutput io.Writer = os.Stderr

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	handler := tint.NewHandler(logOutput, &tint.Options{
		Level:      slog.LevelDebug, // filtering happens in kstoreLogger
		TimeFormat: time.DateTime,
	})

	return &kstoreLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: slog.New(handler),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// Loggers lists every package logger of the library
var Loggers = []string{
	"collections",
	"cache",
	"dispatch",
	"storage/file",
	"storage/container",
}

// InitLoggers installs the logger factory and sets the level of all library loggers
func InitLoggers(config Config) error {
	level, err := ParseLogLevel(config.LogLevel)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)

	for _, name := range Loggers {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
