// Package common holds what every kstore package and command shares:
// the Config struct with its validation and printable report, and the
// logging setup.
//
// Logging: library packages obtain their logger once with
// logger.GetLogger("<pkg>") from github.com/lni/dragonboat/v4/logger.
// InitLoggers installs CreateLogger as the logger factory, so every package
// logger ends up writing through a log/slog logger with a tint handler,
// and sets the configured level on all names listed in Loggers.
package common
