// Package log provides structured logging for Conveyor components.
//
// Loggers are constructed once near main and passed down explicitly;
// components tag their output with log.Component:
//
//	logger := log.NewLogger(log.WithLevel(log.InfoLevel))
//	tlog := logger.With(log.Component("topic"))
//	tlog.Info("opened", log.Str("topic", name), log.Int("capacity", cap))
//
// Output is built on log/slog with a text or JSON handler selected at
// construction time. RedirectStdLog routes stdlib log output (Pebble uses
// the stdlib logger) through a Logger at debug level.
package log
