// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional stage ID, and message.
// Entries are encoded by a zap console core, so every write is serialized
// by zap and the output format stays stable across goroutines.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Pipeline started")
//	logger.Info("sha512_0", "Stage running")
//	logger.Error("merger", "Failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("generator", "Debug message")
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// ParseLevel converts the textual names used in configuration files
// ("debug", "info", "warn", "error") into a Level.
package logger
