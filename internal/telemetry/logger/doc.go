// Package logger provides structured logging for dirstore tools.
//
// It wraps log/slog:
//
//   - logger.go: configuration, level control and the default logger
//   - context.go: carrying a logger through a context
//   - redact.go: masking of secrets and key material
//   - handler.go: fan-out to a rotating log file
//
// Console output is JSON or text; the optional log file is always JSON and
// is rotated by lumberjack.
package logger
