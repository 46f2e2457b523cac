// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels. Error attributes are passed through the redact package
// before they reach the output, and request-scoped loggers travel on the context.
package logger
