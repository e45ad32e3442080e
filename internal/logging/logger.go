// Package logging provides structured logging functionality for zoom-to-youtube
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type contextKey string

// RunIDKey is the context key for run IDs
const RunIDKey contextKey = "run_id"

// ItemIDKey is the context key for the item being processed
const ItemIDKey contextKey = "item_id"

// Logger defines the interface for logging operations
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	DebugWithContext(ctx context.Context, format string, args ...interface{})
	InfoWithContext(ctx context.Context, format string, args ...interface{})
	WarnWithContext(ctx context.Context, format string, args ...interface{})
	ErrorWithContext(ctx context.Context, format string, args ...interface{})

	// LogItemAction records a state transition of a ledger item
	LogItemAction(ctx context.Context, action string, itemID string, fields map[string]interface{})
	LogPerformance(metrics PerformanceMetrics)

	GetLevel() LogLevel
	SetLevel(level LogLevel)
	SetOutput(w io.Writer)
	Close() error
}

// PerformanceMetrics represents performance data for logging
type PerformanceMetrics struct {
	Operation      string
	Duration       time.Duration
	BytesProcessed int64
	Success        bool
	Error          string
	Metadata       map[string]interface{}
}

// loggerImpl implements the Logger interface on top of logrus
type loggerImpl struct {
	log        *logrus.Logger
	level      LogLevel
	fileHandle *os.File
}

// NewLogger creates a new Logger instance with the given configuration
func NewLogger(cfg config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	if cfg.JSONFormat {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
			DisableColors:   true,
		})
	}
	log.SetLevel(level.logrusLevel())

	logger := &loggerImpl{
		log:   log,
		level: level,
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		logger.fileHandle = file
		writers = append(writers, file)
	}

	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}

	return logger, nil
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

// entry returns a logrus entry carrying the run and item IDs found in ctx
func (l *loggerImpl) entry(ctx context.Context) *logrus.Entry {
	e := logrus.NewEntry(l.log)
	if ctx == nil {
		return e
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		e = e.WithField(string(RunIDKey), runID)
	}
	if itemID, ok := ctx.Value(ItemIDKey).(string); ok && itemID != "" {
		e = e.WithField(string(ItemIDKey), itemID)
	}
	return e
}

func (l *loggerImpl) logf(ctx context.Context, level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.entry(ctx).Log(level.logrusLevel(), fmt.Sprintf(format, args...))
}

func (l *loggerImpl) Debug(format string, args ...interface{}) {
	l.logf(context.Background(), DebugLevel, format, args...)
}

func (l *loggerImpl) Info(format string, args ...interface{}) {
	l.logf(context.Background(), InfoLevel, format, args...)
}

func (l *loggerImpl) Warn(format string, args ...interface{}) {
	l.logf(context.Background(), WarnLevel, format, args...)
}

func (l *loggerImpl) Error(format string, args ...interface{}) {
	l.logf(context.Background(), ErrorLevel, format, args...)
}

func (l *loggerImpl) DebugWithContext(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, DebugLevel, format, args...)
}

func (l *loggerImpl) InfoWithContext(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, InfoLevel, format, args...)
}

func (l *loggerImpl) WarnWithContext(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, WarnLevel, format, args...)
}

func (l *loggerImpl) ErrorWithContext(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, ErrorLevel, format, args...)
}

// LogItemAction logs a ledger transition with structured fields
func (l *loggerImpl) LogItemAction(ctx context.Context, action string, itemID string, fields map[string]interface{}) {
	if InfoLevel < l.level {
		return
	}
	data := logrus.Fields{
		"action":          action,
		string(ItemIDKey): itemID,
	}
	for key, value := range fields {
		data[key] = value
	}
	l.entry(ctx).WithFields(data).Info(fmt.Sprintf("Item action: %s", action))
}

// LogPerformance logs performance metrics
func (l *loggerImpl) LogPerformance(metrics PerformanceMetrics) {
	if InfoLevel < l.level {
		return
	}
	data := logrus.Fields{
		"operation":       metrics.Operation,
		"duration_ms":     metrics.Duration.Milliseconds(),
		"bytes_processed": metrics.BytesProcessed,
		"success":         metrics.Success,
	}
	if metrics.Error != "" {
		data["error"] = metrics.Error
	}
	for key, value := range metrics.Metadata {
		data[key] = value
	}
	l.log.WithFields(data).Info(fmt.Sprintf("Performance: %s completed in %v", metrics.Operation, metrics.Duration))
}

func (l *loggerImpl) GetLevel() LogLevel {
	return l.level
}

func (l *loggerImpl) SetLevel(level LogLevel) {
	l.level = level
	l.log.SetLevel(level.logrusLevel())
}

// SetOutput replaces every writer (mainly for testing)
func (l *loggerImpl) SetOutput(w io.Writer) {
	l.log.SetOutput(w)
}

// Close closes the logger and any open file handles
func (l *loggerImpl) Close() error {
	if l.fileHandle != nil {
		return l.fileHandle.Close()
	}
	return nil
}

// Global logger instance for package-level convenience functions
var defaultLogger Logger

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger
func GetDefaultLogger() Logger {
	return defaultLogger
}

// InitializeLogging initializes the global logger with the provided configuration
func InitializeLogging(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	SetDefaultLogger(logger)
	return nil
}

// Package-level helpers that use the default logger and are no-ops without one

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

func DebugWithContext(ctx context.Context, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.DebugWithContext(ctx, format, args...)
	}
}

func InfoWithContext(ctx context.Context, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.InfoWithContext(ctx, format, args...)
	}
}

func WarnWithContext(ctx context.Context, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.WarnWithContext(ctx, format, args...)
	}
}

func ErrorWithContext(ctx context.Context, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.ErrorWithContext(ctx, format, args...)
	}
}

func LogItemAction(ctx context.Context, action string, itemID string, fields map[string]interface{}) {
	if defaultLogger != nil {
		defaultLogger.LogItemAction(ctx, action, itemID, fields)
	}
}

func LogPerformance(metrics PerformanceMetrics) {
	if defaultLogger != nil {
		defaultLogger.LogPerformance(metrics)
	}
}

// WithRunID creates a context carrying a run ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID extracts the run ID from a context
func GetRunID(ctx context.Context) (string, bool) {
	runID, ok := ctx.Value(RunIDKey).(string)
	return runID, ok
}

// WithItemID creates a context carrying the ID of the item being processed
func WithItemID(ctx context.Context, itemID string) context.Context {
	return context.WithValue(ctx, ItemIDKey, itemID)
}

// NewRunID generates a unique run ID
func NewRunID() string {
	return uuid.NewString()
}
