// Package logging provides config-driven categorized file-based logging for mender.
// Logs are written to <state dir>/logs/ with separate files per category.
// Logging is controlled by debug_mode in the logging config - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and config resolution
	CategoryConfig   Category = "config"   // Config loading and validation
	CategoryRunner   Category = "runner"   // Isolation runner, language gate, harness
	CategoryClassify Category = "classify" // Diagnostic classification
	CategoryRepair   Category = "repair"   // Heuristic repair engine
	CategoryLoop     Category = "loop"     // Convergence loop rounds
	CategoryCollab   Category = "collab"   // Decomposition / generation collaborators
	CategoryTactile  Category = "tactile"  // Process execution
)

// AllCategories lists every category known to the logger.
var AllCategories = []Category{
	CategoryBoot, CategoryConfig, CategoryRunner, CategoryClassify,
	CategoryRepair, CategoryLoop, CategoryCollab, CategoryTactile,
}

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	DebugMode  bool
	Level      string
	JSONFormat bool
	Categories map[string]bool
}

// StructuredLogEntry is one JSON log line.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Options
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory under stateDir.
// It is a silent no-op unless opts.DebugMode is set.
func Initialize(stateDir string, opts Options) error {
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}

	CloseAll()

	configMu.Lock()
	config = opts
	logLevel = parseLevel(opts.Level)
	configMu.Unlock()

	loggersMu.Lock()
	logsDir = filepath.Join(stateDir, "logs")
	loggersMu.Unlock()

	if !opts.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== mender logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", opts.Level)
	if len(opts.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	}

	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	dir := logsDir
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func currentLevel() (int, bool) {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel, config.JSONFormat
}

func (l *Logger) write(level int, name string, format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	min, jsonFormat := currentLevel()
	if level < min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if jsonFormat {
		l.logJSON(name, msg, nil)
		return
	}
	l.logger.Printf("[%s] %s", levelTag(name), msg)
}

func levelTag(name string) string {
	switch name {
	case "debug":
		return "DEBUG"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l *Logger) logJSON(level, msg string, fields map[string]interface{}) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", levelTag(level), msg)
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "debug", format, args...)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "info", format, args...)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "warn", format, args...)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "error", format, args...)
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	if _, jsonFormat := currentLevel(); jsonFormat {
		l.logJSON(level, msg, fields)
		return
	}
	l.logger.Printf("[%s] %s | fields=%v", levelTag(level), msg, fields)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Config(format string, args ...interface{})     { Get(CategoryConfig).Info(format, args...) }
func ConfigWarn(format string, args ...interface{}) { Get(CategoryConfig).Warn(format, args...) }

func Runner(format string, args ...interface{})      { Get(CategoryRunner).Info(format, args...) }
func RunnerDebug(format string, args ...interface{}) { Get(CategoryRunner).Debug(format, args...) }
func RunnerWarn(format string, args ...interface{})  { Get(CategoryRunner).Warn(format, args...) }
func RunnerError(format string, args ...interface{}) { Get(CategoryRunner).Error(format, args...) }

func ClassifyDebug(format string, args ...interface{}) { Get(CategoryClassify).Debug(format, args...) }

func Repair(format string, args ...interface{})      { Get(CategoryRepair).Info(format, args...) }
func RepairDebug(format string, args ...interface{}) { Get(CategoryRepair).Debug(format, args...) }

func Loop(format string, args ...interface{})      { Get(CategoryLoop).Info(format, args...) }
func LoopDebug(format string, args ...interface{}) { Get(CategoryLoop).Debug(format, args...) }
func LoopWarn(format string, args ...interface{})  { Get(CategoryLoop).Warn(format, args...) }

func Collab(format string, args ...interface{})      { Get(CategoryCollab).Info(format, args...) }
func CollabDebug(format string, args ...interface{}) { Get(CategoryCollab).Debug(format, args...) }
func CollabWarn(format string, args ...interface{})  { Get(CategoryCollab).Warn(format, args...) }
func CollabError(format string, args ...interface{}) { Get(CategoryCollab).Error(format, args...) }

func Tactile(format string, args ...interface{})      { Get(CategoryTactile).Info(format, args...) }
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }
func TactileWarn(format string, args ...interface{})  { Get(CategoryTactile).Warn(format, args...) }
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
