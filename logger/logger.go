// Package logger provides structured logging for BadSUBD.
//
// Five levels are supported (TRACE, DEBUG, INFO, WARN, ERROR); only
// messages at or above the configured level are emitted. Level checks use
// an atomic int32 so logging calls stay cheap on the hot path (row
// insert/select/delete) even when disabled.
//
// Log output format:
//
//	YYYY/MM/DD HH:MM:SS.ssssss [PID:GID] [LEVEL] function.file:line: message
package logger

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel is a logging severity. Higher values are more severe; setting a
// level via SetLogLevel suppresses everything below it.
type LogLevel int32

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var (
	currentLevel atomic.Int32
	processID    = os.Getpid()
	logger       *log.Logger
)

func init() {
	logger = log.New(os.Stdout, "", 0)
	currentLevel.Store(int32(INFO))
}

// SetLogLevel sets the minimum level that will be emitted.
func SetLogLevel(level string) error {
	switch strings.ToUpper(level) {
	case "TRACE":
		currentLevel.Store(int32(TRACE))
	case "DEBUG":
		currentLevel.Store(int32(DEBUG))
	case "INFO":
		currentLevel.Store(int32(INFO))
	case "WARN":
		currentLevel.Store(int32(WARN))
	case "ERROR":
		currentLevel.Store(int32(ERROR))
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	Info("log level changed to %s", strings.ToUpper(level))
	return nil
}

// GetLogLevel returns the current minimum level.
func GetLogLevel() string {
	return levelNames[LogLevel(currentLevel.Load())]
}

// formatMessage renders one log line, attributing it to the caller `skip`
// frames up the stack (so library wrappers can still report the caller's
// own file/line rather than their own).
func formatMessage(level LogLevel, skip int, format string, args ...interface{}) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "unknown"
		line = 0
	}
	if idx := strings.LastIndex(file, "/"); idx != -1 {
		file = file[idx+1:]
	}
	if idx := strings.LastIndex(file, ".go"); idx != -1 {
		file = file[:idx]
	}

	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		fullName := fn.Name()
		if idx := strings.LastIndex(fullName, "."); idx != -1 {
			funcName = fullName[idx+1:]
		}
	}

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006/01/02 15:04:05.000000")
	return fmt.Sprintf("%s [%d:%d] [%s] %s.%s:%d: %s",
		timestamp, processID, getGoroutineID(), levelNames[level], funcName, file, line, msg)
}

// getGoroutineID extracts the current goroutine's ID from its stack trace
// header, for log-line correlation across concurrent table operations.
func getGoroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(string(buf[:n]))[1]
	id := 0
	fmt.Sscanf(idField, "%d", &id)
	return id
}

func logMessage(level LogLevel, skip int, format string, args ...interface{}) {
	if level < LogLevel(currentLevel.Load()) {
		return
	}
	logger.Println(formatMessage(level, skip, format, args...))
}

// Trace logs a trace-level message.
func Trace(format string, args ...interface{}) { logMessage(TRACE, 3, format, args...) }

// Debug logs a debug-level message.
func Debug(format string, args ...interface{}) { logMessage(DEBUG, 3, format, args...) }

// Info logs an info-level message.
func Info(format string, args ...interface{}) { logMessage(INFO, 3, format, args...) }

// Warn logs a warning-level message.
func Warn(format string, args ...interface{}) { logMessage(WARN, 3, format, args...) }

// Error logs an error-level message.
func Error(format string, args ...interface{}) { logMessage(ERROR, 3, format, args...) }

// Configure sets up logging from BADSUBD_LOG_LEVEL.
func Configure() {
	if level := os.Getenv("BADSUBD_LOG_LEVEL"); level != "" {
		SetLogLevel(level)
	}
}
