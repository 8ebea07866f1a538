package logger

import (
	"log"
	"strings"
)

// logWriter adapts io.Writer so the standard library's log package (used
// internally by net/http.Server for connection-level errors) writes
// through this package's leveled formatting instead of its own.
type logWriter struct{}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}

	switch {
	case strings.Contains(message, "TLS") || strings.Contains(message, "tls"):
		Warn("http server: %s", message)
	case strings.Contains(message, "error") || strings.Contains(message, "Error"):
		Error("http server: %s", message)
	default:
		Info("http server: %s", message)
	}
	return len(p), nil
}

// InitLogBridge redirects the standard library's default logger through
// this package, so anything that writes via log.Print* (including
// third-party code that doesn't know about this logger) is formatted
// consistently with the rest of BadSUBD's output.
func InitLogBridge() {
	log.SetOutput(&logWriter{})
	log.SetFlags(0)
	Debug("standard library log output redirected to badsubd logger")
}

// SetHTTPServerErrorLog returns a *log.Logger suitable for
// http.Server.ErrorLog, so connection-level errors (bad TLS handshakes,
// timeouts) are routed through this package too.
func SetHTTPServerErrorLog() *log.Logger {
	return log.New(&logWriter{}, "", 0)
}
