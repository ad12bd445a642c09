package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	pkgLoggerMu sync.RWMutex
	pkgLogger   *DebugLogger
)

// setPackageLogger routes debugLog to l.
func setPackageLogger(l *DebugLogger) {
	pkgLoggerMu.Lock()
	pkgLogger = l
	pkgLoggerMu.Unlock()
}

// debugLog writes through the package-level logger. The loop, pipeline
// and ward layers have no Orchestrator to hand.
func debugLog(format string, args ...any) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()
	l.Log(format, args...)
}

// DebugLogger appends "[15:04:05.000] msg" lines to the orchestrator debug
// log. A nil or zero DebugLogger discards everything.
type DebugLogger struct {
	mu  sync.Mutex
	out io.Writer
	// closer is nil for loggers that do not own out.
	closer io.Closer
	now    func() time.Time
}

// NewDebugLogger opens path for appending, creating parent directories.
// An empty path gives a logger that discards everything.
func NewDebugLogger(path string) (*DebugLogger, error) {
	if path == "" {
		return NopLogger(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{out: f, closer: f, now: time.Now}
	l.Log("=== dungeonmaster orchestrator log started at %s ===", l.now().Format(time.RFC3339))
	return l, nil
}

// NewWriterLogger logs to w without taking ownership of it.
func NewWriterLogger(w io.Writer) *DebugLogger {
	return &DebugLogger{out: w, now: time.Now}
}

// DebugLogPath returns <root>/.dungeonmaster/logs/orchestrator-debug.log.
func DebugLogPath(root string) string {
	return filepath.Join(root, ".dungeonmaster", "logs", "orchestrator-debug.log")
}

// NewDebugLoggerForProject logs to DebugLogPath(root), falling back to a
// discarding logger when the file cannot be opened.
func NewDebugLoggerForProject(root string) *DebugLogger {
	l, err := NewDebugLogger(DebugLogPath(root))
	if err != nil {
		return NopLogger()
	}
	return l
}

// NopLogger returns a logger that discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes one timestamped line.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	fmt.Fprintf(l.out, "[%s] %s\n", l.now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	if f, ok := l.out.(*os.File); ok {
		f.Sync()
	}
}

// Close closes an owned log file. Later Log calls are dropped. Close is
// safe to call more than once.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = nil
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
