// Package sklogimpl holds the swappable Logger behind the sklog functions.
// It is a separate package so that Logger implementations (see stdlogging)
// can be written without an import cycle on sklog.
package sklogimpl

import (
	"sync"
)

// Severity of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// Logger is implemented by every log destination.
type Logger interface {
	// Log writes a single log line. depth is the number of stack frames
	// between the original sklog call and Log. If format is empty the args
	// are formatted with fmt.Sprint, otherwise with fmt.Sprintf.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush any buffered lines.
	Flush()
}

var (
	mutex  sync.RWMutex
	logger Logger
)

// SetLogger replaces the Logger used by sklog.
func SetLogger(l Logger) {
	mutex.Lock()
	defer mutex.Unlock()
	logger = l
}

// Log dispatches to the current Logger.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	mutex.RLock()
	l := logger
	mutex.RUnlock()
	if l == nil {
		return
	}
	l.Log(depth+1, severity, format, args...)
}

// Flush flushes the current Logger.
func Flush() {
	mutex.RLock()
	l := logger
	mutex.RUnlock()
	if l != nil {
		l.Flush()
	}
}
