// Package stdlogging implements sklogimpl.Logger on top of
// github.com/jcgregorio/logger, writing to stderr or stdout.
package stdlogging

import (
	logger "github.com/jcgregorio/logger"
	"go.skia.org/rebaseline/go/sklog/sklogimpl"
)

type stdlog struct {
	logger *logger.Logger
	min    sklogimpl.Severity
}

// New returns a sklogimpl.Logger that writes every severity to dst, such as
// os.Stdout or os.Stderr.
func New(dst logger.SyncWriter) sklogimpl.Logger {
	return NewWithMinSeverity(dst, sklogimpl.Debug)
}

// NewWithMinSeverity returns a sklogimpl.Logger that drops lines below min.
func NewWithMinSeverity(dst logger.SyncWriter, min sklogimpl.Severity) sklogimpl.Logger {
	l := logger.NewFromOptions(&logger.Options{
		SyncWriter:   dst,
		DepthDelta:   3,
		IncludeDebug: min <= sklogimpl.Debug,
	})
	return &stdlog{
		logger: l,
		min:    min,
	}
}

// Log implements sklogimpl.Logger.
func (s *stdlog) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	if severity < s.min {
		return
	}
	plain, formatted := s.funcs(severity)
	if format == "" {
		plain(args...)
		return
	}
	formatted(format, args...)
}

// funcs returns the unformatted and formatted logger methods for severity.
func (s *stdlog) funcs(severity sklogimpl.Severity) (func(...interface{}), func(string, ...interface{})) {
	switch severity {
	case sklogimpl.Debug:
		return s.logger.Debug, s.logger.Debugf
	case sklogimpl.Info:
		return s.logger.Info, s.logger.Infof
	case sklogimpl.Warning:
		return s.logger.Warning, s.logger.Warningf
	case sklogimpl.Fatal:
		return s.logger.Fatal, s.logger.Fatalf
	default:
		return s.logger.Error, s.logger.Errorf
	}
}

// Flush implements sklogimpl.Logger.
func (s *stdlog) Flush() {}
