package core

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func NewNopLogger() Logger { return &nopLogger{} }

func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// OrNop returns l, or a no-op logger when l is nil. Never returns nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}

// LogSeverity routes a message with a 0-10 severity to the matching level:
// 0-1 debug, 2-4 info, 5-6 warn, 7 and above error.
func LogSeverity(l Logger, severity int, format string, args ...any) {
	l = OrNop(l)
	switch {
	case severity >= 7:
		l.Errorf(format, args...)
	case severity >= 5:
		l.Warnf(format, args...)
	case severity >= 2:
		l.Infof(format, args...)
	default:
		l.Debugf(format, args...)
	}
}
