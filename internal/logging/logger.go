// Package logging wraps logrus, generalizing the teacher's
// internal/utils.Logger (format-string Error/Info/Debug wrapper
// methods) with structured WithFields logging for the ingest path.
package logging

import "github.com/sirupsen/logrus"

// Logger wraps *logrus.Logger, keeping the teacher's terse
// printf-style call shape for general messages while adding
// WithFields for anything that needs to be greppable per
// stream/ticker/message id.
type Logger struct {
	*logrus.Logger
}

func New() *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &Logger{Logger: l}
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.Errorf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.Infof(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// WithFields returns a structured entry scoped to the given fields,
// used on the ingest path (stream, messageId, ticker, txId).
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}
