// Package logrus adapts sirupsen/logrus to the logger.Logger contract.
package logrus

import (
	"github.com/hiroq/fxcore/logger"
	"github.com/sirupsen/logrus"
)

// Adapter wraps a logrus entry behind the logger.Logger interface
type Adapter struct {
	entry *logrus.Entry
}

// New builds a logrus-backed logger at the given level
func New(level string) (*Adapter, error) {
	logMode, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetLevel(logMode)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Adapter{entry: logrus.NewEntry(l)}, nil
}

// NewAdapter wraps an existing logrus entry
func NewAdapter(entry *logrus.Entry) *Adapter {
	return &Adapter{entry: entry}
}

// WithField implements logger.Logger.
func (a *Adapter) WithField(key string, value any) logger.Logger {
	return &Adapter{entry: a.entry.WithField(key, value)}
}

// WithFields implements logger.Logger.
func (a *Adapter) WithFields(fields map[string]any) logger.Logger {
	return &Adapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}

// WithError implements logger.Logger.
func (a *Adapter) WithError(err error) logger.Logger {
	return &Adapter{entry: a.entry.WithError(err)}
}

// Print implements logger.Logger.
func (a *Adapter) Print(args ...any) { a.entry.Print(args...) }

// Trace implements logger.Logger.
func (a *Adapter) Trace(args ...any) { a.entry.Trace(args...) }

// Debug implements logger.Logger.
func (a *Adapter) Debug(args ...any) { a.entry.Debug(args...) }

// Info implements logger.Logger.
func (a *Adapter) Info(args ...any) { a.entry.Info(args...) }

// Warn implements logger.Logger.
func (a *Adapter) Warn(args ...any) { a.entry.Warn(args...) }

// Error implements logger.Logger.
func (a *Adapter) Error(args ...any) { a.entry.Error(args...) }

// Fatal implements logger.Logger.
func (a *Adapter) Fatal(args ...any) { a.entry.Fatal(args...) }

// Panic implements logger.Logger.
func (a *Adapter) Panic(args ...any) { a.entry.Panic(args...) }

// Printf implements logger.Logger.
func (a *Adapter) Printf(format string, args ...any) { a.entry.Printf(format, args...) }

// Tracef implements logger.Logger.
func (a *Adapter) Tracef(format string, args ...any) { a.entry.Tracef(format, args...) }

// Debugf implements logger.Logger.
func (a *Adapter) Debugf(format string, args ...any) { a.entry.Debugf(format, args...) }

// Infof implements logger.Logger.
func (a *Adapter) Infof(format string, args ...any) { a.entry.Infof(format, args...) }

// Warnf implements logger.Logger.
func (a *Adapter) Warnf(format string, args ...any) { a.entry.Warnf(format, args...) }

// Errorf implements logger.Logger.
func (a *Adapter) Errorf(format string, args ...any) { a.entry.Errorf(format, args...) }

// Fatalf implements logger.Logger.
func (a *Adapter) Fatalf(format string, args ...any) { a.entry.Fatalf(format, args...) }

// Panicf implements logger.Logger.
func (a *Adapter) Panicf(format string, args ...any) { a.entry.Panicf(format, args...) }

// SetLevel implements logger.Logger.
func (a *Adapter) SetLevel(level logger.Level) {
	a.entry.Logger.SetLevel(toLogrusLevel(level))
}

// GetLevel implements logger.Logger.
func (a *Adapter) GetLevel() logger.Level {
	switch a.entry.Logger.GetLevel() {
	case logrus.TraceLevel:
		return logger.TraceLevel
	case logrus.DebugLevel:
		return logger.DebugLevel
	case logrus.InfoLevel:
		return logger.InfoLevel
	case logrus.WarnLevel:
		return logger.WarnLevel
	case logrus.ErrorLevel:
		return logger.ErrorLevel
	case logrus.FatalLevel:
		return logger.FatalLevel
	case logrus.PanicLevel:
		return logger.PanicLevel
	}
	return logger.NoLevel
}

func toLogrusLevel(level logger.Level) logrus.Level {
	switch level {
	case logger.TraceLevel:
		return logrus.TraceLevel
	case logger.DebugLevel:
		return logrus.DebugLevel
	case logger.InfoLevel:
		return logrus.InfoLevel
	case logger.WarnLevel:
		return logrus.WarnLevel
	case logger.ErrorLevel:
		return logrus.ErrorLevel
	case logger.FatalLevel:
		return logrus.FatalLevel
	case logger.PanicLevel:
		return logrus.PanicLevel
	}
	return logrus.InfoLevel
}
