// Package log contains leveled logging interface and its implementation on top of logrus.
package log

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger interface is subset of github.com/uber-common/bark.Logger methods.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	WithFields(keyValues LogFields) Logger
	Fields() Fields
}

type LogFields interface {
	Fields() map[string]interface{}
}

type Fields map[string]interface{}

func (f Fields) Fields() map[string]interface{} { return f }

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	}
	panic("unexpected level: " + strconv.Itoa(int(l)))
}

func (l Level) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	}
	return logrus.FatalLevel
}

var stringToLevel = func() map[string]Level {
	var levels = []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel}
	res := make(map[string]Level, len(levels))
	for _, l := range levels {
		res[l.String()] = l
	}
	return res
}()

// LevelFromString parses level name. Case is ignored.
func LevelFromString(s string) (Level, error) {
	var err error
	l, ok := stringToLevel[strings.ToUpper(s)]
	if !ok {
		err = errors.Errorf("invalid level %q", s)
	}
	return l, err
}

func NewLogger(l Level, w io.Writer) Logger {
	std := logrus.New()
	std.SetOutput(w)
	std.SetLevel(l.logrus())
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	return NewLogrusLogger(logrus.NewEntry(std))
}

// NewLogrusLogger wraps already configured logrus entry.
func NewLogrusLogger(e *logrus.Entry) Logger {
	return &logger{entry: e}
}

// Nop returns logger that discards everything.
func Nop() Logger {
	return NewLogger(FatalLevel, io.Discard)
}

// logger is thin logrus.Entry wrapper for more common interface.
type logger struct {
	entry  *logrus.Entry
	fields Fields
}

var _ Logger = (*logger)(nil)

func (l *logger) Fields() Fields { return l.fields }

func (l *logger) WithFields(keyValues LogFields) Logger {
	extraFields := keyValues.Fields()
	fields := make(Fields, len(l.fields)+len(extraFields))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extraFields {
		fields[k] = v
	}
	return &logger{
		entry:  l.entry.WithFields(logrus.Fields(extraFields)),
		fields: fields,
	}
}

func (l *logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

// Panic logs on error level and panics with formatted message.
func (l *logger) Panic(args ...interface{}) {
	l.entry.Error(args...)
	panic(fmt.Sprint(args...))
}

func (l *logger) Panicf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
	panic(fmt.Sprintf(format, args...))
}
