package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel string

const (
	FatalLevel    = "fatal"
	ErrorLevel    = "error"
	WarningLevel  = "warn"
	DebugLevel    = "debug"
	InfoLevel     = "info"
	TraceLevel    = "trace"
	DisabledLevel = "disabled"
)

// Fields is a set of key/value pairs attached to a log entry.
type Fields = logrus.Fields

var levelmap = map[LogLevel]logrus.Level{
	TraceLevel:   logrus.TraceLevel,
	DebugLevel:   logrus.DebugLevel,
	InfoLevel:    logrus.InfoLevel,
	WarningLevel: logrus.WarnLevel,
	ErrorLevel:   logrus.ErrorLevel,
	FatalLevel:   logrus.FatalLevel,
}

var std = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableQuote:    true,
	})
	return l
}

func SetLevel(loglevel LogLevel) error {
	if loglevel == DisabledLevel {
		std.SetOutput(io.Discard)
		return nil
	}

	level, ok := levelmap[loglevel]
	if !ok {
		return fmt.Errorf("No such log level %s", loglevel)
	}

	std.SetLevel(level)
	return nil
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func ValidLogLevel(level LogLevel) bool {
	if level == DisabledLevel {
		return true
	}
	_, ok := levelmap[level]
	return ok
}

func ShouldLog(logLevel, enabled LogLevel) bool {
	if !ValidLogLevel(logLevel) || !ValidLogLevel(enabled) || enabled == DisabledLevel {
		return false
	}
	return levelmap[logLevel] <= levelmap[enabled]
}

func Log(level LogLevel, msg string, args ...interface{}) {
	lvl, ok := levelmap[level]
	if !ok {
		return
	}
	if len(args) > 0 {
		std.Logf(lvl, msg, args...)
	} else {
		std.Log(lvl, msg)
	}
}

// WithFields returns an entry that carries the given fields on every line.
func WithFields(fields Fields) *logrus.Entry {
	return std.WithFields(fields)
}

func Trace(args ...interface{}) {
	std.Traceln(args...)
}

func Debug(args ...interface{}) {
	std.Debugln(args...)
}

func Info(args ...interface{}) {
	std.Infoln(args...)
}

func Warn(args ...interface{}) {
	std.Warnln(args...)
}

func Error(args ...interface{}) {
	std.Errorln(args...)
}

func Fatal(args ...interface{}) {
	std.Logln(logrus.FatalLevel, args...)
	debug.PrintStack()
	os.Exit(1)
}

func Tracef(format string, args ...interface{}) {
	std.Tracef(format, args...)
}

func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	std.Logf(logrus.FatalLevel, format, args...)
	debug.PrintStack()
	os.Exit(1)
}

func NewLogger() *log.Logger {
	return log.New(NewLogWriter(DebugLevel), "", 0)
}

type writeFunc func([]byte) (int, error)

func (fn writeFunc) Write(data []byte) (int, error) {
	return fn(data)
}

// NewLogWriter returns a writer that logs every line written to it.
func NewLogWriter(level LogLevel) io.Writer {
	return writeFunc(func(data []byte) (int, error) {
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			Log(level, "%s", line)
		}
		return len(data), nil
	})
}

func DebugError(err error) {
	indent := 1

	Debug(err.Error())

	for {
		if err = errors.Unwrap(err); err == nil {
			break
		}

		Debugf("| %d: %s", indent, err.Error())
		indent += 1
	}
}

// SetVerbosity maps the count of a repeatable -v flag to a level.
func SetVerbosity(count int) {
	switch {
	case count >= 2:
		SetLevel(TraceLevel)
	case count >= 1:
		SetLevel(DebugLevel)
	}
}
