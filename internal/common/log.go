package common

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

const (
	LOG_TRACE = iota
	LOG_INFO
	LOG_WARN
	LOG_FAIL
)

var (
	DefaultLogLevel   = LOG_INFO
	LogCompleteEnable = false
)

var logger = newLogger(os.Stderr)

func newLogger(w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok && (f == os.Stderr || f == os.Stdout) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05.000000"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func SetLogger(w io.Writer) {
	logger = newLogger(w)
}

func SetLogLevel(level int) {
	DefaultLogLevel = level
}

// ParseLogLevel accepts trace, info, warn and fail.
func ParseLogLevel(s string) int {
	switch strings.ToLower(s) {
	case "trace", "debug":
		return LOG_TRACE
	case "warn":
		return LOG_WARN
	case "fail", "error":
		return LOG_FAIL
	default:
		return LOG_INFO
	}
}

// Logger exposes the shared zerolog logger for libraries wanting their own adapter.
func Logger() *zerolog.Logger {
	return &logger
}

func getCallerInfo() string {
	pc, _, _, _ := runtime.Caller(2)

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "?"
	}
	return fn.Name()
}

func LTrace(format string, args ...any) {
	if DefaultLogLevel <= LOG_TRACE {
		logger.Debug().Str("fn", getCallerInfo()).Msgf(format, args...)
	}
}

func LInfo(format string, args ...any) {
	if DefaultLogLevel <= LOG_INFO {
		ev := logger.Info()
		if LogCompleteEnable {
			ev = ev.Str("fn", getCallerInfo())
		}
		ev.Msgf(format, args...)
	}
}

func LWarn(format string, args ...any) {
	if DefaultLogLevel <= LOG_WARN {
		ev := logger.Warn()
		if LogCompleteEnable {
			ev = ev.Str("fn", getCallerInfo())
		}
		ev.Msgf(format, args...)
	}
}

func LFail(format string, args ...any) {
	if DefaultLogLevel <= LOG_FAIL {
		ev := logger.Error()
		if LogCompleteEnable {
			ev = ev.Str("fn", getCallerInfo())
		}
		ev.Msgf(format, args...)
	}
}
