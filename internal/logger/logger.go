// Package logger is the process-wide log for the Mira CLI and services.
// Debug, Info, Warn and Section lines appear only with --verbose; errors
// are always written. Output goes to stderr unless redirected.
package logger

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"
	"golang.org/x/term"
)

var (
	mu      sync.Mutex
	verbose bool
	output  io.Writer = os.Stderr

	current atomic.Pointer[log.Logger]
)

func init() {
	current.Store(build(os.Stderr, false))
}

// build returns a console logger for w. Colour is used only when w is a
// terminal so captured output stays plain.
func build(w io.Writer, debug bool) *log.Logger {
	level := log.ErrorLevel
	if debug {
		level = log.DebugLevel
	}
	return &log.Logger{
		Level:      level,
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: isTerminal(w),
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetVerbose turns debug, info and warning output on or off.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	current.Store(build(output, verbose))
}

// IsVerbose reports whether verbose output is on.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	current.Store(build(output, verbose))
}

// Debug logs pipeline detail.
func Debug(format string, args ...any) {
	current.Load().Debug().Msgf(format, args...)
}

// Section logs a header that separates pipeline phases.
func Section(name string) {
	current.Load().Info().Msgf("=== %s ===", name)
}

// Info logs progress.
func Info(format string, args ...any) {
	current.Load().Info().Msgf(format, args...)
}

// Warn logs a problem that did not stop the operation.
func Warn(format string, args ...any) {
	current.Load().Warn().Msgf(format, args...)
}

// Error logs err with a message, whether or not verbose output is on.
func Error(err error, format string, args ...any) {
	current.Load().Error().Err(err).Msgf(format, args...)
}
