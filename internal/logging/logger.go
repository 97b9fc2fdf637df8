// Package logging wraps zerolog with the console format used by rescale-qr.
//
// Log lines go to stdout. Stderr belongs to the progress display, so a
// redirected log never interleaves with bar redraws.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const timeFormat = "15:04:05"

// Logger is a zerolog logger plus the writer it targets.
type Logger struct {
	zlog   zerolog.Logger
	output io.Writer
}

// NewLogger creates a logger writing console lines to w. Color is used only
// when w is a terminal.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{}
	l.SetOutput(w)
	return l
}

// NewDefaultCLILogger logs to stdout.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stdout)
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }

// Child returns a Logger that adds the given key/value string pairs to every
// event, e.g. Child("run_id", id) or Child("server", name, "study", uid).
// A trailing key without a value is ignored.
func (l *Logger) Child(kv ...string) *Logger {
	ctx := l.zlog.With()
	for i := 0; i+1 < len(kv); i += 2 {
		ctx = ctx.Str(kv[i], kv[i+1])
	}
	return &Logger{zlog: ctx.Logger(), output: l.output}
}

// SetOutput points the logger at w, keeping no fields from before.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.zlog = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}

// Output returns the current writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// SetVerbose switches debug events on or off for every logger.
func SetVerbose(on bool) {
	if on {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat, NoColor: noColor}
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(consoleWriter(os.Stderr))
}
