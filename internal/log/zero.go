package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZeroOptions configures the zerolog-backed console Logger. Grounded on
// go.bryk.io/pkg/log's `ZeroOptions`/`WithZero` constructor.
type ZeroOptions struct {
	// PrettyPrint renders human-friendly, colorized output instead of
	// raw JSON lines. Useful for local development and the CLI example.
	PrettyPrint bool

	// Writer overrides the output destination; defaults to os.Stderr.
	Writer io.Writer
}

type zero struct {
	ll zerolog.Logger
}

// NewZero returns a structured console Logger backed by zerolog. This is
// the "console" Logger implementation spec.md §6 requires alongside the
// silent one.
func NewZero(opts ZeroOptions) Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.PrettyPrint {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return &zero{ll: zerolog.New(w).With().Timestamp().Logger()}
}

func (z *zero) Debug(msg string, fields ...Fields)   { z.emit(zerolog.DebugLevel, msg, fields) }
func (z *zero) Info(msg string, fields ...Fields)    { z.emit(zerolog.InfoLevel, msg, fields) }
func (z *zero) Warning(msg string, fields ...Fields) { z.emit(zerolog.WarnLevel, msg, fields) }
func (z *zero) Error(msg string, fields ...Fields)   { z.emit(zerolog.ErrorLevel, msg, fields) }

func (z *zero) emit(level zerolog.Level, msg string, fields []Fields) {
	ev := z.ll.WithLevel(level)
	for _, f := range fields {
		for k, v := range f {
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(msg)
}

func (z *zero) WithFields(fields Fields) Logger {
	ctx := z.ll.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zero{ll: ctx.Logger()}
}

func (z *zero) WithField(key string, value interface{}) Logger {
	return z.WithFields(Fields{key: value})
}
