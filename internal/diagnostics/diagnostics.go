// Package diagnostics wraps zerolog into the small logging surface the
// VM core and CLI share: module load/cache events, bytecode dumps, and
// general debug tracing. The VM itself never imports zerolog directly —
// it accepts a Logger interface (see pkg/vm's host-facing fields and
// pkg/module's Loader), so a caller that doesn't care about structured
// logs can pass Discard instead.
package diagnostics

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured-logging surface the module loader, host API,
// and CLI call into. Implementations must be safe to call with a nil
// receiver only if they document it; the zerolog-backed Logger returned
// by New is always safe once constructed.
type Logger interface {
	ModuleLoad(path string, cached bool)
	BytecodeDump(label, dump string)
	Debugf(format string, args ...any)
}

// zlogger is the zerolog-backed Logger used by the CLI.
type zlogger struct {
	log zerolog.Logger
}

// New builds a Logger writing leveled, structured events to w. When
// debug is false, only Info-and-above events are emitted; Debugf calls
// (bytecode dumps, module-cache tracing) are suppressed.
func New(w io.Writer, debug bool) Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zlogger{log: l}
}

// Discard is a Logger that drops every event, for embedders of pkg/vm
// and pkg/module that don't want diagnostics wired up.
var Discard Logger = &zlogger{log: zerolog.Nop()}

func (z *zlogger) ModuleLoad(path string, cached bool) {
	z.log.Debug().Str("path", path).Bool("cached", cached).Msg("module load")
}

func (z *zlogger) BytecodeDump(label, dump string) {
	z.log.Debug().Str("function", label).Msg("bytecode dump\n" + dump)
}

func (z *zlogger) Debugf(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

// NewStderr is a convenience constructor for the CLI's default logger.
func NewStderr(debug bool) Logger {
	return New(os.Stderr, debug)
}
