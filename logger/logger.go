package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on top of zerolog. Every string and interface
// field passes through a SensitiveDataFilter before it is written.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *SensitiveDataFilter
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// Options configures a ZeroLogger.
type Options struct {
	Level  string
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Filter defaults to DefaultFilterConfig.
	Filter *FilterConfig
}

// New creates a logger writing to stdout at the given level. Unknown levels
// fall back to info.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithOptions(Options{Level: level, Pretty: pretty})
}

// NewWithOptions creates a logger from explicit options.
func NewWithOptions(opts Options) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
			}
			return filepath.Base(file) + ":" + strconv.Itoa(line)
		}
	})

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).With().Timestamp().Logger()

	zLevel, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(opts.Filter)}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(nil)}
}

// Level reports the minimum level this logger writes.
func (l *ZeroLogger) Level() zerolog.Level {
	return l.zlog.GetLevel()
}

// WithFields returns a child logger carrying the (filtered) fields on every entry.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	child := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &child, filter: l.filter}
}

// Info starts an info-level event.
func (l *ZeroLogger) Info() LogEvent {
	return &eventAdapter{event: l.zlog.Info(), filter: l.filter}
}

// Error starts an error-level event.
func (l *ZeroLogger) Error() LogEvent {
	return &eventAdapter{event: l.zlog.Error(), filter: l.filter}
}

// Debug starts a debug-level event.
func (l *ZeroLogger) Debug() LogEvent {
	return &eventAdapter{event: l.zlog.Debug(), filter: l.filter}
}

// Warn starts a warn-level event.
func (l *ZeroLogger) Warn() LogEvent {
	return &eventAdapter{event: l.zlog.Warn(), filter: l.filter}
}
