// Package logger configures zerolog and carries loggers through contexts.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// Output formats accepted by Options.Format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures a logger built by Configure.
type Options struct {
	Level  string // debug, info, warn, error; empty means info
	Format string // console or json; empty means console
	Out    io.Writer
}

var fallback atomic.Pointer[zerolog.Logger]

// New returns a console logger on stdout.
func New() zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

// NewWithWriter returns a logger writing JSON lines to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// Configure builds a logger from opts. Services log JSON; the CLI logs
// to the console on stderr so stdout stays machine readable.
func Configure(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("Configure: parsing level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("Configure: unknown format %q", opts.Format)
	}

	return NewWithWriter(out).Level(level), nil
}

// SetDefault makes l the logger FromContext returns for contexts that
// carry none.
func SetDefault(l zerolog.Logger) {
	fallback.Store(&l)
}

// Default returns the logger installed by SetDefault, or New().
func Default() zerolog.Logger {
	if l := fallback.Load(); l != nil {
		return *l
	}
	return New()
}

func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or Default().
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return Default()
}

// WithFields returns a child logger with fields attached.
func WithFields(l zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	c := l.With()
	for k, v := range fields {
		c = c.Interface(k, v)
	}
	return c.Logger()
}
