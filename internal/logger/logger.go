// Package logger wraps zerolog with a process-wide root logger and
// component-scoped children.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger
type Options struct {
	Level      string
	Format     string
	Writer     io.Writer
	WithCaller bool
	Fields     map[string]string
}

// Logger is the project-wide logging type
type Logger = zerolog.Logger

var (
	mu     sync.Mutex
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Get returns the root logger, initializing a console logger at info level
// when Init has not been called.
func Get() *Logger {
	if !inited.Load() {
		Init(Options{Level: "info", Format: "console", Writer: os.Stderr})
	}
	return root.Load()
}

// Init builds the root logger. Later calls replace it, which lets the CLI
// apply flags after config has been loaded.
func Init(opt Options) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "" || opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	for k, v := range opt.Fields {
		ctx = ctx.Str(k, v)
	}

	log := ctx.Logger()
	if opt.WithCaller {
		log = log.With().Caller().Logger()
	}

	root.Store(&log)
	inited.Store(true)
}

// Nop silences all logging; useful in tests.
func Nop() {
	mu.Lock()
	defer mu.Unlock()
	log := zerolog.Nop()
	root.Store(&log)
	inited.Store(true)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Named returns a child logger with a component field
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}
