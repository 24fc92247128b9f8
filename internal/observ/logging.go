package observ

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = zerolog.New(os.Stdout)
)

// Setup configures the event logger. An empty level keeps "info"; a non-empty
// file path tees events into that file in addition to stdout.
func Setup(level, file string) (io.Closer, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	logMu.Lock()
	logger = zerolog.New(out).Level(lvl)
	logMu.Unlock()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetOutput redirects events to w. Used by tests to capture output.
func SetOutput(w io.Writer) {
	logMu.Lock()
	logger = zerolog.New(w)
	logMu.Unlock()
}

// Log writes an info-level event as one JSON line
func Log(event string, kv map[string]any) {
	emit(zerolog.InfoLevel, event, kv)
}

// Warn writes a warn-level event
func Warn(event string, kv map[string]any) {
	emit(zerolog.WarnLevel, event, kv)
}

// Error writes an error-level event
func Error(event string, kv map[string]any) {
	emit(zerolog.ErrorLevel, event, kv)
}

func emit(level zerolog.Level, event string, kv map[string]any) {
	logMu.RLock()
	l := logger
	logMu.RUnlock()

	e := l.WithLevel(level)
	if e == nil {
		return
	}
	e = e.Str("ts", time.Now().UTC().Format(time.RFC3339Nano)).Str("event", event)
	if len(kv) > 0 {
		e = e.Fields(kv)
	}
	e.Send()
}
