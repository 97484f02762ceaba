package log

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"strings"
)

// Config is the declarative logger setup used by the server and CLI.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
	// Output is "stderr" (default) or "null".
	Output     string   `json:"output"`
	Redact     []string `json:"redact,omitempty"`
	SampleInit int      `json:"sampleInitial,omitempty"`
	SampleNext int      `json:"sampleThereafter,omitempty"`
}

// ApplyConfig builds a Logger from cfg. A nil cfg yields the defaults.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	case "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	switch strings.ToLower(cfg.Output) {
	case "", "stderr", "console":
		opts = append(opts, WithOutput(NewConsoleOutput()))
	case "null", "none":
		opts = append(opts, WithOutput(NullOutput{}))
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
	l := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(l).withRedactions(cfg.Redact).withSampler(cfg.SampleInit, cfg.SampleNext)
	l.slogLogger = slog.New(h)
	return l, nil
}

// ToStdLogger adapts l for libraries that want a *log.Logger. Lines are
// logged at level.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(&stdWriter{l: l, level: level}, "", 0)
}

// RedirectStdLog sends the standard library's default logger through l.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(&stdWriter{l: l, level: InfoLevel})
}

type stdWriter struct {
	l     Logger
	level Level
}

var _ io.Writer = (*stdWriter)(nil)

func (w *stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case DebugLevel:
		w.l.Debug(msg)
	case WarnLevel:
		w.l.Warn(msg)
	case ErrorLevel, FatalLevel:
		w.l.Error(msg)
	default:
		w.l.Info(msg)
	}
	return len(p), nil
}
