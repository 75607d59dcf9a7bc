package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Logg is the process-wide logger. It is replaced by NewLogger at startup.
var Logg = slog.New(slog.NewTextHandler(io.Discard, nil))

// NewLogger builds a logger writing to the console, to daily rotated files, or both.
// consoleFormat is "text" or "json"; fileFormat "json" routes file output through zap.
// filePattern uses strftime verbs, e.g. "logs/%Y-%m-%d.log".
func NewLogger(level, consoleFormat, fileFormat, output, filePattern string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handlers []slog.Handler
	if output == "console" || output == "both" {
		handlers = append(handlers, NewColorHandler(os.Stderr, consoleFormat, opts))
	}
	if (output == "file" || output == "both") && filePattern != "" {
		h, err := newFileHandler(lvl, fileFormat, filePattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "file logging disabled: %v\n", err)
		} else {
			handlers = append(handlers, h)
		}
	}

	switch len(handlers) {
	case 0:
		return nil
	case 1:
		return slog.New(handlers[0])
	}
	return slog.New(fanout(handlers))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newFileHandler(lvl slog.Level, format, pattern string) (slog.Handler, error) {
	if dir := filepath.Dir(pattern); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	w, err := rotatelogs.New(pattern,
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(7*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("rotatelogs: %w", err)
	}

	if format != "json" {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}), nil
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), zapLevel(lvl))
	return zapslog.NewHandler(core, zapslog.WithCaller(true)), nil
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
