// Package logging builds the client's zap logger. Client logs go to a daily
// rotated file so they never interleave with terminal output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Level string
	// Dir receives lucky.<date>.log files plus a lucky.log symlink. Empty means stderr.
	Dir string
	// MaxAge bounds how long rotated files are kept.
	MaxAge time.Duration
	// Dev switches to zap's human-readable development encoder.
	Dev bool
}

// LevelFromString maps a config level name onto a zap level, defaulting to info.
func LevelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns a logger writing JSON lines at the configured level.
func New(opts Options) (*zap.Logger, error) {
	lvl := LevelFromString(opts.Level)

	var sink io.Writer = os.Stderr
	if opts.Dir != "" {
		w, err := rotatingWriter(opts.Dir, opts.MaxAge)
		if err != nil {
			return nil, err
		}
		sink = w
	}

	var enc zapcore.Encoder
	if opts.Dev {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(sink), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func rotatingWriter(dir string, maxAge time.Duration) (io.Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	w, err := rotatelogs.New(
		filepath.Join(dir, "lucky.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "lucky.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return w, nil
}
