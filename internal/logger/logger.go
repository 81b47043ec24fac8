// Package logger builds the zap loggers used across the module. Loggers are
// passed explicitly; nothing here touches zap's globals.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	level  string
	format string
	out    io.Writer
}

type Option func(*options)

// WithLevel sets the minimum level: debug, info, warn or error.
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithFormat selects "json" or "console" encoding.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New returns a logger writing to stderr unless WithOutput is given.
func New(opts ...Option) (*zap.Logger, error) {
	o := options{level: "info", format: "json", out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := zapcore.ParseLevel(strings.ToLower(o.level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch o.format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", o.format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(o.out), level)
	return zap.New(core, zap.AddCaller()), nil
}
