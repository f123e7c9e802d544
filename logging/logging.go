// Package logging builds the zap logger used by the s2v commands.
package logging

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger at the given level. Errors and above go to
// stderr, everything else to stdout. Each logger is tagged with a run id.
func New(level string) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	return NewWithCores(lvl, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr)).
		With("run", uuid.NewString()), nil
}

// NewWithCores builds the logger over the given sinks.
func NewWithCores(lvl zapcore.Level, stdout, stderr zapcore.WriteSyncer) *zap.SugaredLogger {
	isErrorLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && l >= lvl
	})
	isInfoLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l < zapcore.ErrorLevel && l >= lvl
	})

	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stderr, isErrorLevel),
		zapcore.NewCore(encoder, stdout, isInfoLevel),
	)
	return zap.New(core).Named("s2v").Sugar()
}

// Nop is a logger that discards everything. Used by tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
