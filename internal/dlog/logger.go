// Package dlog builds the zap logger shared by every build step.
//
// Records are printed as bare message lines: the CI group markers written by
// internal/timelog must reach the output verbatim.
package dlog

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelDebug also prints configure logs.
	LevelDebug = "debug"

	// LevelInfo is the default level.
	LevelInfo = "info"

	// LevelNone disables logging.
	LevelNone = "none"
)

// New returns a sugared zap logger writing message-only lines to w.
func New(w io.Writer, level string) (*zap.SugaredLogger, error) {
	if level == LevelNone {
		return zap.NewNop().Sugar(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	return zap.New(core).Sugar(), nil
}

// MustNew is like New but panics on an unknown level.
func MustNew(w io.Writer, level string) *zap.SugaredLogger {
	l, err := New(w, level)
	if err != nil {
		panic(err)
	}
	return l
}
