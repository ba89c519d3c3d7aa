// Package timelog brackets an operation with GitHub Actions style group
// markers and reports how long it took.
//
// A step wrapped by a Logger prints:
//
//	::group::Build GMP
//	...output of the step...
//
//	::endgroup::
//	                                                                    ✓ 12.04s
//
// A Logger is reusable but not reentrant: the group markers of the shared
// sink cannot be nested, so Begin fails while a previous Begin is still open.
package timelog

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

const (
	green = "\033[32m"
	red   = "\033[31m"

	// statusWidth is the column the status line is right-aligned to.
	statusWidth = 78
)

var (
	// ErrReentrant is returned by Begin when the Logger is already active.
	ErrReentrant = errors.New("timelog: logger cannot be used in a reentrant manner")

	// ErrNotActive is returned by End without a matching Begin.
	ErrNotActive = errors.New("timelog: logger is not active")
)

// Sink is where the markers are written. *zap.SugaredLogger satisfies it.
type Sink interface {
	Info(args ...interface{})
	Sync() error
}

// Logger writes one timed group per activation.
type Logger struct {
	sink  Sink
	label string

	start  time.Time
	active bool

	now func() time.Time
}

// New returns a Logger writing to sink. An empty label prints a bare
// "::group::" marker.
func New(sink Sink, label string) *Logger {
	return &Logger{sink: sink, label: label, now: time.Now}
}

// Label returns the group label.
func (l *Logger) Label() string { return l.label }

// Active reports whether Begin has been called without a matching End.
func (l *Logger) Active() bool { return l.active }

// Equal reports whether l and other share the same sink and label. Sinks
// whose values cannot be compared, such as structs holding a slice, are
// never equal.
func (l *Logger) Equal(other *Logger) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.label == other.label && sameSink(l.sink, other.sink)
}

func sameSink(a, b Sink) bool {
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}

func (l *Logger) String() string {
	return fmt.Sprintf("timelog.Logger(sink=%p, label=%q)", l.sink, l.label)
}

// Begin opens the group.
func (l *Logger) Begin() error {
	if l.active {
		return ErrReentrant
	}
	l.active = true
	l.start = l.now()

	l.flush()
	l.sink.Info("::group::" + l.label)
	return nil
}

// End closes the group and writes the status line. failed selects the
// failure glyph.
func (l *Logger) End(failed bool) error {
	if !l.active {
		return ErrNotActive
	}
	elapsed := l.now().Sub(l.start)
	l.active = false
	l.start = time.Time{}

	l.flush()
	l.sink.Info("\n::endgroup::")
	l.sink.Info(status(elapsed, failed))
	return nil
}

// Run calls fn inside a group. The group is closed on every exit path,
// panics included, and fn's error is returned unchanged.
func (l *Logger) Run(fn func() error) (err error) {
	if err = l.Begin(); err != nil {
		return err
	}
	failed := true
	defer func() {
		_ = l.End(failed)
	}()
	err = fn()
	failed = err != nil
	return err
}

// Call is Run for operations that also produce a value.
func Call[T any](l *Logger, fn func() (T, error)) (T, error) {
	var v T
	err := l.Run(func() error {
		var err error
		v, err = fn()
		return err
	})
	return v, err
}

func (l *Logger) flush() {
	// Syncing a terminal or pipe reports EINVAL on some platforms.
	_ = l.sink.Sync()
}

func status(elapsed time.Duration, failed bool) string {
	color, glyph := green, "✓"
	if failed {
		color, glyph = red, "✕"
	}
	return fmt.Sprintf("%*s", statusWidth, fmt.Sprintf("%s%s %.2fs", color, glyph, elapsed.Seconds()))
}
