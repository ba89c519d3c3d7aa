package timelog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goplus/depbuild/internal/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	lines []string
	syncs int
}

func (s *recordingSink) Info(args ...interface{}) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a.(string))
	}
	s.lines = append(s.lines, b.String())
}

func (s *recordingSink) Sync() error {
	s.syncs++
	return nil
}

// fixedClock advances by step on every call.
func fixedClock(step time.Duration) func() time.Time {
	t := time.Unix(1700000000, 0)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func TestRunSuccessOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(dlog.MustNew(&buf, dlog.LevelInfo), "message block")
	l.now = fixedClock(1234 * time.Millisecond)

	err := l.Run(func() error { return nil })
	require.NoError(t, err)

	want := "::group::message block\n" +
		"\n::endgroup::\n" +
		strings.Repeat(" ", 78-len([]rune("\033[32m✓ 1.23s"))) + "\033[32m✓ 1.23s\n"
	assert.Equal(t, want, buf.String())
}

func TestRunFailureOutput(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, "")
	l.now = fixedClock(500 * time.Millisecond)

	boom := errors.New("boom")
	err := l.Run(func() error {
		sink.Info("working")
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Len(t, sink.lines, 4)
	assert.Equal(t, "::group::", sink.lines[0])
	assert.Equal(t, "working", sink.lines[1])
	assert.Equal(t, "\n::endgroup::", sink.lines[2])
	assert.Len(t, []rune(sink.lines[3]), 78)
	assert.True(t, strings.HasSuffix(sink.lines[3], "\033[31m✕ 0.50s"), sink.lines[3])
	assert.Equal(t, 2, sink.syncs)
	assert.False(t, l.Active())
}

func TestBeginReentrant(t *testing.T) {
	l := New(&recordingSink{}, "x")
	require.NoError(t, l.Begin())
	assert.ErrorIs(t, l.Begin(), ErrReentrant)

	require.NoError(t, l.End(false))
	require.NoError(t, l.Begin(), "logger must be reusable after End")
	require.NoError(t, l.End(false))
}

func TestEndWithoutBegin(t *testing.T) {
	l := New(&recordingSink{}, "x")
	assert.ErrorIs(t, l.End(false), ErrNotActive)
}

func TestRunNested(t *testing.T) {
	l := New(&recordingSink{}, "outer")
	var inner error
	err := l.Run(func() error {
		inner = l.Run(func() error { return nil })
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrReentrant)
}

func TestRunPanicStillEnds(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, "panics")
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = l.Run(func() error { panic("kaboom") })
	})
	assert.False(t, l.Active())
	require.NotEmpty(t, sink.lines)
	assert.Contains(t, sink.lines[len(sink.lines)-1], "✕")
}

func TestCallPreservesResult(t *testing.T) {
	l := New(&recordingSink{}, "call")
	got, err := Call(l, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	got, err = Call(l, func() (int, error) { return 7, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 7, got)
}

func TestEqual(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	assert.True(t, New(a, "x").Equal(New(a, "x")))
	assert.False(t, New(a, "x").Equal(New(a, "y")))
	assert.False(t, New(a, "x").Equal(New(b, "x")))
	assert.Equal(t, "x", New(a, "x").Label())
}

// bufferedSink is a value type that cannot be compared with ==.
type bufferedSink struct {
	lines []string
}

func (bufferedSink) Info(args ...interface{}) {}

func (bufferedSink) Sync() error { return nil }

func TestEqualUncomparableSink(t *testing.T) {
	s := bufferedSink{lines: []string{"x"}}
	assert.NotPanics(t, func() {
		assert.False(t, New(s, "x").Equal(New(s, "x")))
		assert.False(t, New(s, "x").Equal(New(&recordingSink{}, "x")))
	})
}
