package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"INFO":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseLevel(name)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("unknown level", func(t *testing.T) {
		_, err := ParseLevel("loud")
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Run("writes json with service and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{ServiceName: "chatrelay", Level: "info", Output: &buf})
		require.NoError(t, err)

		l.Info("session registered", Field{Key: "user", Value: "alice"})

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "chatrelay", entries[0]["service"])
		assert.Equal(t, "alice", entries[0]["user"])
		assert.Equal(t, "session registered", entries[0]["message"])
		assert.Contains(t, entries[0], "time")
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{ServiceName: "chatrelay", Level: "warn", Output: &buf})
		require.NoError(t, err)

		l.Debug("hidden")
		l.Info("hidden")
		l.Warn("shown")
		l.Error("shown", ErrField(errors.New("boom")))

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "boom", entries[1]["error"])
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Options{Level: "chatty"})
		assert.Error(t, err)
	})

	t.Run("with adds fields to derived logger only", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{ServiceName: "chatrelay", Output: &buf})
		require.NoError(t, err)

		child := l.With(Field{Key: "session_id", Value: "s-1"})
		child.Info("from child")
		l.Info("from parent")

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "s-1", entries[0]["session_id"])
		assert.NotContains(t, entries[1], "session_id")
		assert.NoError(t, child.Close())
	})

	t.Run("dir also writes daily file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		var buf bytes.Buffer
		l, err := New(Options{ServiceName: "chatrelay", Dir: dir, Output: &buf})
		require.NoError(t, err)

		l.Info("to both")
		require.NoError(t, l.Close())

		name := filepath.Join(dir, "chatrelay_"+time.Now().Format(time.DateOnly)+".log")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to both")
		assert.Contains(t, buf.String(), "to both")
	})
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	assert.NoError(t, l.With(Field{Key: "k", Value: 1}).Close())
}

func TestDailyFileWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyFileWriter("svc", dir)
	require.NoError(t, err)

	day := time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day }

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "svc_2026-10-19.log"), w.CurrentLogFile())

	day = day.Add(2 * time.Minute)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "svc_2026-10-20.log"), w.CurrentLogFile())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, errWriterClosed)
	assert.Empty(t, w.CurrentLogFile())

	data, err := os.ReadFile(filepath.Join(dir, "svc_2026-10-20.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
}
