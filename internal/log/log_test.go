package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelGating(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)

	Debug("hidden", "k", 1)
	Info("shown", "k", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "k=2")
}

func TestErrorIncludesErr(t *testing.T) {
	buf := capture(t)

	Error("fetch failed", errors.New("boom"), "id", "abc")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "id=abc")
}

func TestOddKVIgnored(t *testing.T) {
	buf := capture(t)

	Info("odd", "a", 1, "dangling")
	Info("badkey", 42, "v")

	out := buf.String()
	assert.Contains(t, out, "a=1")
	assert.NotContains(t, out, "dangling")
	assert.NotContains(t, out, "BADKEY")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
