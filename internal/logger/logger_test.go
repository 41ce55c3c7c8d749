package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := New(Options{Dir: dir, Prefix: "test", Console: &console, MinLevel: DEBUG})
	require.NoError(t, err)

	l.LogBooking("TRANSITION", "bk-1", "inquiry -> vendor_reviewed")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.GreaterOrEqual(t, len(lines), 1)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "BOOKING", entry.Category)
	assert.Equal(t, "[TRANSITION] bk-1 - inquiry -> vendor_reviewed", entry.Message)
	assert.Contains(t, console.String(), "bk-1")
}

func TestLoggerMinLevel(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Options{Console: &console, MinLevel: WARN})
	require.NoError(t, err)

	l.Info("LEDGER", "hidden")
	l.Warn("LEDGER", "shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestFatalUsesExitHook(t *testing.T) {
	l := Discard()
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("BOOT", "bye")
	assert.Equal(t, 1, code)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
}
