package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAppendsPerRunStage(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	w.Append("run-1", "analysts", "first block")
	w.Append("run-1", "analysts", "second block")
	w.Append("run-1", "trader", "plan")

	analystFile := filepath.Join(w.RunDir("run-1"), "analysts.log")
	data, err := os.ReadFile(analystFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first block")
	assert.Contains(t, string(data), "second block")

	traderFile := filepath.Join(w.RunDir("run-1"), "trader.log")
	data, err = os.ReadFile(traderFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "plan")
}

func TestWriterSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	w.Append("../escape", "sta/ge", "content")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".._escape", entries[0].Name())
}

func TestWriterDisabledAndFailuresAreSilent(t *testing.T) {
	// Empty base dir disables output entirely
	w := NewWriter("")
	w.Append("run-1", "analysts", "content")
	assert.Empty(t, w.RunDir("run-1"))

	// Unwritable base dir must not panic or error
	w = NewWriter(filepath.Join(string(os.PathSeparator), "proc", "nope"))
	w.Append("run-1", "analysts", "content")
}
