package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	})

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Equal(t, "warn", Level())

	SetLevel("bogus")
	assert.Equal(t, "info", Level())
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	With("owner", "alice").Infof("grouped")
	assert.Contains(t, buf.String(), "grouped")
	assert.Contains(t, buf.String(), "alice")
}

func TestConfigureWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvhook.log")
	closer := Configure(FileConfig{Path: path, MaxSizeMB: 1})
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Errorf("disk %s", "full")
	_ = Sync()
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk full")
}
