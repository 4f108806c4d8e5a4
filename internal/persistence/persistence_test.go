package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "data"), "")
	require.NoError(t, err)

	require.NoError(t, fs.Save("market.json", []byte(`{"a":1}`)))
	raw, err := fs.Load("market.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	// Overwrites replace the previous snapshot.
	require.NoError(t, fs.Save("market.json", []byte(`{"a":2}`)))
	raw, err = fs.Load("market.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(raw))
}

func TestFileStoreLoadMissing(t *testing.T) {
	fs, err := New(t.TempDir(), "")
	require.NoError(t, err)
	_, err = fs.Load("nope.json")
	assert.Error(t, err)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir, "")
	require.NoError(t, err)
	require.NoError(t, fs.Save("winrate.json", []byte(`{}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "winrate.json", entries[0].Name())
}

func TestNewCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	_, err := New(dir, "")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
