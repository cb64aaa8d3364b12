package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	type state struct {
		Max int `json:"max"`
	}
	require.NoError(t, WriteJSON(path, state{Max: 3}))
	require.NoError(t, WriteJSON(path, state{Max: 7}))

	var got state
	ok, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, got.Max)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadJSONMissing(t *testing.T) {
	var v map[string]any
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadJSONCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	var v map[string]any
	ok, err := ReadJSON(path, &v)
	assert.True(t, ok)
	assert.Error(t, err)
}
