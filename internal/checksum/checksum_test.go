package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMatchesBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xml")
	data := []byte(strings.Repeat("<x/>", 40000))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, Bytes(data), got)
	assert.Len(t, got, 16)
}

func TestBytesDiffers(t *testing.T) {
	assert.NotEqual(t, Bytes([]byte("a")), Bytes([]byte("b")))
	assert.True(t, Equal(Bytes([]byte("a")), Bytes([]byte("a"))))
}

func TestDirectoryIgnoresOrder(t *testing.T) {
	assert.Equal(t, Directory([]string{"b", "a"}), Directory([]string{"a", "b"}))
	assert.NotEqual(t, Directory([]string{"a", "b"}), Directory([]string{"a"}))
	assert.NotEqual(t, Directory([]string{"ab"}), Directory([]string{"a", "b"}))
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
