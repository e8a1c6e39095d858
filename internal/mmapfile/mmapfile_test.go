package mmapfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenAndSlice(t *testing.T) {
	data := []byte("0123456789abcdef")
	path := writeTemp(t, data)

	for _, open := range []func(string) (*File, error){Open, OpenUnmapped} {
		f, err := open(path)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), f.Size())

		got, err := f.Slice(4, 6)
		require.NoError(t, err)
		assert.Equal(t, []byte("456789"), got)

		got, err = f.Slice(0, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, got)

		_, err = f.Slice(10, 10)
		assert.Error(t, err)
		_, err = f.Slice(-1, 2)
		assert.Error(t, err)

		buf := make([]byte, 4)
		n, err := f.ReadAt(buf, 2)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, []byte("2345"), buf)

		require.NoError(t, f.Close())
	}
}

func TestOpenEmpty(t *testing.T) {
	path := writeTemp(t, nil)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, int64(0), f.Size())
	assert.False(t, f.Mapped())
	got, err := f.Slice(0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
