package bytesource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSourceReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	require.Equal(t, int64(11), src.Size())

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))
}

func TestFileSourceReadAtOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	n, err := src.ReadAt(make([]byte, 4), 100)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMemSource(t *testing.T) {
	src := MemSource([]byte("abcdef"))
	require.Equal(t, int64(6), src.Size())

	buf := make([]byte, 3)
	n, err := src.ReadAt(buf, 2)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "cde", string(buf))
}
