package filearea

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareReadFillsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.bin")
	const size = 3*fillChunk + 12345

	require.NoError(t, Prepare(Options{Path: path, Size: size, BlockSize: 4096}))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(size), fi.Size())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// No sparse zero region at the tail.
	tail := data[size-4096:]
	assert.False(t, bytes.Equal(tail, make([]byte, len(tail))), "tail is all zeros")
}

func TestPrepareReadExtendsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	require.NoError(t, Prepare(Options{Path: path, Size: 2 * fillChunk, BlockSize: 4096}))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*fillChunk), fi.Size())
}

func TestPrepareLeavesLargerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.bin")
	require.NoError(t, Prepare(Options{Path: path, Size: 2 * fillChunk, BlockSize: 4096}))
	require.NoError(t, Prepare(Options{Path: path, Size: fillChunk, BlockSize: 4096}))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*fillChunk), fi.Size())
}

func TestPrepareWritePreallocates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.bin")
	const size = 8 << 20
	require.NoError(t, Prepare(Options{Path: path, Size: size, BlockSize: 65536, Write: true}))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(size), fi.Size())
}

func TestPrepareMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "area.bin")
	assert.Error(t, Prepare(Options{Path: path, Size: 4096, BlockSize: 4096}))
}

func TestPrepareRejectsDirectory(t *testing.T) {
	assert.Error(t, Prepare(Options{Path: t.TempDir(), Size: 4096, BlockSize: 4096}))
}

func TestOpenBuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.bin")
	opts := Options{Path: path, Size: fillChunk, BlockSize: 4096, Write: true}
	require.NoError(t, Prepare(opts))

	a, err := Open(opts)
	require.NoError(t, err)
	assert.False(t, a.Direct())
	assert.Empty(t, a.Note())
	assert.Equal(t, int64(fillChunk), a.Size())

	_, err = a.File().WriteAt(make([]byte, 4096), 0)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	// Idempotent.
	require.NoError(t, a.Close())
}

func TestOpenDirectFallsBackOrSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.bin")
	opts := Options{Path: path, Size: fillChunk, BlockSize: 4096, Direct: true}
	require.NoError(t, Prepare(opts))

	a, err := Open(opts)
	require.NoError(t, err, "direct rejection must not fail the open")
	defer a.Close()

	// Either the filesystem honours O_DIRECT or the downgrade is explained.
	if !a.Direct() {
		assert.Contains(t, a.Note(), "buffered")
	} else {
		assert.Empty(t, a.Note())
	}
	bufs, err := AllocBuffers(1, 4096)
	require.NoError(t, err)
	defer bufs.Free()
	_, err = a.File().ReadAt(bufs.Slot(0), 4096)
	assert.NoError(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "missing"), Size: 4096, BlockSize: 4096})
	assert.Error(t, err)
}

func TestBuffers(t *testing.T) {
	b, err := AllocBuffers(4, 8192)
	require.NoError(t, err)
	defer b.Free()

	assert.Equal(t, 4, b.Len())
	for i := 0; i < 4; i++ {
		assert.Len(t, b.Slot(i), 8192)
	}
	b.Slot(1)[0] = 1
	assert.Equal(t, byte(0), b.Slot(0)[0])
	assert.Equal(t, byte(0), b.Slot(2)[0])
}

func TestPattern(t *testing.T) {
	buf := make([]byte, 64)
	Pattern(buf)
	assert.NotEqual(t, make([]byte, 64), buf)
}
