package entrysource

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyengg/minizip/binformat"
)

func drainChunks(t *testing.T, s EntrySource) []byte {
	t.Helper()
	var out []byte
	for {
		chunk, done, err := s.NextChunk(16)
		require.NoError(t, err)
		out = append(out, chunk...)
		if done {
			return out
		}
	}
}

func TestDataReaderEntrySource_Deflate(t *testing.T) {
	data := []byte("payload bytes compressed through the write-side registry, repeated, repeated, repeated")

	s, err := NewDataReaderEntrySource(bytes.NewReader(data), func(o *Options) {
		o.FileName = "entry.bin"
	})
	require.NoError(t, err)

	h, err := s.Header()
	require.NoError(t, err)
	assert.Equal(t, "entry.bin", string(h.NameBytes))
	assert.Equal(t, binformat.MethodDeflate, s.Method())

	compressed := drainChunks(t, s)
	assert.NotEmpty(t, compressed)
	assert.Equal(t, uint64(len(data)), s.UncompressedSize())
	assert.Equal(t, uint64(len(compressed)), s.CompressedSize())
}

func TestDataReaderEntrySource_RequiresFileName(t *testing.T) {
	_, err := NewDataReaderEntrySource(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestForPath_DirectoryEntry(t *testing.T) {
	s, err := ForPath("some/dir/")
	require.NoError(t, err)

	h, err := s.Header()
	require.NoError(t, err)
	assert.Equal(t, "some/dir/", string(h.NameBytes))
	assert.True(t, h.SuppressDataDescriptor)
	assert.Equal(t, binformat.MethodStore, s.Method())

	chunk, done, err := s.NextChunk(1024)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, chunk)
	assert.Equal(t, uint64(0), s.CompressedSize())
}

func TestForPath_RejectsNonDirName(t *testing.T) {
	_, err := ForPath("not-a-dir")
	require.Error(t, err)
}
