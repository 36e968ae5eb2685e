package entryreader

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/bytesource"
	"github.com/nguyengg/minizip/cd"
	"github.com/nguyengg/minizip/compress"
	"github.com/nguyengg/minizip/zerrors"
)

// buildEntry hand-assembles a single local file header + payload, returning the bytes and the
// cd.Record describing it, so entryreader.Reader can be exercised without the writer package.
func buildEntry(t *testing.T, name string, data []byte, method uint16, badCRC bool) ([]byte, cd.Record) {
	t.Helper()

	crc := crc32.ChecksumIEEE(data)

	payload := data
	if method == binformat.MethodDeflate {
		r := compress.NewRegistry()
		p, err := r.New(binformat.MethodDeflate, compress.Compress)
		require.NoError(t, err)
		require.NoError(t, p.Push(data))
		require.NoError(t, p.Finish())
		var out []byte
		for {
			chunk, done, err := p.Pull()
			require.NoError(t, err)
			out = append(out, chunk...)
			if done {
				break
			}
		}
		payload = out
	}

	lh := binformat.NewWriter(30 + len(name))
	lh.Uint32(binformat.SigLocalFileHeader).
		Uint16(binformat.VersionDefault).
		Uint16(0).
		Uint16(method).
		Uint16(0).
		Uint16(0).
		Uint32(crc).
		Uint32(uint32(len(payload))).
		Uint32(uint32(len(data))).
		Uint16(uint16(len(name))).
		Uint16(0).
		String(name)

	b := append([]byte{}, lh.Out()...)
	b = append(b, payload...)

	if badCRC {
		crc++
	}

	rec := cd.Record{
		Method:           method,
		ModTime:          0,
		ModDate:          0,
		CRC32:            crc,
		CompressedSize:   uint64(len(payload)),
		UncompressedSize: uint64(len(data)),
		NameBytes:        []byte(name),
	}
	return b, rec
}

func TestReader_ReadAll_Store(t *testing.T) {
	data := []byte("hello, store!")
	b, rec := buildEntry(t, "a.txt", data, binformat.MethodStore, false)

	r := New(bytesource.NewBuffer(b), rec, compress.NewRegistry())
	assert.Equal(t, "a.txt", r.Name())

	out, err := r.ReadAll(1024)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestReader_ReadAll_Deflate(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to build up some redundancy")
	b, rec := buildEntry(t, "b.txt", data, binformat.MethodDeflate, false)

	r := New(bytesource.NewBuffer(b), rec, compress.NewRegistry())

	out, err := r.ReadAll(1024)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestReader_ReadAll_TooLarge(t *testing.T) {
	data := []byte("0123456789")
	b, rec := buildEntry(t, "c.txt", data, binformat.MethodStore, false)

	r := New(bytesource.NewBuffer(b), rec, compress.NewRegistry())
	_, err := r.ReadAll(5)
	require.Error(t, err)
	assert.True(t, zerrors.Is(err, zerrors.TooLarge))
}

func TestReader_CrcMismatch(t *testing.T) {
	data := []byte("corrupt me")
	b, rec := buildEntry(t, "d.txt", data, binformat.MethodStore, true)

	r := New(bytesource.NewBuffer(b), rec, compress.NewRegistry())
	_, err := r.ReadAll(1024)
	require.Error(t, err)
	assert.True(t, zerrors.Is(err, zerrors.CrcMismatch))
}

func TestReader_StreamReader_EmptyNotEOF(t *testing.T) {
	data := []byte("streamed chunk by chunk through a small input budget")
	b, rec := buildEntry(t, "e.txt", data, binformat.MethodDeflate, false)

	r := New(bytesource.NewBuffer(b), rec, compress.NewRegistry())
	sr, err := r.Open()
	require.NoError(t, err)

	var out []byte
	sawDone := false
	for i := 0; i < 1000; i++ {
		chunk, done, err := sr.Read(1)
		require.NoError(t, err)
		out = append(out, chunk...)
		if done {
			sawDone = true
			// subsequent reads must keep returning done=true, per spec.md §8 property 6.
			chunk2, done2, err2 := sr.Read(1)
			require.NoError(t, err2)
			assert.Empty(t, chunk2)
			assert.True(t, done2)
			break
		}
	}
	require.True(t, sawDone)
	assert.Equal(t, data, out)
}
