package cd

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/bytesource"
)

// buildMinimalZip hand-assembles a classic (non-ZIP64) archive with one Store entry, mirroring the
// fixed-layout records spec.md §6 describes, so cd.New/All can be exercised without depending on
// the writer package.
func buildMinimalZip(t *testing.T, name string, data []byte) []byte {
	t.Helper()

	crc := crc32.ChecksumIEEE(data)

	lh := binformat.NewWriter(30 + len(name))
	lh.Uint32(binformat.SigLocalFileHeader).
		Uint16(binformat.VersionDefault).
		Uint16(0).
		Uint16(binformat.MethodStore).
		Uint16(0).
		Uint16(0).
		Uint32(crc).
		Uint32(uint32(len(data))).
		Uint32(uint32(len(data))).
		Uint16(uint16(len(name))).
		Uint16(0).
		String(name)

	localOffset := uint32(0)

	cdr := binformat.NewWriter(46 + len(name))
	cdr.Uint32(binformat.SigCentralDirectory).
		Uint16(binformat.VersionDefault).
		Uint16(binformat.VersionDefault).
		Uint16(0).
		Uint16(binformat.MethodStore).
		Uint16(0).
		Uint16(0).
		Uint32(crc).
		Uint32(uint32(len(data))).
		Uint32(uint32(len(data))).
		Uint16(uint16(len(name))).
		Uint16(0).
		Uint16(0).
		Uint16(0).
		Uint16(0).
		Uint32(0).
		Uint32(localOffset).
		String(name)

	cdOffset := len(lh.Out()) + len(data)
	cdBytes := cdr.Out()

	eocd := binformat.NewWriter(22)
	eocd.Uint32(binformat.SigEOCD).
		Uint16(0).
		Uint16(0).
		Uint16(1).
		Uint16(1).
		Uint32(uint32(len(cdBytes))).
		Uint32(uint32(cdOffset)).
		Uint16(0)

	out := append([]byte{}, lh.Out()...)
	out = append(out, data...)
	out = append(out, cdBytes...)
	out = append(out, eocd.Out()...)
	return out
}

func TestReader_All(t *testing.T) {
	z := buildMinimalZip(t, "hello.txt", []byte("hi there"))

	r, err := New(bytesource.NewBuffer(z))
	require.NoError(t, err)

	loc := r.Location()
	assert.False(t, loc.IsZip64)
	assert.Equal(t, int64(1), loc.EntryCount)

	var recs []Record
	for rec, err := range r.All() {
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	require.Len(t, recs, 1)
	assert.Equal(t, "hello.txt", string(recs[0].NameBytes))
	assert.Equal(t, uint64(8), recs[0].UncompressedSize)
	assert.Equal(t, crc32.ChecksumIEEE([]byte("hi there")), recs[0].CRC32)
}

func TestReader_Find_WithIndex(t *testing.T) {
	z := buildMinimalZip(t, "a/b/c.txt", []byte("data"))

	r, err := New(bytesource.NewBuffer(z), func(o *Options) {
		o.CreateIndex = true
	})
	require.NoError(t, err)

	// first pass builds the index.
	for _, err := range r.All() {
		require.NoError(t, err)
	}

	rec, ok, err := r.Find("a/b/c.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a/b/c.txt", string(rec.NameBytes))

	_, ok, err = r.Find("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReader_NotAZip(t *testing.T) {
	_, err := New(bytesource.NewBuffer([]byte("not a zip file at all")))
	require.Error(t, err)
}

func TestReader_SmallBuffer(t *testing.T) {
	z := buildMinimalZip(t, "small-buffer-forces-refill.txt", []byte("some payload bytes"))

	r, err := New(bytesource.NewBuffer(z), func(o *Options) {
		o.BufferSize = binformat.CentralDirectoryLen // exactly the fixed prefix, forcing a refill for the tail
	})
	require.NoError(t, err)

	var recs []Record
	for rec, err := range r.All() {
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.Len(t, recs, 1)
	assert.Equal(t, "small-buffer-forces-refill.txt", string(recs[0].NameBytes))
}
