package extra

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyengg/minizip/binformat"
)

func TestParseAll_Encode_RoundTrip(t *testing.T) {
	fields := []Field{
		{Tag: binformat.ExtraTagZIP64, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Tag: 0x9999, Data: []byte("unknown tag preserved verbatim")},
	}
	blob := Encode(fields)

	parsed := ParseAll(blob)
	require.Len(t, parsed, 2)
	assert.Equal(t, fields[0], parsed[0])
	assert.Equal(t, fields[1], parsed[1])
}

func TestParseAll_StopsOnTruncatedTail(t *testing.T) {
	// a well-formed field followed by a declared length that overruns the remaining bytes.
	w := binformat.NewWriter(0)
	w.Uint16(0x1234).Uint16(4).Bytes([]byte("abcd"))
	w.Uint16(0x5678).Uint16(10).Bytes([]byte("short"))
	blob := w.Out()

	fields := ParseAll(blob)
	require.Len(t, fields, 1)
	assert.Equal(t, uint16(0x1234), fields[0].Tag)
}

func TestZip64_EncodeParse_RoundTrip(t *testing.T) {
	z := Zip64{
		HasUncompressedSize: true,
		UncompressedSize:    0x100000001,
		HasCompressedSize:   true,
		CompressedSize:      0xABCDEF01,
		HasOffset:           true,
		Offset:              0x200000002,
	}
	payload := EncodeZip64(z)

	out, ok := ParseZip64(payload, Zip64{HasUncompressedSize: true, HasCompressedSize: true, HasOffset: true})
	require.True(t, ok)
	assert.Equal(t, z.UncompressedSize, out.UncompressedSize)
	assert.Equal(t, z.CompressedSize, out.CompressedSize)
	assert.Equal(t, z.Offset, out.Offset)
}

func TestZip64_OnlyEscalatedFieldsPresent(t *testing.T) {
	// only the offset escalated; local header's copy would carry just the two size fields, but
	// here we model a central-directory record where only the offset needed ZIP64.
	z := Zip64{HasOffset: true, Offset: 0x1FFFFFFFF}
	payload := EncodeZip64(z)
	assert.Len(t, payload, 8)

	out, ok := ParseZip64(payload, Zip64{HasOffset: true})
	require.True(t, ok)
	assert.Equal(t, z.Offset, out.Offset)
}

func TestZip64_ParseFailsOnShortPayload(t *testing.T) {
	// 4 bytes is not enough to hold even one escalated 8-byte field.
	_, ok := ParseZip64([]byte{1, 2, 3, 4}, Zip64{HasUncompressedSize: true})
	assert.False(t, ok)
}

func TestResolvedUnicodeName_CRCMatch(t *testing.T) {
	classic := []byte("ascii-compatible-but-not-the-real-name")
	utf8Name := "café.txt"

	field := Field{Tag: binformat.ExtraTagUnicodePath, Data: EncodeUnicodeName(classic, utf8Name)}

	name, ok := ResolvedUnicodeName([]Field{field}, binformat.ExtraTagUnicodePath, classic)
	require.True(t, ok)
	assert.Equal(t, utf8Name, name)
}

func TestResolvedUnicodeName_CRCMismatchFallsBack(t *testing.T) {
	classic := []byte("original-name")
	field := Field{Tag: binformat.ExtraTagUnicodePath, Data: EncodeUnicodeName([]byte("different-name"), "override.txt")}

	_, ok := ResolvedUnicodeName([]Field{field}, binformat.ExtraTagUnicodePath, classic)
	assert.False(t, ok)
}

func TestResolvedUnicodeName_Absent(t *testing.T) {
	_, ok := ResolvedUnicodeName(nil, binformat.ExtraTagUnicodePath, []byte("name"))
	assert.False(t, ok)
}

func TestParseUnicodeName_CRCMatchesChecksumIEEE(t *testing.T) {
	classic := []byte("name.txt")
	payload := EncodeUnicodeName(classic, "name.txt")

	un, ok := ParseUnicodeName(payload)
	require.True(t, ok)
	assert.Equal(t, uint8(1), un.Version)
	assert.Equal(t, crc32.ChecksumIEEE(classic), un.CRC32)
	assert.Equal(t, "name.txt", un.Name)
}

func TestExtendedTimestamp_LocalCarriesATimeAndCTime(t *testing.T) {
	ts := ExtendedTimestamp{
		HasModTime: true, ModTime: 1000,
		HasATime: true, ATime: 2000,
		HasCTime: true, CTime: 3000,
	}

	local := EncodeExtendedTimestamp(ts, true)
	out, ok := ParseExtendedTimestamp(local, true)
	require.True(t, ok)
	assert.True(t, out.HasATime)
	assert.Equal(t, uint32(2000), out.ATime)
	assert.True(t, out.HasCTime)
	assert.Equal(t, uint32(3000), out.CTime)
}

func TestExtendedTimestamp_CentralDropsATimeAndCTime(t *testing.T) {
	ts := ExtendedTimestamp{
		HasModTime: true, ModTime: 1000,
		HasATime: true, ATime: 2000,
		HasCTime: true, CTime: 3000,
	}

	central := EncodeExtendedTimestamp(ts, false)
	assert.Len(t, central, 5, "central copy is mtime-only: 1 flag byte + 4 bytes")

	out, ok := ParseExtendedTimestamp(central, false)
	require.True(t, ok)
	assert.True(t, out.HasModTime)
	assert.Equal(t, uint32(1000), out.ModTime)
	assert.False(t, out.HasATime)
	assert.False(t, out.HasCTime)
}

func TestParseExtendedTimestamp_EmptyPayload(t *testing.T) {
	_, ok := ParseExtendedTimestamp(nil, true)
	assert.False(t, ok)
}
