// Package extra parses and emits the extra-field tags spec.md §3/§4.4 recognizes by default: ZIP64
// extended info (0x0001), Info-ZIP Unicode Path (0x7075) and Comment (0x6375), and Info-ZIP Extended
// Timestamp (0x5455). Unknown tags are preserved verbatim, never interpreted.
//
// Grounded on martin-sucha-zipserve's writer.go (zip64 extra construction, extended timestamp extra
// construction - see prepareEntry and writeCentralDirectory in DESIGN.md) and on lyp256-ezip's extra
// field handling for the Unicode Path/Comment CRC-gated override described in spec.md §4.4.
package extra

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/nguyengg/minizip/binformat"
)

// Field is one parsed tag-length-value block from an extra field blob, exposing the tag so unknown
// fields round-trip byte-for-byte on merge/re-emit.
type Field struct {
	Tag  uint16
	Data []byte
}

// ParseAll splits a raw extra field blob into its constituent tag-length-value blocks. Malformed
// trailing bytes (fewer than 4 bytes left, or a declared length overrunning the blob) stop parsing
// and return what was already parsed successfully - the blob as a whole is still preserved verbatim
// by callers that only need to re-emit it, so a partially-parsed tail is not itself a hard error here.
func ParseAll(b []byte) []Field {
	var fields []Field
	for len(b) >= 4 {
		tag := binary.LittleEndian.Uint16(b[0:2])
		size := binary.LittleEndian.Uint16(b[2:4])
		if int(size) > len(b)-4 {
			break
		}
		fields = append(fields, Field{Tag: tag, Data: b[4 : 4+int(size)]})
		b = b[4+int(size):]
	}
	return fields
}

// Find returns the first field with the given tag, or ok=false if none is present.
func Find(fields []Field, tag uint16) (Field, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

// Encode serializes fields back into a single extra field blob in order.
func Encode(fields []Field) []byte {
	w := binformat.NewWriter(0)
	for _, f := range fields {
		w.Uint16(f.Tag).Uint16(uint16(len(f.Data))).Bytes(f.Data)
	}
	return w.Out()
}

// Zip64 carries whichever of the four ZIP64 fields were escalated. Per spec.md §3, each field is
// present only when its classic 32-bit counterpart was the sentinel 0xFFFFFFFF (uncompressed size
// and compressed size) or the record was otherwise marked for ZIP64 (offset, disk start); the encoder
// is told explicitly which fields to include via the Has* flags so it emits exactly the fields the
// classic header escalated, in APPNOTE's fixed order: uncompressed size, compressed size, offset,
// disk start.
type Zip64 struct {
	HasUncompressedSize bool
	UncompressedSize    uint64
	HasCompressedSize   bool
	CompressedSize      uint64
	HasOffset           bool
	Offset              uint64
	HasDiskStart        bool
	DiskStart           uint32
}

// ParseZip64 decodes the 0x0001 extra field payload. Because the ZIP64 extra omits fields whose
// classic counterpart wasn't escalated, the caller must tell ParseZip64 which fields to expect by
// setting the Has* flags on the returned-into Zip64 beforehand (it reads only as many 8/4-byte
// values as requested, in APPNOTE's fixed order).
func ParseZip64(data []byte, want Zip64) (Zip64, bool) {
	r := binformat.NewReader(data)
	out := want
	need := 0
	if want.HasUncompressedSize {
		need += 8
	}
	if want.HasCompressedSize {
		need += 8
	}
	if want.HasOffset {
		need += 8
	}
	if want.HasDiskStart {
		need += 4
	}
	if len(data) < need {
		return Zip64{}, false
	}
	if want.HasUncompressedSize {
		out.UncompressedSize = r.Uint64()
	}
	if want.HasCompressedSize {
		out.CompressedSize = r.Uint64()
	}
	if want.HasOffset {
		out.Offset = r.Uint64()
	}
	if want.HasDiskStart {
		out.DiskStart = r.Uint32()
	}
	return out, true
}

// EncodeZip64 serializes a ZIP64 extra field payload (without the tag/length header) containing only
// the fields flagged Has*, in APPNOTE's fixed order.
func EncodeZip64(z Zip64) []byte {
	w := binformat.NewWriter(28)
	if z.HasUncompressedSize {
		w.Uint64(z.UncompressedSize)
	}
	if z.HasCompressedSize {
		w.Uint64(z.CompressedSize)
	}
	if z.HasOffset {
		w.Uint64(z.Offset)
	}
	if z.HasDiskStart {
		w.Uint32(z.DiskStart)
	}
	return w.Out()
}

// UnicodeName is the decoded payload of an Info-ZIP Unicode Path (0x7075) or Unicode Comment (0x6375)
// extra field: a version byte, the CRC-32 of the classic-encoded name/comment bytes it supersedes,
// and the replacement UTF-8 bytes.
type UnicodeName struct {
	Version uint8
	CRC32   uint32
	Name    string
}

// ParseUnicodeName decodes a 0x7075/0x6375 payload.
func ParseUnicodeName(data []byte) (UnicodeName, bool) {
	if len(data) < 5 {
		return UnicodeName{}, false
	}
	r := binformat.NewReader(data)
	return UnicodeName{
		Version: r.Uint8(),
		CRC32:   r.Uint32(),
		Name:    string(r.Remaining()),
	}, true
}

// EncodeUnicodeName serializes a UnicodeName payload (without the tag/length header) given the
// classic-encoded bytes it supersedes (for the CRC) and the UTF-8 replacement text.
func EncodeUnicodeName(classic []byte, utf8Name string) []byte {
	w := binformat.NewWriter(5 + len(utf8Name))
	w.Uint8(1).Uint32(crc32.ChecksumIEEE(classic)).String(utf8Name)
	return w.Out()
}

// ResolvedUnicodeName returns the effective name/comment per spec.md §4.4: if a Unicode Path/Comment
// extra field is present and its embedded CRC-32 matches classic's bytes, its UTF-8 content takes
// precedence; otherwise the zero value is returned with ok=false, signaling the caller should fall
// back to its own decode (UTF-8 flag or CP437) of classic.
func ResolvedUnicodeName(fields []Field, tag uint16, classic []byte) (string, bool) {
	f, ok := Find(fields, tag)
	if !ok {
		return "", false
	}
	un, ok := ParseUnicodeName(f.Data)
	if !ok || un.CRC32 != crc32.ChecksumIEEE(classic) {
		return "", false
	}
	return un.Name, true
}

// ExtendedTimestamp is the decoded payload of a 0x5455 extra field. ATime and CTime are populated
// only when read from a local header, per spec.md §3: "atime/ctime appear only in local headers".
type ExtendedTimestamp struct {
	HasModTime bool
	ModTime    uint32
	HasATime   bool
	ATime      uint32
	HasCTime   bool
	CTime      uint32
}

const (
	tsFlagModTime uint8 = 1 << 0
	tsFlagATime   uint8 = 1 << 1
	tsFlagCTime   uint8 = 1 << 2
)

// ParseExtendedTimestamp decodes a 0x5455 payload. isLocal controls whether atime/ctime (present
// only in local headers, per spec.md) are read even when the flag byte claims they're present.
func ParseExtendedTimestamp(data []byte, isLocal bool) (ExtendedTimestamp, bool) {
	if len(data) < 1 {
		return ExtendedTimestamp{}, false
	}
	flags := data[0]
	rest := data[1:]
	var ts ExtendedTimestamp

	take := func() (uint32, bool) {
		if len(rest) < 4 {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		return v, true
	}

	if flags&tsFlagModTime != 0 {
		if v, ok := take(); ok {
			ts.HasModTime, ts.ModTime = true, v
		}
	}
	if isLocal && flags&tsFlagATime != 0 {
		if v, ok := take(); ok {
			ts.HasATime, ts.ATime = true, v
		}
	}
	if isLocal && flags&tsFlagCTime != 0 {
		if v, ok := take(); ok {
			ts.HasCTime, ts.CTime = true, v
		}
	}
	return ts, true
}

// EncodeExtendedTimestamp serializes a 0x5455 payload (without tag/length header). isLocal controls
// whether ATime/CTime are emitted at all - the central directory copy of this field is mtime-only,
// per spec.md's note that atime/ctime are local-only.
func EncodeExtendedTimestamp(ts ExtendedTimestamp, isLocal bool) []byte {
	var flags uint8
	if ts.HasModTime {
		flags |= tsFlagModTime
	}
	if isLocal && ts.HasATime {
		flags |= tsFlagATime
	}
	if isLocal && ts.HasCTime {
		flags |= tsFlagCTime
	}

	w := binformat.NewWriter(13)
	w.Uint8(flags)
	if ts.HasModTime {
		w.Uint32(ts.ModTime)
	}
	if isLocal && ts.HasATime {
		w.Uint32(ts.ATime)
	}
	if isLocal && ts.HasCTime {
		w.Uint32(ts.CTime)
	}
	return w.Out()
}
