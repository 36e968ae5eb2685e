package binformat

// Record signatures, per APPNOTE and the GLOSSARY in spec.md.
const (
	SigLocalFileHeader  uint32 = 0x04034b50
	SigDataDescriptor   uint32 = 0x08074b50
	SigCentralDirectory uint32 = 0x02014b50
	SigEOCD             uint32 = 0x06054b50
	SigZIP64EOCD        uint32 = 0x06064b50
	SigZIP64Locator     uint32 = 0x07064b50
)

// Fixed-size lengths of each record's non-variable prefix, in bytes.
const (
	LocalFileHeaderLen  = 30
	CentralDirectoryLen = 46
	EOCDLen             = 22
	ZIP64EOCDLen        = 56
	ZIP64LocatorLen     = 20
	DataDescriptorLen   = 16 // signature + crc32 + compressed + uncompressed, 32-bit sizes
	DataDescriptor64Len = 24 // signature + crc32 + compressed + uncompressed, 64-bit sizes
)

// Extra field tag ids recognized by extra.Registry, repeated here since binformat is the common
// dependency of both extra and cd/writer.
const (
	ExtraTagZIP64             uint16 = 0x0001
	ExtraTagUnicodePath       uint16 = 0x7075
	ExtraTagUnicodeComment    uint16 = 0x6375
	ExtraTagExtendedTimestamp uint16 = 0x5455
)

// Version constants used when writing made-by/extraction version fields.
const (
	VersionDefault uint16 = 20
	VersionZIP64   uint16 = 45
)

// Compression methods recognized by the default compress.Registry.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// Sentinel values that, when present in a classic (32-bit) field, mean "see the ZIP64 extra field
// instead".
const (
	Uint16Max uint16 = 0xFFFF
	Uint32Max uint32 = 0xFFFFFFFF
)

// GPFlag bit positions used by the library.
const (
	GPFlagDataDescriptor uint16 = 1 << 3
	GPFlagUTF8           uint16 = 1 << 11
)
