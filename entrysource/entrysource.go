// Package entrysource implements the EntrySource producer abstraction of spec.md §4.7: one
// instance per output entry, yielding the entry's header fields and a lazy, already-wire-encoded
// byte stream that ArchiveWriter frames with local headers, data descriptors, and a central
// directory record.
//
// Grounded on martin-sucha-zipserve's writer.go prepareEntry/detectUTF8 (the UTF-8-vs-CP437
// decision and the "treat a trailing slash as a Store, zero-size, no-data-descriptor directory
// entry" rule) and on the teacher's zipWriter.add (archive/zip_writer.go), which sets up a
// zip.FileHeader's Name/Method/Modified/mode per added file the same way Options here configures a
// fresh EntrySource.
package entrysource

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/compress"
	"github.com/nguyengg/minizip/cp437"
)

// Header carries everything ArchiveWriter needs to frame an entry's local header and, later, its
// central-directory record - the fields spec.md §3 lists under EntrySource plus enough of
// ExtraField's shape for the writer to assemble the wire blob.
type Header struct {
	NameBytes    []byte
	CommentBytes []byte
	// Name and Comment hold the original decoded text behind NameBytes/CommentBytes, used only to
	// build a Unicode Path/Comment extra field's UTF-8 replacement text when UTF8 is false (the
	// CP437 branch of spec.md §4.4's emission rule) - NameBytes/CommentBytes themselves are CP437
	// in that case, not valid UTF-8. Left empty by ArchiveEntryEntrySource, whose
	// UnicodeFileNameField/UnicodeCommentField are always unset (see DESIGN.md).
	Name    string
	Comment string
	UTF8    bool
	Method  uint16

	ModTime   time.Time
	HasACTime bool
	ACTime    time.Time
	HasCRTime bool
	CRTime    time.Time

	ExtendedTimeStampField bool
	UnicodeFileNameField   bool
	UnicodeCommentField    bool

	MinMadeByVersion      uint16
	MinExtractionVersion  uint16
	InternalAttributes    uint16
	ExternalAttributes    uint32
	ForceZIP64            bool

	// PreservedExtra is, for merge-copied entries, the original extra-field blob with the ZIP64
	// (0x0001) and Info-ZIP Unicode Path/Comment (0x7075/0x6375) tags stripped out (the writer
	// regenerates ZIP64 fields itself, and a renamed entry's old Unicode name/comment fields
	// would otherwise advertise stale values); nil for entries built fresh by
	// DataReaderEntrySource, which instead has the writer synthesize extra fields from the
	// other Header options.
	PreservedExtra []byte

	// SuppressDataDescriptor is true for directory entries (spec.md §4.7/martin-sucha's
	// prepareEntry): size is known to be exactly zero up front, so no trailing data descriptor
	// is needed.
	SuppressDataDescriptor bool
}

// EntrySource is the producer abstraction of spec.md §4.7.
type EntrySource interface {
	// Header returns the entry's header fields. Called once, before NextChunk.
	Header() (Header, error)

	// NextChunk returns the next chunk of already-wire-encoded (i.e. compressed, if
	// applicable) payload bytes, or done=true once exhausted.
	NextChunk(maxBytes int64) (chunk []byte, done bool, err error)

	// Method returns the compression method actually used for the payload - authoritative even
	// when it differs from a caller-configured method, which ArchiveEntryEntrySource ignores
	// per spec.md §4.7.
	Method() uint16

	// CRC32, CompressedSize, and UncompressedSize are valid only after NextChunk has returned
	// done=true.
	CRC32() uint32
	CompressedSize() uint64
	UncompressedSize() uint64
}

// Options configures a fresh (non-merge) EntrySource, per spec.md §6's EntrySource option list.
type Options struct {
	FileName               string
	FileComment            string
	ForceUTF8FileName      bool
	CompressionMethod      uint16
	ForceZIP64             bool
	MinMadeByVersion       uint16
	MinExtractionVersion   uint16
	ModTime                time.Time
	ACTime                 time.Time
	CRTime                 time.Time
	UnicodeFileNameField   bool
	UnicodeCommentField    bool
	ExtendedTimeStampField bool
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	DataProcessors         *compress.Registry
}

// defaultOptions returns the Options defaults spec.md §6 documents: CompressionMethod defaults to
// Deflate, ExtendedTimeStampField defaults to true.
func defaultOptions() Options {
	return Options{
		CompressionMethod:      binformat.MethodDeflate,
		ExtendedTimeStampField: true,
		MinMadeByVersion:       binformat.VersionDefault,
		MinExtractionVersion:   binformat.VersionDefault,
		ModTime:                time.Now(),
		DataProcessors:         compress.NewRegistry(),
	}
}

// detectUTF8 reports whether s is valid UTF-8 and whether it contains any rune outside the
// 0x20-0x7D range (or a backslash, 0x5C), the range every reader agrees on, mirroring
// martin-sucha-zipserve's detectUTF8. Plain ASCII text in that range reports require=false;
// buildHeader decides whether text with require=true still fits CP437.
func detectUTF8(s string) (valid, require bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r < 0x20 || r > 0x7d || r == 0x5c {
			if !utf8.ValidRune(r) || (r == utf8.RuneError && size == 1) {
				return false, false
			}
			require = true
		}
	}
	return true, require
}

// buildHeader turns an Options (plus a method override, used by ForPath) into a Header, applying
// the UTF-8-vs-CP437 decision of spec.md §4.4: UTF-8 directly when forced, or when the name or
// comment is valid UTF-8 that CP437 cannot represent; otherwise CP437 (so a non-ASCII name such as
// "café.txt" stays CP437-encoded), failing with zerrors.EncodingUnsupported if a code point has no
// CP437 representation.
func buildHeader(opts Options, method uint16, suppressDataDescriptor bool) (Header, error) {
	validName, requireName := detectUTF8(opts.FileName)
	validComment, requireComment := detectUTF8(opts.FileComment)

	utf8Flag := opts.ForceUTF8FileName
	if !utf8Flag && (requireName || requireComment) && validName && validComment {
		if _, _, err := encodeNameAndComment(opts.FileName, opts.FileComment, false); err != nil {
			utf8Flag = true
		}
	}

	nameBytes, commentBytes, err := encodeNameAndComment(opts.FileName, opts.FileComment, utf8Flag)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		NameBytes:              nameBytes,
		CommentBytes:           commentBytes,
		Name:                   opts.FileName,
		Comment:                opts.FileComment,
		UTF8:                   utf8Flag,
		Method:                 method,
		ModTime:                opts.ModTime,
		ExtendedTimeStampField: opts.ExtendedTimeStampField,
		UnicodeFileNameField:   opts.UnicodeFileNameField,
		UnicodeCommentField:    opts.UnicodeCommentField,
		MinMadeByVersion:       opts.MinMadeByVersion,
		MinExtractionVersion:   opts.MinExtractionVersion,
		InternalAttributes:     opts.InternalFileAttributes,
		ExternalAttributes:     opts.ExternalFileAttributes,
		ForceZIP64:             opts.ForceZIP64,
		SuppressDataDescriptor: suppressDataDescriptor,
	}
	if !opts.ACTime.IsZero() {
		h.HasACTime, h.ACTime = true, opts.ACTime
	}
	if !opts.CRTime.IsZero() {
		h.HasCRTime, h.CRTime = true, opts.CRTime
	}
	return h, nil
}

// encodeNameAndComment encodes name/comment as UTF-8 bytes directly when utf8Flag is set, or as
// CP437 otherwise, per spec.md §4.4's emission rule.
func encodeNameAndComment(name, comment string, utf8Flag bool) (nameBytes, commentBytes []byte, err error) {
	if utf8Flag {
		return []byte(name), []byte(comment), nil
	}
	if nameBytes, err = cp437.Encode(name); err != nil {
		return nil, nil, err
	}
	if commentBytes, err = cp437.Encode(comment); err != nil {
		return nil, nil, err
	}
	return nameBytes, commentBytes, nil
}

// isDirName reports whether name is the conventional ZIP directory marker (trailing slash).
func isDirName(name string) bool {
	return strings.HasSuffix(name, "/")
}
