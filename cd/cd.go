// Package cd implements the CentralDirectoryReader of spec.md §4.2: locating the end-of-central-
// directory (classic or ZIP64) and lazily iterating central-directory file header records with a
// bounded read buffer, optionally indexing decoded names for O(1) average Find.
//
// Grounded on the teacher's zip/scan package (findEOCD backward scan, fixed-size CD record parsing
// with a sliding buffer) and zipper/cdscanner.go (CDScanner.Next/All and the bytebufferpool-backed
// iteration idiom this package's Reader mirrors).
package cd

import (
	"bytes"
	"fmt"
	"iter"

	"github.com/valyala/bytebufferpool"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/bytesource"
	"github.com/nguyengg/minizip/cp437"
	"github.com/nguyengg/minizip/extra"
	"github.com/nguyengg/minizip/zerrors"
)

// DefaultBufferSize is the default size of the Reader's sliding read buffer, per spec.md §6's
// centralDirectoryBufferSize option (default 64 KiB).
const DefaultBufferSize = 64 * 1024

// Record is one parsed central-directory file header, matching spec.md §3's EntryRecord.
type Record struct {
	MadeByVersion      uint16
	ExtractionVersion  uint16
	Flags              uint16
	Method             uint16
	ModTime            uint16
	ModDate            uint16
	CRC32              uint32
	CompressedSize     uint64
	UncompressedSize   uint64
	LocalHeaderOffset  uint64
	DiskNumber         uint16
	InternalAttributes uint16
	ExternalAttributes uint32
	NameBytes          []byte
	CommentBytes       []byte
	Extra              []byte

	// Index is the zero-based position of this record within the central directory.
	Index int
}

// ExtraFields parses Extra into its tagged fields.
func (r Record) ExtraFields() []extra.Field {
	return extra.ParseAll(r.Extra)
}

// Options configures a Reader, per spec.md §6.
type Options struct {
	// BufferSize is the size of the sliding read buffer used while iterating the central
	// directory. Must be large enough to hold the fixed 46-byte record prefix; defaults to
	// DefaultBufferSize.
	BufferSize int

	// CreateIndex enables building a decoded-name -> Record index on the first full iteration,
	// per spec.md §4.2's "optional index".
	CreateIndex bool
}

// Reader locates and lazily iterates a central directory. It is not safe for concurrent use by
// multiple goroutines, matching the teacher's CDScanner ("not safe for use across multiple
// goroutine").
type Reader struct {
	src  bytesource.ByteSource
	opts Options
	loc  Location

	index     map[string]Record
	indexBuilt bool
}

// New locates the end-of-central-directory (classic or ZIP64) and returns a Reader ready to
// iterate it. Fails with zerrors.NotAZip if no EOCD signature is found.
func New(src bytesource.ByteSource, optFns ...func(*Options)) (*Reader, error) {
	opts := Options{BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize < binformat.CentralDirectoryLen {
		opts.BufferSize = DefaultBufferSize
	}

	loc, err := findEOCD(src)
	if err != nil {
		return nil, err
	}

	return &Reader{src: src, opts: opts, loc: loc}, nil
}

// Location returns the parsed CentralDirectoryLocation.
func (r *Reader) Location() Location {
	return r.loc
}

// All returns a lazy iterator over every central-directory record, reading the directory with a
// bounded sliding buffer rather than materializing it. If CreateIndex was set, the first full
// consumption of the iterator also populates the name index.
//
// The returned iterator must be drained or abandoned before starting another; Reader holds no
// concurrent iteration state.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		building := r.opts.CreateIndex && !r.indexBuilt
		var idx map[string]Record
		if building {
			idx = make(map[string]Record, r.loc.EntryCount)
		}

		complete := true
		for rec, err := range r.scan() {
			if err != nil {
				complete = false
				yield(Record{}, err)
				return
			}
			if building {
				idx[decodeNameForIndex(rec)] = rec
			}
			if !yield(rec, nil) {
				complete = false
				return
			}
		}

		if building && complete {
			r.index = idx
			r.indexBuilt = true
		}
	}
}

// Find looks up a record by its decoded file name. If an index was requested and already built,
// this is an O(1) average map lookup; otherwise it streams the directory until the first match,
// per spec.md §4.2.
func (r *Reader) Find(name string) (Record, bool, error) {
	if r.opts.CreateIndex && r.indexBuilt {
		rec, ok := r.index[name]
		return rec, ok, nil
	}

	for rec, err := range r.All() {
		if err != nil {
			return Record{}, false, err
		}
		if decodeNameForIndex(rec) == name {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// decodeNameForIndex resolves a record's display name with the same rules as
// entryreader.Reader.Name (spec.md §4.4): the raw bytes as UTF-8 if general-purpose bit 11 is set;
// otherwise the Unicode Path extra field's text if its CRC-32 matches; otherwise CP437. The index
// and Find key on this name, so Find(name) matches what EntryReader.Name() reports.
func decodeNameForIndex(rec Record) string {
	if rec.Flags&binformat.GPFlagUTF8 != 0 {
		return string(rec.NameBytes)
	}
	if name, ok := extra.ResolvedUnicodeName(rec.ExtraFields(), binformat.ExtraTagUnicodePath, rec.NameBytes); ok {
		return name
	}
	return cp437.Decode(rec.NameBytes)
}

// scan performs the actual bounded-buffer walk over the central directory bytes, yielding raw
// Records without any index bookkeeping - All wraps this to add indexing.
func (r *Reader) scan() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		// bb backs the sliding read window with a pooled buffer, reused across every refill
		// of this scan rather than left to the allocator, matching the teacher's
		// CDScanner.Next/All use of bytebufferpool.Get/Put for the same fixed-then-tail read
		// pattern.
		bb := bytebufferpool.Get()
		defer bytebufferpool.Put(bb)

		var (
			buf    []byte
			offset = r.loc.CDOffset
			end    = r.loc.CDOffset + r.loc.CDSize
			index  = 0
		)

		refill := func(minLen int64) error {
			want := int64(r.opts.BufferSize)
			if want < minLen {
				want = minLen
			}
			if offset+want > end {
				want = end - offset
			}
			if want <= 0 {
				buf = nil
				return nil
			}
			b, err := r.src.Read(offset, want)
			if err != nil {
				return err
			}
			bb.Reset()
			_, _ = bb.Write(b)
			buf = bb.B
			return nil
		}

		consumed := int64(0)
		for offset+consumed < end {
			if int64(len(buf))-consumed < binformat.CentralDirectoryLen {
				offset += consumed
				consumed = 0
				if err := refill(binformat.CentralDirectoryLen); err != nil {
					yield(Record{}, zerrors.Wrap(zerrors.BackendError, "cd.Reader.scan", err))
					return
				}
				if int64(len(buf)) < binformat.CentralDirectoryLen {
					yield(Record{}, zerrors.New(zerrors.Malformed, "cd.Reader.scan: truncated central directory record"))
					return
				}
			}

			fixed := buf[consumed : consumed+binformat.CentralDirectoryLen]
			sig := binformat.PutUint32LE(binformat.SigCentralDirectory)
			if !bytes.Equal(fixed[:4], sig) {
				yield(Record{}, zerrors.New(zerrors.Malformed,
					fmt.Sprintf("cd.Reader.scan: bad central directory signature at offset %d", offset+consumed)))
				return
			}

			fr := binformat.NewReader(fixed[4:])
			rec := Record{Index: index}
			rec.MadeByVersion = fr.Uint16()
			rec.ExtractionVersion = fr.Uint16()
			rec.Flags = fr.Uint16()
			rec.Method = fr.Uint16()
			rec.ModTime = fr.Uint16()
			rec.ModDate = fr.Uint16()
			rec.CRC32 = fr.Uint32()
			compressedSize32 := fr.Uint32()
			uncompressedSize32 := fr.Uint32()
			nameLen := fr.Uint16()
			extraLen := fr.Uint16()
			commentLen := fr.Uint16()
			diskNumber := fr.Uint16()
			rec.InternalAttributes = fr.Uint16()
			rec.ExternalAttributes = fr.Uint32()
			offset32 := fr.Uint32()

			rec.DiskNumber = diskNumber
			rec.CompressedSize = uint64(compressedSize32)
			rec.UncompressedSize = uint64(uncompressedSize32)
			rec.LocalHeaderOffset = uint64(offset32)

			tailLen := int64(nameLen) + int64(extraLen) + int64(commentLen)
			if offset+consumed+binformat.CentralDirectoryLen+tailLen > end {
				yield(Record{}, zerrors.New(zerrors.Malformed, "cd.Reader.scan: record tail overruns central directory"))
				return
			}

			consumed += binformat.CentralDirectoryLen
			if int64(len(buf))-consumed < tailLen {
				offset += consumed
				consumed = 0
				if err := refill(tailLen); err != nil {
					yield(Record{}, zerrors.Wrap(zerrors.BackendError, "cd.Reader.scan", err))
					return
				}
				if int64(len(buf)) < tailLen {
					yield(Record{}, zerrors.New(zerrors.Malformed, "cd.Reader.scan: truncated variable-length tail"))
					return
				}
			}

			tail := buf[consumed : consumed+tailLen]
			rec.NameBytes = append([]byte(nil), tail[:nameLen]...)
			rec.Extra = append([]byte(nil), tail[nameLen:nameLen+extraLen]...)
			rec.CommentBytes = append([]byte(nil), tail[nameLen+extraLen:nameLen+extraLen+commentLen]...)
			consumed += tailLen

			if z, ok := extra.ParseZip64(firstZip64Payload(rec.Extra), extra.Zip64{
				HasUncompressedSize: uncompressedSize32 == binformat.Uint32Max,
				HasCompressedSize:   compressedSize32 == binformat.Uint32Max,
				HasOffset:           offset32 == binformat.Uint32Max,
				HasDiskStart:        diskNumber == binformat.Uint16Max,
			}); ok {
				if uncompressedSize32 == binformat.Uint32Max {
					rec.UncompressedSize = z.UncompressedSize
				}
				if compressedSize32 == binformat.Uint32Max {
					rec.CompressedSize = z.CompressedSize
				}
				if offset32 == binformat.Uint32Max {
					rec.LocalHeaderOffset = z.Offset
				}
				if diskNumber == binformat.Uint16Max {
					rec.DiskNumber = uint16(z.DiskStart)
				}
			}

			if rec.DiskNumber != 0 {
				yield(Record{}, zerrors.New(zerrors.UnsupportedFeature, "cd.Reader.scan: multi-disk archives are not supported"))
				return
			}

			index++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// firstZip64Payload returns the raw payload of the first 0x0001 extra field in extraBlob, or nil
// if absent - ParseZip64 treats a nil/short payload as "not present" via its ok return.
func firstZip64Payload(extraBlob []byte) []byte {
	f, ok := extra.Find(extra.ParseAll(extraBlob), binformat.ExtraTagZIP64)
	if !ok {
		return nil
	}
	return f.Data
}
