// Package writer implements the ArchiveWriter of spec.md §4.6: a pull-based emitter that composes
// local headers, entry payloads, data descriptors, and a deferred central directory into a
// well-formed ZIP (with ZIP64 extensions escalated automatically as needed) as a lazy sequence of
// byte chunks.
//
// Grounded on martin-sucha-zipserve's writer.go (writeHeader/writeCentralDirectory/
// makeDataDescriptor - the classic-vs-ZIP64 branching on size/offset sentinels, and the "always
// write the data descriptor signature" convention) and the teacher's zipWriter (archive/zip_writer.go)
// for the overall "one EntrySource per added file" shape, generalized here from a push-based
// io.Writer/RegisterCompressor model to spec.md's pull-based nextChunk/EntrySource contract.
package writer

import (
	"log"
	"time"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/entrysource"
	"github.com/nguyengg/minizip/zerrors"
)

// maxClassic32 is the largest value a classic 32-bit size/offset field may hold before ZIP64
// escalation is required, per spec.md §4.6.
const maxClassic32 = uint64(0xFFFFFFFE)

// DefaultChunkSize is the default soft threshold spec.md §4.6 suggests for nextChunk's returned
// slice size.
const DefaultChunkSize = 64 * 1024

// Options configures a Writer, per spec.md §6.
type Options struct {
	// ForceZIP64 forces ZIP64 EOCD + locator emission regardless of archive size, per
	// spec.md §6.
	ForceZIP64 bool

	// ChunkSize is the soft threshold used when pulling payload bytes from an EntrySource.
	// Defaults to DefaultChunkSize.
	ChunkSize int64

	// Logger, if set, receives one line per entry once its local header has been written,
	// following the same optional stdlib-log convention as the teacher's
	// zipper.DefaultProgressReporter. Nil by default, so the writer stays silent.
	Logger *log.Logger
}

// NextEntryFunc supplies the next EntrySource to write, or ok=false once exhausted, per spec.md
// §4.6 step 1 and §9's "factory-style entry generation" note.
type NextEntryFunc func() (entrysource.EntrySource, bool, error)

// CentralRecord is a snapshot of one completed entry's final header fields, captured once its
// payload and data descriptor have been emitted, per spec.md §3's WriteArchiveState.
type CentralRecord struct {
	Header            entrysource.Header
	Method            uint16
	CRC32             uint32
	CompressedSize    uint64
	UncompressedSize  uint64
	LocalHeaderOffset uint64
	ZIP64             bool
}

type phase int

const (
	phaseEntries phase = iota
	phaseCentralDirectory
	phaseEOCD
	phaseDone
)

type entryPhase int

const (
	entryLocalHeader entryPhase = iota
	entryPayload
	entryDataDescriptor
)

type currentEntry struct {
	src      entrysource.EntrySource
	header   entrysource.Header
	offset   uint64
	phase    entryPhase
	crc      uint32
	compSize uint64
	rawSize  uint64
}

// localHeaderZIP64 reports whether a local header needs a ZIP64 extra field, per APPNOTE
// 4.5.3: the local header's ZIP64 extra carries only the two size fields, never the
// local-header offset (that only ever appears in the central directory's copy). For a
// known-size (SuppressDataDescriptor) entry, ForceZIP64 writes classic fields as the 0xFFFFFFFF
// sentinel alongside the ZIP64 extra, so the two agree. For a streaming entry the final sizes
// aren't known yet when the local header is written, and there is no later point at which it
// could be rewritten to match - writing a ZIP64 extra there while the classic size fields are
// still the deferred-to-data-descriptor zero would be internally inconsistent per APPNOTE 4.5.3
// (a present ZIP64 size field implies the classic field is the sentinel, not zero). So a
// streaming entry is always written in classic local-header format regardless of ForceZIP64; any
// eventual ZIP64 escalation is carried by the data descriptor and central directory record alone,
// grounded on martin-sucha-zipserve's makeDataDescriptor comment ("adding a zip64 extra in the
// local header [is] too late anyway").
func localHeaderZIP64(h entrysource.Header) bool {
	return h.ForceZIP64 && h.SuppressDataDescriptor
}

// Writer is the ArchiveWriter of spec.md §4.6. It is single-threaded cooperative: NextChunk is the
// only suspension point, and the writer never spawns background work, per spec.md §5.
type Writer struct {
	next    NextEntryFunc
	opts    Options
	offset  uint64
	records []CentralRecord
	cur     *currentEntry
	phase   phase
	pending []byte
	done    bool
}

// New returns a Writer that pulls entries from next.
func New(next NextEntryFunc, optFns ...func(*Options)) *Writer {
	opts := Options{ChunkSize: DefaultChunkSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Writer{next: next, opts: opts}
}

// NextChunk returns the next chunk of archive bytes, or done=true once the archive's end-of-stream
// sentinel has been reached, per spec.md §4.6.
func (w *Writer) NextChunk() ([]byte, bool, error) {
	if w.done {
		return nil, true, nil
	}
	for {
		if len(w.pending) > 0 {
			out := w.pending
			w.pending = nil
			return out, false, nil
		}
		finished, err := w.advance()
		if err != nil {
			w.done = true
			return nil, false, err
		}
		if finished {
			w.done = true
			return nil, true, nil
		}
	}
}

// emit appends b to the pending output buffer and advances the writer's absolute offset.
func (w *Writer) emit(b []byte) {
	if len(b) == 0 {
		return
	}
	w.pending = append(w.pending, b...)
	w.offset += uint64(len(b))
}

// advance performs one step of the state machine, producing bytes into w.pending or transitioning
// phases. It returns finished=true only once the archive's final bytes have been produced.
func (w *Writer) advance() (bool, error) {
	switch w.phase {
	case phaseEntries:
		return false, w.advanceEntries()
	case phaseCentralDirectory:
		if err := w.writeCentralDirectoryAndEOCD(); err != nil {
			return false, err
		}
		w.phase = phaseDone
		return false, nil
	case phaseDone:
		return true, nil
	default:
		return true, nil
	}
}

func (w *Writer) advanceEntries() error {
	if w.cur == nil {
		src, ok, err := w.next()
		if err != nil {
			return err
		}
		if !ok {
			w.phase = phaseCentralDirectory
			return nil
		}

		h, err := src.Header()
		if err != nil {
			return err
		}

		ce := &currentEntry{src: src, header: h, offset: w.offset, phase: entryLocalHeader}
		w.cur = ce

		lh, err := buildLocalHeader(h, localHeaderZIP64(h))
		if err != nil {
			return err
		}
		w.emit(lh)

		if w.opts.Logger != nil {
			w.opts.Logger.Printf(`writing "%s"`, string(h.NameBytes))
		}

		if h.SuppressDataDescriptor {
			// size is known (zero) and the offset is known right now: the central
			// directory's ZIP64 decision for this entry can be made immediately,
			// since there is no deferred data descriptor to wait on.
			zip64 := h.ForceZIP64 || ce.offset > maxClassic32
			w.records = append(w.records, CentralRecord{
				Header:            h,
				Method:            h.Method,
				CRC32:             0,
				CompressedSize:    0,
				UncompressedSize:  0,
				LocalHeaderOffset: ce.offset,
				ZIP64:             zip64,
			})
			w.cur = nil
			return nil
		}

		ce.phase = entryPayload
		return nil
	}

	switch w.cur.phase {
	case entryPayload:
		return w.advancePayload()
	default:
		return nil
	}
}

func (w *Writer) advancePayload() error {
	ce := w.cur
	for {
		chunk, done, err := ce.src.NextChunk(w.opts.ChunkSize)
		if err != nil {
			return err
		}
		if len(chunk) > 0 {
			w.emit(chunk)
			ce.compSize += uint64(len(chunk))
		}
		if done {
			break
		}
		if len(chunk) > 0 {
			// return control to NextChunk so callers see bounded chunks rather than the
			// writer draining an entire (possibly huge) entry in one advance() call.
			return nil
		}
	}

	ce.crc = ce.src.CRC32()
	ce.compSize = ce.src.CompressedSize()
	ce.rawSize = ce.src.UncompressedSize()

	zip64 := ce.header.ForceZIP64 ||
		ce.rawSize > maxClassic32 ||
		ce.compSize > maxClassic32 ||
		ce.offset > maxClassic32

	dd := buildDataDescriptor(ce.crc, ce.compSize, ce.rawSize, zip64)
	w.emit(dd)

	w.records = append(w.records, CentralRecord{
		Header:            ce.header,
		Method:            ce.src.Method(),
		CRC32:             ce.crc,
		CompressedSize:    ce.compSize,
		UncompressedSize:  ce.rawSize,
		LocalHeaderOffset: ce.offset,
		ZIP64:             zip64,
	})
	w.cur = nil
	return nil
}

// buildLocalHeader encodes a local file header for h, per spec.md §4.6 step 3. When
// suppressDataDescriptor is false (the common streaming case), sizes/CRC are written as zero and
// bit 3 is set, deferring real values to a trailing data descriptor.
func buildLocalHeader(h entrysource.Header, zip64 bool) ([]byte, error) {
	flags := uint16(0)
	if h.UTF8 {
		flags |= binformat.GPFlagUTF8
	}

	extractionVersion := h.MinExtractionVersion
	if extractionVersion == 0 {
		extractionVersion = binformat.VersionDefault
	}
	if zip64 && extractionVersion < binformat.VersionZIP64 {
		extractionVersion = binformat.VersionZIP64
	}

	var crc32Field, compSizeField, uncompSizeField uint32
	if h.SuppressDataDescriptor {
		// sizes are known (and zero) up front; no data descriptor needed. zip64 can only be
		// true here via ForceZIP64 (localHeaderZIP64 never sets it for the deferred-size
		// streaming case), so the classic fields are written as the 0xFFFFFFFF sentinel to
		// stay consistent with the ZIP64 extra buildExtra attaches below, per APPNOTE 4.5.3.
		if zip64 {
			compSizeField, uncompSizeField = binformat.Uint32Max, binformat.Uint32Max
		}
	} else {
		flags |= binformat.GPFlagDataDescriptor
	}

	extra := buildExtra(h, zip64, true)

	if len(h.NameBytes) > int(binformat.Uint16Max) {
		return nil, zerrors.New(zerrors.InvalidOption, "writer.buildLocalHeader: name too long")
	}

	modDate, modTime := timeToDOS(h.ModTime)

	w := binformat.NewWriter(binformat.LocalFileHeaderLen + len(h.NameBytes) + len(extra))
	w.Uint32(binformat.SigLocalFileHeader).
		Uint16(extractionVersion).
		Uint16(flags).
		Uint16(h.Method).
		Uint16(modTime).
		Uint16(modDate).
		Uint32(crc32Field).
		Uint32(compSizeField).
		Uint32(uncompSizeField).
		Uint16(uint16(len(h.NameBytes))).
		Uint16(uint16(len(extra))).
		Bytes(h.NameBytes).
		Bytes(extra)
	return w.Out(), nil
}

// buildDataDescriptor encodes the trailing data descriptor always emitted after an entry's
// payload, per the Open Question decision recorded in DESIGN.md (always emit the signature).
func buildDataDescriptor(crc uint32, compSize, uncompSize uint64, zip64 bool) []byte {
	length := binformat.DataDescriptorLen
	if zip64 {
		length = binformat.DataDescriptor64Len
	}
	w := binformat.NewWriter(length)
	w.Uint32(binformat.SigDataDescriptor).Uint32(crc)
	if zip64 {
		w.Uint64(compSize).Uint64(uncompSize)
	} else {
		w.Uint32(uint32(compSize)).Uint32(uint32(uncompSize))
	}
	return w.Out()
}

// timeToDOS converts t to a DOS date/time pair via binformat's MS-DOS conversion helpers.
func timeToDOS(t time.Time) (date, dosTime uint16) {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	return binformat.TimeToMSDosTime(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}
