package entrysource

import (
	"time"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/cd"
	"github.com/nguyengg/minizip/entryreader"
	"github.com/nguyengg/minizip/extra"
	"github.com/nguyengg/minizip/zerrors"
)

// ArchiveEntryEntrySource is the ArchiveMerger's workhorse (spec.md §4.7): it wraps an existing
// cd.Record from a source archive and copies its already-compressed bytes verbatim. The source's
// declared compression method, CRC-32, and sizes are authoritative; any configured compression
// method elsewhere is ignored, and the writer must not recompute CRC-32 or recompress this payload.
type ArchiveEntryEntrySource struct {
	rec     cd.Record
	newName string
	raw     *entryreader.RawReader
	open    func() (*entryreader.RawReader, error)
	copied  uint64
	done    bool
}

// NewArchiveEntryEntrySource returns an EntrySource that copies src's raw compressed payload
// verbatim under newName, leaving method/CRC/sizes exactly as declared by src's record.
func NewArchiveEntryEntrySource(src *entryreader.Reader, newName string) *ArchiveEntryEntrySource {
	return &ArchiveEntryEntrySource{
		rec:     src.Record(),
		newName: newName,
		open:    src.OpenRaw,
	}
}

func (s *ArchiveEntryEntrySource) Header() (Header, error) {
	rec := s.rec

	preserved := stripRegeneratedExtra(rec.Extra)

	h := Header{
		NameBytes:              []byte(s.newName),
		CommentBytes:           rec.CommentBytes,
		UTF8:                   rec.Flags&binformat.GPFlagUTF8 != 0,
		Method:                 rec.Method,
		MinMadeByVersion:       rec.MadeByVersion,
		MinExtractionVersion:   rec.ExtractionVersion,
		InternalAttributes:     rec.InternalAttributes,
		ExternalAttributes:     rec.ExternalAttributes,
		PreservedExtra:         preserved,
		SuppressDataDescriptor: false,
	}

	if f, ok := extra.Find(rec.ExtraFields(), binformat.ExtraTagExtendedTimestamp); ok {
		if ts, ok := extra.ParseExtendedTimestamp(f.Data, false); ok && ts.HasModTime {
			h.ModTime = time.Unix(int64(ts.ModTime), 0).UTC()
		}
	}
	if h.ModTime.IsZero() {
		year, month, day, hour, min, sec := binformat.MSDosTimeToTime(rec.ModDate, rec.ModTime)
		h.ModTime = time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	}

	return h, nil
}

func (s *ArchiveEntryEntrySource) Method() uint16 { return s.rec.Method }
func (s *ArchiveEntryEntrySource) CRC32() uint32  { return s.rec.CRC32 }
func (s *ArchiveEntryEntrySource) CompressedSize() uint64   { return s.rec.CompressedSize }
func (s *ArchiveEntryEntrySource) UncompressedSize() uint64 { return s.rec.UncompressedSize }

// NextChunk copies the underlying archive entry's raw compressed bytes verbatim (spec.md §4.7's
// "no-recompression" guarantee, property 4 in spec.md §8), verifying on completion that the
// number of bytes copied matches the declared compressed size.
func (s *ArchiveEntryEntrySource) NextChunk(maxBytes int64) ([]byte, bool, error) {
	if s.done {
		return nil, true, nil
	}
	if s.raw == nil {
		r, err := s.open()
		if err != nil {
			return nil, false, err
		}
		s.raw = r
	}

	chunk, done, err := s.raw.Read(maxBytes)
	if err != nil {
		return nil, false, err
	}
	s.copied += uint64(len(chunk))
	if done {
		if s.copied != s.rec.CompressedSize {
			return chunk, false, zerrors.New(zerrors.Malformed, "entrysource.ArchiveEntryEntrySource.NextChunk: copied byte count does not match declared compressed size")
		}
		s.done = true
	}
	return chunk, done, nil
}

// stripRegeneratedExtra returns extraBlob with its 0x0001 (ZIP64), 0x7075 (Info-ZIP Unicode Path),
// and 0x6375 (Info-ZIP Unicode Comment) tags removed, if present. The writer regenerates ZIP64
// fields itself from the final, possibly-escalated sizes/offset rather than trusting a copied one,
// per spec.md §8 property 8 ("extra-field preservation ... except for ZIP64 tag regeneration when
// sizes/offset escalation changes"). The Unicode name/comment fields are dropped for the same
// reason a merge is always a rename: newName (and possibly the comment) differ from the source
// entry's, so a carried-forward Unicode Path/Comment field would advertise the old name/comment
// and its CRC-32 alongside the new classic fields - stale data a strict reader could trust over the
// (correct) classic name. Header's own UnicodeFileNameField/UnicodeCommentField options, left unset
// by NewArchiveEntryEntrySource, are how a caller would ask the writer to regenerate fresh ones.
func stripRegeneratedExtra(extraBlob []byte) []byte {
	fields := extra.ParseAll(extraBlob)
	kept := make([]extra.Field, 0, len(fields))
	for _, f := range fields {
		switch f.Tag {
		case binformat.ExtraTagZIP64, binformat.ExtraTagUnicodePath, binformat.ExtraTagUnicodeComment:
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return nil
	}
	return extra.Encode(kept)
}
