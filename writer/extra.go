package writer

import (
	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/entrysource"
	"github.com/nguyengg/minizip/extra"
)

// buildExtra assembles the extra-field blob for either a local header or a central directory
// record for h, per spec.md §4.6. When h.PreservedExtra is non-nil (an ArchiveEntryEntrySource
// copy), that blob has already had its ZIP64 and Unicode Path/Comment tags stripped by
// stripRegeneratedExtra, so what's appended here (a fresh ZIP64 field, and fresh Unicode
// fields if the Header options ask for them) can never collide with a stale copy, per spec.md §8
// property 8.
func buildExtra(h entrysource.Header, zip64 bool, isLocal bool) []byte {
	var fields []extra.Field

	if h.PreservedExtra != nil {
		fields = append(fields, extra.ParseAll(h.PreservedExtra)...)
	}

	if zip64 {
		// per APPNOTE 4.5.3, a local header's ZIP64 extra carries only the two size fields -
		// the local-header offset only ever appears in the central directory's copy, built
		// separately by buildCentralExtra.
		z := extra.Zip64{HasUncompressedSize: true, HasCompressedSize: true}
		fields = append(fields, extra.Field{Tag: binformat.ExtraTagZIP64, Data: extra.EncodeZip64(z)})
	}

	// Per spec.md §4.4, the Unicode Path/Comment extra field is a compatibility aid for readers
	// that don't recognize bit 11: it belongs on the CP437 branch (!h.UTF8), not alongside it - a
	// name already declared UTF-8 via the general-purpose bit has no need for a second, redundant
	// UTF-8 copy in an extra field.
	if h.UnicodeFileNameField && !h.UTF8 {
		fields = append(fields, extra.Field{
			Tag:  binformat.ExtraTagUnicodePath,
			Data: extra.EncodeUnicodeName(h.NameBytes, h.Name),
		})
	}
	if h.UnicodeCommentField && !h.UTF8 && len(h.CommentBytes) > 0 {
		fields = append(fields, extra.Field{
			Tag:  binformat.ExtraTagUnicodeComment,
			Data: extra.EncodeUnicodeName(h.CommentBytes, h.Comment),
		})
	}

	if h.ExtendedTimeStampField && !h.ModTime.IsZero() {
		ts := extra.ExtendedTimestamp{HasModTime: true, ModTime: uint32(h.ModTime.Unix())}
		if isLocal && h.HasACTime {
			ts.HasATime, ts.ATime = true, uint32(h.ACTime.Unix())
		}
		if isLocal && h.HasCRTime {
			ts.HasCTime, ts.CTime = true, uint32(h.CRTime.Unix())
		}
		fields = append(fields, extra.Field{
			Tag:  binformat.ExtraTagExtendedTimestamp,
			Data: extra.EncodeExtendedTimestamp(ts, isLocal),
		})
	}

	return extra.Encode(fields)
}
