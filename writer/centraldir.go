package writer

import (
	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/entrysource"
	"github.com/nguyengg/minizip/extra"
	"github.com/nguyengg/minizip/zerrors"
)

// writeCentralDirectoryAndEOCD emits every accumulated CentralRecord followed by an EOCD (and, if
// the archive as a whole escalated to ZIP64, a ZIP64 EOCD + locator ahead of it), per spec.md
// §4.6 steps 5-7. Ordering mirrors local header emission: one record per entry in write order,
// martin-sucha-zipserve's writeCentralDirectory.
func (w *Writer) writeCentralDirectoryAndEOCD() error {
	cdStart := w.offset

	for _, rec := range w.records {
		blob, err := buildCentralDirectoryRecord(rec)
		if err != nil {
			return err
		}
		w.emit(blob)
	}

	cdSize := w.offset - cdStart
	count := uint64(len(w.records))

	archiveZIP64 := w.opts.ForceZIP64 ||
		count >= uint64(binformat.Uint16Max) ||
		cdSize > maxClassic32 ||
		cdStart > maxClassic32

	if archiveZIP64 {
		zip64EOCDOffset := w.offset
		w.emit(buildZIP64EOCD(count, cdSize, cdStart))
		w.emit(buildZIP64Locator(zip64EOCDOffset))
	}

	w.emit(buildEOCD(count, cdSize, cdStart, archiveZIP64))
	return nil
}

// buildCentralDirectoryRecord encodes one central directory file header, per spec.md §4.6 step 5.
// Extended timestamp fields, if present, are re-encoded mtime-only (atime/ctime are local-header-only,
// per spec.md).
func buildCentralDirectoryRecord(rec CentralRecord) ([]byte, error) {
	h := rec.Header

	flags := uint16(0)
	if h.UTF8 {
		flags |= binformat.GPFlagUTF8
	}
	if !h.SuppressDataDescriptor {
		flags |= binformat.GPFlagDataDescriptor
	}

	extractionVersion := h.MinExtractionVersion
	if extractionVersion == 0 {
		extractionVersion = binformat.VersionDefault
	}
	madeByVersion := h.MinMadeByVersion
	if madeByVersion == 0 {
		madeByVersion = binformat.VersionDefault
	}
	if rec.ZIP64 {
		if extractionVersion < binformat.VersionZIP64 {
			extractionVersion = binformat.VersionZIP64
		}
		if madeByVersion < binformat.VersionZIP64 {
			madeByVersion = binformat.VersionZIP64
		}
	}

	var crc32Field, compSizeField, uncompSizeField uint32
	var offsetField uint32
	if rec.ZIP64 {
		crc32Field = rec.CRC32
		compSizeField, uncompSizeField, offsetField = binformat.Uint32Max, binformat.Uint32Max, binformat.Uint32Max
	} else {
		crc32Field = rec.CRC32
		compSizeField = uint32(rec.CompressedSize)
		uncompSizeField = uint32(rec.UncompressedSize)
		offsetField = uint32(rec.LocalHeaderOffset)
	}

	extraBlob := buildCentralExtra(h, rec)

	if len(h.NameBytes) > int(binformat.Uint16Max) || len(h.CommentBytes) > int(binformat.Uint16Max) {
		return nil, zerrors.New(zerrors.InvalidOption, "writer.buildCentralDirectoryRecord: name or comment too long")
	}

	modDate, modTime := timeToDOS(h.ModTime)

	w := binformat.NewWriter(binformat.CentralDirectoryLen + len(h.NameBytes) + len(extraBlob) + len(h.CommentBytes))
	w.Uint32(binformat.SigCentralDirectory).
		Uint16(madeByVersion).
		Uint16(extractionVersion).
		Uint16(flags).
		Uint16(rec.Method).
		Uint16(modTime).
		Uint16(modDate).
		Uint32(crc32Field).
		Uint32(compSizeField).
		Uint32(uncompSizeField).
		Uint16(uint16(len(h.NameBytes))).
		Uint16(uint16(len(extraBlob))).
		Uint16(uint16(len(h.CommentBytes))).
		Uint16(0). // disk number start
		Uint16(h.InternalAttributes).
		Uint32(h.ExternalAttributes).
		Uint32(offsetField).
		Bytes(h.NameBytes).
		Bytes(extraBlob).
		Bytes(h.CommentBytes)
	return w.Out(), nil
}

// buildCentralExtra builds the central-directory extra field blob for rec: a ZIP64 field carrying
// exactly the escalated values (not placeholders, unlike the local header copy) plus whatever
// Unicode/timestamp fields the local header also carries, with atime/ctime stripped.
func buildCentralExtra(h entrysource.Header, rec CentralRecord) []byte {
	var fields []extra.Field

	if h.PreservedExtra != nil {
		for _, f := range extra.ParseAll(h.PreservedExtra) {
			if f.Tag == binformat.ExtraTagZIP64 {
				continue
			}
			fields = append(fields, f)
		}
	}

	if rec.ZIP64 {
		z := extra.Zip64{
			HasUncompressedSize: true,
			UncompressedSize:    rec.UncompressedSize,
			HasCompressedSize:   true,
			CompressedSize:      rec.CompressedSize,
			HasOffset:           true,
			Offset:              rec.LocalHeaderOffset,
		}
		fields = append(fields, extra.Field{Tag: binformat.ExtraTagZIP64, Data: extra.EncodeZip64(z)})
	}

	// See buildExtra's comment: the Unicode Path/Comment extra field is the CP437-branch
	// compatibility aid of spec.md §4.4, not something to also stamp on a UTF-8-flagged name.
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
		fields = append(fields, extra.Field{
			Tag:  binformat.ExtraTagExtendedTimestamp,
			Data: extra.EncodeExtendedTimestamp(ts, false),
		})
	}

	return extra.Encode(fields)
}

// buildZIP64EOCD encodes the ZIP64 end-of-central-directory record.
func buildZIP64EOCD(count uint64, cdSize, cdOffset uint64) []byte {
	w := binformat.NewWriter(binformat.ZIP64EOCDLen)
	w.Uint32(binformat.SigZIP64EOCD).
		Uint64(uint64(binformat.ZIP64EOCDLen - 12)). // size of remaining record
		Uint16(binformat.VersionZIP64).
		Uint16(binformat.VersionZIP64).
		Uint32(0). // disk number
		Uint32(0). // disk with start of CD
		Uint64(count).
		Uint64(count).
		Uint64(cdSize).
		Uint64(cdOffset)
	return w.Out()
}

// buildZIP64Locator encodes the ZIP64 end-of-central-directory locator, pointing at zip64EOCDOffset.
func buildZIP64Locator(zip64EOCDOffset uint64) []byte {
	w := binformat.NewWriter(binformat.ZIP64LocatorLen)
	w.Uint32(binformat.SigZIP64Locator).
		Uint32(0). // disk with ZIP64 EOCD
		Uint64(zip64EOCDOffset).
		Uint32(1) // total number of disks
	return w.Out()
}

// buildEOCD encodes the classic end-of-central-directory record. When archiveZIP64 escalated, the
// classic count/size/offset fields are written as sentinels, per spec.md §4.6.
func buildEOCD(count uint64, cdSize, cdOffset uint64, archiveZIP64 bool) []byte {
	countField, sizeField, offsetField := uint16(count), uint32(cdSize), uint32(cdOffset)
	if archiveZIP64 {
		countField, sizeField, offsetField = binformat.Uint16Max, binformat.Uint32Max, binformat.Uint32Max
	}

	w := binformat.NewWriter(binformat.EOCDLen)
	w.Uint32(binformat.SigEOCD).
		Uint16(0). // disk number
		Uint16(0). // disk with start of CD
		Uint16(countField).
		Uint16(countField).
		Uint32(sizeField).
		Uint32(offsetField).
		Uint16(0) // comment length
	return w.Out()
}
