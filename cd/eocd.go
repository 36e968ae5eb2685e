package cd

import (
	"bytes"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/zerrors"
)

// Location is the result of locating and parsing the end-of-central-directory records, per
// spec.md §3's CentralDirectoryLocation: offset and size of the central directory, total entry
// count, the archive comment, and whether ZIP64 fields are authoritative.
type Location struct {
	CDOffset    int64
	CDSize      int64
	EntryCount  int64
	Comment     []byte
	IsZip64     bool
	eocdOffset  int64 // absolute offset of the classic EOCD record
}

// maxEOCDScan bounds how far back from the end of the source findEOCD will search: the largest
// possible classic EOCD record (22 bytes fixed + a 65535-byte comment), per spec.md §4.2.
const maxEOCDScan = 22 + 65535

// findEOCD scans backwards from the end of src for the EOCD signature, then - if the classic
// record carries any ZIP64 sentinel value or a ZIP64 locator sits 20 bytes before it - follows the
// locator to the ZIP64 EOCD and prefers its fields, per spec.md §4.2.
//
// Grounded on the teacher's zip/scan/eocd.go findEOCD (backward windowed scan for the EOCD
// signature using bytes.LastIndex over a sliding read window), adapted from an io.ReadSeeker to a
// random-access bytesource.ByteSource and extended with ZIP64 EOCD/locator handling that the
// teacher's implementation does not perform.
func findEOCD(src interface {
	Length() int64
	Read(offset, length int64) ([]byte, error)
}) (Location, error) {
	size := src.Length()
	if size < binformat.EOCDLen {
		return Location{}, zerrors.New(zerrors.NotAZip, "cd.findEOCD")
	}

	window := int64(maxEOCDScan)
	if window > size {
		window = size
	}

	b, err := src.Read(size-window, window)
	if err != nil {
		return Location{}, zerrors.Wrap(zerrors.BackendError, "cd.findEOCD", err)
	}

	sig := binformat.PutUint32LE(binformat.SigEOCD)
	i := bytes.LastIndex(b, sig)
	if i == -1 {
		return Location{}, zerrors.New(zerrors.NotAZip, "cd.findEOCD")
	}

	eocdOffset := size - window + int64(i)
	if eocdOffset+binformat.EOCDLen > size {
		return Location{}, zerrors.New(zerrors.Malformed, "cd.findEOCD: EOCD record truncated")
	}

	eocd := b[i:]
	if int64(len(eocd)) < binformat.EOCDLen {
		eocd, err = src.Read(eocdOffset, size-eocdOffset)
		if err != nil {
			return Location{}, zerrors.Wrap(zerrors.BackendError, "cd.findEOCD", err)
		}
	}

	r := binformat.NewReader(eocd[4:binformat.EOCDLen])
	diskNumber := r.Uint16()
	cdDiskOffset := r.Uint16()
	cdCountOnDisk := r.Uint16()
	cdCount := r.Uint16()
	cdSize := r.Uint32()
	cdOffset := r.Uint32()
	commentLen := r.Uint16()

	commentStart := eocdOffset + binformat.EOCDLen
	var comment []byte
	if commentLen > 0 {
		if commentStart+int64(commentLen) > size {
			return Location{}, zerrors.New(zerrors.Malformed, "cd.findEOCD: comment overruns source")
		}
		comment, err = src.Read(commentStart, int64(commentLen))
		if err != nil {
			return Location{}, zerrors.Wrap(zerrors.BackendError, "cd.findEOCD", err)
		}
	}

	loc := Location{
		CDOffset:   int64(cdOffset),
		CDSize:     int64(cdSize),
		EntryCount: int64(cdCount),
		Comment:    comment,
		eocdOffset: eocdOffset,
	}

	needsZip64 := diskNumber == binformat.Uint16Max || cdDiskOffset == binformat.Uint16Max ||
		cdCountOnDisk == binformat.Uint16Max || cdCount == binformat.Uint16Max ||
		cdSize == binformat.Uint32Max || cdOffset == binformat.Uint32Max

	locatorOffset := eocdOffset - binformat.ZIP64LocatorLen
	hasLocator := false
	if locatorOffset >= 0 {
		lb, lerr := src.Read(locatorOffset, binformat.ZIP64LocatorLen)
		if lerr == nil {
			lsig := binformat.PutUint32LE(binformat.SigZIP64Locator)
			if bytes.Equal(lb[:4], lsig) {
				hasLocator = true
			}
		}
	}

	if !needsZip64 && !hasLocator {
		return loc, nil
	}
	if !hasLocator {
		return Location{}, zerrors.New(zerrors.Malformed, "cd.findEOCD: ZIP64 sentinel present without locator")
	}

	lb, err := src.Read(locatorOffset, binformat.ZIP64LocatorLen)
	if err != nil {
		return Location{}, zerrors.Wrap(zerrors.BackendError, "cd.findEOCD", err)
	}
	lr := binformat.NewReader(lb[4:])
	_ = lr.Uint32() // disk number holding the ZIP64 EOCD, not used since spanning is unsupported
	zip64EOCDOffset := int64(lr.Uint64())

	if zip64EOCDOffset < 0 || zip64EOCDOffset+binformat.ZIP64EOCDLen > size {
		return Location{}, zerrors.New(zerrors.Malformed, "cd.findEOCD: ZIP64 EOCD offset out of range")
	}
	zb, err := src.Read(zip64EOCDOffset, binformat.ZIP64EOCDLen)
	if err != nil {
		return Location{}, zerrors.Wrap(zerrors.BackendError, "cd.findEOCD", err)
	}
	zsig := binformat.PutUint32LE(binformat.SigZIP64EOCD)
	if !bytes.Equal(zb[:4], zsig) {
		return Location{}, zerrors.New(zerrors.Malformed, "cd.findEOCD: mismatched ZIP64 EOCD signature")
	}

	zr := binformat.NewReader(zb[4:])
	_ = zr.Uint64() // size of ZIP64 EOCD record itself, excluding signature and this field
	_ = zr.Uint16() // version made by
	_ = zr.Uint16() // version needed to extract
	_ = zr.Uint32() // this disk number
	_ = zr.Uint32() // disk where CD starts
	_ = zr.Uint64() // number of CD records on this disk
	zCDCount := zr.Uint64()
	zCDSize := zr.Uint64()
	zCDOffset := zr.Uint64()

	loc.EntryCount = int64(zCDCount)
	loc.CDSize = int64(zCDSize)
	loc.CDOffset = int64(zCDOffset)
	loc.IsZip64 = true

	return loc, nil
}
