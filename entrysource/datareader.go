package entrysource

import (
	"hash/crc32"
	"io"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/compress"
	"github.com/nguyengg/minizip/zerrors"
)

// DataReaderEntrySource wraps a user-supplied io.Reader, applying the configured compression
// method via the write-side CompressionRegistry, per spec.md §4.7.
type DataReaderEntrySource struct {
	r    io.Reader
	opts Options
	proc compress.DataProcessor

	rawEOF      bool
	crc         uint32
	rawCount    uint64
	wireCount   uint64
	done        bool
}

// NewDataReaderEntrySource returns an EntrySource that compresses r's bytes with the configured
// CompressionMethod (default Deflate).
func NewDataReaderEntrySource(r io.Reader, optFns ...func(*Options)) (*DataReaderEntrySource, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FileName == "" {
		return nil, zerrors.New(zerrors.InvalidOption, "entrysource.NewDataReaderEntrySource: FileName is required")
	}

	proc, err := opts.DataProcessors.New(opts.CompressionMethod, compress.Compress)
	if err != nil {
		return nil, err
	}

	return &DataReaderEntrySource{r: r, opts: opts, proc: proc}, nil
}

func (s *DataReaderEntrySource) Header() (Header, error) {
	return buildHeader(s.opts, s.opts.CompressionMethod, false)
}

func (s *DataReaderEntrySource) Method() uint16 {
	return s.opts.CompressionMethod
}

func (s *DataReaderEntrySource) CRC32() uint32            { return s.crc }
func (s *DataReaderEntrySource) CompressedSize() uint64   { return s.wireCount }
func (s *DataReaderEntrySource) UncompressedSize() uint64 { return s.rawCount }

// NextChunk pulls up to maxBytes of raw bytes from the underlying reader, pushes them through the
// compression processor, and returns whatever compressed bytes the processor produced - an empty,
// non-done result means the processor needs more raw input, mirroring the EntryReader contract in
// spec.md §4.3 on the write side.
func (s *DataReaderEntrySource) NextChunk(maxBytes int64) ([]byte, bool, error) {
	if s.done {
		return nil, true, nil
	}

	if !s.rawEOF {
		buf := make([]byte, maxBytes)
		n, err := s.r.Read(buf)
		if n > 0 {
			s.crc = crc32.Update(s.crc, crc32.IEEETable, buf[:n])
			s.rawCount += uint64(n)
			if pushErr := s.proc.Push(buf[:n]); pushErr != nil {
				return nil, false, zerrors.Wrap(zerrors.BackendError, "entrysource.DataReaderEntrySource.NextChunk", pushErr)
			}
		}
		if err == io.EOF {
			s.rawEOF = true
			if finErr := s.proc.Finish(); finErr != nil {
				return nil, false, zerrors.Wrap(zerrors.BackendError, "entrysource.DataReaderEntrySource.NextChunk", finErr)
			}
		} else if err != nil {
			return nil, false, zerrors.Wrap(zerrors.BackendError, "entrysource.DataReaderEntrySource.NextChunk", err)
		}
	}

	out, done, err := s.proc.Pull()
	if err != nil {
		return nil, false, err
	}
	s.wireCount += uint64(len(out))
	if done {
		s.done = true
	}
	return out, done, nil
}

// ForPath returns a directory-entry EntrySource for a ZIP directory marker name (must end in "/"):
// Store method, zero size, no trailing data descriptor, per spec.md §4.7 and the "directory
// entries are always Store, size zero" rule in martin-sucha-zipserve's prepareEntry.
func ForPath(name string, optFns ...func(*Options)) (EntrySource, error) {
	opts := defaultOptions()
	opts.FileName = name
	for _, fn := range optFns {
		fn(&opts)
	}
	if !isDirName(opts.FileName) {
		return nil, zerrors.New(zerrors.InvalidOption, "entrysource.ForPath: name must end in \"/\"")
	}
	return &dirEntrySource{opts: opts}, nil
}

// dirEntrySource is the zero-payload EntrySource ForPath returns.
type dirEntrySource struct {
	opts Options
	done bool
}

func (s *dirEntrySource) Header() (Header, error) {
	return buildHeader(s.opts, binformat.MethodStore, true)
}

func (s *dirEntrySource) Method() uint16 { return binformat.MethodStore }
func (s *dirEntrySource) CRC32() uint32  { return 0 }
func (s *dirEntrySource) CompressedSize() uint64   { return 0 }
func (s *dirEntrySource) UncompressedSize() uint64 { return 0 }

func (s *dirEntrySource) NextChunk(int64) ([]byte, bool, error) {
	s.done = true
	return nil, true, nil
}
