// Package compress implements the CompressionRegistry and DataProcessor abstractions of spec.md
// §4.5: a push-style streaming transform (push input incrementally, finish, pull output) registered
// by numeric method id.
//
// Store and Deflate are registered by default, grounded on the teacher's repeated pattern of
// RegisterCompressor(zip.Deflate, flate.NewWriter) across zipper/compress.go, zipper/compress_dir.go,
// and archive/zip_writer.go - except here the registry owns the streaming decompressor side as well,
// since spec.md requires a single pluggable registry usable from both EntryReader (read/decompress)
// and ArchiveWriter (write/compress).
package compress

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/nguyengg/minizip/binformat"
	"github.com/nguyengg/minizip/zerrors"
)

// DataProcessor is a push-style streaming transform. Callers push input incrementally, call Finish
// once no more input is coming, and Pull output produced so far plus a Done flag that only becomes
// true once all output has been delivered and Finish was called - this is the "empty != EOF"
// distinction spec.md §4.3 calls load-bearing.
type DataProcessor interface {
	// Push feeds more input bytes into the processor.
	Push(p []byte) error

	// Finish signals that no more input will be pushed.
	Finish() error

	// Pull drains whatever output bytes are ready. A zero-length, non-nil/nil slice with done=false
	// means "no output yet, keep feeding input"; done=true means all output has been delivered.
	Pull() (out []byte, done bool, err error)
}

// Constructor builds a fresh DataProcessor. mode distinguishes compress (write path) from decompress
// (read path) since most backends need different types for each direction.
type Constructor func(mode Mode) (DataProcessor, error)

// Mode selects which direction a Constructor should build a DataProcessor for.
type Mode int

const (
	Compress Mode = iota
	Decompress
)

// Registry maps a numeric compression method to a DataProcessor Constructor, per spec.md §4.5.
// Registry is not safe for concurrent Register calls, matching the teacher's zip.Writer.RegisterCompressor
// which is likewise expected to be configured before use, not while archives are mid-flight.
type Registry struct {
	ctors map[uint16]Constructor
}

// NewRegistry returns a Registry pre-populated with Store (method 0) and Deflate (method 8), matching
// spec.md §4.5's stated defaults.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[uint16]Constructor)}
	r.Register(binformat.MethodStore, newStoreProcessor)
	r.Register(binformat.MethodDeflate, newFlateProcessor)
	return r
}

// Register adds or replaces the Constructor for method.
func (r *Registry) Register(method uint16, ctor Constructor) {
	r.ctors[method] = ctor
}

// New constructs a DataProcessor for method in the given Mode. Returns a zerrors.UnsupportedMethod
// error if nothing is registered for method, per spec.md §4.5/§7.
func (r *Registry) New(method uint16, mode Mode) (DataProcessor, error) {
	ctor, ok := r.ctors[method]
	if !ok {
		return nil, zerrors.Wrap(zerrors.UnsupportedMethod, "compress.Registry.New",
			fmt.Errorf("no processor registered for method %d", method))
	}
	p, err := ctor(mode)
	if err != nil {
		return nil, zerrors.Wrap(zerrors.BackendError, "compress.Registry.New", err)
	}
	return p, nil
}

// storeProcessor is the identity DataProcessor for method 0.
type storeProcessor struct {
	buf    bytes.Buffer
	closed bool
}

func newStoreProcessor(Mode) (DataProcessor, error) {
	return &storeProcessor{}, nil
}

func (p *storeProcessor) Push(b []byte) error {
	_, err := p.buf.Write(b)
	return err
}

func (p *storeProcessor) Finish() error {
	p.closed = true
	return nil
}

func (p *storeProcessor) Pull() ([]byte, bool, error) {
	out := make([]byte, p.buf.Len())
	copy(out, p.buf.Bytes())
	p.buf.Reset()
	return out, p.closed, nil
}

// flateProcessor adapts the stdlib compress/flate streaming reader/writer to the push/pull contract.
//
// The compress direction is naturally synchronous: flate.Writer.Write compresses its input
// immediately into an internal buffer that Pull drains, no concurrency needed.
//
// The decompress direction is not: compress/flate's Reader is a blocking, pull-based io.Reader that
// expects its underlying source to block until more compressed bytes are available, and it caches
// the first error it sees (including a synthetic "no more input yet" sentinel) for the lifetime of
// the Reader - there is no supported way to hand it a partial stream and later resume. flateProcessor
// therefore runs flate.NewReader against the read end of an io.Pipe in one dedicated goroutine that
// lives and dies with the processor; Push/Finish write (and close) the pipe's write end, and the
// goroutine copies whatever the decompressor produces into a mutex-guarded buffer that Pull drains
// without blocking. This goroutine is purely an adapter for the chosen backend across the push/pull
// boundary - the core ZIP state machines (CentralDirectoryReader, ArchiveWriter, EntryReader) never
// spawn workers themselves, per spec.md §5.
type flateProcessor struct {
	mode Mode

	// compress side.
	fw  *flate.Writer
	out bytes.Buffer // bytes produced by fw, pulled from here
	fwC bool

	// decompress side.
	dec *streamingDecoder
}

func newFlateProcessor(mode Mode) (DataProcessor, error) {
	p := &flateProcessor{mode: mode}
	if mode == Compress {
		fw, err := flate.NewWriter(&p.out, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		p.fw = fw
		return p, nil
	}

	dec, err := newStreamingDecoder(func(r io.Reader) (io.Reader, error) {
		return flate.NewReader(r), nil
	})
	if err != nil {
		return nil, err
	}
	p.dec = dec
	return p, nil
}

func (p *flateProcessor) Push(b []byte) error {
	if p.mode == Compress {
		_, err := p.fw.Write(b)
		return err
	}
	return p.dec.push(b)
}

func (p *flateProcessor) Finish() error {
	if p.mode == Compress {
		p.fwC = true
		return p.fw.Close()
	}
	return p.dec.finish()
}

func (p *flateProcessor) Pull() ([]byte, bool, error) {
	if p.mode == Compress {
		out := make([]byte, p.out.Len())
		copy(out, p.out.Bytes())
		p.out.Reset()
		return out, p.fwC && p.out.Len() == 0, nil
	}

	out, done, err := p.dec.pull()
	if err != nil {
		return out, false, zerrors.Wrap(zerrors.BackendError, "compress.flateProcessor.Pull", err)
	}
	return out, done, nil
}
