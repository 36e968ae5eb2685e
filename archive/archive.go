// Package archive provides the read-side Archive facade: a single entry point wiring a
// bytesource.ByteSource, a cd.Reader, and a compress.Registry together the way a caller actually
// wants to use them - find one entry by name, or open a full read over everything, without having
// to hand-assemble the three pieces itself each time.
//
// Grounded on the teacher's archive.Archiver/zipper.CDScanner split (archive/archiver.go's
// high-level Open/File facade over the lower-level scan primitives zipper/cdscanner.go exposes) -
// Archive plays the same "convenience wrapper over the scanning primitives" role here that
// Archiver.Open plays for the teacher's zip.FileHeader iteration.
package archive

import (
	"iter"

	"github.com/nguyengg/minizip/bytesource"
	"github.com/nguyengg/minizip/cd"
	"github.com/nguyengg/minizip/compress"
	"github.com/nguyengg/minizip/entryreader"
)

// Options configures an Archive.
type Options struct {
	// BufferSize is passed through to cd.Options.BufferSize.
	BufferSize int

	// CreateIndex is passed through to cd.Options.CreateIndex, enabling O(1) average Find.
	CreateIndex bool

	// Registry supplies the DataProcessor backends entries decompress through. Defaults to
	// compress.NewRegistry()'s Store+Deflate set.
	Registry *compress.Registry
}

// Archive is a read-only facade over one ZIP archive's ByteSource: it owns locating and iterating
// the central directory and handing out entryreader.Reader values for individual entries.
//
// Archive is not safe for concurrent use by multiple goroutines, matching cd.Reader's own
// restriction - concurrent readers should each open their own Archive over a shared, concurrency-
// safe bytesource.ByteSource such as bytesource.File.
type Archive struct {
	src      bytesource.ByteSource
	registry *compress.Registry
	cdReader *cd.Reader
}

// Init locates the archive's end-of-central-directory record (classic or ZIP64) and returns an
// Archive ready to iterate, per spec.md §4.2.
func Init(src bytesource.ByteSource, optFns ...func(*Options)) (*Archive, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = compress.NewRegistry()
	}

	reader, err := cd.New(src, func(o *cd.Options) {
		if opts.BufferSize > 0 {
			o.BufferSize = opts.BufferSize
		}
		o.CreateIndex = opts.CreateIndex
	})
	if err != nil {
		return nil, err
	}

	return &Archive{src: src, registry: opts.Registry, cdReader: reader}, nil
}

// Location returns the parsed central-directory location (offset, size, entry count).
func (a *Archive) Location() cd.Location {
	return a.cdReader.Location()
}

// Entries returns a lazy iterator over every entry, wrapping each central-directory record in an
// entryreader.Reader. The archive's ByteSource is read in bounded chunks as the iterator advances,
// never materializing the whole central directory at once, per spec.md §4.2/§5.
func (a *Archive) Entries() iter.Seq2[*entryreader.Reader, error] {
	return func(yield func(*entryreader.Reader, error) bool) {
		for rec, err := range a.cdReader.All() {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(entryreader.New(a.src, rec, a.registry), nil) {
				return
			}
		}
	}
}

// Find looks up a single entry by its decoded name, per spec.md §4.2's Find operation. Returns
// ok=false if no entry has that name.
func (a *Archive) Find(name string) (*entryreader.Reader, bool, error) {
	rec, ok, err := a.cdReader.Find(name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return entryreader.New(a.src, rec, a.registry), true, nil
}

// All eagerly collects every entry into a slice, for callers who want random-access indexing
// rather than streaming iteration.
//
// All does not bound memory: it allocates one *entryreader.Reader (a cheap facade, not a buffered
// copy of the payload) per central-directory entry, so the slice itself is proportional to the
// archive's entry count, not its total uncompressed size - but an archive with millions of entries
// should still prefer Entries. Use All only when the archive is known to be modest in entry count.
func (a *Archive) All() ([]*entryreader.Reader, error) {
	out := make([]*entryreader.Reader, 0, a.Location().EntryCount)
	for er, err := range a.Entries() {
		if err != nil {
			return nil, err
		}
		out = append(out, er)
	}
	return out, nil
}
