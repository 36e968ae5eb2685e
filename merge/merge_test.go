package merge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyengg/minizip/bytesource"
	"github.com/nguyengg/minizip/cd"
	"github.com/nguyengg/minizip/compress"
	"github.com/nguyengg/minizip/entryreader"
	"github.com/nguyengg/minizip/entrysource"
	"github.com/nguyengg/minizip/writer"
)

// buildArchive writes a one-entry-per-(name,content) archive and returns its bytes, for use as a
// merge source.
func buildArchive(t *testing.T, contents map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}

	i := 0
	w := writer.New(func() (entrysource.EntrySource, bool, error) {
		if i >= len(names) {
			return nil, false, nil
		}
		name := names[i]
		i++
		src, err := entrysource.NewDataReaderEntrySource(bytes.NewReader([]byte(contents[name])), func(o *entrysource.Options) {
			o.FileName = name
		})
		if err != nil {
			return nil, false, err
		}
		return src, true, nil
	})

	var out []byte
	for {
		chunk, done, err := w.NextChunk()
		require.NoError(t, err)
		out = append(out, chunk...)
		if done {
			break
		}
	}
	return out
}

// readArchive drains an output archive into an ordered slice of (name, content) pairs and a
// parallel slice of raw compressed payload lengths, for asserting byte-identical copies.
func readArchive(t *testing.T, data []byte) (names []string, contents []string, compressedLens []int64) {
	t.Helper()

	src := bytesource.NewBuffer(data)
	reader, err := cd.New(src)
	require.NoError(t, err)

	registry := compress.NewRegistry()
	for rec, err := range reader.All() {
		require.NoError(t, err)
		er := entryreader.New(src, rec, registry)
		names = append(names, er.Name())
		compressedLens = append(compressedLens, int64(rec.CompressedSize))
		content, err := er.ReadAll(1 << 20)
		require.NoError(t, err)
		contents = append(contents, string(content))
	}
	return
}

func drainMerger(t *testing.T, m *Merger) []byte {
	t.Helper()
	w, err := m.OutputArchive()
	require.NoError(t, err)

	var out []byte
	for {
		chunk, done, err := w.NextChunk()
		require.NoError(t, err)
		out = append(out, chunk...)
		if done {
			return out
		}
	}
}

// TestMerger_PlainConcatenation covers spec.md's S3 scenario: merging two single-entry archives
// with no filter or rewriting yields both entries in source order, with unchanged content.
func TestMerger_PlainConcatenation(t *testing.T) {
	archiveA := buildArchive(t, map[string]string{"x": "X content, repeated, repeated, repeated"})
	archiveB := buildArchive(t, map[string]string{"y": "Y content, repeated, repeated, repeated"})

	aNames, aContents, aLens := readArchive(t, archiveA)
	bNames, bContents, bLens := readArchive(t, archiveB)

	m := New([]*MergeSource{
		NewMergeSource(bytesource.NewBuffer(archiveA)),
		NewMergeSource(bytesource.NewBuffer(archiveB)),
	})

	merged := drainMerger(t, m)
	names, contents, lens := readArchive(t, merged)

	require.Equal(t, []string{"x", "y"}, names)
	assert.Equal(t, append(append([]string{}, aContents...), bContents...), contents)
	assert.Equal(t, append(append([]int64{}, aLens...), bLens...), lens)
	assert.Equal(t, aNames[0], names[0])
	assert.Equal(t, bNames[0], names[1])
}

// TestMerger_BasePathAndDestinationPath covers spec.md's S4 scenario: MergeSource("docs/" ->
// "out/") over entries ["docs/a", "docs/b", "src/c"] yields exactly ["out/a", "out/b"].
func TestMerger_BasePathAndDestinationPath(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"docs/a": "doc a content, repeated, repeated",
		"docs/b": "doc b content, repeated, repeated",
		"src/c":  "source c content, repeated, repeated",
	})

	ms := NewMergeSource(bytesource.NewBuffer(archive), func(s *MergeSource) {
		s.BasePath = "docs/"
		s.DestinationPath = "out/"
	})

	m := New([]*MergeSource{ms})
	merged := drainMerger(t, m)
	names, contents, _ := readArchive(t, merged)

	assert.ElementsMatch(t, []string{"out/a", "out/b"}, names)
	for i, name := range names {
		switch name {
		case "out/a":
			assert.Equal(t, "doc a content, repeated, repeated", contents[i])
		case "out/b":
			assert.Equal(t, "doc b content, repeated, repeated", contents[i])
		}
	}
}

// TestMerger_Filter confirms entries for which a user Filter returns false are skipped. It sets
// neither BasePath nor DestinationPath; the ordering of Filter relative to those two is covered by
// TestMerger_FilterSeesBasePathStrippedNameNotDestinationPrefixed.
func TestMerger_Filter(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"keep.txt": "kept content, repeated, repeated",
		"drop.txt": "dropped content, repeated, repeated",
	})

	ms := NewMergeSource(bytesource.NewBuffer(archive), func(s *MergeSource) {
		s.Filter = func(name string) bool { return name == "keep.txt" }
	})

	m := New([]*MergeSource{ms})
	merged := drainMerger(t, m)
	names, _, _ := readArchive(t, merged)

	assert.Equal(t, []string{"keep.txt"}, names)
}

// TestMerger_FilterSeesBasePathStrippedNameNotDestinationPrefixed confirms Filter is consulted on
// the basePath-stripped name before DestinationPath is prepended, not after: a predicate written
// against "keep.txt" must still match when DestinationPath relocates the output under "out/".
func TestMerger_FilterSeesBasePathStrippedNameNotDestinationPrefixed(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"docs/keep.txt": "kept content, repeated, repeated",
		"docs/drop.txt": "dropped content, repeated, repeated",
	})

	ms := NewMergeSource(bytesource.NewBuffer(archive), func(s *MergeSource) {
		s.BasePath = "docs/"
		s.DestinationPath = "out/"
		s.Filter = func(name string) bool { return name == "keep.txt" }
	})

	m := New([]*MergeSource{ms})
	merged := drainMerger(t, m)
	names, _, _ := readArchive(t, merged)

	assert.Equal(t, []string{"out/keep.txt"}, names)
}

// TestMerger_PrependingEntryFactory confirms prepended synthetic entries come first, in call
// order, ahead of any merge source's contents.
func TestMerger_PrependingEntryFactory(t *testing.T) {
	archive := buildArchive(t, map[string]string{"x": "x content, repeated, repeated, repeated"})

	prepended := []string{"MANIFEST", "README"}
	i := 0
	m := New([]*MergeSource{NewMergeSource(bytesource.NewBuffer(archive))},
		WithPrependingEntryFactory(func() (entrysource.EntrySource, bool, error) {
			if i >= len(prepended) {
				return nil, false, nil
			}
			name := prepended[i]
			i++
			src, err := entrysource.NewDataReaderEntrySource(bytes.NewReader([]byte(name)), func(o *entrysource.Options) {
				o.FileName = name
			})
			if err != nil {
				return nil, false, err
			}
			return src, true, nil
		}),
	)

	merged := drainMerger(t, m)
	names, _, _ := readArchive(t, merged)

	assert.Equal(t, []string{"MANIFEST", "README", "x"}, names)
}

// TestMerger_DuplicateNamesPreserved confirms duplicate names across sources are not
// deduplicated, per spec.md §4.8.
func TestMerger_DuplicateNamesPreserved(t *testing.T) {
	archiveA := buildArchive(t, map[string]string{"dup": "from A, repeated, repeated, repeated"})
	archiveB := buildArchive(t, map[string]string{"dup": "from B, repeated, repeated, repeated"})

	m := New([]*MergeSource{
		NewMergeSource(bytesource.NewBuffer(archiveA)),
		NewMergeSource(bytesource.NewBuffer(archiveB)),
	})

	merged := drainMerger(t, m)
	names, contents, _ := readArchive(t, merged)

	require.Equal(t, []string{"dup", "dup"}, names)
	assert.Equal(t, "from A, repeated, repeated, repeated", contents[0])
	assert.Equal(t, "from B, repeated, repeated, repeated", contents[1])
}
