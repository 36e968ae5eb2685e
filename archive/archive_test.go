package archive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyengg/minizip/bytesource"
	"github.com/nguyengg/minizip/entrysource"
	"github.com/nguyengg/minizip/writer"
)

func buildTestArchive(t *testing.T, contents map[string]string) []byte {
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
			return out
		}
	}
}

func TestArchive_EntriesAndFind(t *testing.T) {
	data := buildTestArchive(t, map[string]string{
		"a.txt": "alpha content, repeated, repeated, repeated",
		"b.txt": "bravo content, repeated, repeated, repeated",
	})

	a, err := Init(bytesource.NewBuffer(data), func(o *Options) { o.CreateIndex = true })
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.Location().EntryCount)

	var names []string
	for er, err := range a.Entries() {
		require.NoError(t, err)
		names = append(names, er.Name())
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	er, ok, err := a.Find("b.txt")
	require.NoError(t, err)
	require.True(t, ok)
	content, err := er.ReadAll(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, "bravo content, repeated, repeated, repeated", string(content))

	_, ok, err = a.Find("missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchive_All(t *testing.T) {
	data := buildTestArchive(t, map[string]string{
		"only.txt": "only content, repeated, repeated, repeated",
	})

	a, err := Init(bytesource.NewBuffer(data))
	require.NoError(t, err)

	entries, err := a.All()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "only.txt", entries[0].Name())
}
