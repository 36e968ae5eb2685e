package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKlauspostFlateProcessor_RoundTrip(t *testing.T) {
	data := []byte("klauspost flate round trip, repeated, repeated, repeated, repeated")

	enc, err := KlauspostFlateConstructor(Compress)
	require.NoError(t, err)
	require.NoError(t, enc.Push(data))
	require.NoError(t, enc.Finish())
	compressed := drain(t, enc)
	assert.NotEmpty(t, compressed)

	dec, err := KlauspostFlateConstructor(Decompress)
	require.NoError(t, err)
	require.NoError(t, dec.Push(compressed))
	require.NoError(t, dec.Finish())
	out := drain(t, dec)

	assert.Equal(t, data, out)
}

func TestZstdProcessor_RoundTrip(t *testing.T) {
	data := []byte("zstd round trip, repeated, repeated, repeated, repeated, repeated")

	enc, err := ZstdConstructor(Compress)
	require.NoError(t, err)
	require.NoError(t, enc.Push(data))
	require.NoError(t, enc.Finish())
	compressed := drain(t, enc)
	assert.NotEmpty(t, compressed)

	dec, err := ZstdConstructor(Decompress)
	require.NoError(t, err)
	require.NoError(t, dec.Push(compressed))
	require.NoError(t, dec.Finish())
	out := drain(t, dec)

	assert.Equal(t, data, out)
}
