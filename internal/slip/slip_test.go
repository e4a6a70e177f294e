package slip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, encoded []byte, maxSize int) []byte {
	t.Helper()
	dec := NewDecoder(maxSize)
	for _, b := range encoded {
		if dec.Put(b) == Complete {
			return dec.Frame()
		}
	}
	t.Fatal("frame never completed")
	return nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		{0x00, 0xC0, 0xDB, 0xFF},
		{0xC0, 0xC0, 0xC0},
		{0xDB, 0xDB, 0xDB},
		[]byte("the quick brown fox jumps over the lazy dog"),
	}
	for _, payload := range cases {
		encoded := Encode(payload)
		assert.LessOrEqual(t, len(encoded), EncodedLen(len(payload)))
		assert.Equal(t, End, encoded[len(encoded)-1])

		got := decodeAll(t, encoded, 4096)
		assert.Equal(t, payload, got)
	}
}

func TestDecodeSkipsLeadingFrameBoundaries(t *testing.T) {
	encoded := Encode([]byte{0x01, 0x02, 0x03})
	withLeading := append([]byte{End, End}, encoded...)

	dec := NewDecoder(64)
	var status Status
	for _, b := range withLeading {
		status = dec.Put(b)
		if status == Complete {
			break
		}
	}
	require.Equal(t, Complete, status)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, dec.Frame())
}

func TestDecodeInterleavedEscapes(t *testing.T) {
	payload := []byte{0xC0, 0xDB, 0x01, 0xC0, 0xDB, 0xDB}
	encoded := Encode(payload)
	got := decodeAll(t, encoded, 64)
	assert.Equal(t, payload, got)
}

func TestDecodeInvalidEscapeIsError(t *testing.T) {
	dec := NewDecoder(64)
	dec.Put(0x01)
	dec.Put(Esc)
	status := dec.Put(0x42) // not EscEnd or EscEsc
	assert.Equal(t, Error, status)
}

func TestDecodeOverflow(t *testing.T) {
	dec := NewDecoder(2)
	dec.Put(0x01)
	dec.Put(0x02)
	status := dec.Put(0x03)
	assert.Equal(t, Overflow, status)
}

func TestDecodeHelper(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	encoded := Encode(payload)
	got, err := Decode(encoded, 64)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeTruncatedIsError(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3})
	_, err := Decode(encoded[:len(encoded)-1], 64)
	assert.Error(t, err)
}
