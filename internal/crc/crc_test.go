package crc

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorMatchesKnownVector(t *testing.T) {
	data := []byte("123456789")
	// well-known CRC-32/IEEE check value for the ASCII digits 1-9
	assert.Equal(t, uint32(0xCBF43926), Of(data))

	acc := New()
	acc.Write(data)
	assert.Equal(t, uint32(0xCBF43926), acc.Sum32())
}

func TestAccumulatorIsIncremental(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	want := crc32.ChecksumIEEE(data)

	acc := New()
	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		acc.Write(data[i:end])
	}
	assert.Equal(t, want, acc.Sum32())
}

func TestAccumulatorReset(t *testing.T) {
	acc := New()
	acc.Write([]byte{1, 2, 3})
	acc.Reset()
	assert.Equal(t, uint32(0), acc.Sum32())
}
