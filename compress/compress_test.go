package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-vfs/grimoire"
)

func allHooks(t *testing.T) []grimoire.CompressionHook {
	t.Helper()
	z, err := NewZstd()
	require.NoError(t, err)
	return []grimoire.CompressionHook{z, LZ4{}, Zlib{}}
}

func TestRoundtrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":        {},
		"tiny":         []byte("x"),
		"repetitive":   []byte(strings.Repeat("abcdef ", 500)),
		"binary":       {0x00, 0xFF, 0x7F, 0x80, 0x01},
		"already text": []byte("the quick brown fox jumps over the lazy dog"),
	}
	for _, h := range allHooks(t) {
		for name, payload := range payloads {
			packed, err := h.Compress(payload)
			require.NoError(t, err, "algo %d compress %s", h.AlgoID(), name)
			got, err := h.Decompress(packed, len(payload))
			require.NoError(t, err, "algo %d decompress %s", h.AlgoID(), name)
			assert.Equal(t, payload, got, "algo %d roundtrip %s", h.AlgoID(), name)
		}
	}
}

func TestCompressibleInputShrinks(t *testing.T) {
	payload := []byte(strings.Repeat("highly compressible line\n", 1000))
	for _, h := range allHooks(t) {
		packed, err := h.Compress(payload)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(payload), "algo %d", h.AlgoID())
	}
}

func TestDecompressGarbage(t *testing.T) {
	for _, h := range allHooks(t) {
		_, err := h.Decompress([]byte("definitely not a valid stream"), 10)
		assert.Error(t, err, "algo %d", h.AlgoID())
	}
}

func TestRegisterAll(t *testing.T) {
	reg := grimoire.NewRegistry()
	require.NoError(t, RegisterAll(reg))
	for _, id := range []uint8{AlgoZstd, AlgoLZ4, AlgoZlib} {
		h, err := reg.Compression(id)
		require.NoError(t, err)
		assert.Equal(t, id, h.AlgoID())
	}
	_, err := reg.Compression(200)
	assert.ErrorIs(t, err, grimoire.ErrUnknownAlgorithm)
}
