package checksum

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-vfs/grimoire"
)

func TestDigestSizes(t *testing.T) {
	tests := []struct {
		hook grimoire.ChecksumHook
		id   uint8
		size int
	}{
		{CRC32{}, AlgoCRC32, 4},
		{MD5{}, AlgoMD5, 16},
		{SHA1{}, AlgoSHA1, 20},
		{SHA256{}, AlgoSHA256, 32},
		{BLAKE3{}, AlgoBLAKE3, 32},
		{XXH64{}, AlgoXXH64, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.id, tt.hook.AlgoID())
		assert.Equal(t, tt.size, tt.hook.DigestSize())
		assert.Len(t, tt.hook.Compute([]byte("payload")), tt.size)
	}
}

func TestDigestsAreDeterministicAndDistinct(t *testing.T) {
	hooks := []grimoire.ChecksumHook{CRC32{}, MD5{}, SHA1{}, SHA256{}, BLAKE3{}, XXH64{}}
	for _, h := range hooks {
		a := h.Compute([]byte("same input"))
		b := h.Compute([]byte("same input"))
		c := h.Compute([]byte("other input"))
		assert.Equal(t, a, b, "algo %d not deterministic", h.AlgoID())
		assert.NotEqual(t, a, c, "algo %d ignores input", h.AlgoID())
	}
}

func TestCRC32KnownValue(t *testing.T) {
	// IEEE CRC-32 of "123456789" is 0xCBF43926, stored little-endian.
	got := CRC32{}.Compute([]byte("123456789"))
	assert.Equal(t, []byte{0x26, 0x39, 0xF4, 0xCB}, got)
}

func TestSHA256KnownValue(t *testing.T) {
	want, err := hex.DecodeString("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	require.NoError(t, err)
	assert.Equal(t, want, SHA256{}.Compute([]byte("abc")))
}

func TestRegisterAll(t *testing.T) {
	reg := grimoire.NewRegistry()
	require.NoError(t, RegisterAll(reg))

	for _, id := range []uint8{AlgoCRC32, AlgoMD5, AlgoSHA1, AlgoSHA256, AlgoBLAKE3, AlgoXXH64} {
		h, err := reg.Checksum(id)
		require.NoError(t, err)
		assert.Equal(t, id, h.AlgoID())
	}
	_, err := reg.Checksum(5)
	assert.ErrorIs(t, err, grimoire.ErrUnknownAlgorithm)

	// Double registration is rejected.
	assert.Error(t, RegisterAll(reg))
}
