package indexcrypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []byte(strings.Repeat("/data/some/path.txt", 50))

func TestXORRoundtrip(t *testing.T) {
	x, err := NewXOR([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, FlagsXOR, x.FlagsID())

	enc, err := x.Encrypt(sample)
	require.NoError(t, err)
	assert.NotEqual(t, sample, enc)
	dec, err := x.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, sample, dec)

	_, err = NewXOR(nil)
	assert.Error(t, err)
}

func TestZlibRoundtrip(t *testing.T) {
	z := Zlib{}
	assert.Equal(t, FlagsZlib, z.FlagsID())

	enc, err := z.Encrypt(sample)
	require.NoError(t, err)
	assert.Less(t, len(enc), len(sample))
	dec, err := z.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, sample, dec)
}

func TestZlibXORRoundtrip(t *testing.T) {
	zx, err := NewZlibXOR([]byte{0xAA, 0x55})
	require.NoError(t, err)
	assert.Equal(t, FlagsZlibXOR, zx.FlagsID())

	enc, err := zx.Encrypt(sample)
	require.NoError(t, err)
	dec, err := zx.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, sample, dec)

	// Without the XOR pass the blob is not a valid zlib stream.
	_, err = Zlib{}.Decrypt(enc)
	assert.Error(t, err)
}

func TestChaCha20Roundtrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := NewChaCha20(key)
	require.NoError(t, err)
	assert.Equal(t, FlagsChaCha20, c.FlagsID())

	enc, err := c.Encrypt(sample)
	require.NoError(t, err)
	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, sample, dec)

	// Nonces are random, so identical plaintext encrypts differently.
	enc2, err := c.Encrypt(sample)
	require.NoError(t, err)
	assert.NotEqual(t, enc, enc2)
}

func TestChaCha20TamperDetection(t *testing.T) {
	c, err := NewChaCha20(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	enc, err := c.Encrypt(sample)
	require.NoError(t, err)
	enc[len(enc)-1] ^= 0xFF
	_, err = c.Decrypt(enc)
	assert.Error(t, err)

	_, err = c.Decrypt([]byte("short"))
	assert.Error(t, err)

	// A different key cannot open the ciphertext.
	other, err := NewChaCha20(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)
	enc2, err := c.Encrypt(sample)
	require.NoError(t, err)
	_, err = other.Decrypt(enc2)
	assert.Error(t, err)
}

func TestChaCha20KeyLength(t *testing.T) {
	_, err := NewChaCha20([]byte("too short"))
	assert.Error(t, err)
}
