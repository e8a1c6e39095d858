// Package indexcrypto provides the built-in index-crypto hooks. These
// transform the packed string-table region as a whole; the flags value
// identifying the transform is persisted in the file header and must
// never be renumbered.
//
// XOR and zlib are obfuscation, not security: they keep casual tooling
// from listing paths but resist no determined attacker. ChaCha20 is the
// only hook here that actually protects the path names.
package indexcrypto

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/grimoire-vfs/grimoire"
)

// Persisted flags values.
const (
	FlagsXOR      uint8 = 1
	FlagsZlib     uint8 = 2
	FlagsZlibXOR  uint8 = 3
	FlagsChaCha20 uint8 = 4
)

// XOR obfuscates the string table with a repeating key.
type XOR struct {
	key []byte
}

// NewXOR creates an XOR hook. The key may be any non-empty length.
func NewXOR(key []byte) (*XOR, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("grimoire: xor key must not be empty")
	}
	return &XOR{key: bytes.Clone(key)}, nil
}

func (x *XOR) FlagsID() uint8 { return FlagsXOR }

func (x *XOR) Encrypt(data []byte) ([]byte, error) { return x.apply(data), nil }
func (x *XOR) Decrypt(data []byte) ([]byte, error) { return x.apply(data), nil }

func (x *XOR) apply(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ x.key[i%len(x.key)]
	}
	return out
}

// Zlib stores the string table zlib-compressed. Shrinks large
// dictionaries and hides plain-text paths from naive scanners.
type Zlib struct{}

func (Zlib) FlagsID() uint8 { return FlagsZlib }

func (Zlib) Encrypt(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Zlib) Decrypt(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ZlibXOR compresses the string table, then XORs the result.
type ZlibXOR struct {
	xor *XOR
}

// NewZlibXOR creates a ZlibXOR hook with the given XOR key.
func NewZlibXOR(key []byte) (*ZlibXOR, error) {
	xor, err := NewXOR(key)
	if err != nil {
		return nil, err
	}
	return &ZlibXOR{xor: xor}, nil
}

func (z *ZlibXOR) FlagsID() uint8 { return FlagsZlibXOR }

func (z *ZlibXOR) Encrypt(data []byte) ([]byte, error) {
	packed, err := Zlib{}.Encrypt(data)
	if err != nil {
		return nil, err
	}
	return z.xor.apply(packed), nil
}

func (z *ZlibXOR) Decrypt(data []byte) ([]byte, error) {
	return Zlib{}.Decrypt(z.xor.apply(data))
}

// ChaCha20 encrypts the string table with ChaCha20-Poly1305. The random
// nonce is prepended to the ciphertext, and the Poly1305 tag
// authenticates it, so tampering with the index is detected at open.
type ChaCha20 struct {
	aead cipher.AEAD
}

// NewChaCha20 creates a ChaCha20 hook. The key must be exactly 32 bytes.
func NewChaCha20(key []byte) (*ChaCha20, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("grimoire: chacha20 key: %w", err)
	}
	return &ChaCha20{aead: aead}, nil
}

func (c *ChaCha20) FlagsID() uint8 { return FlagsChaCha20 }

func (c *ChaCha20) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, data, nil), nil
}

func (c *ChaCha20) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("grimoire: encrypted index shorter than nonce")
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("grimoire: index authentication failed: %w", err)
	}
	return plain, nil
}

var (
	_ grimoire.IndexCryptoHook = (*XOR)(nil)
	_ grimoire.IndexCryptoHook = Zlib{}
	_ grimoire.IndexCryptoHook = (*ZlibXOR)(nil)
	_ grimoire.IndexCryptoHook = (*ChaCha20)(nil)
)
