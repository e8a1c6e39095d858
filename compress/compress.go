// Package compress provides the built-in compression hooks. Each hook is
// identified by a stable one-byte algorithm id persisted per entry; the
// ids here are part of the on-disk format and must never be renumbered.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/grimoire-vfs/grimoire"
)

// Persisted algorithm ids.
const (
	AlgoZstd uint8 = 1
	AlgoLZ4  uint8 = 2
	AlgoZlib uint8 = 3
)

// Zstd compresses payloads with Zstandard. An instance owns a reusable
// encoder/decoder pair and is safe for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a Zstd hook at the default compression level.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) AlgoID() uint8 { return AlgoZstd }

func (z *Zstd) Compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *Zstd) Decompress(data []byte, rawSize int) ([]byte, error) {
	return z.dec.DecodeAll(data, make([]byte, 0, rawSize))
}

// LZ4 compresses payloads with the LZ4 frame format.
type LZ4 struct{}

func (LZ4) AlgoID() uint8 { return AlgoLZ4 }

func (LZ4) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (LZ4) Decompress(data []byte, rawSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out := bytes.NewBuffer(make([]byte, 0, rawSize))
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Zlib compresses payloads with DEFLATE in a zlib wrapper. The slowest of
// the built-ins but the most widely interoperable.
type Zlib struct{}

func (Zlib) AlgoID() uint8 { return AlgoZlib }

func (Zlib) Compress(data []byte) ([]byte, error) {
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

func (Zlib) Decompress(data []byte, rawSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := bytes.NewBuffer(make([]byte, 0, rawSize))
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

var (
	_ grimoire.CompressionHook = (*Zstd)(nil)
	_ grimoire.CompressionHook = LZ4{}
	_ grimoire.CompressionHook = Zlib{}
)

// RegisterAll adds every built-in compression hook to reg.
func RegisterAll(reg *grimoire.Registry) error {
	z, err := NewZstd()
	if err != nil {
		return err
	}
	for _, h := range []grimoire.CompressionHook{z, LZ4{}, Zlib{}} {
		if err := reg.RegisterCompression(h); err != nil {
			return err
		}
	}
	return nil
}
