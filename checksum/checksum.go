// Package checksum provides the built-in checksum hooks. Each hook is
// identified by a stable one-byte algorithm id persisted in the file
// header; the ids here are part of the on-disk format and must never be
// renumbered.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/grimoire-vfs/grimoire"
)

// Persisted algorithm ids.
const (
	AlgoCRC32  uint8 = 1
	AlgoMD5    uint8 = 2
	AlgoSHA1   uint8 = 3
	AlgoSHA256 uint8 = 4
	AlgoBLAKE3 uint8 = 6
	AlgoXXH64  uint8 = 7
)

// CRC32 is the IEEE CRC-32 checksum, 4 bytes little-endian. Fast and
// small, but not collision-resistant; suited to catching accidental
// corruption only.
type CRC32 struct{}

func (CRC32) AlgoID() uint8   { return AlgoCRC32 }
func (CRC32) DigestSize() int { return 4 }

func (CRC32) Compute(data []byte) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, crc32.ChecksumIEEE(data))
	return out
}

// MD5 is the legacy 16-byte MD5 digest, kept for interoperability with
// containers produced by older tooling.
type MD5 struct{}

func (MD5) AlgoID() uint8   { return AlgoMD5 }
func (MD5) DigestSize() int { return 16 }

func (MD5) Compute(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

// SHA1 is the 20-byte SHA-1 digest.
type SHA1 struct{}

func (SHA1) AlgoID() uint8   { return AlgoSHA1 }
func (SHA1) DigestSize() int { return 20 }

func (SHA1) Compute(data []byte) []byte {
	sum := sha1.Sum(data)
	return sum[:]
}

// SHA256 is the 32-byte SHA-256 digest.
type SHA256 struct{}

func (SHA256) AlgoID() uint8   { return AlgoSHA256 }
func (SHA256) DigestSize() int { return 32 }

func (SHA256) Compute(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// BLAKE3 is the 32-byte BLAKE3 digest.
type BLAKE3 struct{}

func (BLAKE3) AlgoID() uint8   { return AlgoBLAKE3 }
func (BLAKE3) DigestSize() int { return 32 }

func (BLAKE3) Compute(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// XXH64 is the 8-byte xxHash64 digest, little-endian. Non-cryptographic;
// the fastest option for integrity checks on trusted storage.
type XXH64 struct{}

func (XXH64) AlgoID() uint8   { return AlgoXXH64 }
func (XXH64) DigestSize() int { return 8 }

func (XXH64) Compute(data []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, xxhash.Sum64(data))
	return out
}

var (
	_ grimoire.ChecksumHook = CRC32{}
	_ grimoire.ChecksumHook = MD5{}
	_ grimoire.ChecksumHook = SHA1{}
	_ grimoire.ChecksumHook = SHA256{}
	_ grimoire.ChecksumHook = BLAKE3{}
	_ grimoire.ChecksumHook = XXH64{}
)

// RegisterAll adds every built-in checksum hook to reg.
func RegisterAll(reg *grimoire.Registry) error {
	for _, h := range []grimoire.ChecksumHook{CRC32{}, MD5{}, SHA1{}, SHA256{}, BLAKE3{}, XXH64{}} {
		if err := reg.RegisterChecksum(h); err != nil {
			return err
		}
	}
	return nil
}
