package schema

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-vfs/grimoire/internal/binaryio"
)

func TestFileHeaderRoundtrip(t *testing.T) {
	h := FileHeader{
		Magic:        [4]byte{'G', 'R', 'I', 'M'},
		Version:      Version,
		Mode:         ModeArchive,
		Flags:        3,
		ChecksumAlgo: 6,
		IndexOffset:  32,
		IndexSize:    1024,
		DataOffset:   1056,
		EntryCount:   17,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Encode(binaryio.NewWriter(&buf)))
	assert.Equal(t, FileHeaderSize, buf.Len())

	got, err := DecodeFileHeader(binaryio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestIndexHeaderRoundtrip(t *testing.T) {
	h := IndexHeader{
		DirCount:        3,
		NameCount:       100,
		ExtCount:        5,
		StringTableSize: 2048,
		ChecksumSize:    32,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Encode(binaryio.NewWriter(&buf)))
	assert.Equal(t, IndexHeaderSize, buf.Len())
	// Reserved tail bytes are zero.
	assert.Equal(t, []byte{0, 0, 0}, buf.Bytes()[13:])

	got, err := DecodeIndexHeader(binaryio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDataHeaderRoundtrip(t *testing.T) {
	h := DataHeader{Magic: DataMagic, BlockCount: 9, TotalSize: 1 << 40}

	var buf bytes.Buffer
	require.NoError(t, h.Encode(binaryio.NewWriter(&buf)))
	assert.Equal(t, DataHeaderSize, buf.Len())
	assert.Equal(t, []byte("DATA"), buf.Bytes()[:4])

	got, err := DecodeDataHeader(binaryio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestManifestEntryRoundtrip(t *testing.T) {
	for _, checksumSize := range []int{0, 4, 32} {
		e := ManifestEntry{
			PathHash: 0xDEADBEEFCAFEF00D,
			DirID:    2,
			NameID:   7,
			ExtID:    1,
			RawSize:  4096,
		}
		if checksumSize > 0 {
			e.Checksum = bytes.Repeat([]byte{0xAA}, checksumSize)
		}

		var buf bytes.Buffer
		require.NoError(t, e.Encode(binaryio.NewWriter(&buf)))
		assert.Equal(t, ManifestEntrySize(checksumSize), buf.Len())

		got, err := DecodeManifestEntry(binaryio.NewReader(bytes.NewReader(buf.Bytes())), checksumSize)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestArchiveEntryRoundtrip(t *testing.T) {
	e := ArchiveEntry{
		PathHash:   0x0123456789ABCDEF,
		DirID:      1,
		NameID:     42,
		ExtID:      3,
		Offset:     8192,
		PackedSize: 512,
		RawSize:    2048,
		AlgoID:     1,
		Flags:      EntryFlagCompressed,
		Checksum:   bytes.Repeat([]byte{0x55}, 8),
	}

	var buf bytes.Buffer
	require.NoError(t, e.Encode(binaryio.NewWriter(&buf)))
	assert.Equal(t, ArchiveEntrySize(8), buf.Len())

	got, err := DecodeArchiveEntry(binaryio.NewReader(bytes.NewReader(buf.Bytes())), 8)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := DecodeFileHeader(binaryio.NewReader(bytes.NewReader([]byte("GRIM"))))
	require.ErrorIs(t, err, binaryio.ErrTruncated)

	_, err = DecodeArchiveEntry(binaryio.NewReader(bytes.NewReader(make([]byte, 10))), 0)
	require.ErrorIs(t, err, binaryio.ErrTruncated)
}
