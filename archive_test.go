package grimoire_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-vfs/grimoire"
	"github.com/grimoire-vfs/grimoire/checksum"
	"github.com/grimoire-vfs/grimoire/compress"
	"github.com/grimoire-vfs/grimoire/indexcrypto"
	"github.com/grimoire-vfs/grimoire/internal/schema"
)

func testRegistry(t *testing.T) *grimoire.Registry {
	t.Helper()
	reg := grimoire.NewRegistry()
	require.NoError(t, checksum.RegisterAll(reg))
	require.NoError(t, compress.RegisterAll(reg))
	return reg
}

func buildArchiveFile(t *testing.T, opts []grimoire.BuilderOption, add func(*grimoire.ArchiveBuilder)) string {
	t.Helper()
	b := grimoire.NewArchiveBuilder(opts...)
	add(b)
	path := filepath.Join(t.TempDir(), "test.grim")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, b.Build(f))
	require.NoError(t, f.Close())
	return path
}

func TestArchiveRoundtripStored(t *testing.T) {
	files := map[string][]byte{
		"/pkg/a.txt": []byte("AAAA"),
		"/pkg/b.txt": []byte("BBBBBBBB"),
	}
	path := buildArchiveFile(t,
		[]grimoire.BuilderOption{grimoire.BuildWithChecksum(checksum.CRC32{})},
		func(b *grimoire.ArchiveBuilder) {
			require.NoError(t, b.Add("/pkg/a.txt", files["/pkg/a.txt"], grimoire.CompressionNone))
			require.NoError(t, b.Add("/pkg/b.txt", files["/pkg/b.txt"], grimoire.CompressionNone))
		})

	a, err := grimoire.OpenArchive(path, grimoire.OpenWithChecksum(checksum.CRC32{}))
	require.NoError(t, err)
	defer a.Close()

	header := a.Header()
	assert.Equal(t, uint8(grimoire.ModeArchive), header.Mode)
	assert.Equal(t, uint32(2), header.EntryCount)
	assert.EqualValues(t, checksum.AlgoCRC32, header.ChecksumAlgo)
	assert.Equal(t, uint64(schema.FileHeaderSize), header.IndexOffset)
	assert.Equal(t, uint64(schema.FileHeaderSize)+uint64(header.IndexSize), header.DataOffset)

	dh := a.DataHeader()
	assert.Equal(t, uint32(2), dh.BlockCount)
	assert.Equal(t, uint64(12), dh.TotalSize)

	for path, want := range files {
		entry, err := a.Entry(path)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(want)), entry.RawSize)
		assert.Equal(t, entry.RawSize, entry.PackedSize)
		assert.Zero(t, entry.Flags)

		got, err := a.Read(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		gotByHash, err := a.ReadByHash(entry.PathHash)
		require.NoError(t, err)
		assert.Equal(t, want, gotByHash)
	}

	// Payload blocks follow the data header back to back in entry order.
	first, err := a.Entry("/pkg/a.txt")
	require.NoError(t, err)
	second, err := a.Entry("/pkg/b.txt")
	require.NoError(t, err)
	assert.Equal(t, header.DataOffset+schema.DataHeaderSize, first.Offset)
	assert.Equal(t, first.Offset+first.PackedSize, second.Offset)
}

func TestArchiveRoundtripCompressed(t *testing.T) {
	reg := testRegistry(t)
	payload := []byte(strings.Repeat("compressible content ", 200))

	for name, algo := range map[string]uint8{
		"zstd": compress.AlgoZstd,
		"lz4":  compress.AlgoLZ4,
		"zlib": compress.AlgoZlib,
	} {
		t.Run(name, func(t *testing.T) {
			path := buildArchiveFile(t,
				[]grimoire.BuilderOption{
					grimoire.BuildWithChecksum(checksum.XXH64{}),
					grimoire.BuildWithRegistry(reg),
				},
				func(b *grimoire.ArchiveBuilder) {
					require.NoError(t, b.Add("/big.txt", payload, algo))
					require.NoError(t, b.Add("/small.txt", []byte("tiny"), grimoire.CompressionNone))
				})

			a, err := grimoire.OpenArchive(path, grimoire.OpenWithRegistry(reg))
			require.NoError(t, err)
			defer a.Close()

			entry, err := a.Entry("/big.txt")
			require.NoError(t, err)
			assert.Equal(t, algo, entry.AlgoID)
			assert.EqualValues(t, grimoire.EntryFlagCompressed, entry.Flags)
			assert.Equal(t, uint64(len(payload)), entry.RawSize)
			assert.Less(t, entry.PackedSize, entry.RawSize)

			got, err := a.Read("/big.txt")
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			small, err := a.Read("/small.txt")
			require.NoError(t, err)
			assert.Equal(t, []byte("tiny"), small)

			raw, packed := uint64(0), uint64(0)
			entries, err := a.Entries()
			require.NoError(t, err)
			for _, e := range entries {
				raw += e.RawSize
				packed += e.PackedSize
			}
			assert.Equal(t, packed, a.DataHeader().TotalSize)
			assert.Greater(t, raw, packed)
		})
	}
}

func TestArchiveUnknownCompressionAtAdd(t *testing.T) {
	b := grimoire.NewArchiveBuilder()
	err := b.Add("/a.txt", []byte("x"), 9)
	require.ErrorIs(t, err, grimoire.ErrUnknownAlgorithm)
	var unknown *grimoire.UnknownAlgorithmError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "compression", unknown.Kind)
	assert.Equal(t, uint8(9), unknown.ID)
	assert.Equal(t, 0, b.Len())
}

func TestArchiveUnknownCompressionAtRead(t *testing.T) {
	reg := testRegistry(t)
	path := buildArchiveFile(t,
		[]grimoire.BuilderOption{grimoire.BuildWithRegistry(reg)},
		func(b *grimoire.ArchiveBuilder) {
			require.NoError(t, b.Add("/a.txt", []byte("data"), compress.AlgoZstd))
		})

	// Opening needs no hooks; reading the compressed entry does.
	a, err := grimoire.OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Read("/a.txt")
	assert.ErrorIs(t, err, grimoire.ErrUnknownAlgorithm)
}

func TestArchiveCorruptionDetected(t *testing.T) {
	path := buildArchiveFile(t,
		[]grimoire.BuilderOption{grimoire.BuildWithChecksum(checksum.SHA256{})},
		func(b *grimoire.ArchiveBuilder) {
			require.NoError(t, b.Add("/a.txt", []byte("pristine payload"), grimoire.CompressionNone))
		})

	// Flip one payload byte at the end of the file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	a, err := grimoire.OpenArchive(path, grimoire.OpenWithChecksum(checksum.SHA256{}))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Read("/a.txt")
	require.ErrorIs(t, err, grimoire.ErrCorrupted)
	var corruption *grimoire.CorruptionError
	require.ErrorAs(t, err, &corruption)
	assert.Equal(t, "/a.txt", corruption.Path)

	// Verification off: the tampered payload comes back unchecked.
	b, err := grimoire.OpenArchive(path,
		grimoire.OpenWithChecksum(checksum.SHA256{}), grimoire.OpenWithoutVerify())
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Read("/a.txt")
	assert.NoError(t, err)
}

func TestArchiveLockedIndex(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cc, err := indexcrypto.NewChaCha20(key)
	require.NoError(t, err)

	path := buildArchiveFile(t,
		[]grimoire.BuilderOption{grimoire.BuildWithIndexCrypto(cc)},
		func(b *grimoire.ArchiveBuilder) {
			require.NoError(t, b.Add("/secret/doc.txt", []byte("classified"), grimoire.CompressionNone))
		})

	a, err := grimoire.OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Locked())

	// Hash-keyed reads work without the key.
	got, err := a.Read("/secret/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("classified"), got)

	_, err = a.Paths()
	assert.ErrorIs(t, err, grimoire.ErrIndexLocked)
	_, err = a.Entries()
	assert.ErrorIs(t, err, grimoire.ErrIndexLocked)
	_, err = a.ExtractAll(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, grimoire.ErrIndexLocked)

	// With the key the same file opens unlocked.
	u, err := grimoire.OpenArchive(path, grimoire.OpenWithIndexCrypto(cc))
	require.NoError(t, err)
	defer u.Close()
	assert.False(t, u.Locked())
	paths, err := u.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"/secret/doc.txt"}, paths)
}

func TestArchiveWrongMode(t *testing.T) {
	container := buildManifest(t, nil, map[string][]byte{"/a.txt": []byte("x")})
	path := filepath.Join(t.TempDir(), "manifest.grim")
	require.NoError(t, os.WriteFile(path, container, 0o644))

	_, err := grimoire.OpenArchive(path)
	assert.ErrorIs(t, err, grimoire.ErrWrongMode)
}

func TestArchiveExtractAll(t *testing.T) {
	reg := testRegistry(t)
	files := map[string][]byte{
		"/pkg/a.txt":     []byte("AAAA"),
		"/pkg/sub/b.bin": []byte{1, 2, 3},
		"/top.txt":       []byte("top"),
	}
	path := buildArchiveFile(t,
		[]grimoire.BuilderOption{
			grimoire.BuildWithChecksum(checksum.BLAKE3{}),
			grimoire.BuildWithRegistry(reg),
		},
		func(b *grimoire.ArchiveBuilder) {
			for p, data := range files {
				require.NoError(t, b.Add(p, data, compress.AlgoZstd))
			}
		})

	a, err := grimoire.OpenArchive(path, grimoire.OpenWithRegistry(reg))
	require.NoError(t, err)
	defer a.Close()

	dest := t.TempDir()
	n, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, len(files), n)

	for p, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(strings.TrimPrefix(p, "/"))))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestArchiveExtractAllRejectsTraversal(t *testing.T) {
	path := buildArchiveFile(t, nil, func(b *grimoire.ArchiveBuilder) {
		require.NoError(t, b.Add("/../escape.txt", []byte("pwned"), grimoire.CompressionNone))
		require.NoError(t, b.Add("/safe.txt", []byte("fine"), grimoire.CompressionNone))
	})

	a, err := grimoire.OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	_, err = a.ExtractAll(context.Background(), dest)
	require.ErrorIs(t, err, grimoire.ErrInvalidFormat)

	// Nothing may land outside the destination directory.
	_, statErr := os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestArchiveNoMmap(t *testing.T) {
	path := buildArchiveFile(t, nil, func(b *grimoire.ArchiveBuilder) {
		require.NoError(t, b.Add("/a.txt", []byte("content"), grimoire.CompressionNone))
	})

	a, err := grimoire.OpenArchive(path, grimoire.OpenWithoutMmap())
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.Mapped())

	got, err := a.Read("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)
}

func TestArchiveAddDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	b := grimoire.NewArchiveBuilder()
	n, err := b.AddDir(dir, "/mnt", grimoire.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, packed := b.CompressionStats()
	assert.Equal(t, uint64(2), raw)
	assert.Equal(t, uint64(2), packed)

	dirs, names, exts := b.PathStats()
	assert.Equal(t, 2, dirs) // /mnt and /mnt/sub
	assert.Equal(t, 2, names)
	assert.Equal(t, 1, exts)
}

func TestArchiveTruncatedFile(t *testing.T) {
	path := buildArchiveFile(t, nil, func(b *grimoire.ArchiveBuilder) {
		require.NoError(t, b.Add("/a.txt", []byte("content"), grimoire.CompressionNone))
	})
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	short := filepath.Join(t.TempDir(), "short.grim")
	require.NoError(t, os.WriteFile(short, data[:40], 0o644))

	_, err = grimoire.OpenArchive(short)
	assert.ErrorIs(t, err, grimoire.ErrTruncated)
}
