package grimoire

import "log/slog"

// readerConfig holds configuration shared by both reader kinds.
type readerConfig struct {
	magic       string
	registry    *Registry
	checksum    ChecksumHook
	indexCrypto IndexCryptoHook
	compressors map[uint8]CompressionHook
	pathHash    PathHash
	logger      *slog.Logger
	noMmap      bool
	verify      bool
}

func newReaderConfig(opts []ReaderOption) readerConfig {
	cfg := readerConfig{
		magic:       DefaultMagic,
		pathHash:    DefaultPathHash,
		compressors: make(map[uint8]CompressionHook),
		verify:      true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// checksumFor resolves the hook for a persisted checksum algorithm id. A
// directly supplied hook wins when its id matches; otherwise the registry
// is consulted.
func (cfg *readerConfig) checksumFor(id uint8) (ChecksumHook, error) {
	if cfg.checksum != nil && cfg.checksum.AlgoID() == id {
		return cfg.checksum, nil
	}
	if cfg.registry != nil {
		return cfg.registry.Checksum(id)
	}
	return nil, &UnknownAlgorithmError{Kind: "checksum", ID: id}
}

// compressionFor resolves the hook for a persisted compression id.
func (cfg *readerConfig) compressionFor(id uint8) (CompressionHook, error) {
	if h, ok := cfg.compressors[id]; ok {
		return h, nil
	}
	if cfg.registry != nil {
		return cfg.registry.Compression(id)
	}
	return nil, &UnknownAlgorithmError{Kind: "compression", ID: id}
}

// indexCryptoFor resolves the hook for a persisted index flags value.
// Unlike the other resolvers, a missing hook is not an error: the
// container opens in the locked state instead.
func (cfg *readerConfig) indexCryptoFor(flags uint8) (IndexCryptoHook, bool) {
	if cfg.indexCrypto != nil && cfg.indexCrypto.FlagsID() == flags {
		return cfg.indexCrypto, true
	}
	if cfg.registry != nil {
		if h, err := cfg.registry.IndexCrypto(flags); err == nil {
			return h, true
		}
	}
	return nil, false
}

// ReaderOption configures OpenManifest or OpenArchive.
type ReaderOption func(*readerConfig)

// OpenWithMagic sets the expected 4-byte magic tag. Containers built with
// a custom magic must be opened with the same one.
func OpenWithMagic(magic string) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.magic = magic
	}
}

// OpenWithRegistry supplies a registry used to resolve persisted
// algorithm ids for checksums, compression, and index crypto.
func OpenWithRegistry(reg *Registry) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.registry = reg
	}
}

// OpenWithChecksum supplies a single checksum hook directly. It is used
// when its algorithm id matches the one recorded in the container.
func OpenWithChecksum(h ChecksumHook) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.checksum = h
	}
}

// OpenWithCompression supplies compression hooks directly, keyed by their
// algorithm ids.
func OpenWithCompression(hooks ...CompressionHook) ReaderOption {
	return func(cfg *readerConfig) {
		for _, h := range hooks {
			cfg.compressors[h.AlgoID()] = h
		}
	}
}

// OpenWithIndexCrypto supplies the hook that decrypts the string-table
// region. Without a matching hook an encrypted container opens locked.
func OpenWithIndexCrypto(h IndexCryptoHook) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.indexCrypto = h
	}
}

// OpenWithPathHash replaces the default BLAKE3-truncated path hash used
// to key lookups. Must match the hash the container was built with.
func OpenWithPathHash(h PathHash) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.pathHash = h
	}
}

// OpenWithLogger sets a logger for read diagnostics. The default discards
// all output.
func OpenWithLogger(logger *slog.Logger) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.logger = logger
	}
}

// OpenWithoutMmap forces the pread path even where memory mapping is
// available. Only meaningful for OpenArchive.
func OpenWithoutMmap() ReaderOption {
	return func(cfg *readerConfig) {
		cfg.noMmap = true
	}
}

// OpenWithoutVerify disables checksum verification on payload reads.
// VerifyFile and explicit verification calls still check.
func OpenWithoutVerify() ReaderOption {
	return func(cfg *readerConfig) {
		cfg.verify = false
	}
}
