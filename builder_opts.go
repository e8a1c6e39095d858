package grimoire

import "log/slog"

// builderConfig holds configuration shared by both builder kinds.
type builderConfig struct {
	magic       string
	checksum    ChecksumHook
	indexCrypto IndexCryptoHook
	pathHash    PathHash
	compressors map[uint8]CompressionHook
	logger      *slog.Logger
}

func newBuilderConfig(opts []BuilderOption) builderConfig {
	cfg := builderConfig{
		magic:       DefaultMagic,
		pathHash:    DefaultPathHash,
		compressors: make(map[uint8]CompressionHook),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// BuilderOption configures a ManifestBuilder or ArchiveBuilder.
type BuilderOption func(*builderConfig)

// BuildWithMagic sets a custom 4-byte magic tag. Build fails if the tag is
// not exactly 4 bytes.
func BuildWithMagic(magic string) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.magic = magic
	}
}

// BuildWithChecksum sets the checksum hook applied to every entry. The
// hook's algorithm id and digest size are persisted in the container.
func BuildWithChecksum(h ChecksumHook) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.checksum = h
	}
}

// BuildWithIndexCrypto sets the hook that transforms the packed
// string-table region before it is written.
func BuildWithIndexCrypto(h IndexCryptoHook) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.indexCrypto = h
	}
}

// BuildWithPathHash replaces the default BLAKE3-truncated path hash.
// Containers built with a custom hash must be opened with the same one.
func BuildWithPathHash(h PathHash) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.pathHash = h
	}
}

// BuildWithCompression registers compression hooks that Add may request
// by algorithm id. Only meaningful for ArchiveBuilder.
func BuildWithCompression(hooks ...CompressionHook) BuilderOption {
	return func(cfg *builderConfig) {
		for _, h := range hooks {
			cfg.compressors[h.AlgoID()] = h
		}
	}
}

// BuildWithRegistry adopts the hooks of a registry: its compression hooks
// become requestable by id. Checksum and index-crypto hooks are chosen
// explicitly per build, so only the compression side of the registry is
// consulted.
func BuildWithRegistry(reg *Registry) BuilderOption {
	return func(cfg *builderConfig) {
		for id, h := range reg.compressors {
			cfg.compressors[id] = h
		}
	}
}

// BuildWithLogger sets a logger for build diagnostics. The default
// discards all output.
func BuildWithLogger(logger *slog.Logger) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.logger = logger
	}
}
