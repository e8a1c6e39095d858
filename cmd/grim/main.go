// grim is the command-line front end for grimoire containers: building
// manifests and archives from local trees, inspecting and extracting
// them, and converting manifests to and from JSON.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/grimoire-vfs/grimoire"
	"github.com/grimoire-vfs/grimoire/checksum"
	"github.com/grimoire-vfs/grimoire/compress"
	"github.com/grimoire-vfs/grimoire/indexcrypto"
)

const usage = `usage: grim <command> [flags]

commands:
  build     build a container from a local directory
  info      print container header details
  list      list virtual paths (or hashes when the index is locked)
  cat       print one entry's payload to stdout
  extract   extract an archive into a directory
  verify    verify local files against a manifest
  export    render a manifest as JSON
  import    build a manifest container from JSON

run 'grim <command> --help' for command flags.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "grim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "build":
		return cmdBuild(rest)
	case "info":
		return cmdInfo(rest)
	case "list":
		return cmdList(rest)
	case "cat":
		return cmdCat(rest)
	case "extract":
		return cmdExtract(rest)
	case "verify":
		return cmdVerify(rest)
	case "export":
		return cmdExport(rest)
	case "import":
		return cmdImport(rest)
	case "help", "--help", "-h":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commonFlags are shared by every subcommand that touches a container.
type commonFlags struct {
	magic     string
	indexName string
	xorKey    string
	cryptoKey string
	verbose   bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.magic, "magic", grimoire.DefaultMagic, "4-byte container magic tag")
	fs.StringVar(&c.indexName, "index-crypto", "none", "index transform: none, xor, zlib, zlib-xor, chacha20")
	fs.StringVar(&c.xorKey, "xor-key", "", "hex key for xor and zlib-xor index transforms")
	fs.StringVar(&c.cryptoKey, "key", "", "hex 32-byte key for the chacha20 index transform")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log progress to stderr")
}

func (c *commonFlags) logger() *slog.Logger {
	if !c.verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// registry builds the hook registry every command resolves ids through.
// Index-crypto hooks are keyed, so they are only registered when the
// corresponding key flag was given.
func (c *commonFlags) registry() (*grimoire.Registry, error) {
	reg := grimoire.NewRegistry()
	if err := checksum.RegisterAll(reg); err != nil {
		return nil, err
	}
	if err := compress.RegisterAll(reg); err != nil {
		return nil, err
	}
	if c.xorKey != "" {
		key, err := hex.DecodeString(c.xorKey)
		if err != nil {
			return nil, fmt.Errorf("--xor-key: %w", err)
		}
		xor, err := indexcrypto.NewXOR(key)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterIndexCrypto(xor); err != nil {
			return nil, err
		}
		zx, err := indexcrypto.NewZlibXOR(key)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterIndexCrypto(zx); err != nil {
			return nil, err
		}
	}
	if err := reg.RegisterIndexCrypto(indexcrypto.Zlib{}); err != nil {
		return nil, err
	}
	if c.cryptoKey != "" {
		key, err := hex.DecodeString(c.cryptoKey)
		if err != nil {
			return nil, fmt.Errorf("--key: %w", err)
		}
		cc, err := indexcrypto.NewChaCha20(key)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterIndexCrypto(cc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// indexCrypto resolves the --index-crypto flag to a hook, or nil for
// "none".
func (c *commonFlags) indexCrypto(reg *grimoire.Registry) (grimoire.IndexCryptoHook, error) {
	flags := map[string]uint8{
		"none":     0,
		"xor":      indexcrypto.FlagsXOR,
		"zlib":     indexcrypto.FlagsZlib,
		"zlib-xor": indexcrypto.FlagsZlibXOR,
		"chacha20": indexcrypto.FlagsChaCha20,
	}
	id, ok := flags[c.indexName]
	if !ok {
		return nil, fmt.Errorf("unknown index transform %q", c.indexName)
	}
	if id == 0 {
		return nil, nil
	}
	hook, err := reg.IndexCrypto(id)
	if err != nil {
		return nil, fmt.Errorf("index transform %q needs its key flag", c.indexName)
	}
	return hook, nil
}

func (c *commonFlags) readerOpts(reg *grimoire.Registry) []grimoire.ReaderOption {
	opts := []grimoire.ReaderOption{
		grimoire.OpenWithMagic(c.magic),
		grimoire.OpenWithRegistry(reg),
	}
	if logger := c.logger(); logger != nil {
		opts = append(opts, grimoire.OpenWithLogger(logger))
	}
	return opts
}

func checksumByName(reg *grimoire.Registry, name string) (grimoire.ChecksumHook, error) {
	ids := map[string]uint8{
		"crc32":  checksum.AlgoCRC32,
		"md5":    checksum.AlgoMD5,
		"sha1":   checksum.AlgoSHA1,
		"sha256": checksum.AlgoSHA256,
		"blake3": checksum.AlgoBLAKE3,
		"xxh64":  checksum.AlgoXXH64,
	}
	id, ok := ids[name]
	if !ok {
		return nil, fmt.Errorf("unknown checksum %q", name)
	}
	return reg.Checksum(id)
}

func compressionByName(name string) (uint8, error) {
	ids := map[string]uint8{
		"none": grimoire.CompressionNone,
		"zstd": compress.AlgoZstd,
		"lz4":  compress.AlgoLZ4,
		"zlib": compress.AlgoZlib,
	}
	id, ok := ids[name]
	if !ok {
		return 0, fmt.Errorf("unknown compression %q", name)
	}
	return id, nil
}

func cmdBuild(args []string) error {
	var common commonFlags
	var out, mode, mount, checksumName, compressName string
	fs := pflag.NewFlagSet("grim build", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVarP(&out, "output", "o", "", "output container path (required)")
	fs.StringVar(&mode, "mode", "archive", "container mode: manifest or archive")
	fs.StringVar(&mount, "mount", "/", "virtual mount point for the directory")
	fs.StringVar(&checksumName, "checksum", "blake3", "per-entry checksum: none, crc32, md5, sha1, sha256, blake3, xxh64")
	fs.StringVar(&compressName, "compress", "zstd", "payload compression (archive mode): none, zstd, lz4, zlib")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if out == "" || fs.NArg() != 1 {
		return fmt.Errorf("usage: grim build -o <out> [flags] <dir>")
	}
	dir := fs.Arg(0)

	reg, err := common.registry()
	if err != nil {
		return err
	}
	crypto, err := common.indexCrypto(reg)
	if err != nil {
		return err
	}
	opts := []grimoire.BuilderOption{
		grimoire.BuildWithMagic(common.magic),
		grimoire.BuildWithRegistry(reg),
	}
	if checksumName != "none" {
		hook, err := checksumByName(reg, checksumName)
		if err != nil {
			return err
		}
		opts = append(opts, grimoire.BuildWithChecksum(hook))
	}
	if crypto != nil {
		opts = append(opts, grimoire.BuildWithIndexCrypto(crypto))
	}
	if logger := common.logger(); logger != nil {
		opts = append(opts, grimoire.BuildWithLogger(logger))
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	switch mode {
	case "manifest":
		b := grimoire.NewManifestBuilder(opts...)
		n, err := b.AddDir(dir, mount)
		if err != nil {
			return err
		}
		if err := b.Build(f); err != nil {
			return err
		}
		fmt.Printf("wrote manifest %s: %d entries\n", out, n)
	case "archive":
		compression, err := compressionByName(compressName)
		if err != nil {
			return err
		}
		b := grimoire.NewArchiveBuilder(opts...)
		n, err := b.AddDir(dir, mount, compression)
		if err != nil {
			return err
		}
		if err := b.Build(f); err != nil {
			return err
		}
		raw, packed := b.CompressionStats()
		fmt.Printf("wrote archive %s: %d entries, %d -> %d bytes\n", out, n, raw, packed)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return f.Close()
}

// openEither opens path as whichever container mode it actually is.
func openEither(path string, opts []grimoire.ReaderOption) (*grimoire.Manifest, *grimoire.Archive, error) {
	a, err := grimoire.OpenArchive(path, opts...)
	if err == nil {
		return nil, a, nil
	}
	m, merr := grimoire.OpenManifest(path, opts...)
	if merr == nil {
		return m, nil, nil
	}
	return nil, nil, err
}

func cmdInfo(args []string) error {
	var common commonFlags
	fs := pflag.NewFlagSet("grim info", pflag.ContinueOnError)
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: grim info <container>")
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	m, a, err := openEither(fs.Arg(0), common.readerOpts(reg))
	if err != nil {
		return err
	}

	var h grimoire.FileHeader
	var locked bool
	if a != nil {
		defer a.Close()
		h, locked = a.Header(), a.Locked()
	} else {
		h, locked = m.Header(), m.Locked()
	}
	modeName := "manifest"
	if h.Mode == grimoire.ModeArchive {
		modeName = "archive"
	}
	fmt.Printf("magic:         %s\n", h.Magic[:])
	fmt.Printf("version:       %d\n", h.Version)
	fmt.Printf("mode:          %s\n", modeName)
	fmt.Printf("entries:       %d\n", h.EntryCount)
	fmt.Printf("checksum algo: %d\n", h.ChecksumAlgo)
	fmt.Printf("index flags:   %d\n", h.Flags)
	fmt.Printf("index size:    %d\n", h.IndexSize)
	fmt.Printf("locked:        %v\n", locked)
	if a != nil {
		dh := a.DataHeader()
		fmt.Printf("data size:     %d\n", dh.TotalSize)
		fmt.Printf("mapped:        %v\n", a.Mapped())
	}
	return nil
}

func cmdList(args []string) error {
	var common commonFlags
	fs := pflag.NewFlagSet("grim list", pflag.ContinueOnError)
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: grim list <container>")
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	m, a, err := openEither(fs.Arg(0), common.readerOpts(reg))
	if err != nil {
		return err
	}

	var paths []string
	var hashes []uint64
	if a != nil {
		defer a.Close()
		paths, err = a.Paths()
		hashes = a.Hashes()
	} else {
		paths, err = m.Paths()
		hashes = m.Hashes()
	}
	if err == nil {
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	}
	if !errors.Is(err, grimoire.ErrIndexLocked) {
		return err
	}
	fmt.Fprintln(os.Stderr, "index is locked; listing path hashes")
	for _, h := range hashes {
		fmt.Printf("%#016x\n", h)
	}
	return nil
}

func cmdCat(args []string) error {
	var common commonFlags
	fs := pflag.NewFlagSet("grim cat", pflag.ContinueOnError)
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: grim cat <archive> <path>")
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	a, err := grimoire.OpenArchive(fs.Arg(0), common.readerOpts(reg)...)
	if err != nil {
		return err
	}
	defer a.Close()
	data, err := a.Read(fs.Arg(1))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func cmdExtract(args []string) error {
	var common commonFlags
	fs := pflag.NewFlagSet("grim extract", pflag.ContinueOnError)
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: grim extract <archive> <dest>")
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	a, err := grimoire.OpenArchive(fs.Arg(0), common.readerOpts(reg)...)
	if err != nil {
		return err
	}
	defer a.Close()
	n, err := a.ExtractAll(context.Background(), fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Printf("extracted %d files to %s\n", n, fs.Arg(1))
	return nil
}

func cmdVerify(args []string) error {
	var common commonFlags
	var root string
	fs := pflag.NewFlagSet("grim verify", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVar(&root, "root", ".", "local directory the virtual tree is verified against")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: grim verify [--root <dir>] <manifest>")
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	m, err := grimoire.OpenManifest(fs.Arg(0), common.readerOpts(reg)...)
	if err != nil {
		return err
	}
	paths, err := m.Paths()
	if err != nil {
		return err
	}

	failed := 0
	for _, p := range paths {
		local := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
		if err := m.VerifyFile(p, local); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", p, err)
			continue
		}
		if common.verbose {
			fmt.Printf("ok   %s\n", p)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed verification", failed, len(paths))
	}
	fmt.Printf("verified %d files\n", len(paths))
	return nil
}

func cmdExport(args []string) error {
	var common commonFlags
	var out string
	fs := pflag.NewFlagSet("grim export", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVarP(&out, "output", "o", "", "output JSON path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: grim export [-o <json>] <manifest>")
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	m, err := grimoire.OpenManifest(fs.Arg(0), common.readerOpts(reg)...)
	if err != nil {
		return err
	}
	data, err := grimoire.ManifestToJSON(m)
	if err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func cmdImport(args []string) error {
	var common commonFlags
	var out string
	fs := pflag.NewFlagSet("grim import", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVarP(&out, "output", "o", "", "output container path (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if out == "" || fs.NArg() != 1 {
		return fmt.Errorf("usage: grim import -o <container> <json>")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	reg, err := common.registry()
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := grimoire.ManifestFromJSON(data, f, reg); err != nil {
		return err
	}
	fmt.Printf("wrote manifest %s\n", out)
	return f.Close()
}
