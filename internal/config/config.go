package config

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// DefaultBaseDirectoryPath is where the evaluator stores configuration,
	// the pickle cache, and staging data. It defaults to $VESTA_BASE if set,
	// otherwise $HOME/lib/vesta. The -base flag overrides it.
	DefaultBaseDirectoryPath string
)

func init() {
	if base := os.Getenv("VESTA_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/vesta")
	}
}

// C is the evaluator's configuration (spec.md §6, SPEC_FULL §2): sections
// for the cache server's storage backend, the repository client, run_tool's
// host list, and the evaluator's own defaults. Loaded from a flat key-value
// file, in the same hand-rolled format and loader shape as the teacher's
// config package, rather than reaching for an INI/TOML/viper library (see
// DESIGN.md).
type C struct {
	// [CacheServer] -- listen network and address, read from the
	// listen-net and listen-addr keys (defaults: unix, <base>/cacheserver.sock).
	// No package in this repository opens a listener on them.
	ListenNet  string
	ListenAddr string

	// [CacheServer] storage backend for pickled cache entries, and
	// [Repository] storage backend for model/file content, share the same
	// backend types since both are addressed by content key.
	Storage string

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// DiskStoreDir is relative to base unless absolute.
	DiskStoreDir string

	// CacheDirectory overrides the default "<base>/cache" pickle cache path.
	CacheDirectory string

	// EncryptionKey is 64 hex digits protecting repository block content at
	// rest (spec.md's repository is assumed content-addressed and
	// encrypted the way the teacher's muscle repository is).
	EncryptionKey string

	// [Run_Tool] candidate hosts for PrimRunTool's RPC dispatch, in
	// "host:port" form, one per run-tool-host config line.
	RunToolHosts []string

	// [Evaluator] defaults, overridable by the corresponding CLI flags.
	PKSalt     string
	MaxThreads int

	// CoreDumpPattern flags a run_tool result tree entry whose name matches
	// as a probable core dump, reported in the result's dumped_core field
	// (SPEC_FULL §4). A match does not by itself change cacheability, which
	// follows the call's status and signal treatments.
	CoreDumpPattern string

	// Platforms holds one entry per per-platform config section (spec.md
	// §6), keyed by platform name, feeding internal/hostselect.
	Platforms map[string]Platform

	base          string
	encryptionKey []byte
}

// Platform is one [Platform] config section (spec.md §6): the hardware/OS
// match criteria and candidate host list internal/hostselect.Platform
// needs. Kept here rather than importing hostselect.Platform directly, so
// config has no dependency on the evaluator's domain packages.
type Platform struct {
	Name                                string
	Sysname, Release, Version, Machine string
	MinCPUs                             int
	MinMHz                              int
	MinKB                                int64
	Hosts                                []string
}

// Load loads the configuration from the file called "config" in base.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	if fi, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	} else if fi.Mode()&0077 != 0 {
		return nil, fmt.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.EncryptionKey != "" {
		c.encryptionKey, err = hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", c.EncryptionKey, err)
		}
	}
	if c.DiskStoreDir != "" && !filepath.IsAbs(c.DiskStoreDir) {
		c.DiskStoreDir = filepath.Clean(filepath.Join(c.base, c.DiskStoreDir))
	}
	if c.ListenNet == "" {
		c.ListenNet = "unix"
	}
	if c.ListenNet == "unix" && c.ListenAddr == "" {
		c.ListenAddr = filepath.Join(base, "cacheserver.sock")
	}
	if c.MaxThreads == 0 {
		c.MaxThreads = 8
	}
	if c.CoreDumpPattern == "" {
		c.CoreDumpPattern = `(?i)\bcore(\.\d+)?$`
	}
	if _, err := regexp.Compile(c.CoreDumpPattern); err != nil {
		return nil, fmt.Errorf("config.Load: core-dump-pattern: %w", err)
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := C{Platforms: make(map[string]Platform)}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, fmt.Errorf("load: no separator in %q", line)
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		switch key {
		case "cache-directory":
			c.CacheDirectory = val
		case "disk-store-dir":
			c.DiskStoreDir = val
		case "encryption-key":
			c.EncryptionKey = val
		case "listen-addr":
			c.ListenAddr = val
		case "listen-net":
			c.ListenNet = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-access-key":
			c.S3AccessKey = val
		case "s3-secret-key":
			c.S3SecretKey = val
		case "s3-region":
			c.S3Region = val
		case "storage":
			c.Storage = val
		case "run-tool-host":
			c.RunToolHosts = append(c.RunToolHosts, val)
		case "pk-salt":
			c.PKSalt = val
		case "max-threads":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("load: max-threads: %w", err)
			}
			c.MaxThreads = n
		case "core-dump-pattern":
			c.CoreDumpPattern = val
		case "platform":
			p, err := parsePlatform(val)
			if err != nil {
				return nil, fmt.Errorf("load: platform: %w", err)
			}
			c.Platforms[p.Name] = p
		default:
			return nil, fmt.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &c, nil
}

// parsePlatform reads one "platform" config line: name sysname release
// version machine min_cpus min_mhz min_kb host1,host2,... (spec.md §6's
// per-platform section, flattened to one line for this hand-rolled format
// the way every other section here is).
func parsePlatform(val string) (Platform, error) {
	fields := strings.Fields(val)
	if len(fields) != 9 {
		return Platform{}, fmt.Errorf("expected 9 fields, got %d: %q", len(fields), val)
	}
	minCPUs, err := strconv.Atoi(fields[5])
	if err != nil {
		return Platform{}, fmt.Errorf("min_cpus: %w", err)
	}
	minMHz, err := strconv.Atoi(fields[6])
	if err != nil {
		return Platform{}, fmt.Errorf("min_mhz: %w", err)
	}
	minKB, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return Platform{}, fmt.Errorf("min_kb: %w", err)
	}
	var hosts []string
	if fields[8] != "-" {
		hosts = strings.Split(fields[8], ",")
	}
	return Platform{
		Name: fields[0], Sysname: dash(fields[1]), Release: dash(fields[2]),
		Version: dash(fields[3]), Machine: dash(fields[4]),
		MinCPUs: minCPUs, MinMHz: minMHz, MinKB: minKB, Hosts: hosts,
	}, nil
}

// dash turns the config file's "no constraint" placeholder into the empty
// string internal/hostselect.matches treats as "matches anything".
func dash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func (c *C) CacheDirectoryPath() string {
	if c.CacheDirectory != "" {
		return c.CacheDirectory
	}
	return path.Join(c.base, "cache")
}

func (c *C) StagingDirectoryPath() string {
	return path.Join(c.base, "staging")
}

func (c *C) EncryptionKeyBytes() []byte {
	return c.encryptionKey
}

// Initialize generates an initial configuration at the given directory
// (spec.md's "vesta -init"-style bootstrap, adapted from the teacher's
// config.Initialize).
func Initialize(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("%q: could not mkdir: %w", baseDir, err)
	}
	p := filepath.Join(baseDir, "config")
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%q: already exists", p)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%q: could not determine if it exists: %w", p, err)
	}
	var buf bytes.Buffer
	b := make([]byte, 32)
	n, err := rand.Read(b)
	if err != nil {
		return fmt.Errorf("could not read 32 random bytes: %w", err)
	}
	if n != 32 {
		return fmt.Errorf("could not read 32 random bytes, got only %d", n)
	}
	fmt.Fprintf(&buf, "encryption-key %02x\n", b)
	buf.WriteString("storage disk\n")
	buf.WriteString("disk-store-dir permanent\n")
	buf.WriteString("listen-net unix\n")
	return os.WriteFile(p, buf.Bytes(), 0600)
}
