package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations on the device.
type Paths struct {
	StatusDir     string `toml:"status_dir"`
	StagingDir    string `toml:"staging_dir"`
	LockFile      string `toml:"lock_file"`
	BootDeviceDir string `toml:"boot_device_dir"`
	MountPoint    string `toml:"mount_point"`
	Cmdline       string `toml:"cmdline"`
	PublicKey     string `toml:"public_key"`
	PasswordFile  string `toml:"password_file"`
	LogDir        string `toml:"log_dir"`
}

// Tools contains the external programs the engine shells out to.
type Tools struct {
	OpenSSL      string `toml:"openssl"`
	Bootctl      string `toml:"bootctl"`
	Sync         string `toml:"sync"`
	Mount        string `toml:"mount"`
	Umount       string `toml:"umount"`
	Getprop      string `toml:"getprop"`
	Gunzip       string `toml:"gunzip"`
	DeltaApplier string `toml:"delta_applier"`
}

// Transfer contains block sizes and the decoder backend.
type Transfer struct {
	// HTTPBlockSize is the number of source bytes fed to the decoder per cycle.
	HTTPBlockSize int `toml:"http_block_size"`
	// WriteBlockSize is the unit written to slot devices and used for zeroing.
	WriteBlockSize int `toml:"write_block_size"`
	// DecoderBackend selects "process" (openssl/gzip children) or "native".
	DecoderBackend string `toml:"decoder_backend"`
}

// Download contains settings for fetching the update package.
type Download struct {
	UserAgentProduct string `toml:"user_agent_product"`
	RateLimitKiB     int    `toml:"rate_limit_kib"`
}

// Manifest contains manifest acceptance rules.
type Manifest struct {
	SupportedVersions []string `toml:"supported_versions"`
}

// Anki contains the layout of the product subtree replaced by anki-only updates.
// Paths are relative to the mounted system slot.
type Anki struct {
	Subtree      string `toml:"subtree"`
	VersionFile  string `toml:"version_file"`
	RevisionFile string `toml:"revision_file"`
	BuildProp    string `toml:"build_prop"`
}

// Properties names the system properties read through getprop.
type Properties struct {
	Version       string `toml:"version"`
	VictorVersion string `toml:"victor_version"`
	Serial        string `toml:"serial"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the update engine.
//
// Configuration sections by subsystem:
//   - Paths: status directory, devices, signing material
//   - Tools: external programs (openssl, bootctl, sync, mount, getprop)
//   - Transfer: feed/write block sizes and decoder backend
//   - Download: package fetch behaviour
//   - Manifest: accepted manifest versions
//   - Anki: product subtree layout for partial updates
//   - Properties: system property names
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Tools      Tools      `toml:"tools"`
	Transfer   Transfer   `toml:"transfer"`
	Download   Download   `toml:"download"`
	Manifest   Manifest   `toml:"manifest"`
	Anki       Anki       `toml:"anki"`
	Properties Properties `toml:"properties"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the configuration file consulted when no path is given.
func DefaultConfigPath() string {
	return defaultConfigPath
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: the device defaults apply. The returned config has all path
// fields normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the status and staging directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StatusDir, c.Paths.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ManifestPath is where the downloaded manifest is stored for verification.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.StagingDir, "manifest.ini")
}

// SignaturePath is where the downloaded manifest signature is stored.
func (c *Config) SignaturePath() string {
	return filepath.Join(c.Paths.StagingDir, "manifest.sha256")
}

// BootStagingPath is where the boot image is staged before it is committed.
func (c *Config) BootStagingPath() string {
	return filepath.Join(c.Paths.StagingDir, "boot.img")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Sample returns the annotated sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
