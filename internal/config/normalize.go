package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeTransfer()
	c.normalizeManifest()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.status_dir", &c.Paths.StatusDir},
		{"paths.staging_dir", &c.Paths.StagingDir},
		{"paths.lock_file", &c.Paths.LockFile},
		{"paths.boot_device_dir", &c.Paths.BootDeviceDir},
		{"paths.mount_point", &c.Paths.MountPoint},
		{"paths.cmdline", &c.Paths.Cmdline},
		{"paths.public_key", &c.Paths.PublicKey},
		{"paths.password_file", &c.Paths.PasswordFile},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	// The staging area shares the status directory unless told otherwise, so a
	// clear removes staged artifacts too.
	if c.Paths.StagingDir == "" {
		c.Paths.StagingDir = c.Paths.StatusDir
	}
	return nil
}

func (c *Config) normalizeTools() {
	for _, tool := range []*string{
		&c.Tools.OpenSSL,
		&c.Tools.Bootctl,
		&c.Tools.Sync,
		&c.Tools.Mount,
		&c.Tools.Umount,
		&c.Tools.Getprop,
		&c.Tools.Gunzip,
		&c.Tools.DeltaApplier,
	} {
		*tool = strings.TrimSpace(*tool)
	}
}

func (c *Config) normalizeTransfer() {
	if c.Transfer.HTTPBlockSize <= 0 {
		c.Transfer.HTTPBlockSize = defaultHTTPBlockSize
	}
	if c.Transfer.WriteBlockSize <= 0 {
		c.Transfer.WriteBlockSize = defaultWriteBlockSize
	}
	c.Transfer.DecoderBackend = strings.ToLower(strings.TrimSpace(c.Transfer.DecoderBackend))
	if c.Transfer.DecoderBackend == "" {
		c.Transfer.DecoderBackend = defaultDecoderBackend
	}
	c.Download.UserAgentProduct = strings.TrimSpace(c.Download.UserAgentProduct)
	if c.Download.UserAgentProduct == "" {
		c.Download.UserAgentProduct = defaultUserAgentProduct
	}
}

func (c *Config) normalizeManifest() {
	versions := make([]string, 0, len(c.Manifest.SupportedVersions))
	seen := make(map[string]struct{}, len(c.Manifest.SupportedVersions))
	for _, v := range c.Manifest.SupportedVersions {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		versions = append(versions, v)
	}
	c.Manifest.SupportedVersions = versions
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
