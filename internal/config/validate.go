package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateManifest(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StatusDir == "" {
		return errors.New("paths.status_dir must be set")
	}
	if c.Paths.BootDeviceDir == "" {
		return errors.New("paths.boot_device_dir must be set")
	}
	if c.Paths.MountPoint == "" {
		return errors.New("paths.mount_point must be set")
	}
	if c.Paths.PublicKey == "" {
		return errors.New("paths.public_key must be set")
	}
	return nil
}

func (c *Config) validateTools() error {
	required := map[string]string{
		"tools.openssl": c.Tools.OpenSSL,
		"tools.bootctl": c.Tools.Bootctl,
		"tools.sync":    c.Tools.Sync,
		"tools.mount":   c.Tools.Mount,
		"tools.umount":  c.Tools.Umount,
		"tools.getprop": c.Tools.Getprop,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.WriteBlockSize < c.Transfer.HTTPBlockSize {
		return fmt.Errorf("transfer.write_block_size (%d) must not be smaller than transfer.http_block_size (%d)",
			c.Transfer.WriteBlockSize, c.Transfer.HTTPBlockSize)
	}
	switch c.Transfer.DecoderBackend {
	case BackendProcess:
		if c.Tools.Gunzip == "" {
			return errors.New("tools.gunzip must be set when transfer.decoder_backend is process")
		}
	case BackendNative:
	default:
		return fmt.Errorf("transfer.decoder_backend: unsupported value %q", c.Transfer.DecoderBackend)
	}
	if c.Download.RateLimitKiB < 0 {
		return errors.New("download.rate_limit_kib must be >= 0")
	}
	return nil
}

func (c *Config) validateManifest() error {
	if len(c.Manifest.SupportedVersions) == 0 {
		return errors.New("manifest.supported_versions must list at least one version")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
