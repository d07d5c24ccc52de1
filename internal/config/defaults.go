package config

const (
	defaultConfigPath       = "/etc/update-engine/config.toml"
	defaultStatusDir        = "/run/update-engine"
	defaultLockFile         = "/run/update-engine.lock"
	defaultBootDeviceDir    = "/dev/block/bootdevice/by-name"
	defaultMountPoint       = "/mnt/sdcard"
	defaultCmdlinePath      = "/proc/cmdline"
	defaultPublicKey        = "/anki/etc/ota.pub"
	defaultPasswordFile     = "/anki/etc/ota.pas"
	defaultOpenSSL          = "/usr/bin/openssl"
	defaultBootctl          = "/bin/bootctl"
	defaultSync             = "/bin/sync"
	defaultMount            = "mount"
	defaultUmount           = "umount"
	defaultGetprop          = "/usr/bin/getprop"
	defaultGunzip           = "gzip"
	defaultDeltaApplier     = "/anki/bin/update-payload-apply"
	defaultHTTPBlockSize    = 2 * 1024
	defaultWriteBlockSize   = defaultHTTPBlockSize * 1024
	defaultDecoderBackend   = BackendProcess
	defaultUserAgentProduct = "Victor"
	defaultAnkiSubtree      = "anki"
	defaultAnkiVersionFile  = "anki/etc/version"
	defaultAnkiRevisionFile = "anki/etc/revision"
	defaultBuildPropFile    = "build.prop"
	defaultVersionProp      = "ro.anki.version"
	defaultVictorProp       = "ro.anki.victor.version"
	defaultSerialProp       = "ro.serialno"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Decoder backends understood by the transform pipeline.
const (
	BackendProcess = "process"
	BackendNative  = "native"
)

var defaultSupportedVersions = []string{"0.9.2", "0.9.3", "0.9.4", "0.9.5"}

// Default returns a Config populated with the device defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StatusDir:     defaultStatusDir,
			LockFile:      defaultLockFile,
			BootDeviceDir: defaultBootDeviceDir,
			MountPoint:    defaultMountPoint,
			Cmdline:       defaultCmdlinePath,
			PublicKey:     defaultPublicKey,
			PasswordFile:  defaultPasswordFile,
		},
		Tools: Tools{
			OpenSSL:      defaultOpenSSL,
			Bootctl:      defaultBootctl,
			Sync:         defaultSync,
			Mount:        defaultMount,
			Umount:       defaultUmount,
			Getprop:      defaultGetprop,
			Gunzip:       defaultGunzip,
			DeltaApplier: defaultDeltaApplier,
		},
		Transfer: Transfer{
			HTTPBlockSize:  defaultHTTPBlockSize,
			WriteBlockSize: defaultWriteBlockSize,
			DecoderBackend: defaultDecoderBackend,
		},
		Download: Download{
			UserAgentProduct: defaultUserAgentProduct,
		},
		Manifest: Manifest{
			SupportedVersions: append([]string(nil), defaultSupportedVersions...),
		},
		Anki: Anki{
			Subtree:      defaultAnkiSubtree,
			VersionFile:  defaultAnkiVersionFile,
			RevisionFile: defaultAnkiRevisionFile,
			BuildProp:    defaultBuildPropFile,
		},
		Properties: Properties{
			Version:       defaultVersionProp,
			VictorVersion: defaultVictorProp,
			Serial:        defaultSerialProp,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
