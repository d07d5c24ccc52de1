// Package config loads, normalizes, and validates update engine configuration.
//
// It supplies the device defaults (status directory, boot device directory,
// signing key, external tool paths, transfer block sizes), reads an optional
// TOML file on top of them, and rejects values the installer cannot work with.
// The engine constructs one Config per invocation and hands it to every
// component, so no package keeps its own copy of file locations.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
