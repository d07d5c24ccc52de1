package manifest

import (
	"bufio"
	"encoding/hex"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/mvo5/goconfigparser"

	"updateengine/internal/failure"
)

// Section names.
const (
	SectionMeta   = "META"
	SectionBoot   = "BOOT"
	SectionSystem = "SYSTEM"
	SectionDelta  = "DELTA"
	SectionAnki   = "ANKI"
)

// DefaultCache is the number of delta bytes held for backward seeks when the
// manifest does not say otherwise.
const DefaultCache = 5 * 1024 * 1024

var defaults = map[string]string{
	"encryption": "0",
	"cache":      strconv.Itoa(DefaultCache),
}

// Manifest is a parsed manifest.
type Manifest struct {
	parser   *goconfigparser.ConfigParser
	sections []string
}

// Parse reads manifest text.
func Parse(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, failure.Wrap(failure.CodeIO, "parse manifest", "read manifest", err)
	}
	parser := goconfigparser.New()
	if err := parser.ReadString(string(data)); err != nil {
		return nil, failure.Wrap(failure.CodeManifest, "parse manifest", "malformed manifest", err)
	}
	return &Manifest{parser: parser, sections: sectionOrder(string(data))}, nil
}

// sectionOrder lists section headers in the order they appear in text.
func sectionOrder(text string) []string {
	var order []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
			continue
		}
		name := strings.TrimSpace(line[1 : len(line)-1])
		if name != "" && !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	return order
}

// Sections returns section names in declared order.
func (m *Manifest) Sections() []string {
	return append([]string(nil), m.sections...)
}

// HasSection reports whether the manifest declares section.
func (m *Manifest) HasSection(section string) bool {
	return slices.Contains(m.sections, section)
}

// Get returns a value, falling back to the process-wide defaults.
func (m *Manifest) Get(section, key string) (string, error) {
	value, err := m.parser.Get(section, key)
	if err == nil {
		return strings.TrimSpace(value), nil
	}
	if def, ok := defaults[key]; ok && m.HasSection(section) {
		return def, nil
	}
	return "", failure.Wrap(failure.CodeManifest, "read manifest", "missing "+section+"."+key, err)
}

// GetInt returns an integer value.
func (m *Manifest) GetInt(section, key string) (int64, error) {
	value, err := m.Get(section, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, failure.Wrap(failure.CodeManifest, "read manifest", section+"."+key+" is not an integer", err)
	}
	return n, nil
}

// Meta is the META section.
type Meta struct {
	ManifestVersion string
	NumImages       int
	UpdateVersion   string
}

// Meta decodes the META section.
func (m *Manifest) Meta() (Meta, error) {
	version, err := m.Get(SectionMeta, "manifest_version")
	if err != nil {
		return Meta{}, err
	}
	num, err := m.GetInt(SectionMeta, "num_images")
	if err != nil {
		return Meta{}, err
	}
	update, err := m.Get(SectionMeta, "update_version")
	if err != nil {
		return Meta{}, err
	}
	return Meta{ManifestVersion: version, NumImages: int(num), UpdateVersion: update}, nil
}

// CheckVersion rejects manifests whose version is not supported.
func (m *Manifest) CheckVersion(supported []string) error {
	version, err := m.Get(SectionMeta, "manifest_version")
	if err != nil {
		return err
	}
	if !slices.Contains(supported, version) {
		return failure.Newf(failure.CodeManifest, "check manifest", "Unexpected manifest version %q", version)
	}
	return nil
}

// Image is one decoded image section.
type Image struct {
	Section     string
	Bytes       int64
	SHA256      string
	Compression string
	Encryption  int
	// BaseVersion and Cache are only meaningful for DELTA.
	BaseVersion string
	Cache       int
}

// Image decodes an image section.
func (m *Manifest) Image(section string) (Image, error) {
	if !m.HasSection(section) {
		return Image{}, failure.Newf(failure.CodeManifest, "read manifest", "no %s section", section)
	}
	img := Image{Section: section}
	var err error
	if img.Bytes, err = m.GetInt(section, "bytes"); err != nil {
		return Image{}, err
	}
	if img.Bytes < 0 {
		return Image{}, failure.Newf(failure.CodeManifest, "read manifest", "%s.bytes is negative", section)
	}
	if img.SHA256, err = m.Get(section, "sha256"); err != nil {
		return Image{}, err
	}
	img.SHA256 = strings.ToLower(img.SHA256)
	if raw, err := hex.DecodeString(img.SHA256); err != nil || len(raw) != 32 {
		return Image{}, failure.Newf(failure.CodeManifest, "read manifest", "%s.sha256 is not a SHA-256 digest", section)
	}
	if img.Compression, err = m.Get(section, "compression"); err != nil {
		return Image{}, err
	}
	enc, err := m.GetInt(section, "encryption")
	if err != nil {
		return Image{}, err
	}
	img.Encryption = int(enc)
	if section == SectionDelta {
		if img.BaseVersion, err = m.Get(section, "base_version"); err != nil {
			return Image{}, err
		}
		cache, err := m.GetInt(section, "cache")
		if err != nil {
			return Image{}, err
		}
		img.Cache = int(cache)
	}
	return img, nil
}

// Images decodes every non-META section in declared order.
func (m *Manifest) Images() ([]Image, error) {
	var images []Image
	for _, section := range m.sections {
		if section == SectionMeta {
			continue
		}
		img, err := m.Image(section)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}
