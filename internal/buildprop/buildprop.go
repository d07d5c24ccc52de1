// Package buildprop reads and rewrites the key=value build.prop file of a
// mounted system image. Property order and non-property lines survive a
// round trip.
package buildprop

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"updateengine/internal/config"
	"updateengine/internal/failure"
	"updateengine/internal/fileutil"
)

const (
	KeyOSVersion     = "ro.anki.version"
	KeyBuildRelease  = "ro.build.version.release"
	KeyRevision      = "ro.revision"
	KeyVictorVersion = "ro.anki.victor.version"
	KeyFingerprint   = "ro.build.fingerprint"
	KeyBuildID       = "ro.build.id"
	KeyDisplayID     = "ro.build.display.id"
)

type line struct {
	key   string
	value string
	raw   string
}

// File is an ordered property file.
type File struct {
	lines []line
	index map[string]int
}

// Parse reads properties from r. Lines without '=' are kept verbatim.
func Parse(r io.Reader) (*File, error) {
	f := &File{index: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(text, "=")
		if !ok || strings.HasPrefix(text, "#") {
			f.lines = append(f.lines, line{raw: text})
			continue
		}
		f.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}
	return f, nil
}

// ReadFile parses the property file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Wrap(failure.CodeIO, "read build.prop", "IO Error", err)
	}
	return Parse(bytes.NewReader(data))
}

// Get returns the value of key.
func (f *File) Get(key string) (string, bool) {
	i, ok := f.index[key]
	if !ok {
		return "", false
	}
	return f.lines[i].value, true
}

// Set updates key in place or appends it.
func (f *File) Set(key, value string) {
	if i, ok := f.index[key]; ok {
		f.lines[i].value = value
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{key: key, value: value})
}

// Len returns the number of properties.
func (f *File) Len() int {
	return len(f.index)
}

// Bytes renders the file, one line per entry and a trailing newline.
func (f *File) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range f.lines {
		if l.key == "" {
			buf.WriteString(l.raw)
		} else {
			buf.WriteString(l.key)
			buf.WriteByte('=')
			buf.WriteString(l.value)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteFile replaces the file at path with the rendered properties.
func (f *File) WriteFile(path string) error {
	if err := fileutil.WriteFileAtomic(path, f.Bytes(), 0o644); err != nil {
		return failure.Wrap(failure.CodeIO, "write build.prop", "IO Error", err)
	}
	return nil
}

// Identity is the set of version strings stamped into build.prop.
type Identity struct {
	Version   string
	Revision  string
	OSVersion string
	VersionID string
	BuildID   string
}

// NewIdentity combines the product version and revision with the OS
// properties. An empty revision is omitted from the build id.
func NewIdentity(version, revision, osVersion, release string) Identity {
	id := Identity{
		Version:   version,
		Revision:  revision,
		OSVersion: osVersion,
		VersionID: fmt.Sprintf("v%s_os%s", version, osVersion),
	}
	revTag := ""
	if revision != "" {
		revTag = "-" + revision
	}
	id.BuildID = fmt.Sprintf("v%s%s_os%s-%s", version, revTag, osVersion, release)
	return id
}

// Apply stamps the identity into f.
func (id Identity) Apply(f *File) {
	f.Set(KeyRevision, fmt.Sprintf("anki-%s_os-", id.Revision))
	f.Set(KeyVictorVersion, id.Version)
	f.Set(KeyFingerprint, id.BuildID)
	f.Set(KeyBuildID, id.BuildID)
	f.Set(KeyDisplayID, id.VersionID)
}

// Rewrite updates the build.prop of the system image mounted at mountPoint
// with the product version and revision installed under it.
func Rewrite(mountPoint string, layout config.Anki) (Identity, error) {
	version, err := readTrimmed(filepath.Join(mountPoint, layout.VersionFile))
	if err != nil {
		return Identity{}, err
	}
	revision, err := readTrimmed(filepath.Join(mountPoint, layout.RevisionFile))
	if err != nil {
		return Identity{}, err
	}

	path := filepath.Join(mountPoint, layout.BuildProp)
	props, err := ReadFile(path)
	if err != nil {
		return Identity{}, err
	}
	osVersion, ok := props.Get(KeyOSVersion)
	if !ok {
		return Identity{}, fmt.Errorf("build.prop has no %s", KeyOSVersion)
	}
	release, ok := props.Get(KeyBuildRelease)
	if !ok {
		return Identity{}, fmt.Errorf("build.prop has no %s", KeyBuildRelease)
	}

	id := NewIdentity(version, revision, osVersion, release)
	id.Apply(props)
	if err := props.WriteFile(path); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", failure.Wrap(failure.CodeIO, "read version", "IO Error", err)
	}
	return strings.TrimSpace(string(data)), nil
}
