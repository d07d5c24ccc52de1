// Package archive walks the update package, a forward-only tar stream whose
// entries must arrive in a fixed order: the manifest, its signature, then one
// entry per manifest section in manifest order.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"strings"

	"updateengine/internal/failure"
)

const (
	ManifestSuffix  = "manifest.ini"
	SignatureSuffix = "manifest.sha256"
)

// sectionSuffixes maps manifest section names onto the entry name suffix each
// must carry. Sections absent here accept any entry name.
var sectionSuffixes = map[string]string{
	"BOOT":   "boot.img.gz",
	"SYSTEM": "sysfs.img.gz",
	"DELTA":  "delta.bin.gz",
}

// ExpectedSuffix returns the entry name suffix required for a section, or ""
// when any name is accepted.
func ExpectedSuffix(section string) string {
	return sectionSuffixes[section]
}

// Entry is one archive member. Reads are valid until the next entry is
// requested from the Walker.
type Entry struct {
	Name string
	Size int64
	r    io.Reader
}

func (e *Entry) Read(p []byte) (int, error) {
	return e.r.Read(p)
}

// Walker yields archive entries in the required order.
type Walker struct {
	tr    *tar.Reader
	count int
}

// NewWalker reads a tar stream from r.
func NewWalker(r io.Reader) *Walker {
	return &Walker{tr: tar.NewReader(r)}
}

// Manifest returns the first entry, which must be the manifest.
func (w *Walker) Manifest() (*Entry, error) {
	return w.expect(ManifestSuffix, "Expected manifest.ini at beginning of download")
}

// Signature returns the manifest signature entry.
func (w *Walker) Signature() (*Entry, error) {
	return w.expect(SignatureSuffix, "Expected manifest signature after manifest.ini")
}

// Section returns the next entry, which must belong to the named manifest
// section.
func (w *Walker) Section(section string) (*Entry, error) {
	suffix := ExpectedSuffix(section)
	return w.expect(suffix, fmt.Sprintf("Expected %s to be next in tar", describeSuffix(section, suffix)))
}

func (w *Walker) expect(suffix, msg string) (*Entry, error) {
	hdr, err := w.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, failure.New(failure.CodeEntryOrder, "read archive", msg+" but archive ended")
		}
		return nil, err
	}
	if !strings.HasSuffix(hdr.Name, suffix) {
		return nil, failure.Newf(failure.CodeEntryOrder, "read archive", "%s but found %q", msg, hdr.Name)
	}
	return &Entry{Name: hdr.Name, Size: hdr.Size, r: w.tr}, nil
}

// next returns the next member header. A broken first header means the
// download is not an archive at all.
func (w *Walker) next() (*tar.Header, error) {
	for {
		hdr, err := w.tr.Next()
		if errors.Is(err, io.EOF) {
			if w.count == 0 {
				return nil, failure.New(failure.CodeArchive, "open archive", "Couldn't open contents as tar file: empty stream")
			}
			return nil, io.EOF
		}
		if err != nil {
			if w.count == 0 {
				return nil, failure.Wrap(failure.CodeArchive, "open archive", "Couldn't open contents as tar file", err)
			}
			return nil, failure.Wrap(failure.CodeArchive, "read archive", "corrupt archive entry header", err)
		}
		w.count++
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		return hdr, nil
	}
}

func describeSuffix(section, suffix string) string {
	if suffix == "" {
		return section + " section"
	}
	return suffix
}
