package installer

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"updateengine/internal/archive"
	"updateengine/internal/buildprop"
	"updateengine/internal/failure"
	"updateengine/internal/logging"
	"updateengine/internal/manifest"
	"updateengine/internal/slot"
	"updateengine/internal/system"
	"updateengine/internal/transform"
)

// installAnki replaces the product subtree on a clone of the running system
// and clones the running boot image once the subtree verified. Progress is
// reported as stages 0 to 4.
func (e *Engine) installAnki(ctx context.Context, logger *slog.Logger, walker *archive.Walker, p manifest.Anki, track *progress) error {
	img := p.Image
	if img.Encryption != transform.EncryptionNone {
		return failure.New(failure.CodeEncryption, "install anki", "Encrypted Anki updates are not supported")
	}
	compression, err := transform.ParseCompression(img.Compression)
	if err != nil {
		return err
	}
	if err := track.start(p.ExpectedSize()); err != nil {
		return err
	}

	track.section("copy_system", 0)
	copied, err := e.devices.CopyFromCurrent(slot.System)
	if err != nil {
		return failure.Wrap(failure.CodeIO, "copy system", "IO Error", err)
	}
	logger.Info("system cloned",
		logging.String("current_slot", e.devices.Pair.Current),
		logging.Int64("written_bytes", copied),
	)
	track.offset(1)

	device, err := e.devices.TargetPath(slot.System)
	if err != nil {
		return failure.Wrap(failure.CodeIO, "mount target", "IO Error", err)
	}
	mountPoint := e.cfg.Paths.MountPoint
	var raw *hashingReader
	err = system.WithMount(ctx, e.mounter, logger, device, mountPoint, func() error {
		subtree := filepath.Join(mountPoint, e.cfg.Anki.Subtree)
		if err := os.RemoveAll(subtree); err != nil {
			return failure.Wrap(failure.CodeIO, "remove subtree", "IO Error", err)
		}
		track.section("extract", 0)
		track.offset(2)

		entry, err := walker.Section(img.Section)
		if err != nil {
			return err
		}
		raw = newHashingReader(entry)
		files, err := extractTar(raw, compression, mountPoint)
		if err != nil {
			return err
		}
		// Trailing padding is part of the signed byte count.
		if _, err := io.Copy(io.Discard, raw); err != nil {
			return failure.Wrap(failure.CodeArchive, "extract anki", "IO Error", err)
		}
		logger.Info("subtree extracted",
			logging.String(logging.FieldSection, img.Section),
			logging.Int("files", files),
			logging.Int64("archive_bytes", raw.n),
		)

		id, err := buildprop.Rewrite(mountPoint, e.cfg.Anki)
		if err != nil {
			return err
		}
		logger.Info("build properties updated",
			logging.String("build_id", id.BuildID),
			logging.String("version_id", id.VersionID),
		)
		return nil
	})
	if err != nil {
		return err
	}
	track.offset(3)

	if raw.n != img.Bytes {
		return e.integrityFailure(logger, "verify anki", "Anki archive wrong size")
	}
	if raw.digest() != img.SHA256 {
		return e.integrityFailure(logger, "verify anki", "Anki archive didn't match signed manifest")
	}

	track.section("copy_boot", 0)
	if _, err := e.devices.CopyFromCurrent(slot.Boot); err != nil {
		return failure.Wrap(failure.CodeIO, "copy boot", "IO Error", err)
	}
	track.offset(4)
	return track.err()
}

// hashingReader hashes and counts the raw bytes read through it.
type hashingReader struct {
	r   io.Reader
	sum hash.Hash
	n   int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, sum: sha256.New()}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.sum.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

func (h *hashingReader) digest() string {
	return hex.EncodeToString(h.sum.Sum(nil))
}

// extractTar unpacks a tar stream, optionally gzip compressed, under root.
// Entries that would land outside root are rejected.
func extractTar(src io.Reader, compression transform.Compression, root string) (int, error) {
	if compression == transform.CompressionGzip {
		zr, err := gzip.NewReader(src)
		if err != nil {
			return 0, failure.Wrap(failure.CodeDecompress, "extract anki", "Decompression error", err)
		}
		defer zr.Close()
		src = zr
	}

	tr := tar.NewReader(src)
	files := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, failure.Wrap(failure.CodeArchive, "extract anki", "Couldn't open contents as tar file", err)
		}
		if err := extractEntry(tr, hdr, root); err != nil {
			return files, err
		}
		files++
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, root string) error {
	name := filepath.Clean(hdr.Name)
	if !filepath.IsLocal(name) {
		return failure.Newf(failure.CodeArchive, "extract anki", "entry %q escapes the mount point", hdr.Name)
	}
	target := filepath.Join(root, name)
	mode := os.FileMode(hdr.Mode).Perm()
	ioErr := func(err error) error {
		if err == nil {
			return nil
		}
		return failure.Wrap(failure.CodeIO, "extract "+hdr.Name, "IO Error", err)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, mode|0o700); err != nil {
			return ioErr(err)
		}
		return ioErr(os.Chmod(target, mode))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return ioErr(err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return ioErr(err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return failure.Wrap(failure.CodeDecompress, "extract "+hdr.Name, "Decompression error", err)
		}
		return ioErr(out.Close())
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return ioErr(err)
		}
		_ = os.Remove(target)
		return ioErr(os.Symlink(hdr.Linkname, target))
	case tar.TypeLink:
		linkName := filepath.Clean(hdr.Linkname)
		if !filepath.IsLocal(linkName) {
			return failure.Newf(failure.CodeArchive, "extract anki", "link %q escapes the mount point", hdr.Linkname)
		}
		_ = os.Remove(target)
		return ioErr(os.Link(filepath.Join(root, linkName), target))
	case tar.TypeXGlobalHeader:
		return nil
	default:
		return failure.Newf(failure.CodeArchive, "extract anki", "unsupported entry type %q for %s", string(hdr.Typeflag), hdr.Name)
	}
}
