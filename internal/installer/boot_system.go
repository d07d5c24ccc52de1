package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"updateengine/internal/archive"
	"updateengine/internal/failure"
	"updateengine/internal/fileutil"
	"updateengine/internal/logging"
	"updateengine/internal/manifest"
	"updateengine/internal/slot"
)

// installBootSystem writes full boot and system images. The boot image goes
// to a staging file and reaches the target boot partition only after every
// image verified, so a new kernel is never paired with an old rootfs.
func (e *Engine) installBootSystem(ctx context.Context, logger *slog.Logger, walker *archive.Walker, p manifest.BootSystem, track *progress) error {
	if err := track.start(p.ExpectedSize()); err != nil {
		return err
	}

	var written int64
	for _, img := range p.Images() {
		if err := ctx.Err(); err != nil {
			return failure.Wrap(failure.CodeUnknown, "install", "update interrupted", err)
		}
		track.section(img.Section, written)
		n, err := e.writeImage(logger, walker, img, track)
		if err != nil {
			return err
		}
		written += n
	}

	dst, err := e.devices.Target(slot.Boot)
	if err != nil {
		return failure.Wrap(failure.CodeIO, "commit boot", "IO Error", err)
	}
	n, err := fileutil.CopyFileTo(dst, e.cfg.BootStagingPath(), e.cfg.Transfer.WriteBlockSize)
	if err != nil {
		_ = dst.Close()
		return failure.Wrap(failure.CodeIO, "commit boot", "IO Error", err)
	}
	if err := dst.Close(); err != nil {
		return failure.Wrap(failure.CodeIO, "commit boot", "IO Error", err)
	}
	logger.Info("boot image committed",
		logging.String(logging.FieldSection, manifest.SectionBoot),
		logging.Int64("written_bytes", n),
		logging.String(logging.FieldEventType, "boot_commit"),
	)
	return nil
}

// writeImage decodes one image to its destination and verifies its digest.
func (e *Engine) writeImage(logger *slog.Logger, walker *archive.Walker, img manifest.Image, track *progress) (int64, error) {
	dst, err := e.imageDestination(img.Section)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	stream, err := e.openSection(walker, img)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	logger.Info("writing image",
		logging.String(logging.FieldSection, img.Section),
		logging.String("destination", dst.Name()),
		logging.Int64("image_bytes", img.Bytes),
		logging.Int("encryption", img.Encryption),
	)
	if err := stream.ReadToTarget(dst, e.cfg.Transfer.WriteBlockSize, track.offset); err != nil {
		return stream.Tell(), err
	}
	if err := track.err(); err != nil {
		return stream.Tell(), err
	}
	if err := dst.Close(); err != nil {
		return stream.Tell(), failure.Wrap(failure.CodeIO, "write "+img.Section, "IO Error", err)
	}
	if stream.Digest() != img.SHA256 {
		return stream.Tell(), e.integrityFailure(logger, "verify "+img.Section, imageMismatch(img.Section))
	}
	logger.Info("image verified",
		logging.String(logging.FieldSection, img.Section),
		logging.Int64("written_bytes", stream.Tell()),
		logging.String(logging.FieldEventType, "section_verified"),
	)
	return stream.Tell(), nil
}

func (e *Engine) imageDestination(section string) (*os.File, error) {
	switch section {
	case manifest.SectionBoot:
		f, err := os.Create(e.cfg.BootStagingPath())
		if err != nil {
			return nil, failure.Wrap(failure.CodeIO, "stage boot", "IO Error", err)
		}
		return f, nil
	case manifest.SectionSystem:
		f, err := e.devices.Target(slot.System)
		if err != nil {
			return nil, failure.Wrap(failure.CodeIO, "open target system", "IO Error", err)
		}
		return f, nil
	default:
		return nil, failure.Newf(failure.CodeManifest, "write image", "no destination for section %s", section)
	}
}

func imageMismatch(section string) string {
	switch section {
	case manifest.SectionBoot:
		return "Boot image hash doesn't match signed manifest"
	case manifest.SectionSystem:
		return "System image hash doesn't match signed manifest"
	default:
		return fmt.Sprintf("%s hash doesn't match signed manifest", section)
	}
}
