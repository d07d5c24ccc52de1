package installer

import (
	"context"
	"io"
	"log/slog"

	"updateengine/internal/archive"
	"updateengine/internal/cachestream"
	"updateengine/internal/delta"
	"updateengine/internal/failure"
	"updateengine/internal/logging"
	"updateengine/internal/manifest"
	"updateengine/internal/slot"
)

// installDelta applies a binary patch from the current slot onto the target
// slot. The running version must be the patch base; this is checked before
// the DELTA entry is read.
func (e *Engine) installDelta(ctx context.Context, logger *slog.Logger, walker *archive.Walker, p manifest.Delta, track *progress) error {
	img := p.Image
	current, _ := e.props.Get(ctx, e.cfg.Properties.Version)
	if current != img.BaseVersion {
		logger.Info("delta rejected",
			logging.Args(logging.DecisionAttrs("delta_base", "reject", "running version differs from delta base")...)...)
		return failure.Newf(failure.CodeVersion, "check delta base", "My version is %s not %s", current, img.BaseVersion)
	}

	targets, err := e.deltaTargets()
	if err != nil {
		return err
	}
	if err := track.start(p.ExpectedSize()); err != nil {
		return err
	}
	track.section(img.Section, 0)

	stream, err := e.openSection(walker, img)
	if err != nil {
		return err
	}
	defer stream.Close()

	payload, err := cachestream.New(stream, img.Cache, track.offset)
	if err != nil {
		return failure.Wrap(failure.CodeDecompress, "read delta", "Decompression error", err)
	}
	logger.Info("applying delta",
		logging.String("base_version", img.BaseVersion),
		logging.Int64("delta_bytes", img.Bytes),
		logging.Int64("cached_bytes", payload.Cached()),
	)
	if err := e.applier.Apply(ctx, payload, targets); err != nil {
		return failure.Wrap(failure.CodePayload, "apply delta", "Delta payload error", err)
	}

	// The applier may stop before the end of the payload; the digest covers
	// every declared byte.
	if _, err := payload.Seek(payload.Fetched(), io.SeekStart); err != nil {
		return failure.Wrap(failure.CodePayload, "drain delta", "Delta payload error", err)
	}
	if _, err := io.Copy(io.Discard, payload); err != nil {
		return failure.Wrap(failure.CodeDecompress, "drain delta", "Decompression error", err)
	}
	if err := track.err(); err != nil {
		return err
	}
	if stream.Digest() != img.SHA256 {
		return e.integrityFailure(logger, "verify delta", "delta.bin hash doesn't match manifest value")
	}
	logger.Info("delta verified",
		logging.String(logging.FieldSection, img.Section),
		logging.Int64("payload_bytes", stream.Tell()),
		logging.String(logging.FieldEventType, "section_verified"),
	)
	return nil
}

func (e *Engine) deltaTargets() (delta.Targets, error) {
	var t delta.Targets
	for _, dev := range []struct {
		dst       *string
		partition string
		target    bool
	}{
		{&t.TargetBoot, slot.Boot, true},
		{&t.TargetSystem, slot.System, true},
		{&t.CurrentBoot, slot.Boot, false},
		{&t.CurrentSystem, slot.System, false},
	} {
		var (
			path string
			err  error
		)
		if dev.target {
			path, err = e.devices.TargetPath(dev.partition)
		} else {
			path, err = e.devices.CurrentPath(dev.partition)
		}
		if err != nil {
			return delta.Targets{}, failure.Wrap(failure.CodeIO, "resolve devices", "IO Error", err)
		}
		*dev.dst = path
	}
	return t, nil
}
