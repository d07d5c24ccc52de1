package installer

import (
	"context"
	"io"
	"log/slog"
	"os"

	"updateengine/internal/archive"
	"updateengine/internal/config"
	"updateengine/internal/delta"
	"updateengine/internal/download"
	"updateengine/internal/failure"
	"updateengine/internal/logging"
	"updateengine/internal/manifest"
	"updateengine/internal/signature"
	"updateengine/internal/slot"
	"updateengine/internal/status"
	"updateengine/internal/system"
	"updateengine/internal/transform"
)

// ManifestVerifier checks the detached manifest signature.
type ManifestVerifier interface {
	Verify(ctx context.Context, dataPath, sigPath string) (signature.Result, error)
}

// Options wires an Engine. Only Config is required; every collaborator left
// nil is built from the configured tools.
type Options struct {
	Config   *config.Config
	Status   *status.Reporter
	Pair     slot.Pair
	Verifier ManifestVerifier
	Slots    system.SlotControl
	Syncer   system.Syncer
	Mounter  system.Mounter
	Props    system.Properties
	Applier  delta.Applier
	Download *download.Client
	// Runner executes the default tool collaborators.
	Runner system.Runner
	Logger *slog.Logger
	// OnProgress, if set, observes every progress update.
	OnProgress ProgressFunc
}

// Engine performs one update attempt.
type Engine struct {
	cfg      *config.Config
	status   *status.Reporter
	devices  slot.Devices
	verifier ManifestVerifier
	slots    system.SlotControl
	syncer   system.Syncer
	mounter  system.Mounter
	props    system.Properties
	applier  delta.Applier
	client   *download.Client
	codec    transform.Codec
	logger   *slog.Logger
	observe  ProgressFunc
	state    State
}

// New builds an Engine for the slot pair in opts.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, failure.New(failure.CodeUnknown, "create engine", "configuration required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "installer")
	runner := opts.Runner
	if runner == nil {
		runner = system.ExecRunner{}
	}

	e := &Engine{
		cfg:      cfg,
		status:   opts.Status,
		devices:  slot.Devices{Dir: cfg.Paths.BootDeviceDir, Pair: opts.Pair, BlockSize: cfg.Transfer.WriteBlockSize},
		verifier: opts.Verifier,
		slots:    opts.Slots,
		syncer:   opts.Syncer,
		mounter:  opts.Mounter,
		props:    opts.Props,
		applier:  opts.Applier,
		client:   opts.Download,
		codec:    transform.NewCodec(cfg, logger),
		logger:   logger,
		observe:  opts.OnProgress,
		state:    StateIdle,
	}
	if e.status == nil {
		e.status = status.New(cfg.Paths.StatusDir, cfg.Paths.LockFile)
	}
	if e.verifier == nil {
		e.verifier = signature.Verifier{OpenSSL: cfg.Tools.OpenSSL, PublicKey: cfg.Paths.PublicKey, Runner: runner}
	}
	if e.slots == nil {
		e.slots = system.Bootctl{Binary: cfg.Tools.Bootctl, Runner: runner}
	}
	if e.syncer == nil {
		e.syncer = system.SyncTool{Binary: cfg.Tools.Sync, Runner: runner}
	}
	if e.mounter == nil {
		e.mounter = system.MountTool{MountBinary: cfg.Tools.Mount, UmountBinary: cfg.Tools.Umount, Runner: runner}
	}
	if e.props == nil {
		e.props = system.Getprop{Binary: cfg.Tools.Getprop, Runner: runner}
	}
	if e.applier == nil {
		e.applier = delta.ExecApplier{Binary: cfg.Tools.DeltaApplier}
	}
	if e.client == nil {
		e.client = download.NewFromConfig(cfg.Download)
	}
	return e, nil
}

// State returns the current state of the attempt.
func (e *Engine) State() State {
	return e.state
}

// Pair returns the slot pair the engine writes to.
func (e *Engine) Pair() slot.Pair {
	return e.devices.Pair
}

// Update downloads the package at url and installs it.
func (e *Engine) Update(ctx context.Context, url string) error {
	ctx = e.attemptContext(ctx)
	logger := logging.WithContext(ctx, e.logger)

	err := e.fetchAndInstall(ctx, logger, url)
	return e.finish(ctx, logger, err)
}

// Run installs the package read from body.
func (e *Engine) Run(ctx context.Context, body io.Reader) error {
	ctx = e.attemptContext(ctx)
	logger := logging.WithContext(ctx, e.logger)
	err := e.prepareDirectories()
	if err == nil {
		err = e.install(ctx, logger, body)
	}
	return e.finish(ctx, logger, err)
}

func (e *Engine) attemptContext(ctx context.Context) context.Context {
	if _, ok := logging.AttemptIDFromContext(ctx); ok {
		return ctx
	}
	return logging.WithAttemptID(ctx, logging.NewAttemptID())
}

func (e *Engine) fetchAndInstall(ctx context.Context, logger *slog.Logger, url string) error {
	if err := e.prepareDirectories(); err != nil {
		return err
	}
	id, err := download.LookupIdentity(ctx, e.props, e.cfg.Properties)
	if err != nil {
		return err
	}
	resp, err := e.client.Open(ctx, url, id)
	if err != nil {
		return err
	}
	defer resp.Close()

	logger.Info("download opened",
		logging.String("os_version", id.OSVersion),
		logging.Int64("download_bytes", resp.ContentLength),
		logging.String(logging.FieldEventType, "download_open"),
	)
	if err := e.status.Write(status.ExpectedDownloadSize, resp.ContentLength); err != nil {
		return failure.Wrap(failure.CodeIO, "write status", "IO Error", err)
	}
	return e.install(ctx, logger, resp)
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	e.setState(ctx, logger, StateFailed)
	logging.ErrorWithContext(logger, "update failed", "update_failed",
		logging.Code(int(failure.CodeOf(err))),
		logging.String(logging.FieldImpact, "target slot left unbootable; current slot unchanged"),
		logging.Error(err),
	)
	return err
}

func (e *Engine) prepareDirectories() error {
	if err := e.cfg.EnsureDirectories(); err != nil {
		return failure.Wrap(failure.CodeIO, "prepare", "IO Error", err)
	}
	return nil
}

func (e *Engine) install(ctx context.Context, logger *slog.Logger, body io.Reader) error {
	pair := e.devices.Pair
	logger.Info("update starting",
		logging.String("current_slot", pair.Current),
		logging.String("target_slot", pair.Target),
		logging.String(logging.FieldEventType, "update_start"),
	)

	walker := archive.NewWalker(body)
	m, err := e.verifyManifest(ctx, logger, walker)
	if err != nil {
		return err
	}
	meta, err := m.Meta()
	if err != nil {
		return err
	}
	e.setState(ctx, logger, StateManifestVerified,
		logging.String("manifest_version", meta.ManifestVersion),
		logging.String("update_version", meta.UpdateVersion),
	)

	payload, err := m.Payload()
	if err != nil {
		return err
	}
	logger.Info("installation mode selected",
		logging.Args(logging.DecisionAttrs("install_mode", string(payload.Mode()), "manifest sections")...)...)

	if err := e.slots.SetUnbootable(ctx, pair); err != nil {
		return err
	}
	if err := e.devices.Zero(); err != nil {
		return failure.Wrap(failure.CodeIO, "zero target", "couldn't zero target slot", err)
	}
	e.setState(ctx, logger, StateInstalling, logging.String(logging.FieldMode, string(payload.Mode())))

	track := newProgress(e.status, logger, e.observe)
	switch p := payload.(type) {
	case manifest.BootSystem:
		err = e.installBootSystem(ctx, logger, walker, p, track)
	case manifest.Delta:
		err = e.installDelta(ctx, logger, walker, p, track)
	case manifest.Anki:
		err = e.installAnki(ctx, logger, walker, p, track)
	default:
		err = failure.New(failure.CodeManifest, "dispatch", "Unexpected manifest configuration")
	}
	if err != nil {
		return err
	}

	if err := e.syncer.Sync(ctx); err != nil {
		return err
	}
	e.setState(ctx, logger, StateSynced)
	if err := e.slots.SetActive(ctx, pair); err != nil {
		return err
	}
	e.setState(ctx, logger, StateSlotActivated)
	if err := e.status.Write(status.Done, 1); err != nil {
		return failure.Wrap(failure.CodeIO, "write status", "IO Error", err)
	}
	e.setState(ctx, logger, StateDone, logging.String("update_version", meta.UpdateVersion))
	return nil
}

// verifyManifest saves the manifest and its signature, checks the signature
// and parses the manifest. Nothing is read past the signature entry.
func (e *Engine) verifyManifest(ctx context.Context, logger *slog.Logger, walker *archive.Walker) (*manifest.Manifest, error) {
	entry, err := walker.Manifest()
	if err != nil {
		return nil, err
	}
	if err := saveEntry(e.cfg.ManifestPath(), entry); err != nil {
		return nil, err
	}
	sig, err := walker.Signature()
	if err != nil {
		return nil, err
	}
	if err := saveEntry(e.cfg.SignaturePath(), sig); err != nil {
		return nil, err
	}

	result, err := e.verifier.Verify(ctx, e.cfg.ManifestPath(), e.cfg.SignaturePath())
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, failure.Newf(failure.CodeIntegrity, "verify manifest",
			"Manifest failed signature validation, openssl returned %d %s %s", result.ExitCode, result.Stdout, result.Stderr)
	}
	logger.Debug("manifest signature valid", logging.String("manifest", e.cfg.ManifestPath()))

	file, err := os.Open(e.cfg.ManifestPath())
	if err != nil {
		return nil, failure.Wrap(failure.CodeIO, "read manifest", "IO Error", err)
	}
	defer file.Close()
	m, err := manifest.Parse(file)
	if err != nil {
		return nil, err
	}
	if err := m.CheckVersion(e.cfg.Manifest.SupportedVersions); err != nil {
		return nil, err
	}
	return m, nil
}

func saveEntry(path string, entry *archive.Entry) error {
	out, err := os.Create(path)
	if err != nil {
		return failure.Wrap(failure.CodeIO, "save "+entry.Name, "IO Error", err)
	}
	if _, err := io.Copy(out, entry); err != nil {
		_ = out.Close()
		return failure.Wrap(failure.CodeIO, "save "+entry.Name, "IO Error", err)
	}
	if err := out.Close(); err != nil {
		return failure.Wrap(failure.CodeIO, "save "+entry.Name, "IO Error", err)
	}
	return nil
}

// openSection advances the archive to the entry for img and starts decoding it.
func (e *Engine) openSection(walker *archive.Walker, img manifest.Image) (*transform.Stream, error) {
	entry, err := walker.Section(img.Section)
	if err != nil {
		return nil, err
	}
	return transform.Open(entry, e.codec.Section(img.Encryption, img.Compression, img.Bytes))
}

// integrityFailure zeroes the target slot and returns a 209 error.
func (e *Engine) integrityFailure(logger *slog.Logger, op, msg string) error {
	if err := e.devices.Zero(); err != nil {
		logging.ErrorWithContext(logger, "could not zero target slot", "zero_failed",
			logging.String(logging.FieldErrorHint, "target slot is still marked unbootable"),
			logging.Error(err),
		)
	}
	return failure.New(failure.CodeIntegrity, op, msg)
}
