package installer

import (
	"log/slog"

	"updateengine/internal/failure"
	"updateengine/internal/logging"
	"updateengine/internal/status"
)

// ProgressFunc observes install progress in the units written to the
// expected-size status file.
type ProgressFunc func(done, total int64)

// progress mirrors install progress into the status directory. Status write
// failures are remembered and reported by err so the byte pumps need no
// error path for them.
type progress struct {
	status  *status.Reporter
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	observe ProgressFunc
	stage   string
	total   int64
	base    int64
	failed  error
}

func newProgress(reporter *status.Reporter, logger *slog.Logger, observe ProgressFunc) *progress {
	return &progress{
		status:  reporter,
		logger:  logger,
		sampler: logging.NewProgressSampler(10),
		observe: observe,
	}
}

// start writes the expected size and a zero progress value.
func (p *progress) start(total int64) error {
	p.total = total
	p.base = 0
	p.sampler.Reset()
	if err := p.status.Write(status.ExpectedSize, total); err != nil {
		return failure.Wrap(failure.CodeIO, "write status", "IO Error", err)
	}
	p.set(0)
	return p.err()
}

// section starts a named stage whose offsets are added to base.
func (p *progress) section(stage string, base int64) {
	p.stage = stage
	p.base = base
}

// offset reports progress within the current section.
func (p *progress) offset(n int64) {
	p.set(p.base + n)
}

func (p *progress) set(done int64) {
	if err := p.status.Write(status.Progress, done); err != nil && p.failed == nil {
		p.failed = err
	}
	if p.observe != nil {
		p.observe(done, p.total)
	}
	percent := -1.0
	if p.total > 0 {
		percent = float64(done) * 100 / float64(p.total)
	}
	if p.sampler.ShouldLog(p.stage, percent) {
		p.logger.Info("install progress",
			logging.String(logging.FieldProgressStage, p.stage),
			logging.Any(logging.FieldProgressPercent, percent),
			logging.Int64("progress_done", done),
			logging.Int64("progress_total", p.total),
		)
	}
}

// err returns the first status write failure.
func (p *progress) err() error {
	if p.failed == nil {
		return nil
	}
	return failure.Wrap(failure.CodeIO, "write status", "IO Error", p.failed)
}
