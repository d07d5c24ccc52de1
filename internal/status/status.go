package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"updateengine/internal/failure"
	"updateengine/internal/fileutil"
)

// Status file names.
const (
	ExpectedDownloadSize = "expected-download-size"
	ExpectedSize         = "expected-size"
	Progress             = "progress"
	Error                = "error"
	Done                 = "done"
)

// Files lists the status files in display order.
var Files = []string{ExpectedDownloadSize, ExpectedSize, Progress, Error, Done}

// ErrLocked is returned by Lock when another invocation owns the directory.
var ErrLocked = errors.New("another update-engine invocation is running")

// Reporter writes status files into Dir.
type Reporter struct {
	Dir string

	lock *flock.Flock
}

// New returns a Reporter for dir. lockPath may be empty to skip locking.
func New(dir, lockPath string) *Reporter {
	r := &Reporter{Dir: dir}
	if strings.TrimSpace(lockPath) != "" {
		r.lock = flock.New(lockPath)
	}
	return r
}

// Lock takes the run lock without blocking.
func (r *Reporter) Lock() error {
	if r.lock == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.lock.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := r.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the run lock.
func (r *Reporter) Unlock() error {
	if r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}

// Ensure creates the status directory.
func (r *Reporter) Ensure() error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	return nil
}

// Clear deletes everything in the status directory. A missing directory is
// already clear.
func (r *Reporter) Clear() error {
	if err := fileutil.RemoveContents(r.Dir); err != nil {
		return fmt.Errorf("clear status directory: %w", err)
	}
	return nil
}

// Write replaces the named status file with the string form of value.
func (r *Reporter) Write(name string, value any) error {
	path := filepath.Join(r.Dir, name)
	if err := fileutil.WriteFileAtomic(path, []byte(fmt.Sprint(value)), 0o644); err != nil {
		return fmt.Errorf("write status %s: %w", name, err)
	}
	return nil
}

// Fail records err in the error file and returns the exit code for it. A
// failure to write the file is folded into the returned error text but does
// not change the code.
func (r *Reporter) Fail(err error) (int, error) {
	code := failure.CodeOf(err)
	if code == 0 {
		code = failure.CodeUnknown
	}
	message := "update failed"
	if err != nil {
		message = err.Error()
	}
	if werr := r.Ensure(); werr != nil {
		return int(code), werr
	}
	if werr := r.Write(Error, message); werr != nil {
		return int(code), werr
	}
	return int(code), nil
}

// Snapshot reads every status file that exists.
func (r *Reporter) Snapshot() (map[string]string, error) {
	values := make(map[string]string, len(Files))
	for _, name := range Files {
		data, err := os.ReadFile(filepath.Join(r.Dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read status %s: %w", name, err)
		}
		values[name] = strings.TrimSpace(string(data))
	}
	return values, nil
}
