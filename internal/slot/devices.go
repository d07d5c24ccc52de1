package slot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"updateengine/internal/fileutil"
)

// Partitions that make up a slot.
const (
	Boot   = "boot"
	System = "system"
)

// ErrReadOnlySlot is returned when a write handle is requested for a slot
// other than the update target.
var ErrReadOnlySlot = errors.New("slot is read-only")

// Devices opens partition devices for one slot pair.
type Devices struct {
	// Dir holds the by-name device nodes.
	Dir       string
	Pair      Pair
	BlockSize int
}

// Label returns the device name for a partition of a slot.
func Label(partition, slot string) (string, error) {
	if partition != Boot && partition != System {
		return "", fmt.Errorf("unknown partition %q", partition)
	}
	switch slot {
	case A, B:
		return partition + "_" + slot, nil
	case Factory:
		if partition == System {
			return "recoveryfs", nil
		}
		return "recovery", nil
	default:
		return "", fmt.Errorf("unknown slot %q", slot)
	}
}

// Path returns the device path of a partition in the given slot.
func (d Devices) Path(partition, slot string) (string, error) {
	label, err := Label(partition, slot)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Dir, label), nil
}

// CurrentPath returns the device path of a partition in the running slot.
func (d Devices) CurrentPath(partition string) (string, error) {
	return d.Path(partition, d.Pair.Current)
}

// TargetPath returns the device path of a partition in the target slot.
func (d Devices) TargetPath(partition string) (string, error) {
	return d.Path(partition, d.Pair.Target)
}

// Current opens a partition of the running slot read-only.
func (d Devices) Current(partition string) (*os.File, error) {
	path, err := d.CurrentPath(partition)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Target opens a partition of the target slot for writing. Device nodes are
// never truncated or created.
func (d Devices) Target(partition string) (*os.File, error) {
	if d.Pair.Target == Factory || d.Pair.Target == d.Pair.Current {
		return nil, fmt.Errorf("open %s_%s for writing: %w", partition, d.Pair.Target, ErrReadOnlySlot)
	}
	path, err := d.TargetPath(partition)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY, 0)
}

// Zero overwrites the first block of the target boot and system partitions
// so the bootloader can never select a half-written slot.
func (d Devices) Zero() error {
	block := make([]byte, d.blockSize())
	for _, partition := range []string{Boot, System} {
		if err := d.zeroPartition(partition, block); err != nil {
			return err
		}
	}
	return nil
}

func (d Devices) zeroPartition(partition string, block []byte) error {
	dev, err := d.Target(partition)
	if err != nil {
		return err
	}
	if _, err := dev.Write(block); err != nil {
		_ = dev.Close()
		return fmt.Errorf("zero %s: %w", dev.Name(), err)
	}
	return dev.Close()
}

// CopyFromCurrent copies a whole partition of the running slot onto the same
// partition of the target slot.
func (d Devices) CopyFromCurrent(partition string) (int64, error) {
	src, err := d.Current(partition)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := d.Target(partition)
	if err != nil {
		return 0, err
	}
	written, err := fileutil.CopyBlocks(dst, src, d.blockSize())
	if err != nil {
		_ = dst.Close()
		return written, fmt.Errorf("copy %s to %s: %w", src.Name(), dst.Name(), err)
	}
	return written, dst.Close()
}

func (d Devices) blockSize() int {
	if d.BlockSize <= 0 {
		return 2 * 1024 * 1024
	}
	return d.BlockSize
}
